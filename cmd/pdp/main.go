// Package main provides the pdp command: it loads a policy directory,
// evaluates requests against it and optionally keeps watching for changes
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/authz-engine/pdp-core/internal/audit"
	"github.com/authz-engine/pdp-core/internal/cache"
	"github.com/authz-engine/pdp-core/internal/cel"
	"github.com/authz-engine/pdp-core/internal/enforcement"
	"github.com/authz-engine/pdp-core/internal/engine"
	"github.com/authz-engine/pdp-core/internal/logging"
	"github.com/authz-engine/pdp-core/internal/metrics"
	"github.com/authz-engine/pdp-core/internal/policy"
	"github.com/authz-engine/pdp-core/pkg/types"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		policyDir     = flag.String("policy-dir", "", "Directory to load policies from")
		requestsFile  = flag.String("requests", "", "YAML/JSON list of request attribute maps (- for stdin)")
		rootAlgorithm = flag.String("root-algorithm", types.AlgorithmDenyOverrides, "Algorithm combining the top-level documents")
		logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		logFormat     = flag.String("log-format", "json", "Log format (json, console)")
		logFile       = flag.String("log-file", "", "Also write logs to this rotating file")
		cacheEnabled  = flag.Bool("cache", true, "Enable decision cache")
		cacheSize     = flag.Int("cache-size", 100000, "Maximum cache entries")
		cacheTTL      = flag.Duration("cache-ttl", 5*time.Minute, "Cache TTL")
		redisAddr     = flag.String("redis-addr", "", "Redis host:port for a shared decision cache")
		workers       = flag.Int("workers", 16, "Number of parallel workers")
		watch         = flag.Bool("watch", false, "Watch the policy directory and reload on change")
		metricsAddr   = flag.String("metrics-addr", "", "Serve /metrics and /healthz on this address")
		auditFile     = flag.String("audit-file", "", "Write a hash-chained decision audit trail to this file")
		enforce       = flag.Bool("enforce", false, "Discharge obligations by logging them and report permitted")
		exportPath    = flag.String("export", "", "Write the loaded documents as a tar.gz bundle to this path")
		showVersion   = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("pdp %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = *logLevel
	logCfg.Format = *logFormat
	logCfg.File = *logFile
	logger, closeLog, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	if *policyDir == "" {
		logger.Fatal("-policy-dir is required")
	}

	celEngine, err := cel.NewEngine()
	if err != nil {
		logger.Fatal("Failed to create CEL engine", zap.Error(err))
	}
	validator := policy.NewValidator(celEngine)
	store := policy.NewMemoryStore()

	var m metrics.Metrics = metrics.NewNoOpMetrics()
	if *metricsAddr != "" {
		m = metrics.NewPrometheusMetrics("pdp")
	}

	opts := []engine.Option{engine.WithLogger(logger), engine.WithMetrics(m)}

	if *cacheEnabled && *redisAddr != "" {
		redisCache, err := newRedisCache(*redisAddr, *cacheTTL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisCache.Close()
		opts = append(opts, engine.WithCache(cache.NewHybridCache(*cacheSize, *cacheTTL, redisCache)))
	}

	auditLog := audit.NewNoOpLogger()
	if *auditFile != "" {
		auditCfg := audit.DefaultConfig()
		auditCfg.Type = "file"
		auditCfg.FilePath = *auditFile
		auditCfg.HashChain = true
		auditLog, err = audit.NewLogger(auditCfg)
		if err != nil {
			logger.Fatal("Failed to create audit logger", zap.Error(err))
		}
	}
	defer auditLog.Close()
	opts = append(opts, engine.WithAuditLogger(auditLog))

	eng := engine.New(engine.Config{
		CacheEnabled:    *cacheEnabled,
		CacheSize:       *cacheSize,
		CacheTTL:        *cacheTTL,
		ParallelWorkers: *workers,
	}, opts...)

	a := &app{
		logger:        logger,
		compiler:      policy.NewCompiler(celEngine),
		engine:        eng,
		audit:         auditLog,
		rootName:      policy.DefaultRootName,
		rootAlgorithm: *rootAlgorithm,
		out:           os.Stdout,
	}
	if *enforce {
		a.enforcer = enforcement.NewRegistry(enforcement.WithLogger(logger), enforcement.WithMetrics(m))
		a.enforcer.Register("log", logHandler(logger))
		a.enforcer.Register("audit", logHandler(logger))
	}

	watcher, err := policy.NewFileWatcher(*policyDir, store, policy.NewLoader(logger, validator), policy.DefaultWatcherConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create policy watcher", zap.Error(err))
	}
	watcher.SetMetrics(m)
	watcher.OnReload(a.install)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	initial := watcher.Reload()
	<-watcher.EventChan()
	a.audit.LogReload(ctx, audit.ReloadRecord{Documents: initial.Documents, StoreVersion: initial.Version})
	if initial.Error != nil {
		logger.Fatal("Failed to load policies", zap.Error(initial.Error))
	}

	if *exportPath != "" {
		if err := exportBundle(store, *exportPath); err != nil {
			logger.Fatal("Failed to export policies", zap.Error(err))
		}
		logger.Info("Exported policy bundle", zap.String("path", *exportPath))
	}

	var requests []types.Request
	if *requestsFile != "" {
		requests, err = readRequests(*requestsFile)
		if err != nil {
			logger.Fatal("Failed to read requests", zap.Error(err))
		}
		if err := a.evaluate(ctx, requests); err != nil {
			logger.Error("Evaluation failed", zap.Error(err))
		}
	}

	if !*watch && *metricsAddr == "" {
		_ = watcher.Stop()
		_ = eng.Shutdown(context.Background())
		return
	}

	go a.handleReloads(ctx, watcher.EventChan(), requests)

	if *watch {
		if err := watcher.Watch(ctx); err != nil {
			logger.Fatal("Failed to watch policy directory", zap.Error(err))
		}
	}

	var httpSrv *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.HTTPHandler())
		mux.Handle("/healthz", a.healthHandler())
		httpSrv = &http.Server{
			Addr:         *metricsAddr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("Starting HTTP server for health/metrics", zap.String("addr", *metricsAddr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", zap.Error(err))
				cancel()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	_ = watcher.Stop()
	_ = eng.Shutdown(shutdownCtx)
}

func newRedisCache(addr string, ttl time.Duration, logger *zap.Logger) (*cache.RedisCache, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid redis address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid redis port %q: %w", portStr, err)
	}

	cfg := cache.DefaultRedisConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.TTL = ttl
	return cache.NewRedisCache(cfg, logger)
}

func exportBundle(store policy.Store, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return policy.NewExporter(store).ExportTo(policy.ExportRequest{Format: policy.FormatBundle}, f)
}
