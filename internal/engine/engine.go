// Package engine implements the policy decision engine: targets, rules,
// policies and policy sets, the combining algorithms, and a facade that
// evaluates requests against a compiled root policy set.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authz-engine/pdp-core/internal/audit"
	"github.com/authz-engine/pdp-core/internal/cache"
	"github.com/authz-engine/pdp-core/internal/metrics"
	"github.com/authz-engine/pdp-core/pkg/types"
)

// ErrNoPolicy is returned by Decide before a root policy set is installed
var ErrNoPolicy = errors.New("no root policy set loaded")

// Engine evaluates requests against the current root policy set
type Engine struct {
	root       atomic.Pointer[compiledRoot]
	cache      cache.Cache
	workerPool *WorkerPool
	metrics    metrics.Metrics
	audit      audit.Logger
	logger     *zap.Logger

	config Config
}

type compiledRoot struct {
	program *Program
	version string
}

// Config configures the decision engine
type Config struct {
	// CacheEnabled enables caching of decisions
	CacheEnabled bool
	// CacheSize is the maximum number of cached entries
	CacheSize int
	// CacheTTL is the time-to-live for cached entries
	CacheTTL time.Duration
	// ParallelWorkers is the number of workers used by DecideBatch
	ParallelWorkers int
}

// DefaultConfig returns a default engine configuration
func DefaultConfig() Config {
	return Config{
		CacheEnabled:    true,
		CacheSize:       100000,
		CacheTTL:        5 * time.Minute,
		ParallelWorkers: 16,
	}
}

// Option customizes an Engine
type Option func(*Engine)

// WithLogger sets the logger for decisions and evaluation diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m metrics.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithAuditLogger records every decision in an audit trail
func WithAuditLogger(l audit.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.audit = l
		}
	}
}

// WithCache replaces the in-process LRU, e.g. with a Redis-backed cache.
// It has no effect when caching is disabled in Config.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) {
		if c != nil && e.config.CacheEnabled {
			e.cache = c
		}
	}
}

// New creates a new decision engine without a root policy set
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		workerPool: NewWorkerPool(cfg.ParallelWorkers),
		metrics:    metrics.NewNoOpMetrics(),
		audit:      audit.NewNoOpLogger(),
		logger:     zap.NewNop(),
		config:     cfg,
	}
	if cfg.CacheEnabled {
		e.cache = cache.NewLRU(cfg.CacheSize, cfg.CacheTTL)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetRoot encodes and optimizes root once and installs it. In-flight
// decisions finish against the previous root. The cache is purged.
func (e *Engine) SetRoot(root *PolicySet) (err error) {
	if root == nil {
		return fmt.Errorf("set root: %w", ErrNoPolicy)
	}

	// malformed trees panic during encoding; report them as errors here
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compile root %q: %v", root.Name(), r)
		}
	}()

	compiled := &compiledRoot{
		program: Compile(EncodePolicySet(root)),
		version: uuid.NewString(),
	}
	e.root.Store(compiled)
	e.ClearCache()

	e.logger.Info("Root policy set installed",
		zap.String("root", root.Name()),
		zap.String("version", compiled.version),
		zap.String("algorithm", root.Algorithm().Name()),
	)
	return nil
}

// Version identifies the installed root; empty when none is loaded
func (e *Engine) Version() string {
	if r := e.root.Load(); r != nil {
		return r.version
	}
	return ""
}

// Decide evaluates a single request
func (e *Engine) Decide(ctx context.Context, req types.Request) (*types.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := e.root.Load()
	if root == nil {
		e.metrics.RecordDecisionError("no_policy")
		return nil, ErrNoPolicy
	}

	e.metrics.IncActiveRequests()
	defer e.metrics.DecActiveRequests()

	start := time.Now()
	requestKey := req.CacheKey()
	decision := &types.Decision{
		ID:          uuid.NewString(),
		RequestKey:  requestKey,
		EvaluatedAt: start,
	}

	cacheKey := decisionCacheKey(root.version, requestKey)
	if e.cache != nil {
		if cached, ok := e.cache.Get(cacheKey); ok {
			e.metrics.RecordCacheHit()
			decision.Result = cached
			decision.CacheHit = true
			e.finish(ctx, req, root.version, decision, start)
			return decision, nil
		}
		e.metrics.RecordCacheMiss()
	}

	decision.Result = root.program.Evaluate(NewContext(req, WithContextLogger(e.logger)))

	if e.cache != nil {
		e.cache.Set(cacheKey, decision.Result)
	}

	e.finish(ctx, req, root.version, decision, start)
	return decision, nil
}

func (e *Engine) finish(ctx context.Context, req types.Request, version string, d *types.Decision, start time.Time) {
	elapsed := time.Since(start)
	d.DurationUs = float64(elapsed.Microseconds())
	e.metrics.RecordDecision(d.Result.Value.String(), elapsed)

	if ce := e.logger.Check(zap.DebugLevel, "Decision"); ce != nil {
		ce.Write(
			zap.String("decision_id", d.ID),
			zap.String("request_key", d.RequestKey),
			zap.Stringer("value", d.Result.Value),
			zap.Int("obligations", len(d.Result.Obligations)),
			zap.Int("advice", len(d.Result.Advice)),
			zap.Bool("cache_hit", d.CacheHit),
			zap.Duration("duration", elapsed),
		)
	}
	e.audit.LogDecision(ctx, req, d, version)
}

// DecideBatch evaluates requests on the worker pool. Decisions are returned
// in request order; the first error is returned alongside the partial result.
func (e *Engine) DecideBatch(ctx context.Context, requests []types.Request) ([]*types.Decision, error) {
	decisions := make([]*types.Decision, len(requests))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	record := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for i, req := range requests {
		idx, r := i, req
		wg.Add(1)
		err := e.workerPool.Submit(func() {
			defer wg.Done()

			d, err := e.Decide(ctx, r)
			if err != nil {
				record(err)
				return
			}
			decisions[idx] = d
		})
		if err != nil {
			wg.Done()
			record(err)
			break
		}
	}

	wg.Wait()
	return decisions, firstErr
}

// GetCacheStats returns cache statistics, or nil when caching is disabled
func (e *Engine) GetCacheStats() *cache.Stats {
	if e.cache == nil {
		return nil
	}
	stats := e.cache.Stats()
	return &stats
}

// ClearCache clears the decision cache
func (e *Engine) ClearCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

// Shutdown stops the batch worker pool
func (e *Engine) Shutdown(ctx context.Context) error {
	e.workerPool.Stop()
	return ctx.Err()
}

func decisionCacheKey(version, requestKey string) string {
	sum := sha256.Sum256([]byte(version + "|" + requestKey))
	return hex.EncodeToString(sum[:])
}
