package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/authz-engine/pdp-core/internal/audit"
	"github.com/authz-engine/pdp-core/internal/enforcement"
	"github.com/authz-engine/pdp-core/internal/engine"
	"github.com/authz-engine/pdp-core/internal/policy"
	"github.com/authz-engine/pdp-core/pkg/types"
)

// app ties the compiled policy tree to the decision engine and writes
// decisions as JSON lines
type app struct {
	logger        *zap.Logger
	compiler      *policy.Compiler
	engine        *engine.Engine
	enforcer      *enforcement.Registry
	audit         audit.Logger
	rootName      string
	rootAlgorithm string

	outMu sync.Mutex
	out   io.Writer
}

// output is one line printed per request
type output struct {
	Request   map[string]interface{} `json:"request"`
	Decision  *types.Decision        `json:"decision,omitempty"`
	Permitted *bool                  `json:"permitted,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// install compiles docs under the root set and swaps it into the engine
func (a *app) install(docs []*types.ChildDocument) error {
	root, err := a.compiler.CompileRoot(a.rootName, a.rootAlgorithm, docs)
	if err != nil {
		return err
	}
	return a.engine.SetRoot(root)
}

// evaluate decides every request and prints one line each, in order
func (a *app) evaluate(ctx context.Context, requests []types.Request) error {
	decisions, batchErr := a.engine.DecideBatch(ctx, requests)

	a.outMu.Lock()
	defer a.outMu.Unlock()

	enc := json.NewEncoder(a.out)
	for i, req := range requests {
		line := output{Request: req.Attributes()}
		d := decisions[i]
		switch {
		case d == nil && batchErr != nil:
			line.Error = batchErr.Error()
		case d == nil:
			line.Error = "no decision"
		default:
			line.Decision = d
			if a.enforcer != nil {
				outcome, err := a.enforcer.Enforce(ctx, req, d.Result)
				permitted := outcome.Permitted()
				line.Permitted = &permitted
				if err != nil {
					line.Error = err.Error()
				}
			}
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write decision: %w", err)
		}
	}
	return batchErr
}

// handleReloads records reload events and, when requests are given,
// re-evaluates them against every successfully installed root
func (a *app) handleReloads(ctx context.Context, events <-chan policy.ReloadedEvent, requests []types.Request) {
	for ev := range events {
		rec := audit.ReloadRecord{Documents: ev.Documents, StoreVersion: ev.Version}
		if ev.Error != nil {
			rec.Error = ev.Error.Error()
		}
		a.audit.LogReload(ctx, rec)

		if ev.Error != nil || len(requests) == 0 {
			continue
		}
		if err := a.evaluate(ctx, requests); err != nil {
			a.logger.Error("Re-evaluation after reload failed", zap.Error(err))
		}
	}
}

// healthHandler reports ready once a root policy set is installed
func (a *app) healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		version := a.engine.Version()
		status := "ok"
		if version == "" {
			status = "no_policy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":       status,
			"root_version": version,
		})
	})
}

// logHandler discharges an obligation by logging it
func logHandler(logger *zap.Logger) enforcement.Handler {
	return func(_ context.Context, req types.Request, a types.Action) error {
		logger.Info("Obligation",
			zap.String("id", a.ID),
			zap.Any("params", a.Params),
			zap.String("request_key", req.CacheKey()),
		)
		return nil
	}
}

// readRequests reads a YAML or JSON list of attribute maps; "-" reads stdin
func readRequests(path string) ([]types.Request, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read requests: %w", err)
	}

	var raw []map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse requests: %w", err)
	}

	requests := make([]types.Request, 0, len(raw))
	for _, attrs := range raw {
		requests = append(requests, types.NewRequest(attrs))
	}
	return requests, nil
}
