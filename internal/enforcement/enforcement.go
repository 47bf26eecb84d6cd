// Package enforcement discharges the obligations and advice attached to a
// decision on the enforcement side.
package enforcement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/authz-engine/pdp-core/internal/metrics"
	"github.com/authz-engine/pdp-core/pkg/types"
)

// ErrNoHandler is returned when an obligation has no registered handler
var ErrNoHandler = errors.New("no handler registered")

// Handler discharges one obligation or advice action
type Handler func(ctx context.Context, req types.Request, a types.Action) error

// Outcome is the result of enforcing a decision
type Outcome struct {
	// Result is the enforced result. It is DENY when an obligation could
	// not be discharged.
	Result types.Result
	// Discharged lists the obligation IDs that ran successfully
	Discharged []string
	// AdviceErrors holds failures of advice handlers, which never change
	// the result
	AdviceErrors []error
}

// Permitted is true only for a PERMIT whose obligations were all discharged
func (o *Outcome) Permitted() bool {
	return o != nil && o.Result.IsPermit() && len(o.Discharged) == len(o.Result.Obligations)
}

// Registry maps action IDs to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	metrics  metrics.Metrics
	logger   *zap.Logger
}

// Option customizes a Registry
type Option func(*Registry)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink for obligation outcomes
func WithMetrics(m metrics.Metrics) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		metrics:  metrics.NewNoOpMetrics(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register sets the handler for id, replacing any previous one
func (r *Registry) Register(id string, h Handler) {
	if h == nil {
		panic(fmt.Sprintf("enforcement: nil handler for %q", id))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
}

// Unregister removes the handler for id
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, id)
}

func (r *Registry) handler(id string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}

// Enforce runs every obligation of result in order, then every advice.
// The first obligation without a handler or whose handler fails stops
// enforcement: the outcome is DENY without obligations or advice and the
// error is returned. Advice failures are logged and collected only.
func (r *Registry) Enforce(ctx context.Context, req types.Request, result types.Result) (*Outcome, error) {
	out := &Outcome{Result: result.Clone()}

	for _, a := range result.Obligations {
		if err := ctx.Err(); err != nil {
			return r.fail(out, a, err), err
		}

		h, ok := r.handler(a.ID)
		if !ok {
			r.metrics.RecordObligation(a.ID, "missing")
			err := fmt.Errorf("obligation %q: %w", a.ID, ErrNoHandler)
			return r.fail(out, a, err), err
		}

		if err := r.run(ctx, h, req, a); err != nil {
			r.metrics.RecordObligation(a.ID, "failed")
			err = fmt.Errorf("obligation %q: %w", a.ID, err)
			return r.fail(out, a, err), err
		}

		r.metrics.RecordObligation(a.ID, "discharged")
		out.Discharged = append(out.Discharged, a.ID)
	}

	for _, a := range result.Advice {
		h, ok := r.handler(a.ID)
		if !ok {
			continue
		}
		if err := r.run(ctx, h, req, a); err != nil {
			r.logger.Warn("Advice handler failed",
				zap.String("advice", a.ID),
				zap.Error(err),
			)
			out.AdviceErrors = append(out.AdviceErrors, fmt.Errorf("advice %q: %w", a.ID, err))
		}
	}

	return out, nil
}

// run calls h, turning a panic into an error
func (r *Registry) run(ctx context.Context, h Handler, req types.Request, a types.Action) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, req, a)
}

func (r *Registry) fail(out *Outcome, a types.Action, err error) *Outcome {
	r.logger.Warn("Obligation not discharged, denying",
		zap.String("obligation", a.ID),
		zap.Stringer("decision", out.Result.Value),
		zap.Error(err),
	)
	out.Result = types.Result{Value: types.Deny}
	out.Discharged = nil
	return out
}
