package engine

import (
	"go.uber.org/zap"

	"github.com/authz-engine/pdp-core/pkg/types"
)

var nopLogger = zap.NewNop()

// Context wraps one Request for the duration of a single evaluation pass.
// It memoizes target matches and the attribute map handed to expressions.
// A Context is not safe for concurrent use; create one per request.
type Context struct {
	request types.Request
	logger  *zap.Logger

	targets    map[*Target]bool
	attributes map[string]interface{}
}

// ContextOption configures a Context
type ContextOption func(*Context)

// WithContextLogger attaches a diagnostic sink to the context
func WithContextLogger(logger *zap.Logger) ContextOption {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewContext creates an evaluation context for req
func NewContext(req types.Request, opts ...ContextOption) *Context {
	c := &Context{
		request: req,
		logger:  nopLogger,
		targets: make(map[*Target]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request returns the wrapped request
func (c *Context) Request() types.Request {
	return c.request
}

// Logger returns the diagnostic sink (never nil)
func (c *Context) Logger() *zap.Logger {
	return c.logger
}

// Attribute looks up a single request attribute
func (c *Context) Attribute(key string) (interface{}, bool) {
	return c.request.Get(key)
}

// Attributes returns the request attributes as a map. The map is built once
// per context and must be treated as read-only.
func (c *Context) Attributes() map[string]interface{} {
	if c.attributes == nil {
		c.attributes = c.request.Attributes()
	}
	return c.attributes
}

func (c *Context) matchTarget(t *Target) bool {
	if matched, ok := c.targets[t]; ok {
		return matched
	}
	matched := t.match(c.request)
	c.targets[t] = matched
	return matched
}
