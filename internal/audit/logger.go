package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// Logger records decisions and policy reloads
type Logger interface {
	// LogDecision records one engine decision
	LogDecision(ctx context.Context, req types.Request, d *types.Decision, rootVersion string)

	// LogReload records the outcome of a policy reload
	LogReload(ctx context.Context, record ReloadRecord)

	// Flush writes pending events
	Flush() error

	// Close flushes remaining events and closes the writer
	Close() error
}

// Config for audit logger
type Config struct {
	// Enabled enables audit logging
	Enabled bool

	// Output type: stdout or file
	Type string

	// For file output
	FilePath       string
	FileMaxSize    int // MB
	FileMaxAge     int // Days
	FileMaxBackups int
	Compress       bool

	// IncludeAttributes copies request attributes into decision events
	IncludeAttributes bool

	// HashChain links events with SHA-256 hashes
	HashChain bool

	BufferSize    int
	FlushInterval time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Type:           "stdout",
		BufferSize:     1000,
		FlushInterval:  100 * time.Millisecond,
		FileMaxSize:    100,
		FileMaxAge:     30,
		FileMaxBackups: 10,
		Compress:       true,
	}
}

// Validate validates the configuration and fills in buffer defaults
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.Type {
	case "stdout":
	case "file":
		if c.FilePath == "" {
			return fmt.Errorf("file path is required for file output")
		}
	case "":
		return fmt.Errorf("audit type is required")
	default:
		return fmt.Errorf("invalid audit type: %s (must be stdout or file)", c.Type)
	}

	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 100 * time.Millisecond
	}
	return nil
}

// NewLogger creates a new audit logger
func NewLogger(cfg Config) (Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if !cfg.Enabled {
		return NewNoOpLogger(), nil
	}

	var (
		writer Writer
		err    error
	)
	switch cfg.Type {
	case "stdout":
		writer = NewStdoutWriter()
	case "file":
		writer, err = NewFileWriter(cfg)
		if err != nil {
			return nil, fmt.Errorf("create file writer: %w", err)
		}
	}

	return NewAsyncLogger(writer, cfg), nil
}

type noopLogger struct{}

// NewNoOpLogger returns a logger that discards everything
func NewNoOpLogger() Logger { return noopLogger{} }

func (noopLogger) LogDecision(context.Context, types.Request, *types.Decision, string) {}
func (noopLogger) LogReload(context.Context, ReloadRecord)                             {}
func (noopLogger) Flush() error                                                        { return nil }
func (noopLogger) Close() error                                                        { return nil }
