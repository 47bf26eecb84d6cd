package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// AsyncLogger buffers events in a ring and writes them from a background
// goroutine. When the ring is full the oldest event is dropped.
type AsyncLogger struct {
	writer Writer
	cfg    Config
	chain  *HashChain

	// Ring buffer
	buffer []*Event
	size   int
	head   int
	count  int
	mu     sync.Mutex

	writeMu sync.Mutex
	dropped atomic.Uint64
	failed  atomic.Uint64
	closed  bool

	flushCh   chan struct{}
	doneCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewAsyncLogger creates an async logger over writer and starts its
// background goroutine
func NewAsyncLogger(writer Writer, cfg Config) *AsyncLogger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}

	l := &AsyncLogger{
		writer:    writer,
		cfg:       cfg,
		buffer:    make([]*Event, cfg.BufferSize),
		size:      cfg.BufferSize,
		flushCh:   make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	if cfg.HashChain {
		l.chain = NewHashChain()
	}

	startup := newEvent(context.Background(), EventTypeSystemStartup)
	startup.Data = map[string]interface{}{"message": "Audit logging started"}
	l.enqueue(startup)

	go l.run()
	return l
}

// LogDecision records one engine decision
func (l *AsyncLogger) LogDecision(ctx context.Context, req types.Request, d *types.Decision, rootVersion string) {
	if d == nil {
		return
	}
	event := newEvent(ctx, EventTypeDecision)
	event.Decision = newDecisionRecord(req, d, rootVersion, l.cfg.IncludeAttributes)
	l.enqueue(event)
}

// LogReload records the outcome of a policy reload
func (l *AsyncLogger) LogReload(ctx context.Context, record ReloadRecord) {
	event := newEvent(ctx, EventTypePolicyReload)
	event.Reload = &record
	l.enqueue(event)
}

// enqueue adds an event to the ring buffer (non-blocking). Events arriving
// after Close are counted as dropped.
func (l *AsyncLogger) enqueue(event *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.dropped.Add(1)
		return
	}

	tail := (l.head + l.count) % l.size
	l.buffer[tail] = event
	if l.count == l.size {
		l.head = (l.head + 1) % l.size
		l.dropped.Add(1)
	} else {
		l.count++
	}

	select {
	case l.flushCh <- struct{}{}:
	default:
	}
}

func (l *AsyncLogger) run() {
	defer close(l.stoppedCh)

	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = l.flush()
		case <-l.flushCh:
			_ = l.flush()
		case <-l.doneCh:
			_ = l.flush()
			return
		}
	}
}

// Flush writes all buffered events and returns the last write error
func (l *AsyncLogger) Flush() error {
	return l.flush()
}

func (l *AsyncLogger) flush() error {
	// keeps concurrent flushes from reordering events
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	events := l.drain()
	l.mu.Unlock()

	var lastErr error
	for _, event := range events {
		// linked in write order; events lost to overflow never enter the chain
		if l.chain != nil {
			if err := l.chain.Link(event); err != nil {
				lastErr = err
				l.failed.Add(1)
				continue
			}
		}
		if err := l.writer.Write(event); err != nil {
			lastErr = err
			l.failed.Add(1)
		}
	}
	return lastErr
}

func (l *AsyncLogger) drain() []*Event {
	if l.count == 0 {
		return nil
	}
	events := make([]*Event, 0, l.count)
	for i := 0; i < l.count; i++ {
		idx := (l.head + i) % l.size
		events = append(events, l.buffer[idx])
		l.buffer[idx] = nil
	}
	l.head, l.count = 0, 0
	return events
}

// Dropped returns the number of events lost to buffer overflow
func (l *AsyncLogger) Dropped() uint64 {
	return l.dropped.Load()
}

// Failed returns the number of events that could not be written
func (l *AsyncLogger) Failed() uint64 {
	return l.failed.Load()
}

// Close writes a shutdown marker, flushes and closes the writer. It is safe
// to call more than once.
func (l *AsyncLogger) Close() error {
	l.closeOnce.Do(func() {
		shutdown := newEvent(context.Background(), EventTypeSystemShutdown)
		shutdown.Data = map[string]interface{}{"message": "Audit logging stopped"}
		l.enqueue(shutdown)

		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		close(l.doneCh)
		<-l.stoppedCh
		l.closeErr = l.writer.Close()
	})
	return l.closeErr
}
