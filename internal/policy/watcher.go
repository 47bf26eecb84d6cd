package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/authz-engine/pdp-core/internal/metrics"
	"github.com/authz-engine/pdp-core/pkg/types"
)

// ReloadedEvent reports the outcome of one reload
type ReloadedEvent struct {
	Timestamp time.Time
	Documents []string
	Version   uint64
	Error     error
}

// ReloadFunc is called with the new store content after a successful
// reload. An error marks the reload failed and the previous content is
// restored.
type ReloadFunc func(docs []*types.ChildDocument) error

// WatcherConfig configures a FileWatcher
type WatcherConfig struct {
	// Debounce coalesces bursts of file events into one reload
	Debounce time.Duration
	// EventBuffer is the capacity of the events channel; events are
	// dropped when nobody drains it
	EventBuffer int
}

// DefaultWatcherConfig returns the default watcher configuration
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Debounce:    500 * time.Millisecond,
		EventBuffer: 10,
	}
}

// FileWatcher monitors a directory for policy file changes and triggers reloads
type FileWatcher struct {
	watcher       *fsnotify.Watcher
	path          string
	loader        *Loader
	store         Store
	rollback      *RollbackManager
	logger        *zap.Logger
	metrics       metrics.Metrics
	onReload      ReloadFunc
	config        WatcherConfig
	debounceTimer *time.Timer
	eventChan     chan ReloadedEvent
	stopChan      chan struct{}
	reloadMu      sync.Mutex
	mu            sync.RWMutex
	isWatching    bool
}

// NewFileWatcher creates a new file watcher for a policy directory
func NewFileWatcher(path string, store Store, loader *Loader, cfg WatcherConfig, logger *zap.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultWatcherConfig().Debounce
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultWatcherConfig().EventBuffer
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher:   watcher,
		path:      path,
		loader:    loader,
		store:     store,
		rollback:  NewRollbackManager(store, NewVersionStore(0), nil),
		logger:    logger,
		metrics:   metrics.NewNoOpMetrics(),
		config:    cfg,
		eventChan: make(chan ReloadedEvent, cfg.EventBuffer),
		stopChan:  make(chan struct{}),
	}, nil
}

// OnReload registers the callback run after each successful reload
func (fw *FileWatcher) OnReload(fn ReloadFunc) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.onReload = fn
	fw.rollback.SetApply(fn)
}

// Versions returns the rollback manager holding the reload history
func (fw *FileWatcher) Versions() *RollbackManager {
	return fw.rollback
}

// SetMetrics sets the metrics sink for reload outcomes
func (fw *FileWatcher) SetMetrics(m metrics.Metrics) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if m != nil {
		fw.metrics = m
	}
}

// Watch starts watching the policy directory for changes
func (fw *FileWatcher) Watch(ctx context.Context) error {
	fw.mu.Lock()
	if fw.isWatching {
		fw.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	fw.isWatching = true
	fw.mu.Unlock()

	if err := fw.watcher.Add(fw.path); err != nil {
		fw.mu.Lock()
		fw.isWatching = false
		fw.mu.Unlock()
		return fmt.Errorf("failed to add path to watcher: %w", err)
	}

	fw.logger.Info("Starting policy file watcher",
		zap.String("path", fw.path),
		zap.Duration("debounce", fw.config.Debounce),
	)

	go fw.watchLoop(ctx)
	return nil
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	defer func() {
		fw.mu.Lock()
		fw.isWatching = false
		fw.mu.Unlock()
		fw.logger.Info("Policy file watcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopChan:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if isPolicyFile(event.Name) {
				fw.handleEvent(event)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

// handleEvent restarts the debounce timer
func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.logger.Debug("Policy file change detected",
		zap.String("file", event.Name),
		zap.String("op", event.Op.String()),
	)

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}
	fw.debounceTimer = time.AfterFunc(fw.config.Debounce, func() {
		fw.Reload()
	})
}

// Reload loads the directory, replaces the store content and runs the
// OnReload callback. It is safe to call directly, e.g. for the initial load.
func (fw *FileWatcher) Reload() ReloadedEvent {
	fw.reloadMu.Lock()
	defer fw.reloadMu.Unlock()

	fw.mu.RLock()
	m := fw.metrics
	fw.mu.RUnlock()

	fw.logger.Info("Reloading policies from disk", zap.String("path", fw.path))

	event := fw.reload()
	if event.Error != nil {
		m.RecordReload("error")
		fw.logger.Error("Policy reload failed",
			zap.String("path", fw.path),
			zap.Error(event.Error),
		)
	} else {
		m.RecordReload("success")
		m.UpdatePolicyCount(len(event.Documents))
		fw.logger.Info("Policies reloaded successfully",
			zap.Int("count", len(event.Documents)),
			zap.Strings("documents", event.Documents),
			zap.Uint64("version", event.Version),
		)
	}

	fw.publish(event)
	return event
}

func (fw *FileWatcher) reload() ReloadedEvent {
	event := ReloadedEvent{Timestamp: time.Now()}

	docs, err := fw.loader.LoadFromDirectory(fw.path)
	if err != nil {
		event.Error = err
		return event
	}

	if _, err := fw.rollback.UpdateWithRollback(context.Background(), docs, "reload from "+fw.path); err != nil {
		event.Error = err
	}

	// after a failed update this reflects the restored content
	stored := fw.store.GetAll()
	event.Version = fw.store.Version()
	event.Documents = make([]string, 0, len(stored))
	for _, d := range stored {
		event.Documents = append(event.Documents, d.Name())
	}
	return event
}

func (fw *FileWatcher) publish(event ReloadedEvent) {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	select {
	case <-fw.stopChan:
		return
	default:
	}

	select {
	case fw.eventChan <- event:
	default:
		fw.logger.Warn("Dropping reload event, channel full")
	}
}

// EventChan returns a channel for receiving reload events
func (fw *FileWatcher) EventChan() <-chan ReloadedEvent {
	return fw.eventChan
}

// Stop stops watching for file changes and closes the events channel
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	select {
	case <-fw.stopChan:
		return nil
	default:
	}
	close(fw.stopChan)

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}

	err := fw.watcher.Close()
	if err != nil {
		fw.logger.Error("Error closing watcher", zap.Error(err))
	}

	close(fw.eventChan)
	return err
}

// IsWatching returns true if the watcher is currently active
func (fw *FileWatcher) IsWatching() bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return fw.isWatching
}
