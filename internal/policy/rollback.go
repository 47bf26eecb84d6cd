package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// RollbackManager applies new document sets and restores the previous
// set when validation passes but applying fails, e.g. the root does not
// compile
type RollbackManager struct {
	store     Store
	versions  *VersionStore
	validator *Validator

	mu    sync.Mutex
	apply ReloadFunc
}

// NewRollbackManager creates a rollback manager. validator may be nil when
// documents were validated on load.
func NewRollbackManager(store Store, versions *VersionStore, validator *Validator) *RollbackManager {
	if versions == nil {
		versions = NewVersionStore(0)
	}
	return &RollbackManager{
		store:     store,
		versions:  versions,
		validator: validator,
	}
}

// SetApply sets the function that activates a document set
func (rm *RollbackManager) SetApply(fn ReloadFunc) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.apply = fn
}

// UpdateWithRollback validates docs, stores them and applies them. When
// applying fails the previous content is stored and applied again.
func (rm *RollbackManager) UpdateWithRollback(ctx context.Context, docs []*types.ChildDocument, comment string) (*DocumentVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	previous := rm.store.GetAll()
	if len(previous) > 0 {
		if _, err := rm.versions.SaveVersion(previous, "pre-update snapshot: "+comment); err != nil {
			return nil, fmt.Errorf("failed to save current version: %w", err)
		}
	}

	if rm.validator != nil {
		for _, d := range docs {
			if err := rm.validator.ValidateDocument(d); err != nil {
				return nil, fmt.Errorf("document %s: %w", d.Name(), err)
			}
		}
	}

	if err := rm.store.Replace(docs); err != nil {
		return nil, err
	}
	stored := rm.store.GetAll()

	if err := rm.applyLocked(stored); err != nil {
		if rbErr := rm.restoreLocked(previous); rbErr != nil {
			return nil, fmt.Errorf("update failed: %w, rollback also failed: %v", err, rbErr)
		}
		return nil, fmt.Errorf("update failed (rolled back): %w", err)
	}

	version, err := rm.versions.SaveVersion(stored, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to save new version: %w", err)
	}
	return version, nil
}

// Rollback restores and applies a retained version
func (rm *RollbackManager) Rollback(ctx context.Context, target int64) error {
	version, err := rm.versions.GetVersion(target)
	if err != nil {
		return fmt.Errorf("failed to get version %d: %w", target, err)
	}
	return rm.rollbackTo(ctx, version)
}

// RollbackToPrevious restores and applies the version before the latest
func (rm *RollbackManager) RollbackToPrevious(ctx context.Context) error {
	version, err := rm.versions.GetPreviousVersion()
	if err != nil {
		return fmt.Errorf("failed to get previous version: %w", err)
	}
	return rm.rollbackTo(ctx, version)
}

func (rm *RollbackManager) rollbackTo(ctx context.Context, version *DocumentVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if err := rm.restoreLocked(version.Documents); err != nil {
		return err
	}
	comment := fmt.Sprintf("rollback to version %d", version.Version)
	if _, err := rm.versions.SaveVersion(version.Documents, comment); err != nil {
		return fmt.Errorf("rollback succeeded but failed to save rollback version: %w", err)
	}
	return nil
}

func (rm *RollbackManager) restoreLocked(docs []*types.ChildDocument) error {
	if err := rm.store.Replace(docs); err != nil {
		return fmt.Errorf("failed to restore documents: %w", err)
	}
	return rm.applyLocked(rm.store.GetAll())
}

func (rm *RollbackManager) applyLocked(docs []*types.ChildDocument) error {
	if rm.apply == nil {
		return nil
	}
	return rm.apply(docs)
}

// GetCurrentVersion returns the latest saved version
func (rm *RollbackManager) GetCurrentVersion() (*DocumentVersion, error) {
	return rm.versions.GetCurrentVersion()
}

// ListVersions returns all retained versions
func (rm *RollbackManager) ListVersions() []*DocumentVersion {
	return rm.versions.ListVersions()
}

// GetStats returns version store statistics
func (rm *RollbackManager) GetStats() VersionStats {
	return rm.versions.GetStats()
}
