package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// DocumentVersion is an immutable snapshot of the store content
type DocumentVersion struct {
	Version   int64                  `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Documents []*types.ChildDocument `json:"documents"`
	Checksum  string                 `json:"checksum"`
	Comment   string                 `json:"comment,omitempty"`
}

// VersionStore keeps the most recent document snapshots
type VersionStore struct {
	mu             sync.RWMutex
	versions       []*DocumentVersion
	currentVersion int64
	maxVersions    int
}

// NewVersionStore creates a version store retaining at most maxVersions snapshots
func NewVersionStore(maxVersions int) *VersionStore {
	if maxVersions <= 0 {
		maxVersions = 10
	}
	return &VersionStore{
		versions:    make([]*DocumentVersion, 0, maxVersions),
		maxVersions: maxVersions,
	}
}

// SaveVersion records docs as a new version. Saving content identical to
// the latest version returns that version unchanged.
func (vs *VersionStore) SaveVersion(docs []*types.ChildDocument, comment string) (*DocumentVersion, error) {
	checksum, err := checksumDocuments(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()

	if len(vs.versions) > 0 {
		latest := vs.versions[len(vs.versions)-1]
		if latest.Checksum == checksum {
			return latest, nil
		}
	}

	vs.currentVersion++
	version := &DocumentVersion{
		Version:   vs.currentVersion,
		Timestamp: time.Now(),
		Documents: append([]*types.ChildDocument(nil), docs...),
		Checksum:  checksum,
		Comment:   comment,
	}
	vs.versions = append(vs.versions, version)

	if len(vs.versions) > vs.maxVersions {
		vs.versions = vs.versions[len(vs.versions)-vs.maxVersions:]
	}
	return version, nil
}

// GetVersion retrieves a retained version by number
func (vs *VersionStore) GetVersion(version int64) (*DocumentVersion, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	for _, v := range vs.versions {
		if v.Version == version {
			return v, nil
		}
	}
	return nil, fmt.Errorf("version %d not found", version)
}

// GetCurrentVersion returns the latest version
func (vs *VersionStore) GetCurrentVersion() (*DocumentVersion, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if len(vs.versions) == 0 {
		return nil, fmt.Errorf("no versions available")
	}
	return vs.versions[len(vs.versions)-1], nil
}

// GetPreviousVersion returns the version before the latest one
func (vs *VersionStore) GetPreviousVersion() (*DocumentVersion, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if len(vs.versions) < 2 {
		return nil, fmt.Errorf("no previous version available")
	}
	return vs.versions[len(vs.versions)-2], nil
}

// ListVersions returns retained versions oldest first
func (vs *VersionStore) ListVersions() []*DocumentVersion {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	result := make([]*DocumentVersion, len(vs.versions))
	copy(result, vs.versions)
	return result
}

// VersionStats summarizes the version store
type VersionStats struct {
	TotalVersions   int       `json:"total_versions"`
	CurrentVersion  int64     `json:"current_version"`
	OldestVersion   int64     `json:"oldest_version,omitempty"`
	LatestTimestamp time.Time `json:"latest_timestamp,omitempty"`
	MaxVersions     int       `json:"max_versions"`
}

// GetStats returns statistics about the version store
func (vs *VersionStore) GetStats() VersionStats {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	stats := VersionStats{
		TotalVersions:  len(vs.versions),
		CurrentVersion: vs.currentVersion,
		MaxVersions:    vs.maxVersions,
	}
	if len(vs.versions) > 0 {
		stats.OldestVersion = vs.versions[0].Version
		stats.LatestTimestamp = vs.versions[len(vs.versions)-1].Timestamp
	}
	return stats
}

// checksumDocuments hashes the JSON form of docs; callers pass them in
// store order so equal content yields equal checksums
func checksumDocuments(docs []*types.ChildDocument) (string, error) {
	data, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal documents: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}
