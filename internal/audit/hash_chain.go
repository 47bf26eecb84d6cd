package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

// HashChain links audit events so that removing or editing a line of the
// trail is detectable. Each event hash covers the event and the previous
// hash.
type HashChain struct {
	mu       sync.Mutex
	lastHash string
}

// NewHashChain creates a chain starting from an empty genesis hash
func NewHashChain() *HashChain {
	return &HashChain{}
}

// InitializeWithHash continues an existing trail
func (hc *HashChain) InitializeWithHash(hash string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.lastHash = hash
}

// Link sets PrevHash and Hash on event and advances the chain
func (hc *HashChain) Link(event *Event) error {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	event.PrevHash = hc.lastHash
	hash, err := computeEventHash(event)
	if err != nil {
		return err
	}
	event.Hash = hash
	hc.lastHash = hash
	return nil
}

// LastHash returns the hash of the most recently linked event
func (hc *HashChain) LastHash() string {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.lastHash
}

// computeEventHash hashes the JSON form of event without its own hash.
// encoding/json sorts map keys, so the encoding is deterministic.
func computeEventHash(event *Event) (string, error) {
	c := *event
	c.Hash = ""
	data, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain checks every hash and every link of events, which must be in
// write order and start at the genesis of the chain
func VerifyChain(events []*Event) error {
	prev := ""
	for i, event := range events {
		if event.PrevHash != prev {
			return fmt.Errorf("event %d has broken chain: expected prev_hash %q, got %q", i, prev, event.PrevHash)
		}
		hash, err := computeEventHash(event)
		if err != nil {
			return fmt.Errorf("failed to verify event %d: %w", i, err)
		}
		if hash != event.Hash {
			return fmt.Errorf("event %d has invalid hash", i)
		}
		prev = event.Hash
	}
	return nil
}
