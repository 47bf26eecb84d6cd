package policy

import (
	"fmt"
	"sync"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// MemoryStore implements an in-memory policy store. Documents keep the
// order in which they were added, which is the order of the root set.
type MemoryStore struct {
	docs    map[string]*types.ChildDocument
	order   []string
	version uint64
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory policy store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*types.ChildDocument),
	}
}

// Get retrieves a document by name
func (s *MemoryStore) Get(name string) (*types.ChildDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}
	return doc, nil
}

// GetAll retrieves all documents in insertion order
func (s *MemoryStore) GetAll() []*types.ChildDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*types.ChildDocument, 0, len(s.order))
	for _, name := range s.order {
		docs = append(docs, s.docs[name])
	}
	return docs
}

// Add appends a document, or replaces one with the same name in place
func (s *MemoryStore) Add(doc *types.ChildDocument) error {
	if err := checkStorable(doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.Name()]; !ok {
		s.order = append(s.order, doc.Name())
	}
	s.docs[doc.Name()] = doc
	s.version++
	return nil
}

// Remove removes a document by name
func (s *MemoryStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}
	delete(s.docs, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	s.version++
	return nil
}

// Replace swaps the store content. Nothing changes if any document is
// unusable or two documents share a name.
func (s *MemoryStore) Replace(docs []*types.ChildDocument) error {
	next := make(map[string]*types.ChildDocument, len(docs))
	order := make([]string, 0, len(docs))
	for _, d := range docs {
		if err := checkStorable(d); err != nil {
			return err
		}
		if _, dup := next[d.Name()]; dup {
			return fmt.Errorf("%w: duplicate document name %q", ErrInvalidDocument, d.Name())
		}
		next[d.Name()] = d
		order = append(order, d.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = next
	s.order = order
	s.version++
	return nil
}

// Clear removes all documents
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = make(map[string]*types.ChildDocument)
	s.order = nil
	s.version++
}

// Count returns the number of documents
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Version returns the mutation counter
func (s *MemoryStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func checkStorable(doc *types.ChildDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document cannot be nil", ErrInvalidDocument)
	}
	if doc.Name() == "" {
		return fmt.Errorf("%w: document name is required", ErrInvalidDocument)
	}
	return nil
}
