// Package policy loads, validates, stores and compiles policy documents
package policy

import (
	"errors"

	"github.com/authz-engine/pdp-core/pkg/types"
)

var (
	// ErrPolicyNotFound is returned when a document name is unknown
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrInvalidDocument wraps every structural or expression error found
	// while validating or compiling a document
	ErrInvalidDocument = errors.New("invalid policy document")
)

// Store defines the policy document storage interface. Each entry is a
// top-level policy or policy set.
type Store interface {
	// Get retrieves a document by name
	Get(name string) (*types.ChildDocument, error)

	// GetAll retrieves all documents in insertion order
	GetAll() []*types.ChildDocument

	// Add adds or replaces a document
	Add(doc *types.ChildDocument) error

	// Remove removes a document by name
	Remove(name string) error

	// Replace swaps the whole content of the store in one step
	Replace(docs []*types.ChildDocument) error

	// Clear removes all documents
	Clear()

	// Count returns the number of documents
	Count() int

	// Version increments on every mutation
	Version() uint64
}
