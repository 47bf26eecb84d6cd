// Package types provides shared types for the policy decision engine
package types

import (
	"fmt"
	"strings"
)

// Evaluation is the outcome of evaluating a rule, policy or policy set.
// No total order is defined; combining algorithms define their own precedence.
type Evaluation uint8

const (
	Permit Evaluation = iota + 1
	Deny
	IndeterminatePermit
	IndeterminateDeny
	IndeterminateDenyOrPermit
	NotApplicable
)

var evaluationNames = map[Evaluation]string{
	Permit:                    "PERMIT",
	Deny:                      "DENY",
	IndeterminatePermit:       "INDETERMINATE_PERMIT",
	IndeterminateDeny:         "INDETERMINATE_DENY",
	IndeterminateDenyOrPermit: "INDETERMINATE_DENY_OR_PERMIT",
	NotApplicable:             "NOT_APPLICABLE",
}

// Evaluations lists every valid value in declaration order
var Evaluations = []Evaluation{
	Permit,
	Deny,
	IndeterminatePermit,
	IndeterminateDeny,
	IndeterminateDenyOrPermit,
	NotApplicable,
}

func (e Evaluation) String() string {
	if name, ok := evaluationNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Evaluation(%d)", uint8(e))
}

// Valid reports whether e is one of the six decision values
func (e Evaluation) Valid() bool {
	return e >= Permit && e <= NotApplicable
}

// IsIndeterminate reports whether e is one of the INDETERMINATE_* values
func (e Evaluation) IsIndeterminate() bool {
	return e == IndeterminatePermit || e == IndeterminateDeny || e == IndeterminateDenyOrPermit
}

// IsDefinite reports whether e is a clean PERMIT or DENY
func (e Evaluation) IsDefinite() bool {
	return e == Permit || e == Deny
}

// Indeterminate returns the indeterminate value carrying the polarity of e.
// PERMIT maps to INDETERMINATE_PERMIT, DENY to INDETERMINATE_DENY. Values that
// are already indeterminate are returned unchanged; anything else has no
// polarity and maps to INDETERMINATE_DENY_OR_PERMIT.
func (e Evaluation) Indeterminate() Evaluation {
	switch e {
	case Permit:
		return IndeterminatePermit
	case Deny:
		return IndeterminateDeny
	case IndeterminatePermit, IndeterminateDeny, IndeterminateDenyOrPermit:
		return e
	default:
		return IndeterminateDenyOrPermit
	}
}

// Mirror swaps the PERMIT and DENY polarity of e.
func (e Evaluation) Mirror() Evaluation {
	switch e {
	case Permit:
		return Deny
	case Deny:
		return Permit
	case IndeterminatePermit:
		return IndeterminateDeny
	case IndeterminateDeny:
		return IndeterminatePermit
	default:
		return e
	}
}

// MarshalText implements encoding.TextMarshaler
func (e Evaluation) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("invalid evaluation value %d", uint8(e))
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (e *Evaluation) UnmarshalText(text []byte) error {
	v, err := ParseEvaluation(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// ParseEvaluation parses a decision name. Matching is case-insensitive and
// accepts both "INDETERMINATE_DENY" and "indeterminate-deny".
func ParseEvaluation(s string) (Evaluation, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for v, name := range evaluationNames {
		if name == norm {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown evaluation %q", s)
}
