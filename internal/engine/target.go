package engine

import (
	"fmt"
	"sort"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// Target is an AnyOf list of AllOf clauses over request attributes.
// A target without clauses matches every request.
type Target struct {
	clauses [][]attributeMatch
}

type attributeMatch struct {
	key   string
	value interface{}
}

// NewTarget builds a target from clauses. Every clause value must be a
// scalar; anything else is a programming error and panics.
func NewTarget(clauses ...map[string]interface{}) *Target {
	t, err := ParseTarget(clauses)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTarget builds a target from clauses, reporting non-scalar values as an error
func ParseTarget(clauses []map[string]interface{}) (*Target, error) {
	t := &Target{clauses: make([][]attributeMatch, 0, len(clauses))}
	for i, clause := range clauses {
		keys := make([]string, 0, len(clause))
		for k := range clause {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		matches := make([]attributeMatch, 0, len(keys))
		for _, k := range keys {
			v, ok := types.NormalizeScalar(clause[k])
			if !ok {
				return nil, fmt.Errorf("target clause %d: attribute %q has non-scalar value of type %T", i, k, clause[k])
			}
			matches = append(matches, attributeMatch{key: k, value: v})
		}
		t.clauses = append(t.clauses, matches)
	}
	return t, nil
}

// IsWildcard reports whether the target matches every request
func (t *Target) IsWildcard() bool {
	return t == nil || len(t.clauses) == 0
}

// Clauses returns a copy of the target clauses
func (t *Target) Clauses() []map[string]interface{} {
	if t == nil {
		return nil
	}
	out := make([]map[string]interface{}, len(t.clauses))
	for i, clause := range t.clauses {
		m := make(map[string]interface{}, len(clause))
		for _, am := range clause {
			m[am.key] = am.value
		}
		out[i] = m
	}
	return out
}

// Matches reports whether the request wrapped by ctx satisfies the target.
// Results are memoized per context.
func (t *Target) Matches(ctx *Context) bool {
	if t.IsWildcard() {
		return true
	}
	return ctx.matchTarget(t)
}

func (t *Target) match(req types.Request) bool {
	for _, clause := range t.clauses {
		if clauseMatches(clause, req) {
			return true
		}
	}
	return false
}

func clauseMatches(clause []attributeMatch, req types.Request) bool {
	for _, am := range clause {
		actual, ok := req.Get(am.key)
		if !ok || actual != am.value {
			return false
		}
	}
	return true
}
