package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarget_EmptyMatchesEverything(t *testing.T) {
	requests := []map[string]interface{}{
		nil,
		{"key1": "value1"},
		{"a": 1, "b": true},
	}

	var nilTarget *Target
	for _, attrs := range requests {
		ctx := request(attrs)
		assert.True(t, NewTarget().Matches(ctx))
		assert.True(t, nilTarget.Matches(ctx))
	}
	assert.True(t, NewTarget().IsWildcard())
	assert.True(t, nilTarget.IsWildcard())
}

func TestTarget_Matching(t *testing.T) {
	tests := []struct {
		name    string
		clauses []map[string]interface{}
		attrs   map[string]interface{}
		want    bool
	}{
		{
			name:    "single clause matches",
			clauses: []map[string]interface{}{{"key1": "value1"}},
			attrs:   map[string]interface{}{"key1": "value1", "other": "x"},
			want:    true,
		},
		{
			name:    "missing key fails",
			clauses: []map[string]interface{}{{"key1": "value1"}},
			attrs:   map[string]interface{}{"key2": "value1"},
			want:    false,
		},
		{
			name:    "different value fails",
			clauses: []map[string]interface{}{{"key1": "value1"}},
			attrs:   map[string]interface{}{"key1": "value2"},
			want:    false,
		},
		{
			name:    "all of clause requires every attribute",
			clauses: []map[string]interface{}{{"role": "admin", "dept": "eng"}},
			attrs:   map[string]interface{}{"role": "admin"},
			want:    false,
		},
		{
			name:    "any of clauses",
			clauses: []map[string]interface{}{{"role": "admin"}, {"role": "owner"}},
			attrs:   map[string]interface{}{"role": "owner"},
			want:    true,
		},
		{
			name:    "integral numbers compare across types",
			clauses: []map[string]interface{}{{"level": 3}},
			attrs:   map[string]interface{}{"level": float64(3)},
			want:    true,
		},
		{
			name:    "string is not a number",
			clauses: []map[string]interface{}{{"level": 3}},
			attrs:   map[string]interface{}{"level": "3"},
			want:    false,
		},
		{
			name:    "booleans",
			clauses: []map[string]interface{}{{"mfa": true}},
			attrs:   map[string]interface{}{"mfa": true},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := NewTarget(tt.clauses...)
			assert.Equal(t, tt.want, target.Matches(request(tt.attrs)))
		})
	}
}

func TestTarget_NonScalarValue(t *testing.T) {
	_, err := ParseTarget([]map[string]interface{}{{"roles": []string{"a"}}})
	require.Error(t, err)

	assert.Panics(t, func() {
		NewTarget(map[string]interface{}{"nested": map[string]interface{}{"a": 1}})
	})
}

func TestTarget_MemoizedPerContext(t *testing.T) {
	target := NewTarget(map[string]interface{}{"key1": "value1"})
	ctx := request(map[string]interface{}{"key1": "value1"})

	assert.True(t, target.Matches(ctx))
	assert.True(t, target.Matches(ctx))
	assert.Len(t, ctx.targets, 1)

	// wildcards never reach the memo
	NewTarget().Matches(ctx)
	assert.Len(t, ctx.targets, 1)
}

func TestTarget_Clauses(t *testing.T) {
	target := NewTarget(map[string]interface{}{"a": 1, "b": "x"})
	clauses := target.Clauses()
	require.Len(t, clauses, 1)
	assert.Equal(t, int64(1), clauses[0]["a"])
	assert.Equal(t, "x", clauses[0]["b"])

	clauses[0]["a"] = 2
	assert.Equal(t, int64(1), target.Clauses()[0]["a"])
}
