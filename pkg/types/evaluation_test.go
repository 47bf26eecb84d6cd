package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestEvaluation_Predicates(t *testing.T) {
	tests := []struct {
		value         Evaluation
		indeterminate bool
		definite      bool
		lifted        Evaluation
		mirrored      Evaluation
	}{
		{Permit, false, true, IndeterminatePermit, Deny},
		{Deny, false, true, IndeterminateDeny, Permit},
		{IndeterminatePermit, true, false, IndeterminatePermit, IndeterminateDeny},
		{IndeterminateDeny, true, false, IndeterminateDeny, IndeterminatePermit},
		{IndeterminateDenyOrPermit, true, false, IndeterminateDenyOrPermit, IndeterminateDenyOrPermit},
		{NotApplicable, false, false, IndeterminateDenyOrPermit, NotApplicable},
	}

	for _, tt := range tests {
		t.Run(tt.value.String(), func(t *testing.T) {
			assert.True(t, tt.value.Valid())
			assert.Equal(t, tt.indeterminate, tt.value.IsIndeterminate())
			assert.Equal(t, tt.definite, tt.value.IsDefinite())
			assert.Equal(t, tt.lifted, tt.value.Indeterminate())
			assert.Equal(t, tt.mirrored, tt.value.Mirror())
		})
	}

	assert.False(t, Evaluation(0).Valid())
	assert.Equal(t, "Evaluation(42)", Evaluation(42).String())
	assert.Len(t, Evaluations, 6)
}

func TestParseEvaluation(t *testing.T) {
	for _, v := range Evaluations {
		got, err := ParseEvaluation(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	got, err := ParseEvaluation(" indeterminate-deny-or-permit ")
	require.NoError(t, err)
	assert.Equal(t, IndeterminateDenyOrPermit, got)

	got, err = ParseEvaluation("permit")
	require.NoError(t, err)
	assert.Equal(t, Permit, got)

	_, err = ParseEvaluation("maybe")
	assert.Error(t, err)
}

func TestEvaluation_TextEncoding(t *testing.T) {
	data, err := json.Marshal(Result{Value: IndeterminatePermit})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"INDETERMINATE_PERMIT"}`, string(data))

	_, err = json.Marshal(Result{})
	assert.Error(t, err, "zero value is not a decision")

	var action Action
	require.NoError(t, yaml.Unmarshal([]byte("on: deny\nid: explain\n"), &action))
	assert.Equal(t, Deny, action.On)

	assert.Error(t, yaml.Unmarshal([]byte("on: sometimes\nid: x\n"), &action))
}
