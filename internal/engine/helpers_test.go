package engine

import (
	"errors"

	"github.com/authz-engine/pdp-core/pkg/types"
)

var errBoom = errors.New("boom")

func failingCondition(*Context) (bool, error) { return false, errBoom }

func advice(on types.Evaluation, id string) types.Action {
	return types.Action{On: on, ID: id}
}

func actionIDs(actions []types.Action) []string {
	ids := make([]string, 0, len(actions))
	for _, a := range actions {
		ids = append(ids, a.ID)
	}
	return ids
}

func request(attrs map[string]interface{}) *Context {
	return NewContext(types.NewRequest(attrs))
}

// ruleYielding builds a rule that evaluates to v against any request.
// Clean rules carry one advice item for their own effect.
func ruleYielding(name string, v types.Evaluation) *Rule {
	r := NewRule(name)
	switch v {
	case types.Permit:
		r.SetEffect(PermitEffect()).SetAdvice(advice(types.Permit, name))
	case types.Deny:
		r.SetEffect(DenyEffect()).SetAdvice(advice(types.Deny, name))
	case types.IndeterminatePermit:
		r.SetEffect(PermitEffect()).SetCondition(failingCondition)
	case types.IndeterminateDeny:
		r.SetEffect(DenyEffect()).SetCondition(failingCondition)
	case types.IndeterminateDenyOrPermit:
		r.SetEffect(LogicalEffect(func(*Context) (bool, error) { return true, nil })).
			SetCondition(failingCondition)
	case types.NotApplicable:
		r.SetTarget(NewTarget(map[string]interface{}{"never-present": true}))
	}
	return r
}

func policyOf(name string, algorithm RuleAlgorithm, values ...types.Evaluation) *Policy {
	p := NewPolicy(name, algorithm)
	for i, v := range values {
		p.AddRules(ruleYielding(name+"-"+string(rune('a'+i)), v))
	}
	return p
}

func evaluateRules(algorithm RuleAlgorithm, rules []*Rule, ctx *Context) types.Result {
	encoded := make([]EncodedRule, len(rules))
	for i, r := range rules {
		encoded[i] = EncodeRule(r)
	}
	return algorithm.CallRuleAlgorithm(ctx, algorithm.Optimize(encoded))
}

func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := make([]int, 0, n)
			q = append(q, p[:i]...)
			q = append(q, n-1)
			q = append(q, p[i:]...)
			out = append(out, q)
		}
	}
	return out
}

// sequences enumerates every list of length n over all evaluation values
func sequences(n int) [][]types.Evaluation {
	if n == 0 {
		return [][]types.Evaluation{{}}
	}
	var out [][]types.Evaluation
	for _, prefix := range sequences(n - 1) {
		for _, v := range types.Evaluations {
			seq := append(append([]types.Evaluation(nil), prefix...), v)
			out = append(out, seq)
		}
	}
	return out
}
