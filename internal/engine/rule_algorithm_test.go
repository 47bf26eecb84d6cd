package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authz-engine/pdp-core/pkg/types"
)

var (
	P   = types.Permit
	D   = types.Deny
	IP  = types.IndeterminatePermit
	ID  = types.IndeterminateDeny
	IDP = types.IndeterminateDenyOrPermit
	NA  = types.NotApplicable
)

func rulesYielding(values []types.Evaluation) []*Rule {
	rules := make([]*Rule, len(values))
	for i, v := range values {
		rules[i] = ruleYielding(string(rune('a'+i)), v)
	}
	return rules
}

func TestFirstApplicable_ScenarioA(t *testing.T) {
	rule1 := NewRule("rule1").
		SetTarget(NewTarget(map[string]interface{}{"key1": "value1"})).
		SetAdvice(advice(P, "advice11"), advice(D, "advice12"))
	rule2 := NewRule("rule2").
		SetTarget(NewTarget(map[string]interface{}{"key2": "value2"})).
		SetEffect(LogicalEffect(func(*Context) (bool, error) { return false, nil })).
		SetAdvice(advice(P, "advice21"), advice(D, "advice22"))
	rules := []*Rule{rule1, rule2}

	tests := []struct {
		attrs      map[string]interface{}
		want       types.Evaluation
		wantAdvice []string
	}{
		{map[string]interface{}{"key1": "value1"}, P, []string{"advice11"}},
		{map[string]interface{}{"key2": "value2"}, D, []string{"advice22"}},
		{map[string]interface{}{"key3": "x"}, NA, []string{}},
	}

	for _, tt := range tests {
		got := evaluateRules(RuleFirstApplicable(), rules, request(tt.attrs))
		assert.Equal(t, tt.want, got.Value, "request %v", tt.attrs)
		assert.Equal(t, tt.wantAdvice, actionIDs(got.Advice), "request %v", tt.attrs)
	}
}

func TestFirstApplicable_ReturnsFirstNonNotApplicable(t *testing.T) {
	for n := 0; n <= 3; n++ {
		for _, seq := range sequences(n) {
			got := evaluateRules(RuleFirstApplicable(), rulesYielding(seq), request(nil))

			want := NA
			var wantAdvice []string
			for i, v := range seq {
				if v != NA {
					want = v
					if v.IsDefinite() {
						wantAdvice = []string{string(rune('a' + i))}
					}
					break
				}
			}
			assert.Equal(t, want, got.Value, "rules %v", seq)
			assert.ElementsMatch(t, wantAdvice, actionIDs(got.Advice), "rules %v", seq)
		}
	}
}

func TestUnlessAlgorithms_ClosedWorld(t *testing.T) {
	algorithms := []RuleAlgorithm{RuleDenyUnlessPermit(), RulePermitUnlessDeny()}

	for _, algorithm := range algorithms {
		for n := 0; n <= 3; n++ {
			for _, seq := range sequences(n) {
				got := evaluateRules(algorithm, rulesYielding(seq), request(nil)).Value
				assert.True(t, got.IsDefinite(), "%s over %v gave %s", algorithm.Name(), seq, got)
			}
		}
	}
}

func TestUnlessAlgorithms(t *testing.T) {
	tests := []struct {
		algorithm RuleAlgorithm
		rules     []types.Evaluation
		want      types.Evaluation
	}{
		{RuleDenyUnlessPermit(), nil, D},
		{RuleDenyUnlessPermit(), []types.Evaluation{IDP, NA}, D},
		{RuleDenyUnlessPermit(), []types.Evaluation{D, P}, P},
		{RulePermitUnlessDeny(), nil, P},
		{RulePermitUnlessDeny(), []types.Evaluation{ID, IP}, P},
		{RulePermitUnlessDeny(), []types.Evaluation{P, D}, D},
	}

	for _, tt := range tests {
		got := evaluateRules(tt.algorithm, rulesYielding(tt.rules), request(nil))
		assert.Equal(t, tt.want, got.Value, "%s over %v", tt.algorithm.Name(), tt.rules)
	}
}

func TestDenyUnlessPermit_DenyAdviceFromAllDenyRules(t *testing.T) {
	got := evaluateRules(RuleDenyUnlessPermit(), rulesYielding([]types.Evaluation{D, NA, D, IP}), request(nil))
	assert.Equal(t, D, got.Value)
	assert.Equal(t, []string{"a", "c"}, actionIDs(got.Advice))
}

func TestOverrides_Table(t *testing.T) {
	tests := []struct {
		rules          []types.Evaluation
		denyOverrides  types.Evaluation
		permitOverride types.Evaluation
	}{
		{nil, NA, NA},
		{[]types.Evaluation{NA, NA}, NA, NA},
		{[]types.Evaluation{P}, P, P},
		{[]types.Evaluation{D}, D, D},
		{[]types.Evaluation{D, P}, D, P},
		{[]types.Evaluation{ID}, ID, ID},
		{[]types.Evaluation{IP}, IP, IP},
		{[]types.Evaluation{IDP}, IDP, IDP},
		{[]types.Evaluation{ID, IP}, IDP, IDP},
		{[]types.Evaluation{ID, P}, IDP, P},
		{[]types.Evaluation{IP, D}, D, IDP},
		{[]types.Evaluation{IP, P}, P, P},
		{[]types.Evaluation{ID, D}, D, D},
		{[]types.Evaluation{IDP, D}, D, IDP},
		{[]types.Evaluation{IDP, P}, IDP, P},
		{[]types.Evaluation{IDP, NA, IP}, IDP, IDP},
		{[]types.Evaluation{NA, IP, NA}, IP, IP},
	}

	for _, tt := range tests {
		rules := rulesYielding(tt.rules)
		assert.Equal(t, tt.denyOverrides, evaluateRules(RuleDenyOverrides(), rules, request(nil)).Value,
			"deny-overrides over %v", tt.rules)
		assert.Equal(t, tt.permitOverride, evaluateRules(RulePermitOverrides(), rules, request(nil)).Value,
			"permit-overrides over %v", tt.rules)
	}
}

func TestOverrides_PermutationInvariant(t *testing.T) {
	algorithms := []RuleAlgorithm{RuleDenyOverrides(), RulePermitOverrides()}

	for _, algorithm := range algorithms {
		for _, seq := range sequences(3) {
			rules := rulesYielding(seq)
			base := evaluateRules(algorithm, rules, request(nil))

			for _, perm := range permutations(len(rules)) {
				permuted := make([]*Rule, len(rules))
				for i, j := range perm {
					permuted[i] = rules[j]
				}
				got := evaluateRules(algorithm, permuted, request(nil))
				require.Equal(t, base.Value, got.Value, "%s over %v permuted %v", algorithm.Name(), seq, perm)
				assert.ElementsMatch(t, actionIDs(base.Advice), actionIDs(got.Advice))
			}
		}
	}
}

func TestOverrides_AdviceFollowsRuleOrder(t *testing.T) {
	first := ruleYielding("first", D)
	second := ruleYielding("second", D)
	permit := ruleYielding("permit", P)

	got := evaluateRules(RuleDenyOverrides(), []*Rule{first, permit, second}, request(nil))
	assert.Equal(t, D, got.Value)
	assert.Equal(t, []string{"first", "second"}, actionIDs(got.Advice))

	got = evaluateRules(RuleDenyOverrides(), []*Rule{second, permit, first}, request(nil))
	assert.Equal(t, []string{"second", "first"}, actionIDs(got.Advice))
}

func TestOverrides_SkipsRulesThatCannotWin(t *testing.T) {
	calls := 0
	counting := NewRule("counting").SetCondition(func(*Context) (bool, error) {
		calls++
		return true, nil
	})

	rules := []*Rule{ruleYielding("deny", D), counting, ruleYielding("deny-2", D)}
	got := evaluateRules(RuleDenyOverrides(), rules, request(nil))

	assert.Equal(t, D, got.Value)
	assert.Equal(t, []string{"deny", "deny-2"}, actionIDs(got.Advice))
	assert.Zero(t, calls, "permit rule evaluated after a deny was found")

	// permit rules ahead of the first deny are still evaluated
	got = evaluateRules(RuleDenyOverrides(), []*Rule{counting, ruleYielding("deny", D)}, request(nil))
	assert.Equal(t, D, got.Value)
	assert.Equal(t, 1, calls)
}

func TestRuleAlgorithm_RoundTrip(t *testing.T) {
	rule := NewRule("r").
		SetTarget(NewTarget(map[string]interface{}{"key1": "value1"})).
		SetCondition(func(ctx *Context) (bool, error) {
			_, ok := ctx.Attribute("key1")
			return ok, nil
		}).
		SetAdvice(advice(P, "on-permit"), advice(D, "on-deny"))

	for _, algorithm := range []RuleAlgorithm{
		RuleDenyOverrides(), RulePermitOverrides(), RuleFirstApplicable(),
		RuleDenyUnlessPermit(), RulePermitUnlessDeny(),
	} {
		optimized := algorithm.Optimize([]EncodedRule{EncodeRule(rule)})
		assert.Equal(t, 1, optimized.Len())
		assert.Equal(t, algorithm.Name(), optimized.Algorithm())

		got := algorithm.CallRuleAlgorithm(request(map[string]interface{}{"key1": "value1"}), optimized)
		assert.Equal(t, P, got.Value, algorithm.Name())
		assert.Equal(t, []string{"on-permit"}, actionIDs(got.Advice), algorithm.Name())
	}
}

func TestRuleAlgorithm_OptimizedByAnotherAlgorithmPanics(t *testing.T) {
	optimized := RuleDenyOverrides().Optimize([]EncodedRule{EncodeRule(NewRule("r"))})
	assert.Panics(t, func() {
		RulePermitOverrides().CallRuleAlgorithm(request(nil), optimized)
	})
}

func TestRuleAlgorithmByName(t *testing.T) {
	for _, name := range types.Algorithms {
		a, err := RuleAlgorithmByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, a.Name())
	}
	assert.Same(t, RuleDenyOverrides(), RuleDenyOverrides())

	_, err := RuleAlgorithmByName("only-one-applicable")
	assert.Error(t, err)
}
