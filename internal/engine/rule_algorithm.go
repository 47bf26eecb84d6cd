package engine

import (
	"fmt"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// RuleAlgorithm combines the results of a policy's rules into one result.
// Implementations are stateless singletons obtained from the Rule* factories.
type RuleAlgorithm interface {
	// Name returns the algorithm identifier, e.g. "deny-overrides"
	Name() string

	// Optimize pre-digests rules into a structure reusable across contexts.
	// The rules must not be modified afterwards.
	Optimize(rules []EncodedRule) OptimizedRules

	// CallRuleAlgorithm evaluates the optimized rules against ctx
	CallRuleAlgorithm(ctx *Context, optimized OptimizedRules) types.Result
}

// OptimizedRules is an immutable, algorithm-specific rule list produced by
// RuleAlgorithm.Optimize. It holds no reference to any Context.
type OptimizedRules struct {
	algorithm string
	rules     []EncodedRule
	polarity  []types.Evaluation
}

// Len returns the number of rules
func (o OptimizedRules) Len() int { return len(o.rules) }

// Algorithm returns the name of the algorithm that produced o
func (o OptimizedRules) Algorithm() string { return o.algorithm }

type ruleAlgorithm struct {
	name    string
	combine strategy
}

var (
	ruleDenyOverrides    = &ruleAlgorithm{name: types.AlgorithmDenyOverrides, combine: denyOverrides}
	rulePermitOverrides  = &ruleAlgorithm{name: types.AlgorithmPermitOverrides, combine: permitOverrides}
	ruleFirstApplicable  = &ruleAlgorithm{name: types.AlgorithmFirstApplicable, combine: firstApplicable}
	ruleDenyUnlessPermit = &ruleAlgorithm{name: types.AlgorithmDenyUnlessPermit, combine: denyUnlessPermit}
	rulePermitUnlessDeny = &ruleAlgorithm{name: types.AlgorithmPermitUnlessDeny, combine: permitUnlessDeny}
)

// RuleDenyOverrides returns the deny-overrides rule combining algorithm
func RuleDenyOverrides() RuleAlgorithm { return ruleDenyOverrides }

// RulePermitOverrides returns the permit-overrides rule combining algorithm
func RulePermitOverrides() RuleAlgorithm { return rulePermitOverrides }

// RuleFirstApplicable returns the first-applicable rule combining algorithm
func RuleFirstApplicable() RuleAlgorithm { return ruleFirstApplicable }

// RuleDenyUnlessPermit returns the deny-unless-permit rule combining algorithm
func RuleDenyUnlessPermit() RuleAlgorithm { return ruleDenyUnlessPermit }

// RulePermitUnlessDeny returns the permit-unless-deny rule combining algorithm
func RulePermitUnlessDeny() RuleAlgorithm { return rulePermitUnlessDeny }

// RuleAlgorithmByName looks up a rule combining algorithm by identifier
func RuleAlgorithmByName(name string) (RuleAlgorithm, error) {
	switch name {
	case types.AlgorithmDenyOverrides:
		return ruleDenyOverrides, nil
	case types.AlgorithmPermitOverrides:
		return rulePermitOverrides, nil
	case types.AlgorithmFirstApplicable:
		return ruleFirstApplicable, nil
	case types.AlgorithmDenyUnlessPermit:
		return ruleDenyUnlessPermit, nil
	case types.AlgorithmPermitUnlessDeny:
		return rulePermitUnlessDeny, nil
	default:
		return nil, fmt.Errorf("unknown rule combining algorithm %q", name)
	}
}

func (a *ruleAlgorithm) Name() string { return a.name }

func (a *ruleAlgorithm) Optimize(rules []EncodedRule) OptimizedRules {
	o := OptimizedRules{
		algorithm: a.name,
		rules:     make([]EncodedRule, len(rules)),
		polarity:  make([]types.Evaluation, len(rules)),
	}
	copy(o.rules, rules)
	for i, r := range rules {
		o.polarity[i] = r.Effect.Polarity()
	}
	return o
}

func (a *ruleAlgorithm) CallRuleAlgorithm(ctx *Context, optimized OptimizedRules) types.Result {
	if optimized.algorithm != a.name {
		panic(fmt.Sprintf("engine: rules optimized by %q passed to %q", optimized.algorithm, a.name))
	}
	eval := func(i int) types.Result {
		return optimized.rules[i].evaluate(ctx)
	}
	canYield := func(i int, v types.Evaluation) bool {
		p := optimized.polarity[i]
		return p == v || !p.IsDefinite()
	}
	return a.combine(len(optimized.rules), eval, canYield)
}
