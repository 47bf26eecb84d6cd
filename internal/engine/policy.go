package engine

import (
	"github.com/authz-engine/pdp-core/pkg/types"
)

// Child is a member of a policy set: a *Policy or a nested *PolicySet
type Child interface {
	Name() string
	encode() Encoded
}

// Policy combines an ordered list of rules with a rule combining algorithm.
// It is assembled with the setters and must not be modified after encoding.
type Policy struct {
	name        string
	target      *Target
	rules       []*Rule
	algorithm   RuleAlgorithm
	obligations []types.Action
	advice      []types.Action
}

// NewPolicy creates an empty policy using algorithm to combine its rules
func NewPolicy(name string, algorithm RuleAlgorithm) *Policy {
	return &Policy{name: name, algorithm: algorithm}
}

// Name returns the policy name
func (p *Policy) Name() string { return p.name }

// Target returns the policy target (nil means wildcard)
func (p *Policy) Target() *Target { return p.target }

// Rules returns the policy rules in declaration order
func (p *Policy) Rules() []*Rule { return p.rules }

// Algorithm returns the rule combining algorithm
func (p *Policy) Algorithm() RuleAlgorithm { return p.algorithm }

// SetTarget sets the policy target
func (p *Policy) SetTarget(t *Target) *Policy {
	p.target = t
	return p
}

// SetAlgorithm sets the rule combining algorithm
func (p *Policy) SetAlgorithm(a RuleAlgorithm) *Policy {
	p.algorithm = a
	return p
}

// AddRules appends rules to the policy
func (p *Policy) AddRules(rules ...*Rule) *Policy {
	p.rules = append(p.rules, rules...)
	return p
}

// SetObligations replaces the policy obligations
func (p *Policy) SetObligations(actions ...types.Action) *Policy {
	p.obligations = actions
	return p
}

// SetAdvice replaces the policy advice
func (p *Policy) SetAdvice(actions ...types.Action) *Policy {
	p.advice = actions
	return p
}

func (p *Policy) encode() Encoded { return EncodePolicy(p) }

// EvaluatePolicy encodes, optimizes and evaluates p against ctx.
// Callers evaluating many requests should Compile once instead.
func EvaluatePolicy(p *Policy, ctx *Context) types.Result {
	return Compile(EncodePolicy(p)).Evaluate(ctx)
}

// PolicySet combines policies and nested policy sets with a policy
// combining algorithm.
type PolicySet struct {
	name        string
	target      *Target
	children    []Child
	algorithm   PolicyAlgorithm
	obligations []types.Action
	advice      []types.Action
}

// NewPolicySet creates an empty policy set using algorithm to combine its children
func NewPolicySet(name string, algorithm PolicyAlgorithm) *PolicySet {
	return &PolicySet{name: name, algorithm: algorithm}
}

// Name returns the policy set name
func (s *PolicySet) Name() string { return s.name }

// Target returns the policy set target (nil means wildcard)
func (s *PolicySet) Target() *Target { return s.target }

// Children returns the children in declaration order
func (s *PolicySet) Children() []Child { return s.children }

// Algorithm returns the policy combining algorithm
func (s *PolicySet) Algorithm() PolicyAlgorithm { return s.algorithm }

// SetTarget sets the policy set target
func (s *PolicySet) SetTarget(t *Target) *PolicySet {
	s.target = t
	return s
}

// SetAlgorithm sets the policy combining algorithm
func (s *PolicySet) SetAlgorithm(a PolicyAlgorithm) *PolicySet {
	s.algorithm = a
	return s
}

// AddPolicies appends policies to the set
func (s *PolicySet) AddPolicies(policies ...*Policy) *PolicySet {
	for _, p := range policies {
		s.children = append(s.children, p)
	}
	return s
}

// AddPolicySets appends nested policy sets to the set
func (s *PolicySet) AddPolicySets(sets ...*PolicySet) *PolicySet {
	for _, ps := range sets {
		s.children = append(s.children, ps)
	}
	return s
}

// AddChildren appends policies or policy sets in the given order
func (s *PolicySet) AddChildren(children ...Child) *PolicySet {
	s.children = append(s.children, children...)
	return s
}

// SetObligations replaces the policy set obligations
func (s *PolicySet) SetObligations(actions ...types.Action) *PolicySet {
	s.obligations = actions
	return s
}

// SetAdvice replaces the policy set advice
func (s *PolicySet) SetAdvice(actions ...types.Action) *PolicySet {
	s.advice = actions
	return s
}

func (s *PolicySet) encode() Encoded { return EncodePolicySet(s) }

// EvaluatePolicySet encodes, optimizes and evaluates s against ctx
func EvaluatePolicySet(s *PolicySet, ctx *Context) types.Result {
	return Compile(EncodePolicySet(s)).Evaluate(ctx)
}
