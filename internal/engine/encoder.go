package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// EncodedRule is the algorithm-agnostic form of a Rule consumed by
// RuleAlgorithm.Optimize.
type EncodedRule struct {
	Name        string
	Target      *Target
	Condition   Condition
	Effect      Effect
	Obligations []types.Action
	Advice      []types.Action
}

// Encoded is an encoded Policy or PolicySet consumed by PolicyAlgorithm.Optimize
type Encoded interface {
	Name() string
	Target() *Target
	compile() evaluator
}

type evaluator func(ctx *Context, logger *zap.Logger) types.Result

// EncodedPolicy is the algorithm-agnostic form of a Policy
type EncodedPolicy struct {
	name        string
	target      *Target
	algorithm   RuleAlgorithm
	rules       []EncodedRule
	obligations []types.Action
	advice      []types.Action
}

// Name returns the policy name
func (p *EncodedPolicy) Name() string { return p.name }

// Target returns the policy target
func (p *EncodedPolicy) Target() *Target { return p.target }

// Algorithm returns the rule combining algorithm
func (p *EncodedPolicy) Algorithm() RuleAlgorithm { return p.algorithm }

// Rules returns the encoded rules in declaration order
func (p *EncodedPolicy) Rules() []EncodedRule { return p.rules }

func (p *EncodedPolicy) compile() evaluator {
	optimized := p.algorithm.Optimize(p.rules)
	return func(ctx *Context, logger *zap.Logger) types.Result {
		if !p.target.Matches(ctx) {
			return types.Result{Value: types.NotApplicable}
		}
		res := p.algorithm.CallRuleAlgorithm(ctx, optimized)
		return withOwnActions(res, p.obligations, p.advice)
	}
}

// EncodedPolicySet is the algorithm-agnostic form of a PolicySet
type EncodedPolicySet struct {
	name        string
	target      *Target
	algorithm   PolicyAlgorithm
	children    []Encoded
	obligations []types.Action
	advice      []types.Action
}

// Name returns the policy set name
func (s *EncodedPolicySet) Name() string { return s.name }

// Target returns the policy set target
func (s *EncodedPolicySet) Target() *Target { return s.target }

// Algorithm returns the policy combining algorithm
func (s *EncodedPolicySet) Algorithm() PolicyAlgorithm { return s.algorithm }

// Children returns the encoded children in declaration order
func (s *EncodedPolicySet) Children() []Encoded { return s.children }

func (s *EncodedPolicySet) compile() evaluator {
	optimized := s.algorithm.Optimize(s.children)
	return func(ctx *Context, logger *zap.Logger) types.Result {
		if !s.target.Matches(ctx) {
			return types.Result{Value: types.NotApplicable}
		}
		res := s.algorithm.CallPolicyAlgorithm(ctx, optimized, logger)
		return withOwnActions(res, s.obligations, s.advice)
	}
}

// withOwnActions appends element-level actions after the combined ones
func withOwnActions(res types.Result, obligations, advice []types.Action) types.Result {
	res.Obligations = append(res.Obligations, types.SelectActions(obligations, res.Value)...)
	res.Advice = append(res.Advice, types.SelectActions(advice, res.Value)...)
	return res
}

// EncodeRule extracts the evaluable shape of r
func EncodeRule(r *Rule) EncodedRule {
	if r == nil {
		panic("engine: cannot encode nil rule")
	}
	return EncodedRule{
		Name:        r.name,
		Target:      r.target,
		Condition:   r.condition,
		Effect:      r.effect,
		Obligations: cloneActions(r.obligations),
		Advice:      cloneActions(r.advice),
	}
}

// EncodePolicy extracts the evaluable shape of p and its rules
func EncodePolicy(p *Policy) *EncodedPolicy {
	if p == nil {
		panic("engine: cannot encode nil policy")
	}
	if p.algorithm == nil {
		panic(fmt.Sprintf("engine: policy %q has no rule combining algorithm", p.name))
	}
	rules := make([]EncodedRule, len(p.rules))
	for i, r := range p.rules {
		rules[i] = EncodeRule(r)
	}
	return &EncodedPolicy{
		name:        p.name,
		target:      p.target,
		algorithm:   p.algorithm,
		rules:       rules,
		obligations: cloneActions(p.obligations),
		advice:      cloneActions(p.advice),
	}
}

// EncodePolicySet extracts the evaluable shape of s, recursing into children
func EncodePolicySet(s *PolicySet) *EncodedPolicySet {
	if s == nil {
		panic("engine: cannot encode nil policy set")
	}
	if s.algorithm == nil {
		panic(fmt.Sprintf("engine: policy set %q has no policy combining algorithm", s.name))
	}
	children := make([]Encoded, len(s.children))
	for i, c := range s.children {
		if c == nil {
			panic(fmt.Sprintf("engine: policy set %q has nil child at index %d", s.name, i))
		}
		children[i] = c.encode()
	}
	return &EncodedPolicySet{
		name:        s.name,
		target:      s.target,
		algorithm:   s.algorithm,
		children:    children,
		obligations: cloneActions(s.obligations),
		advice:      cloneActions(s.advice),
	}
}

// RuleTarget returns the target of an encoded rule
func RuleTarget(r EncodedRule) *Target {
	return r.Target
}

// PolicyTarget returns the target of an encoded policy or policy set
func PolicyTarget(e Encoded) *Target {
	return e.Target()
}

func cloneActions(actions []types.Action) []types.Action {
	if len(actions) == 0 {
		return nil
	}
	return append([]types.Action(nil), actions...)
}

// Program is a compiled, immutable policy tree. It may be evaluated
// concurrently, each call with its own Context.
type Program struct {
	name string
	eval evaluator
}

// Compile optimizes an encoded policy or policy set once for repeated evaluation
func Compile(e Encoded) *Program {
	return &Program{name: e.Name(), eval: e.compile()}
}

// Name returns the name of the compiled root element
func (p *Program) Name() string { return p.name }

// Evaluate produces the decision for the request wrapped by ctx
func (p *Program) Evaluate(ctx *Context) types.Result {
	return p.eval(ctx, ctx.Logger())
}
