package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// PolicyAlgorithm combines the results of a policy set's children
type PolicyAlgorithm interface {
	// Name returns the algorithm identifier, e.g. "permit-overrides"
	Name() string

	// Optimize compiles every child, resolving its own algorithm once
	Optimize(children []Encoded) OptimizedPolicies

	// CallPolicyAlgorithm evaluates the optimized children against ctx.
	// logger may be nil.
	CallPolicyAlgorithm(ctx *Context, optimized OptimizedPolicies, logger *zap.Logger) types.Result
}

// OptimizedPolicies is an immutable, algorithm-specific list of compiled
// children produced by PolicyAlgorithm.Optimize.
type OptimizedPolicies struct {
	algorithm string
	children  []compiledChild
}

type compiledChild struct {
	name string
	eval evaluator
}

// Len returns the number of children
func (o OptimizedPolicies) Len() int { return len(o.children) }

// Algorithm returns the name of the algorithm that produced o
func (o OptimizedPolicies) Algorithm() string { return o.algorithm }

type policyAlgorithm struct {
	name    string
	combine strategy
}

var (
	policyDenyOverrides    = &policyAlgorithm{name: types.AlgorithmDenyOverrides, combine: denyOverrides}
	policyPermitOverrides  = &policyAlgorithm{name: types.AlgorithmPermitOverrides, combine: permitOverrides}
	policyFirstApplicable  = &policyAlgorithm{name: types.AlgorithmFirstApplicable, combine: firstApplicable}
	policyDenyUnlessPermit = &policyAlgorithm{name: types.AlgorithmDenyUnlessPermit, combine: denyUnlessPermit}
	policyPermitUnlessDeny = &policyAlgorithm{name: types.AlgorithmPermitUnlessDeny, combine: permitUnlessDeny}
)

// PolicyDenyOverrides returns the deny-overrides policy combining algorithm
func PolicyDenyOverrides() PolicyAlgorithm { return policyDenyOverrides }

// PolicyPermitOverrides returns the permit-overrides policy combining algorithm
func PolicyPermitOverrides() PolicyAlgorithm { return policyPermitOverrides }

// PolicyFirstApplicable returns the first-applicable policy combining algorithm
func PolicyFirstApplicable() PolicyAlgorithm { return policyFirstApplicable }

// PolicyDenyUnlessPermit returns the deny-unless-permit policy combining algorithm
func PolicyDenyUnlessPermit() PolicyAlgorithm { return policyDenyUnlessPermit }

// PolicyPermitUnlessDeny returns the permit-unless-deny policy combining algorithm
func PolicyPermitUnlessDeny() PolicyAlgorithm { return policyPermitUnlessDeny }

// PolicyAlgorithmByName looks up a policy combining algorithm by identifier
func PolicyAlgorithmByName(name string) (PolicyAlgorithm, error) {
	switch name {
	case types.AlgorithmDenyOverrides:
		return policyDenyOverrides, nil
	case types.AlgorithmPermitOverrides:
		return policyPermitOverrides, nil
	case types.AlgorithmFirstApplicable:
		return policyFirstApplicable, nil
	case types.AlgorithmDenyUnlessPermit:
		return policyDenyUnlessPermit, nil
	case types.AlgorithmPermitUnlessDeny:
		return policyPermitUnlessDeny, nil
	default:
		return nil, fmt.Errorf("unknown policy combining algorithm %q", name)
	}
}

func (a *policyAlgorithm) Name() string { return a.name }

func (a *policyAlgorithm) Optimize(children []Encoded) OptimizedPolicies {
	o := OptimizedPolicies{
		algorithm: a.name,
		children:  make([]compiledChild, len(children)),
	}
	for i, c := range children {
		o.children[i] = compiledChild{name: c.Name(), eval: c.compile()}
	}
	return o
}

func (a *policyAlgorithm) CallPolicyAlgorithm(ctx *Context, optimized OptimizedPolicies, logger *zap.Logger) types.Result {
	if optimized.algorithm != a.name {
		panic(fmt.Sprintf("engine: policies optimized by %q passed to %q", optimized.algorithm, a.name))
	}
	if logger == nil {
		logger = nopLogger
	}
	eval := func(i int) types.Result {
		child := optimized.children[i]
		r := child.eval(ctx, logger)
		logger.Debug("Policy evaluated",
			zap.String("algorithm", a.name),
			zap.String("policy", child.name),
			zap.Stringer("value", r.Value),
		)
		return r
	}
	// any child may produce any value
	canYield := func(int, types.Evaluation) bool { return true }
	return a.combine(len(optimized.children), eval, canYield)
}
