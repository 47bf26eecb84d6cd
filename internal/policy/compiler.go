package policy

import (
	"fmt"

	"github.com/authz-engine/pdp-core/internal/cel"
	"github.com/authz-engine/pdp-core/internal/engine"
	"github.com/authz-engine/pdp-core/pkg/types"
)

// DefaultRootName names the set that combines all top-level documents
const DefaultRootName = "root"

// Compiler turns policy documents into engine elements whose conditions
// and effects are backed by CEL programs
type Compiler struct {
	cel *cel.Engine
}

// NewCompiler creates a compiler using celEngine for expressions
func NewCompiler(celEngine *cel.Engine) *Compiler {
	return &Compiler{cel: celEngine}
}

// CompileRoot combines docs, in order, under a policy set named name using
// the given policy combining algorithm. Callers pass documents in load
// order, so under first-applicable earlier files take precedence.
func (c *Compiler) CompileRoot(name, algorithm string, docs []*types.ChildDocument) (*engine.PolicySet, error) {
	alg, err := engine.PolicyAlgorithmByName(algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: root: %v", ErrInvalidDocument, err)
	}

	root := engine.NewPolicySet(name, alg)
	for _, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("%w: root: nil document", ErrInvalidDocument)
		}
		child, err := c.CompileChild(*doc)
		if err != nil {
			return nil, err
		}
		root.AddChildren(child)
	}
	return root, nil
}

// CompileChild compiles whichever document c holds
func (c *Compiler) CompileChild(doc types.ChildDocument) (engine.Child, error) {
	switch {
	case doc.Policy != nil && doc.PolicySet != nil:
		return nil, fmt.Errorf("%w: entry %q holds both a policy and a policy set", ErrInvalidDocument, doc.Name())
	case doc.Policy != nil:
		return c.CompilePolicy(doc.Policy)
	case doc.PolicySet != nil:
		return c.CompilePolicySet(doc.PolicySet)
	default:
		return nil, fmt.Errorf("%w: entry holds neither a policy nor a policy set", ErrInvalidDocument)
	}
}

// CompilePolicySet compiles a policy set document and its children
func (c *Compiler) CompilePolicySet(doc *types.PolicySetDocument) (*engine.PolicySet, error) {
	alg, err := engine.PolicyAlgorithmByName(doc.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: policy set %s: %v", ErrInvalidDocument, doc.Name, err)
	}
	target, err := engine.ParseTarget(doc.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: policy set %s: %v", ErrInvalidDocument, doc.Name, err)
	}

	set := engine.NewPolicySet(doc.Name, alg).
		SetTarget(target).
		SetObligations(doc.Obligations...).
		SetAdvice(doc.Advice...)

	for _, childDoc := range doc.Children {
		child, err := c.CompileChild(childDoc)
		if err != nil {
			return nil, fmt.Errorf("policy set %s: %w", doc.Name, err)
		}
		set.AddChildren(child)
	}
	return set, nil
}

// CompilePolicy compiles a policy document and its rules
func (c *Compiler) CompilePolicy(doc *types.PolicyDocument) (*engine.Policy, error) {
	alg, err := engine.RuleAlgorithmByName(doc.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: policy %s: %v", ErrInvalidDocument, doc.Name, err)
	}
	target, err := engine.ParseTarget(doc.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: policy %s: %v", ErrInvalidDocument, doc.Name, err)
	}

	policy := engine.NewPolicy(doc.Name, alg).
		SetTarget(target).
		SetObligations(doc.Obligations...).
		SetAdvice(doc.Advice...)

	for _, ruleDoc := range doc.Rules {
		rule, err := c.CompileRule(ruleDoc)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", doc.Name, err)
		}
		policy.AddRules(rule)
	}
	return policy, nil
}

// CompileRule compiles a rule document. A rule without an effect permits.
func (c *Compiler) CompileRule(doc types.RuleDocument) (*engine.Rule, error) {
	target, err := engine.ParseTarget(doc.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", ErrInvalidDocument, doc.Name, err)
	}

	rule := engine.NewRule(doc.Name).
		SetTarget(target).
		SetObligations(doc.Obligations...).
		SetAdvice(doc.Advice...)

	switch {
	case doc.EffectExpression != "" && doc.Effect != 0:
		return nil, fmt.Errorf("%w: rule %s sets both effect and effectExpression", ErrInvalidDocument, doc.Name)
	case doc.EffectExpression != "":
		effect, err := c.cel.LogicalEffect(doc.EffectExpression)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %s: %v", ErrInvalidDocument, doc.Name, err)
		}
		rule.SetEffect(effect)
	case doc.Effect == types.Deny:
		rule.SetEffect(engine.DenyEffect())
	case doc.Effect == types.Permit, doc.Effect == 0:
		rule.SetEffect(engine.PermitEffect())
	default:
		return nil, fmt.Errorf("%w: rule %s: invalid effect %s", ErrInvalidDocument, doc.Name, doc.Effect)
	}

	if doc.Condition != "" {
		cond, err := c.cel.Condition(doc.Condition)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %s: %v", ErrInvalidDocument, doc.Name, err)
		}
		rule.SetCondition(cond)
	}
	return rule, nil
}
