package types

// Combining algorithm identifiers used in policy documents
const (
	AlgorithmDenyOverrides    = "deny-overrides"
	AlgorithmPermitOverrides  = "permit-overrides"
	AlgorithmFirstApplicable  = "first-applicable"
	AlgorithmDenyUnlessPermit = "deny-unless-permit"
	AlgorithmPermitUnlessDeny = "permit-unless-deny"
)

// Algorithms lists every supported combining algorithm identifier
var Algorithms = []string{
	AlgorithmDenyOverrides,
	AlgorithmPermitOverrides,
	AlgorithmFirstApplicable,
	AlgorithmDenyUnlessPermit,
	AlgorithmPermitUnlessDeny,
}

// TargetDocument is an AnyOf list of AllOf clauses. Each clause maps an
// attribute name to the scalar value it must equal.
type TargetDocument []map[string]interface{}

// PolicySetDocument is the on-disk representation of a policy set
type PolicySetDocument struct {
	APIVersion  string          `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Target      TargetDocument  `json:"target,omitempty" yaml:"target,omitempty"`
	Algorithm   string          `json:"algorithm" yaml:"algorithm"`
	Children    []ChildDocument `json:"children" yaml:"children"`
	Obligations []Action        `json:"obligations,omitempty" yaml:"obligations,omitempty"`
	Advice      []Action        `json:"advice,omitempty" yaml:"advice,omitempty"`
}

// ChildDocument holds exactly one of Policy or PolicySet
type ChildDocument struct {
	Policy    *PolicyDocument    `json:"policy,omitempty" yaml:"policy,omitempty"`
	PolicySet *PolicySetDocument `json:"policySet,omitempty" yaml:"policySet,omitempty"`
}

// PolicyDocument is the on-disk representation of a policy
type PolicyDocument struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Target      TargetDocument `json:"target,omitempty" yaml:"target,omitempty"`
	Algorithm   string         `json:"algorithm" yaml:"algorithm"`
	Rules       []RuleDocument `json:"rules" yaml:"rules"`
	Obligations []Action       `json:"obligations,omitempty" yaml:"obligations,omitempty"`
	Advice      []Action       `json:"advice,omitempty" yaml:"advice,omitempty"`
}

// RuleDocument is the on-disk representation of a rule.
// Exactly one of Effect and EffectExpression must be set.
type RuleDocument struct {
	Name             string         `json:"name" yaml:"name"`
	Target           TargetDocument `json:"target,omitempty" yaml:"target,omitempty"`
	Condition        string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	Effect           Evaluation     `json:"effect,omitempty" yaml:"effect,omitempty"`
	EffectExpression string         `json:"effectExpression,omitempty" yaml:"effectExpression,omitempty"`
	Obligations      []Action       `json:"obligations,omitempty" yaml:"obligations,omitempty"`
	Advice           []Action       `json:"advice,omitempty" yaml:"advice,omitempty"`
}

// Name returns the name of the document held by c
func (c ChildDocument) Name() string {
	switch {
	case c.Policy != nil:
		return c.Policy.Name
	case c.PolicySet != nil:
		return c.PolicySet.Name
	default:
		return ""
	}
}
