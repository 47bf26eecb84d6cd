package policy

import (
	"fmt"
	"regexp"

	"github.com/authz-engine/pdp-core/internal/cel"
	"github.com/authz-engine/pdp-core/internal/engine"
	"github.com/authz-engine/pdp-core/pkg/types"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.:-]*$`)

// Validator checks the structure and expressions of policy documents.
// Every error it returns wraps ErrInvalidDocument.
type Validator struct {
	cel *cel.Engine
}

// NewValidator creates a validator; expressions are type checked with celEngine
func NewValidator(celEngine *cel.Engine) *Validator {
	return &Validator{cel: celEngine}
}

// ValidateDocument validates a top-level policy or policy set
func (v *Validator) ValidateDocument(doc *types.ChildDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document cannot be nil", ErrInvalidDocument)
	}
	if err := v.validateChild(*doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

// ValidatePolicy validates a single policy document
func (v *Validator) ValidatePolicy(doc *types.PolicyDocument) error {
	if err := v.validatePolicy(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

func (v *Validator) validateChild(c types.ChildDocument) error {
	switch {
	case c.Policy != nil && c.PolicySet != nil:
		return fmt.Errorf("entry %q holds both a policy and a policy set", c.Name())
	case c.Policy != nil:
		return v.validatePolicy(c.Policy)
	case c.PolicySet != nil:
		return v.validatePolicySet(c.PolicySet)
	default:
		return fmt.Errorf("entry holds neither a policy nor a policy set")
	}
}

func (v *Validator) validatePolicySet(doc *types.PolicySetDocument) error {
	if err := validateHeader("policy set", doc.Name, doc.Algorithm, doc.Target); err != nil {
		return err
	}
	if err := validateActions(doc.Obligations, doc.Advice); err != nil {
		return fmt.Errorf("policy set %s: %w", doc.Name, err)
	}

	seen := make(map[string]bool, len(doc.Children))
	for i, child := range doc.Children {
		if err := v.validateChild(child); err != nil {
			return fmt.Errorf("policy set %s: child %d: %w", doc.Name, i, err)
		}
		if seen[child.Name()] {
			return fmt.Errorf("policy set %s: duplicate child name %q", doc.Name, child.Name())
		}
		seen[child.Name()] = true
	}
	return nil
}

func (v *Validator) validatePolicy(doc *types.PolicyDocument) error {
	if doc == nil {
		return fmt.Errorf("policy cannot be nil")
	}
	if err := validateHeader("policy", doc.Name, doc.Algorithm, doc.Target); err != nil {
		return err
	}
	if err := validateActions(doc.Obligations, doc.Advice); err != nil {
		return fmt.Errorf("policy %s: %w", doc.Name, err)
	}

	seen := make(map[string]bool, len(doc.Rules))
	for i, rule := range doc.Rules {
		if err := v.validateRule(rule); err != nil {
			return fmt.Errorf("policy %s: invalid rule at index %d: %w", doc.Name, i, err)
		}
		if seen[rule.Name] {
			return fmt.Errorf("policy %s: duplicate rule name at index %d: %s", doc.Name, i, rule.Name)
		}
		seen[rule.Name] = true
	}
	return nil
}

func (v *Validator) validateRule(rule types.RuleDocument) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if !isValidIdentifier(rule.Name) {
		return fmt.Errorf("invalid rule name format: %s", rule.Name)
	}
	if _, err := engine.ParseTarget(rule.Target); err != nil {
		return err
	}

	hasEffect := rule.Effect != 0
	hasExpression := rule.EffectExpression != ""
	switch {
	case hasEffect && hasExpression:
		return fmt.Errorf("rule %s sets both effect and effectExpression", rule.Name)
	case hasEffect && !rule.Effect.IsDefinite():
		return fmt.Errorf("invalid effect: %s (must be 'permit' or 'deny')", rule.Effect)
	case hasExpression:
		if err := v.validateExpression(rule.EffectExpression); err != nil {
			return fmt.Errorf("invalid effect expression: %w", err)
		}
	}

	if rule.Condition != "" {
		if err := v.validateExpression(rule.Condition); err != nil {
			return fmt.Errorf("invalid CEL condition: %w", err)
		}
	}

	return validateActions(rule.Obligations, rule.Advice)
}

func (v *Validator) validateExpression(expr string) error {
	if v.cel == nil {
		return nil
	}
	_, err := v.cel.Compile(expr)
	return err
}

func validateHeader(kind, name, algorithm string, target types.TargetDocument) error {
	if name == "" {
		return fmt.Errorf("%s name is required", kind)
	}
	if !isValidIdentifier(name) {
		return fmt.Errorf("invalid %s name format: %s (must be alphanumeric with hyphens/underscores)", kind, name)
	}
	if !isKnownAlgorithm(algorithm) {
		return fmt.Errorf("%s %s: unknown combining algorithm %q", kind, name, algorithm)
	}
	if _, err := engine.ParseTarget(target); err != nil {
		return fmt.Errorf("%s %s: %w", kind, name, err)
	}
	return nil
}

func validateActions(obligations, advice []types.Action) error {
	for _, group := range [][]types.Action{obligations, advice} {
		for _, a := range group {
			if a.ID == "" {
				return fmt.Errorf("action id is required")
			}
			if !a.On.IsDefinite() {
				return fmt.Errorf("action %s: on must be 'permit' or 'deny', got %s", a.ID, a.On)
			}
		}
	}
	return nil
}

func isKnownAlgorithm(name string) bool {
	for _, a := range types.Algorithms {
		if a == name {
			return true
		}
	}
	return false
}

// isValidIdentifier checks if a string is a valid identifier
func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ValidateRuleConsistency reports rules that can never be reached because
// an earlier unconditional rule already decides under first-applicable
func (v *Validator) ValidateRuleConsistency(doc *types.PolicyDocument) []string {
	if doc == nil || doc.Algorithm != types.AlgorithmFirstApplicable {
		return nil
	}

	var warnings []string
	for i, rule := range doc.Rules {
		if len(rule.Target) == 0 && rule.Condition == "" {
			for j := i + 1; j < len(doc.Rules); j++ {
				warnings = append(warnings,
					fmt.Sprintf("Rule %d (%s) is unreachable: earlier rule %d (%s) always applies",
						j, doc.Rules[j].Name, i, rule.Name))
			}
			break
		}
	}
	return warnings
}
