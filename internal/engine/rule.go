package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// Condition decides whether an applicable rule takes effect. An error marks
// the rule as indeterminate.
type Condition func(ctx *Context) (bool, error)

// Effect resolves the value a rule produces once its condition holds
type Effect struct {
	polarity types.Evaluation
	compute  func(ctx *Context) (types.Evaluation, error)
}

// PermitEffect always resolves to PERMIT
func PermitEffect() Effect {
	return Effect{polarity: types.Permit}
}

// DenyEffect always resolves to DENY
func DenyEffect() Effect {
	return Effect{polarity: types.Deny}
}

// ComputedEffect resolves the effect at evaluation time. fn must return
// PERMIT or DENY; any other value or an error makes the rule indeterminate.
func ComputedEffect(fn func(ctx *Context) (types.Evaluation, error)) Effect {
	return Effect{polarity: types.IndeterminateDenyOrPermit, compute: fn}
}

// LogicalEffect maps a boolean expression onto an effect: true is PERMIT and
// false is DENY.
func LogicalEffect(fn func(ctx *Context) (bool, error)) Effect {
	return ComputedEffect(func(ctx *Context) (types.Evaluation, error) {
		ok, err := fn(ctx)
		if err != nil {
			return 0, err
		}
		if ok {
			return types.Permit, nil
		}
		return types.Deny, nil
	})
}

// Polarity returns the declared effect: PERMIT, DENY, or
// INDETERMINATE_DENY_OR_PERMIT when the effect is computed.
func (e Effect) Polarity() types.Evaluation {
	if e.polarity == 0 {
		return types.Permit
	}
	return e.polarity
}

// IsComputed reports whether the effect is resolved at evaluation time
func (e Effect) IsComputed() bool {
	return e.compute != nil
}

func (e Effect) resolve(ctx *Context) (value types.Evaluation, err error) {
	if e.compute == nil {
		return e.Polarity(), nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("effect panicked: %v", r)
		}
	}()
	return e.compute(ctx)
}

// Rule is the smallest evaluable unit. Rules are assembled with the setters
// and must not be modified after they have been encoded.
type Rule struct {
	name        string
	target      *Target
	condition   Condition
	effect      Effect
	obligations []types.Action
	advice      []types.Action
}

// NewRule creates a rule with a wildcard target, no condition and a PERMIT effect
func NewRule(name string) *Rule {
	return &Rule{name: name, effect: PermitEffect()}
}

// Name returns the rule name
func (r *Rule) Name() string { return r.name }

// Target returns the rule target (nil means wildcard)
func (r *Rule) Target() *Target { return r.target }

// Effect returns the rule effect
func (r *Rule) Effect() Effect { return r.effect }

// SetTarget sets the rule target
func (r *Rule) SetTarget(t *Target) *Rule {
	r.target = t
	return r
}

// SetCondition sets the rule condition. A nil condition always holds.
func (r *Rule) SetCondition(c Condition) *Rule {
	r.condition = c
	return r
}

// SetEffect sets the rule effect
func (r *Rule) SetEffect(e Effect) *Rule {
	r.effect = e
	return r
}

// SetObligations replaces the rule obligations
func (r *Rule) SetObligations(actions ...types.Action) *Rule {
	r.obligations = actions
	return r
}

// SetAdvice replaces the rule advice
func (r *Rule) SetAdvice(actions ...types.Action) *Rule {
	r.advice = actions
	return r
}

// EvaluateRule evaluates a single rule against ctx
func EvaluateRule(r *Rule, ctx *Context) types.Result {
	encoded := EncodeRule(r)
	return encoded.evaluate(ctx)
}

func (r *EncodedRule) evaluate(ctx *Context) types.Result {
	if !r.Target.Matches(ctx) {
		return types.Result{Value: types.NotApplicable}
	}

	ok, err := r.checkCondition(ctx)
	if err != nil {
		ctx.logger.Debug("Rule condition failed",
			zap.String("rule", r.Name),
			zap.Error(err),
		)
		return types.Result{Value: r.Effect.Polarity().Indeterminate()}
	}
	if !ok {
		return types.Result{Value: types.NotApplicable}
	}

	value, err := r.Effect.resolve(ctx)
	if err == nil && !value.IsDefinite() {
		err = fmt.Errorf("effect resolved to %s", value)
	}
	if err != nil {
		ctx.logger.Debug("Rule effect failed",
			zap.String("rule", r.Name),
			zap.Error(err),
		)
		return types.Result{Value: r.Effect.Polarity().Indeterminate()}
	}

	return types.Result{
		Value:       value,
		Obligations: types.SelectActions(r.Obligations, value),
		Advice:      types.SelectActions(r.Advice, value),
	}
}

func (r *EncodedRule) checkCondition(ctx *Context) (ok bool, err error) {
	if r.Condition == nil {
		return true, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("condition panicked: %v", rec)
		}
	}()
	return r.Condition(ctx)
}
