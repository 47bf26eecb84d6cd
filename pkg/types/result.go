package types

import "time"

// Action is an advice or obligation token attached to a rule, policy or
// policy set. It is emitted only when the resolved effect equals On.
type Action struct {
	On     Evaluation        `json:"on" yaml:"on"`
	ID     string            `json:"id" yaml:"id"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// SelectActions returns the actions whose trigger equals value, in order.
func SelectActions(actions []Action, value Evaluation) []Action {
	var out []Action
	for _, a := range actions {
		if a.On == value {
			out = append(out, a)
		}
	}
	return out
}

// Result is the outcome of a combining algorithm or an element evaluation
type Result struct {
	Value       Evaluation `json:"value"`
	Obligations []Action   `json:"obligations,omitempty"`
	Advice      []Action   `json:"advice,omitempty"`
}

// Clone returns a deep copy of r so cached results are never aliased
func (r Result) Clone() Result {
	out := Result{Value: r.Value}
	if len(r.Obligations) > 0 {
		out.Obligations = append([]Action(nil), r.Obligations...)
	}
	if len(r.Advice) > 0 {
		out.Advice = append([]Action(nil), r.Advice...)
	}
	return out
}

// IsPermit returns true if the decision value is PERMIT
func (r Result) IsPermit() bool {
	return r.Value == Permit
}

// Decision is a Result produced by the engine for one Request
type Decision struct {
	ID          string    `json:"id"`
	RequestKey  string    `json:"requestKey"`
	Result      Result    `json:"result"`
	DurationUs  float64   `json:"durationUs"`
	CacheHit    bool      `json:"cacheHit"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}
