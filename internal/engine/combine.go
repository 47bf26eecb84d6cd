package engine

import (
	"github.com/authz-engine/pdp-core/pkg/types"
)

// evalFunc evaluates the i-th item of an optimized list
type evalFunc func(i int) types.Result

// yieldFunc reports whether item i is still able to produce value v
type yieldFunc func(i int, v types.Evaluation) bool

// strategy folds n items into one result
type strategy func(n int, eval evalFunc, canYield yieldFunc) types.Result

type collector struct {
	obligations []types.Action
	advice      []types.Action
}

func (c *collector) add(r types.Result) {
	c.obligations = append(c.obligations, r.Obligations...)
	c.advice = append(c.advice, r.Advice...)
}

func (c *collector) result(v types.Evaluation) types.Result {
	return types.Result{Value: v, Obligations: c.obligations, Advice: c.advice}
}

func denyOverrides(n int, eval evalFunc, canYield yieldFunc) types.Result {
	return combineOverrides(types.Deny, n, eval, canYield)
}

func permitOverrides(n int, eval evalFunc, canYield yieldFunc) types.Result {
	return combineOverrides(types.Permit, n, eval, canYield)
}

func denyUnlessPermit(n int, eval evalFunc, canYield yieldFunc) types.Result {
	return combineUnless(types.Permit, n, eval, canYield)
}

func permitUnlessDeny(n int, eval evalFunc, canYield yieldFunc) types.Result {
	return combineUnless(types.Deny, n, eval, canYield)
}

// firstApplicable returns the first result that is not NOT_APPLICABLE
func firstApplicable(n int, eval evalFunc, _ yieldFunc) types.Result {
	for i := 0; i < n; i++ {
		if r := eval(i); r.Value != types.NotApplicable {
			return r
		}
	}
	return types.Result{Value: types.NotApplicable}
}

// combineOverrides implements the XACML 3.0 deny-overrides algorithm when
// winner is DENY and permit-overrides when winner is PERMIT. Once a clean
// winner is found the remaining items are still visited, but only those able
// to produce the winner, so its actions are collected in declaration order.
func combineOverrides(winner types.Evaluation, n int, eval evalFunc, canYield yieldFunc) types.Result {
	loser := winner.Mirror()

	var (
		foundWinner, foundLoser      bool
		indWinner, indLoser, indBoth bool
		winnerActions, loserActions  collector
	)

	for i := 0; i < n; i++ {
		if foundWinner && !canYield(i, winner) {
			continue
		}
		r := eval(i)
		switch r.Value {
		case winner:
			foundWinner = true
			winnerActions.add(r)
		case loser:
			foundLoser = true
			loserActions.add(r)
		case types.IndeterminateDenyOrPermit:
			indBoth = true
		case winner.Indeterminate():
			indWinner = true
		case loser.Indeterminate():
			indLoser = true
		}
	}

	switch {
	case foundWinner:
		return winnerActions.result(winner)
	case indBoth, indWinner && (indLoser || foundLoser):
		return types.Result{Value: types.IndeterminateDenyOrPermit}
	case indWinner:
		return types.Result{Value: winner.Indeterminate()}
	case foundLoser:
		return loserActions.result(loser)
	case indLoser:
		return types.Result{Value: loser.Indeterminate()}
	default:
		return types.Result{Value: types.NotApplicable}
	}
}

// combineUnless implements deny-unless-permit (winner PERMIT) and
// permit-unless-deny (winner DENY). The result is always a clean value.
func combineUnless(winner types.Evaluation, n int, eval evalFunc, canYield yieldFunc) types.Result {
	loser := winner.Mirror()

	var (
		foundWinner                 bool
		winnerActions, loserActions collector
	)

	for i := 0; i < n; i++ {
		if foundWinner && !canYield(i, winner) {
			continue
		}
		r := eval(i)
		switch r.Value {
		case winner:
			foundWinner = true
			winnerActions.add(r)
		case loser:
			if !foundWinner {
				loserActions.add(r)
			}
		}
	}

	if foundWinner {
		return winnerActions.result(winner)
	}
	return loserActions.result(loser)
}
