package enforcement

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/authz-engine/pdp-core/internal/metrics"
	"github.com/authz-engine/pdp-core/pkg/types"
)

func permitWith(obligations, advice []string) types.Result {
	r := types.Result{Value: types.Permit}
	for _, id := range obligations {
		r.Obligations = append(r.Obligations, types.Action{On: types.Permit, ID: id})
	}
	for _, id := range advice {
		r.Advice = append(r.Advice, types.Action{On: types.Permit, ID: id})
	}
	return r
}

func recorder(calls *[]string) Handler {
	return func(_ context.Context, _ types.Request, a types.Action) error {
		*calls = append(*calls, a.ID)
		return nil
	}
}

func TestEnforce_AllObligationsDischarged(t *testing.T) {
	var calls []string
	r := NewRegistry()
	r.Register("audit", recorder(&calls))
	r.Register("notify", recorder(&calls))
	r.Register("banner", recorder(&calls))

	out, err := r.Enforce(context.Background(), types.NewRequest(nil), permitWith([]string{"audit", "notify"}, []string{"banner"}))
	require.NoError(t, err)
	assert.True(t, out.Permitted())
	assert.Equal(t, []string{"audit", "notify"}, out.Discharged)
	assert.Equal(t, []string{"audit", "notify", "banner"}, calls)
	assert.Len(t, out.Result.Obligations, 2)
}

func TestEnforce_MissingHandlerDenies(t *testing.T) {
	m := metrics.NewPrometheusMetrics("pdp_test")
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRegistry(WithMetrics(m), WithLogger(zap.New(core)))

	out, err := r.Enforce(context.Background(), types.NewRequest(nil), permitWith([]string{"audit"}, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoHandler)
	assert.Equal(t, types.Deny, out.Result.Value)
	assert.Empty(t, out.Result.Obligations)
	assert.False(t, out.Permitted())
	assert.Equal(t, 1, logs.FilterMessage("Obligation not discharged, denying").Len())

	count, err := testutil.GatherAndCount(m.Registry(), "pdp_test_enforcement_obligations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEnforce_HandlerFailureStopsRemainingObligations(t *testing.T) {
	var calls []string
	r := NewRegistry()
	r.Register("audit", func(context.Context, types.Request, types.Action) error {
		return errors.New("sink unavailable")
	})
	r.Register("notify", recorder(&calls))

	out, err := r.Enforce(context.Background(), types.NewRequest(nil), permitWith([]string{"audit", "notify"}, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink unavailable")
	assert.Equal(t, types.Deny, out.Result.Value)
	assert.Empty(t, calls)
}

func TestEnforce_HandlerPanicIsFailure(t *testing.T) {
	r := NewRegistry()
	r.Register("audit", func(context.Context, types.Request, types.Action) error {
		panic("boom")
	})

	out, err := r.Enforce(context.Background(), types.NewRequest(nil), permitWith([]string{"audit"}, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic")
	assert.Equal(t, types.Deny, out.Result.Value)
}

func TestEnforce_AdviceIsBestEffort(t *testing.T) {
	r := NewRegistry()
	r.Register("banner", func(context.Context, types.Request, types.Action) error {
		return errors.New("render failed")
	})

	out, err := r.Enforce(context.Background(), types.NewRequest(nil), permitWith(nil, []string{"banner", "unknown"}))
	require.NoError(t, err)
	assert.True(t, out.Permitted())
	require.Len(t, out.AdviceErrors, 1)
	assert.Contains(t, out.AdviceErrors[0].Error(), "render failed")
}

func TestEnforce_DenyObligationsAreDischargedToo(t *testing.T) {
	var calls []string
	r := NewRegistry()
	r.Register("log-denial", recorder(&calls))

	result := types.Result{
		Value:       types.Deny,
		Obligations: []types.Action{{On: types.Deny, ID: "log-denial"}},
	}
	out, err := r.Enforce(context.Background(), types.NewRequest(nil), result)
	require.NoError(t, err)
	assert.False(t, out.Permitted())
	assert.Equal(t, types.Deny, out.Result.Value)
	assert.Equal(t, []string{"log-denial"}, calls)
}

func TestEnforce_NonPermitValuesAreNotPermitted(t *testing.T) {
	r := NewRegistry()
	for _, v := range []types.Evaluation{types.NotApplicable, types.IndeterminatePermit, types.IndeterminateDenyOrPermit} {
		out, err := r.Enforce(context.Background(), types.NewRequest(nil), types.Result{Value: v})
		require.NoError(t, err)
		assert.False(t, out.Permitted(), v.String())
	}
}

func TestEnforce_CancelledContext(t *testing.T) {
	var calls []string
	r := NewRegistry()
	r.Register("audit", recorder(&calls))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := r.Enforce(ctx, types.NewRequest(nil), permitWith([]string{"audit"}, nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.Deny, out.Result.Value)
	assert.Empty(t, calls)
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() { r.Register("audit", nil) })

	var calls []string
	r.Register("audit", recorder(&calls))
	r.Unregister("audit")

	_, err := r.Enforce(context.Background(), types.NewRequest(nil), permitWith([]string{"audit"}, nil))
	assert.ErrorIs(t, err, ErrNoHandler)
}
