package operator_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mthaddon/k8s-ingress-operator/internal/config"
	"github.com/mthaddon/k8s-ingress-operator/internal/operator"
	"github.com/mthaddon/k8s-ingress-operator/internal/relation"
	"github.com/mthaddon/k8s-ingress-operator/internal/state"
)

// stubReconciler records the states it was asked to converge.
type stubReconciler struct {
	calls []config.Resolved
	ips   []string
	err   error
}

func (s *stubReconciler) Reconcile(_ context.Context, res config.Resolved) ([]string, error) {
	s.calls = append(s.calls, res)

	return s.ips, s.err
}

type fixture struct {
	op         *operator.Operator
	store      *state.MemoryStore
	reconciler *stubReconciler
	statuses   *[]operator.Status
}

func newFixture(t *testing.T, settings config.Settings, leader bool) fixture {
	t.Helper()

	store := state.NewMemoryStore()
	rec := &stubReconciler{ips: []string{"10.0.0.15"}}

	var statuses []operator.Status

	op, err := operator.New(operator.Operator{
		Settings:   func() config.Settings { return settings },
		Namespace:  "model",
		Store:      store,
		Reconciler: rec,
		IsLeader:   func() bool { return leader },
		SetStatus:  func(s operator.Status) { statuses = append(statuses, s) },
	})
	require.NoError(t, err)

	return fixture{op: op, store: store, reconciler: rec, statuses: &statuses}
}

func lastStatus(t *testing.T, f fixture) operator.Status {
	t.Helper()

	require.NotEmpty(t, *f.statuses)

	return (*f.statuses)[len(*f.statuses)-1]
}

func validPayloads() []relation.Payload {
	return []relation.Payload{
		{
			"service-hostname": "web.example.com",
			"service-name":     "web",
			"service-port":     "8080",
		},
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := operator.New(operator.Operator{})
	require.Error(t, err)
}

func TestHandleConfigChanged_ReconcilesAndReportsIPs(t *testing.T) {
	t.Parallel()

	settings := config.Settings{
		ServiceHostname: "web.example.com",
		ServiceName:     "web",
		ServicePort:     8080,
	}
	f := newFixture(t, settings, true)

	require.NoError(t, f.op.HandleConfigChanged(context.Background()))

	require.Len(t, f.reconciler.calls, 1)
	assert.Equal(t, "web", f.reconciler.calls[0].ServiceName)
	assert.Equal(t, "model", f.reconciler.calls[0].Namespace)

	status := lastStatus(t, f)
	assert.Equal(t, operator.StateActive, status.State)
	assert.Equal(t, "Ingress with service IP(s): 10.0.0.15", status.Message)
}

func TestHandleConfigChanged_NoServiceName(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Settings{}, true)

	require.NoError(t, f.op.HandleConfigChanged(context.Background()))

	assert.Empty(t, f.reconciler.calls)

	status := lastStatus(t, f)
	assert.Equal(t, operator.StateActive, status.State)
	assert.Empty(t, status.Message)
}

func TestHandleConfigChanged_NonLeaderNeverMutates(t *testing.T) {
	t.Parallel()

	settings := config.Settings{ServiceName: "web", ServicePort: 8080}
	f := newFixture(t, settings, false)

	require.NoError(t, f.op.HandleConfigChanged(context.Background()))

	assert.Empty(t, f.reconciler.calls)
	assert.Equal(t, operator.StateActive, lastStatus(t, f).State)
}

func TestHandleConfigChanged_ReconcileErrorPropagates(t *testing.T) {
	t.Parallel()

	settings := config.Settings{ServiceName: "web", ServicePort: 8080}
	f := newFixture(t, settings, true)
	f.reconciler.err = errors.New("api unreachable")

	err := f.op.HandleConfigChanged(context.Background())
	require.Error(t, err)

	// No status update on a failed reconcile; the last known state stands.
	assert.Empty(t, *f.statuses)
}

func TestHandleConfigChanged_UsesCachedRelationData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, config.Settings{}, true)

	require.NoError(t, f.store.Save(ctx, validPayloads()[0].Normalize()))

	require.NoError(t, f.op.HandleConfigChanged(ctx))

	require.Len(t, f.reconciler.calls, 1)
	resolved := f.reconciler.calls[0]
	assert.Equal(t, "web", resolved.ServiceName)
	assert.Equal(t, "web.example.com", resolved.ServiceHostname)
	assert.Equal(t, 8080, resolved.ServicePort)
}

func TestHandleRelationChanged_ValidPayloadCachedAndReconciled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, config.Settings{}, true)

	require.NoError(t, f.op.HandleRelationChanged(ctx, validPayloads()))

	cached, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "web", cached.Get("service-name"))

	require.Len(t, f.reconciler.calls, 1)
	assert.Equal(t, operator.StateActive, lastStatus(t, f).State)
}

func TestHandleRelationChanged_MissingFieldsBlocks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, config.Settings{}, true)

	payloads := []relation.Payload{{"service-name": "web"}}

	// Validation failures are recovered locally: no error escapes.
	require.NoError(t, f.op.HandleRelationChanged(ctx, payloads))

	status := lastStatus(t, f)
	assert.Equal(t, operator.StateBlocked, status.State)
	assert.Equal(t, "Missing fields for ingress: service-hostname, service-port", status.Message)

	// The cache stays untouched on rejection.
	cached, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, cached)

	assert.Empty(t, f.reconciler.calls)
}

func TestHandleRelationChanged_RejectionLeavesPreviousCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, config.Settings{}, true)

	require.NoError(t, f.op.HandleRelationChanged(ctx, validPayloads()))

	// A later invalid payload must not clobber the cached one.
	require.NoError(t, f.op.HandleRelationChanged(ctx, []relation.Payload{{}}))

	cached, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "web", cached.Get("service-name"))
}

func TestHandleRelationChanged_NonLeaderIgnores(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, config.Settings{}, false)

	require.NoError(t, f.op.HandleRelationChanged(ctx, validPayloads()))

	cached, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, cached)
	assert.Empty(t, f.reconciler.calls)
}

func TestHandleRelationChanged_FirstPayloadWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, config.Settings{}, true)

	payloads := append(validPayloads(), relation.Payload{
		"service-hostname": "other.example.com",
		"service-name":     "other",
		"service-port":     "9090",
	})

	require.NoError(t, f.op.HandleRelationChanged(ctx, payloads))

	cached, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "web", cached.Get("service-name"))
}

func TestHandleRelationChanged_NoPayloads(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Settings{}, true)

	require.NoError(t, f.op.HandleRelationChanged(context.Background(), nil))
	assert.Empty(t, f.reconciler.calls)
}

func TestHandleUpgrade_ReproducesCachedState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, config.Settings{}, true)

	require.NoError(t, f.op.HandleRelationChanged(ctx, validPayloads()))
	firstResolved := f.reconciler.calls[0]

	// Upgrade restart: the cache alone must reproduce the canonical state
	// once the follow-up config-changed signal arrives.
	require.NoError(t, f.op.HandleUpgrade(ctx))
	require.NoError(t, f.op.HandleConfigChanged(ctx))

	require.Len(t, f.reconciler.calls, 2)
	assert.Equal(t, firstResolved, f.reconciler.calls[1])
}
