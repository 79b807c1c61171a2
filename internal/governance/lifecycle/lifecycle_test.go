package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizcore.io/governance/internal/domain"
	"bizcore.io/governance/internal/governance/audit"
	"bizcore.io/governance/internal/repository/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var (
	clerk   = domain.Principal{ID: "clerk", Permissions: []string{"order.submit"}}
	manager = domain.Principal{ID: "manager", Permissions: []string{"order.submit", "order.approve"}}
)

type fixture struct {
	store    *memory.Store
	registry *Registry
	executor *Executor
	trail    *audit.Trail
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	clock := WithClock(fixedClock{now: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)})
	return &fixture{
		store:    store,
		registry: NewRegistry(store, clock),
		executor: NewExecutor(store, clock),
		trail:    audit.NewTrail(store),
	}
}

// orderLifecycle registers draft -> submitted -> approved -> closed with a
// way back from submitted to draft that needs a reason.
func (f *fixture) orderLifecycle(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, s := range []domain.StateDefinition{
		{EntityType: "order", Name: "draft", Kind: domain.StateKindNormal, IsDefault: true},
		{EntityType: "order", Name: "submitted", Kind: domain.StateKindNormal},
		{EntityType: "order", Name: "approved", Kind: domain.StateKindLocked},
		{EntityType: "order", Name: "closed", Kind: domain.StateKindFinal},
	} {
		_, err := f.registry.RegisterState(ctx, s)
		require.NoError(t, err)
	}
	for _, r := range []domain.TransitionRule{
		{EntityType: "order", FromState: "draft", ToState: "submitted", RequiredPermission: "order.submit"},
		{EntityType: "order", FromState: "submitted", ToState: "draft", RequiresReason: true},
		{EntityType: "order", FromState: "submitted", ToState: "approved", RequiredPermission: "order.approve"},
		{EntityType: "order", FromState: "approved", ToState: "closed"},
	} {
		_, err := f.registry.RegisterTransition(ctx, r)
		require.NoError(t, err)
	}
}

func denialReason(t *testing.T, err error) string {
	t.Helper()
	var denied *domain.InvalidTransitionError
	require.ErrorAs(t, err, &denied)
	return denied.Reason
}

func TestValidator_CanTransition(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	v := NewValidator(f.store)
	ctx := context.Background()

	tests := []struct {
		name      string
		from, to  string
		principal *domain.Principal
		want      bool
	}{
		{"registered edge", "draft", "submitted", &clerk, true},
		{"no principal skips permission", "submitted", "approved", nil, true},
		{"missing permission", "submitted", "approved", &clerk, false},
		{"holding permission", "submitted", "approved", &manager, true},
		{"unregistered edge", "draft", "approved", &manager, false},
		{"reverse of registered edge", "closed", "approved", &manager, false},
		{"self transition", "draft", "draft", nil, false},
		{"unknown states", "limbo", "nowhere", nil, false},
		{"reason ignored", "submitted", "draft", &clerk, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.CanTransition(ctx, "order", tt.from, tt.to, tt.principal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	v := NewValidator(f.store)
	ctx := context.Background()

	require.NoError(t, v.Validate(ctx, "order", "draft", "submitted", "", &clerk))
	assert.Equal(t, domain.ReasonReasonRequired, denialReason(t, v.Validate(ctx, "order", "submitted", "draft", "  ", &clerk)))
	require.NoError(t, v.Validate(ctx, "order", "submitted", "draft", "customer changed quantity", &clerk))
	assert.Equal(t, domain.ReasonSelfTransition, denialReason(t, v.Validate(ctx, "order", "submitted", "submitted", "x", nil)))
	assert.Equal(t, domain.ReasonNotAllowed, denialReason(t, v.Validate(ctx, "order", "draft", "closed", "x", nil)))
	assert.Equal(t, domain.ReasonPermissionDenied, denialReason(t, v.Validate(ctx, "order", "submitted", "approved", "", &clerk)))
}

func TestValidator_FinalStateHasNoWayOut(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	ctx := context.Background()

	// A rule registered while "approved" was merely locked stops working once
	// the state is redefined as final.
	_, err := f.registry.RegisterState(ctx, domain.StateDefinition{EntityType: "order", Name: "approved", Kind: domain.StateKindFinal})
	require.NoError(t, err)

	err = NewValidator(f.store).Validate(ctx, "order", "approved", "closed", "", nil)
	assert.Equal(t, domain.ReasonFinalState, denialReason(t, err))

	allowed, err := f.executor.AllowedTransitions(ctx, "order", "approved", nil)
	require.NoError(t, err)
	assert.Empty(t, allowed)

	_, err = f.registry.RegisterTransition(ctx, domain.TransitionRule{EntityType: "order", FromState: "closed", ToState: "draft"})
	var invalid *domain.ValidationError
	require.ErrorAs(t, err, &invalid)
}

func TestRegistry_RegisterTransition_Validation(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rule domain.TransitionRule
	}{
		{"self transition", domain.TransitionRule{EntityType: "order", FromState: "draft", ToState: "draft"}},
		{"unknown source", domain.TransitionRule{EntityType: "order", FromState: "limbo", ToState: "draft"}},
		{"unknown target", domain.TransitionRule{EntityType: "order", FromState: "draft", ToState: "limbo"}},
		{"bad entity type", domain.TransitionRule{EntityType: "Order!", FromState: "draft", ToState: "submitted"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.registry.RegisterTransition(ctx, tt.rule)
			var invalid *domain.ValidationError
			require.ErrorAs(t, err, &invalid)
		})
	}
}

func TestRegistry_SingleDefault(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	ctx := context.Background()

	def, err := f.executor.DefaultState(ctx, "order")
	require.NoError(t, err)
	assert.Equal(t, "draft", def.Name)

	_, err = f.registry.RegisterState(ctx, domain.StateDefinition{EntityType: "order", Name: "submitted", IsDefault: true})
	require.NoError(t, err)

	def, err = f.executor.DefaultState(ctx, "order")
	require.NoError(t, err)
	assert.Equal(t, "submitted", def.Name)

	states, err := f.registry.ListStates(ctx, "order", false)
	require.NoError(t, err)
	defaults := 0
	for _, s := range states {
		if s.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)

	_, err = f.executor.DefaultState(ctx, "invoice")
	var missing *domain.MissingStateDefinitionError
	require.ErrorAs(t, err, &missing)
}

func TestRegistry_Deactivate(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	ctx := context.Background()

	require.NoError(t, f.registry.DeactivateTransition(ctx, "order", "draft", "submitted"))
	ok, err := NewValidator(f.store).CanTransition(ctx, "order", "draft", "submitted", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.registry.DeactivateState(ctx, "order", "draft"))
	_, err = f.executor.DefaultState(ctx, "order")
	var missing *domain.MissingStateDefinitionError
	require.ErrorAs(t, err, &missing)

	all, err := f.registry.ListStates(ctx, "order", true)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	active, err := f.registry.ListStates(ctx, "order", false)
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestExecutor_OrderScenario(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	ctx := context.Background()

	entry, err := f.executor.PerformTransition(ctx, domain.TransitionRequest{
		EntityType: "order", EntityID: "o-1", FromState: "draft", ToState: "submitted", Principal: clerk,
	})
	require.NoError(t, err)
	assert.Equal(t, "submitted", entry.ToState)
	assert.Equal(t, "clerk", entry.PrincipalID)

	_, err = f.executor.PerformTransition(ctx, domain.TransitionRequest{
		EntityType: "order", EntityID: "o-1", FromState: "submitted", ToState: "draft", Principal: clerk,
	})
	assert.Equal(t, domain.ReasonReasonRequired, denialReason(t, err))

	_, err = f.executor.PerformTransition(ctx, domain.TransitionRequest{
		EntityType: "order", EntityID: "o-1", FromState: "submitted", ToState: "draft",
		Reason: "wrong shipping address", Principal: clerk,
	})
	require.NoError(t, err)

	history, err := f.trail.History(ctx, "order", "o-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, []string{"submitted", "draft"}, []string{history[0].ToState, history[1].ToState})
	assert.Equal(t, "wrong shipping address", history[1].Reason)
}

func TestExecutor_DeniedTransitionWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	ctx := context.Background()

	denied := []domain.TransitionRequest{
		{EntityType: "order", EntityID: "o-1", FromState: "draft", ToState: "approved", Principal: manager},
		{EntityType: "order", EntityID: "o-1", FromState: "draft", ToState: "draft", Principal: manager},
		{EntityType: "order", EntityID: "o-1", FromState: "submitted", ToState: "approved", Principal: clerk},
		{EntityType: "order", EntityID: "o-1", FromState: "closed", ToState: "draft", Principal: manager},
	}
	for _, req := range denied {
		_, err := f.executor.PerformTransition(ctx, req)
		require.Error(t, err)
		assert.Equal(t, domain.ClassPolicyDenial, domain.ClassOf(err))
	}

	entries, err := f.trail.Query(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExecutor_OneAuditEntryPerTransition(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	ctx := context.Background()

	path := [][2]string{{"draft", "submitted"}, {"submitted", "approved"}, {"approved", "closed"}}
	for _, step := range path {
		_, err := f.executor.PerformTransition(ctx, domain.TransitionRequest{
			EntityType: "order", EntityID: "o-7", FromState: step[0], ToState: step[1], Principal: manager,
		})
		require.NoError(t, err)
	}

	entries, err := f.trail.History(ctx, "order", "o-7")
	require.NoError(t, err)
	require.Len(t, entries, len(path))
	ids := map[string]struct{}{}
	for _, e := range entries {
		ids[e.ID] = struct{}{}
	}
	assert.Len(t, ids, len(path))
}

func TestExecutor_MissingStateDefinitions(t *testing.T) {
	f := newFixture(t)
	_, err := f.executor.PerformTransition(context.Background(), domain.TransitionRequest{
		EntityType: "ticket", EntityID: "t-1", FromState: "open", ToState: "closed", Principal: manager,
	})
	var missing *domain.MissingStateDefinitionError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "ticket", missing.EntityType)
}

func TestExecutor_RequestValidation(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	ctx := context.Background()

	var invalid *domain.ValidationError
	_, err := f.executor.PerformTransition(ctx, domain.TransitionRequest{EntityType: "order", FromState: "draft", ToState: "submitted", Principal: clerk})
	require.ErrorAs(t, err, &invalid)

	_, err = f.executor.PerformTransition(ctx, domain.TransitionRequest{EntityType: "order", EntityID: "o-1", FromState: "draft", ToState: "submitted"})
	require.ErrorAs(t, err, &invalid)
}

func TestExecutor_OverrideIsRecordedNotPrivileged(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	ctx := context.Background()

	_, err := f.executor.PerformTransition(ctx, domain.TransitionRequest{
		EntityType: "order", EntityID: "o-1", FromState: "draft", ToState: "closed", Principal: manager, IsOverride: true,
	})
	require.Error(t, err)

	entry, err := f.executor.PerformTransition(ctx, domain.TransitionRequest{
		EntityType: "order", EntityID: "o-1", FromState: "draft", ToState: "submitted", Principal: manager, IsOverride: true,
	})
	require.NoError(t, err)
	assert.True(t, entry.IsOverride)
}

func TestExecutor_LockQueries(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	ctx := context.Background()

	tests := []struct {
		state        string
		locked       bool
		final        bool
		editableFail bool
	}{
		{"draft", false, false, false},
		{"approved", true, false, true},
		{"closed", true, true, true},
		{"unknown", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			locked, err := f.executor.IsLocked(ctx, "order", tt.state)
			require.NoError(t, err)
			assert.Equal(t, tt.locked, locked)

			final, err := f.executor.IsFinal(ctx, "order", tt.state)
			require.NoError(t, err)
			assert.Equal(t, tt.final, final)

			err = f.executor.EnsureEditable(ctx, "order", tt.state)
			if tt.editableFail {
				var lockedErr *domain.LockedStateError
				require.ErrorAs(t, err, &lockedErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestExecutor_AllowedTransitions(t *testing.T) {
	f := newFixture(t)
	f.orderLifecycle(t)
	ctx := context.Background()

	targets := func(rules []domain.TransitionRule) []string {
		out := make([]string, 0, len(rules))
		for _, r := range rules {
			out = append(out, r.ToState)
		}
		return out
	}

	all, err := f.executor.AllowedTransitions(ctx, "order", "submitted", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"approved", "draft"}, targets(all))

	forClerk, err := f.executor.AllowedTransitions(ctx, "order", "submitted", &clerk)
	require.NoError(t, err)
	assert.Equal(t, []string{"draft"}, targets(forClerk))

	fromFinal, err := f.executor.AllowedTransitions(ctx, "order", "closed", nil)
	require.NoError(t, err)
	assert.Empty(t, fromFinal)
}
