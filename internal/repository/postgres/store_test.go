package postgres_test

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"bizcore.io/governance/internal/domain"
	"bizcore.io/governance/internal/governance/numbering"
	apperrors "bizcore.io/governance/internal/pkg/errors"
	"bizcore.io/governance/internal/repository"
	"bizcore.io/governance/internal/repository/postgres"
	"bizcore.io/governance/internal/testutil"
)

func setupStore(t *testing.T, opts ...postgres.Option) (context.Context, *postgres.Store) {
	t.Helper()
	pool := testutil.OpenPGXPool(t, t.Name())
	return context.Background(), postgres.NewStore(pool, opts...)
}

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func state(name string, kind domain.StateKind, isDefault bool) domain.StateDefinition {
	return domain.StateDefinition{
		EntityType: "order", Name: name, Label: name, Kind: kind, IsDefault: isDefault,
		CreatedAt: t0, UpdatedAt: t0,
	}
}

func TestStore_StateDefinitions(t *testing.T) {
	ctx, store := setupStore(t)

	_, err := store.UpsertStateDefinition(ctx, state("draft", domain.StateKindNormal, true))
	require.NoError(t, err)
	_, err = store.UpsertStateDefinition(ctx, state("submitted", domain.StateKindNormal, true))
	require.NoError(t, err)

	defs, err := store.ListStateDefinitions(ctx, "order", false)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.False(t, defs[0].IsDefault, "draft lost its default flag")
	assert.True(t, defs[1].IsDefault)

	require.NoError(t, store.SetStateDefinitionActive(ctx, "order", "draft", false))
	_, err = store.GetStateDefinition(ctx, "order", "draft")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	all, err := store.ListStateDefinitions(ctx, "order", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	reactivated, err := store.UpsertStateDefinition(ctx, state("draft", domain.StateKindLocked, false))
	require.NoError(t, err)
	assert.True(t, reactivated.Active)
	assert.Equal(t, domain.StateKindLocked, reactivated.Kind)

	err = store.SetStateDefinitionActive(ctx, "order", "missing", false)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_TransitionRulesAndAudit(t *testing.T) {
	ctx, store := setupStore(t)

	for _, s := range []domain.StateDefinition{
		state("draft", domain.StateKindNormal, true),
		state("submitted", domain.StateKindNormal, false),
		state("cancelled", domain.StateKindFinal, false),
	} {
		_, err := store.UpsertStateDefinition(ctx, s)
		require.NoError(t, err)
	}
	for _, to := range []string{"submitted", "cancelled"} {
		_, err := store.UpsertTransitionRule(ctx, domain.TransitionRule{
			EntityType: "order", FromState: "draft", ToState: to, CreatedAt: t0, UpdatedAt: t0,
		})
		require.NoError(t, err)
	}

	rules, err := store.ListTransitionRulesFrom(ctx, "order", "draft")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "cancelled", rules[0].ToState)

	require.NoError(t, store.SetTransitionRuleActive(ctx, "order", "draft", "cancelled", false))
	_, err = store.GetTransitionRule(ctx, "order", "draft", "cancelled")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	entry := domain.TransitionAuditEntry{
		ID: "a-1", OccurredAt: t0, PrincipalID: "u-1", EntityType: "order", EntityID: "o-1",
		FromState: "draft", ToState: "submitted",
	}
	require.NoError(t, store.AppendTransitionAudit(ctx, entry))

	err = store.AppendTransitionAudit(ctx, entry)
	var immutable *domain.ImmutableRecordError
	require.ErrorAs(t, err, &immutable)

	got, err := store.ListTransitionAudit(ctx, domain.AuditFilter{EntityType: "order", EntityID: "o-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u-1", got[0].PrincipalID)
	assert.True(t, got[0].OccurredAt.Equal(t0))
}

func TestStore_AuditIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	pool := testutil.OpenPGXPool(t, t.Name())
	store := postgres.NewStore(pool)

	require.NoError(t, store.AppendTransitionAudit(ctx, domain.TransitionAuditEntry{
		ID: "a-1", OccurredAt: t0, PrincipalID: "u-1", EntityType: "order", EntityID: "o-1",
		FromState: "draft", ToState: "submitted",
	}))

	_, err := pool.Exec(ctx, `UPDATE transition_audit SET reason = 'rewritten'`)
	require.Error(t, err)
	_, err = pool.Exec(ctx, `DELETE FROM transition_audit`)
	require.Error(t, err)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx, store := setupStore(t)

	boom := fmt.Errorf("boom")
	err := store.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		if _, err := q.UpsertStateDefinition(ctx, state("draft", domain.StateKindNormal, true)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	defs, err := store.ListStateDefinitions(ctx, "order", true)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestStore_AssignedNumbers(t *testing.T) {
	ctx, store := setupStore(t)

	_, err := store.UpsertNumberingRule(ctx, domain.NewNumberingRule("invoice", "INV"))
	require.NoError(t, err)

	n := domain.AssignedNumber{ID: "n-1", EntityType: "invoice", EntityID: "i-1", Number: "INV-2026-00001", AssignedAt: t0, AssignedBy: "u-1"}
	require.NoError(t, store.InsertAssignedNumber(ctx, n))

	again := n
	again.ID, again.Number = "n-2", "INV-2026-00002"
	err = store.InsertAssignedNumber(ctx, again)
	var already *domain.AlreadyAssignedError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, "INV-2026-00001", already.Number)

	dup := n
	dup.ID, dup.EntityID = "n-3", "i-2"
	err = store.InsertAssignedNumber(ctx, dup)
	var duplicate *domain.DuplicateNumberError
	require.ErrorAs(t, err, &duplicate)

	got, err := store.GetAssignedNumber(ctx, "invoice", "i-1")
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-00001", got.Number)
}

func TestStore_CounterRequiresTx(t *testing.T) {
	ctx, store := setupStore(t)
	_, err := store.LockSequenceCounter(ctx, "invoice")
	require.Error(t, err)
}

func TestStore_RuleUpsertKeepsCounter(t *testing.T) {
	ctx, store := setupStore(t)

	_, err := store.UpsertNumberingRule(ctx, domain.NewNumberingRule("invoice", "INV"))
	require.NoError(t, err)
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		c, err := q.LockSequenceCounter(ctx, "invoice")
		if err != nil {
			return err
		}
		c.Value = 41
		c.LastReset = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		return q.SaveSequenceCounter(ctx, c)
	}))

	updated := domain.NewNumberingRule("invoice", "BILL")
	_, err = store.UpsertNumberingRule(ctx, updated)
	require.NoError(t, err)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		c, err := q.LockSequenceCounter(ctx, "invoice")
		require.NoError(t, err)
		assert.Equal(t, int64(41), c.Value)
		assert.Equal(t, 2026, c.LastReset.Year())
		return nil
	}))
}

func TestStore_LockTimeout(t *testing.T) {
	ctx, store := setupStore(t, postgres.WithLockTimeout(100*time.Millisecond))
	_, err := store.UpsertNumberingRule(ctx, domain.NewNumberingRule("invoice", "INV"))
	require.NoError(t, err)

	locked := make(chan struct{})
	release := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return store.WithTx(gctx, func(ctx context.Context, q repository.Queries) error {
			if _, err := q.LockSequenceCounter(ctx, "invoice"); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	})

	<-locked
	err = store.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		_, err := q.LockSequenceCounter(ctx, "invoice")
		return err
	})
	require.ErrorIs(t, err, postgres.ErrLockTimeout)

	close(release)
	require.NoError(t, g.Wait())
}

func TestStore_ConcurrentAssignmentsAreGapless(t *testing.T) {
	ctx, store := setupStore(t, postgres.WithLockTimeout(10*time.Second))
	engine := numbering.NewEngine(store)

	rule := domain.NewNumberingRule("invoice", "INV")
	rule.IncludeYear = false
	_, err := engine.RegisterRule(ctx, rule)
	require.NoError(t, err)

	const n = 40
	numbers := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			assigned, err := engine.Assign(gctx, "invoice", fmt.Sprintf("i-%d", i), domain.Principal{ID: "u-1"})
			numbers[i] = assigned.Number
			return err
		})
	}
	require.NoError(t, g.Wait())

	sort.Strings(numbers)
	for i, num := range numbers {
		assert.Equal(t, fmt.Sprintf("INV-%05d", i+1), num)
	}
}
