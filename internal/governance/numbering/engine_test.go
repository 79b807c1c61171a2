package numbering

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"bizcore.io/governance/internal/domain"
	"bizcore.io/governance/internal/repository/memory"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

var alice = domain.Principal{ID: "alice", Permissions: []string{"numbering.assign"}}

func newTestEngine(t *testing.T, now time.Time) (*Engine, *memory.Store, *manualClock) {
	t.Helper()
	clock := &manualClock{now: now}
	store := memory.New()
	return NewEngine(store, WithClock(clock)), store, clock
}

func invoiceRule() domain.NumberingRule {
	r := domain.NewNumberingRule("invoice", "INV")
	r.SequenceWidth = 6
	r.Reset = domain.ResetYearly
	return r
}

func TestEngine_Assign(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	_, err := e.RegisterRule(ctx, invoiceRule())
	require.NoError(t, err)

	first, err := e.Assign(ctx, "invoice", "inv-1", alice)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000001", first.Number)
	assert.Equal(t, "alice", first.AssignedBy)
	assert.NotEmpty(t, first.ID)

	second, err := e.Assign(ctx, "invoice", "inv-2", alice)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000002", second.Number)

	number, ok, err := e.GetAssignedNumber(ctx, "invoice", "inv-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "INV-2026-000001", number)

	has, err := e.HasAssignedNumber(ctx, "invoice", "inv-3")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestEngine_Assign_Twice(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	_, err := e.RegisterRule(ctx, invoiceRule())
	require.NoError(t, err)

	first, err := e.Assign(ctx, "invoice", "inv-1", alice)
	require.NoError(t, err)

	_, err = e.Assign(ctx, "invoice", "inv-1", alice)
	var already *domain.AlreadyAssignedError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, first.Number, already.Number)

	number, _, err := e.GetAssignedNumber(ctx, "invoice", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, first.Number, number)

	// The failed attempt consumed no counter value.
	next, err := e.Assign(ctx, "invoice", "inv-2", alice)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000002", next.Number)
}

func TestEngine_Assign_Rejections(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))

	disabled := domain.NewNumberingRule("quote", "QOT")
	disabled.Enabled = false
	_, err := e.RegisterRule(ctx, disabled)
	require.NoError(t, err)

	_, err = e.Assign(ctx, "lead", "l-1", alice)
	var noRule *domain.NoRuleDefinedError
	require.ErrorAs(t, err, &noRule)
	assert.Equal(t, "lead", noRule.EntityType)

	_, err = e.Assign(ctx, "quote", "q-1", alice)
	var off *domain.NumberingDisabledError
	require.ErrorAs(t, err, &off)

	has, err := e.HasAssignedNumber(ctx, "quote", "q-1")
	require.NoError(t, err)
	assert.False(t, has)

	var invalid *domain.ValidationError
	_, err = e.Assign(ctx, "quote", "", alice)
	require.ErrorAs(t, err, &invalid)
	_, err = e.Assign(ctx, "quote", "q-1", domain.Principal{})
	require.ErrorAs(t, err, &invalid)
}

func TestEngine_Assign_YearlyReset(t *testing.T) {
	ctx := context.Background()
	e, _, clock := newTestEngine(t, time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC))
	_, err := e.RegisterRule(ctx, invoiceRule())
	require.NoError(t, err)

	for i := 0; i < 42; i++ {
		_, err := e.Assign(ctx, "invoice", fmt.Sprintf("old-%d", i), alice)
		require.NoError(t, err)
	}

	clock.Set(time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC))
	n, err := e.Assign(ctx, "invoice", "new-1", alice)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000001", n.Number)
}

func TestEngine_RegisterRule_RejectsResetWithoutPeriodSegment(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *domain.NumberingRule)
		field  string
	}{
		{"yearly without year", func(r *domain.NumberingRule) { r.IncludeYear = false }, "IncludeYear"},
		{"monthly without month", func(r *domain.NumberingRule) { r.Reset = domain.ResetMonthly }, "IncludeMonth"},
		{"monthly without year", func(r *domain.NumberingRule) {
			r.Reset = domain.ResetMonthly
			r.IncludeYear = false
			r.IncludeMonth = true
		}, "IncludeYear"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e, _, _ := newTestEngine(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
			rule := invoiceRule()
			tt.mutate(&rule)

			_, err := e.RegisterRule(ctx, rule)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Len(t, verr.Violations, 1)
			assert.Equal(t, tt.field, verr.Violations[0].Field)

			_, err = e.GetRule(ctx, "invoice")
			var noRule *domain.NoRuleDefinedError
			assert.ErrorAs(t, err, &noRule, "rejected rule is not stored")
		})
	}
}

func TestEngine_Assign_SwitchToResetPolicyKeepsCounter(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *domain.NumberingRule)
		want   string
	}{
		{"none to yearly", func(r *domain.NumberingRule) { r.Reset = domain.ResetYearly }, "INV-2026-000006"},
		{"none to monthly", func(r *domain.NumberingRule) {
			r.Reset = domain.ResetMonthly
			r.IncludeMonth = true
		}, "INV-2026-03-000006"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e, _, clock := newTestEngine(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
			rule := invoiceRule()
			rule.Reset = domain.ResetNever
			_, err := e.RegisterRule(ctx, rule)
			require.NoError(t, err)
			for i := 0; i < 5; i++ {
				_, err := e.Assign(ctx, "invoice", fmt.Sprintf("before-%d", i), alice)
				require.NoError(t, err)
			}

			tt.mutate(&rule)
			_, err = e.RegisterRule(ctx, rule)
			require.NoError(t, err)

			n, err := e.Assign(ctx, "invoice", "after-1", alice)
			require.NoError(t, err, "the switch starts a period instead of restarting at 1")
			assert.Equal(t, tt.want, n.Number)

			// The period started at the switch, so the next year resets.
			clock.Set(time.Date(2027, 1, 4, 9, 0, 0, 0, time.UTC))
			n, err = e.Assign(ctx, "invoice", "next-year", alice)
			require.NoError(t, err)
			assert.Contains(t, n.Number, "000001")
		})
	}
}

func TestEngine_Assign_Concurrent(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	rule := invoiceRule()
	rule.Reset = domain.ResetNever
	rule.IncludeYear = false
	rule.Prefix = ""
	rule.SequenceWidth = 1
	_, err := e.RegisterRule(ctx, rule)
	require.NoError(t, err)

	const n = 100
	numbers := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			a, err := e.Assign(ctx, "invoice", fmt.Sprintf("inv-%d", i), alice)
			if err != nil {
				return err
			}
			numbers[i] = a.Number
			return nil
		})
	}
	require.NoError(t, g.Wait())

	got := make([]int, 0, n)
	for _, s := range numbers {
		var v int
		_, err := fmt.Sscanf(s, "%d", &v)
		require.NoError(t, err)
		got = append(got, v)
	}
	sort.Ints(got)
	want := make([]int, n)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, got)
}

func TestEngine_RegisterRule(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))

	_, err := e.RegisterRule(ctx, invoiceRule())
	require.NoError(t, err)
	_, err = e.Assign(ctx, "invoice", "inv-1", alice)
	require.NoError(t, err)

	// Changing the format keeps the counter running.
	updated := invoiceRule()
	updated.Prefix = "BILL"
	updated.Delimiter = "/"
	_, err = e.RegisterRule(ctx, updated)
	require.NoError(t, err)

	n, err := e.Assign(ctx, "invoice", "inv-2", alice)
	require.NoError(t, err)
	assert.Equal(t, "BILL/2026/000002", n.Number)

	bad := invoiceRule()
	bad.Reset = "weekly"
	_, err = e.RegisterRule(ctx, bad)
	var invalid *domain.ValidationError
	require.ErrorAs(t, err, &invalid)

	rules, err := e.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "BILL", rules[0].Prefix)

	_, err = e.GetRule(ctx, "ghost")
	var noRule *domain.NoRuleDefinedError
	require.ErrorAs(t, err, &noRule)
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	require.Len(t, rules, 9)
	for _, r := range rules {
		require.NoError(t, domain.Validate(r), r.EntityType)
	}

	at := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	byType := map[string]domain.NumberingRule{}
	for _, r := range rules {
		byType[r.EntityType] = r
	}
	assert.Equal(t, "INV26000123", Format(byType["invoice"], 123, at))
	assert.Equal(t, "CLI260001", Format(byType["client"], 1, at))
}
