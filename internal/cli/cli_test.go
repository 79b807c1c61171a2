package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizcore.io/governance/internal/api/middleware"
	"bizcore.io/governance/internal/app/modules"
	"bizcore.io/governance/internal/config"
	"bizcore.io/governance/internal/domain"
	"bizcore.io/governance/internal/governance/catalog"
	"bizcore.io/governance/internal/pkg/telemetry"
	"bizcore.io/governance/internal/repository/memory"
)

const testSigningKey = "cli-test-signing-key-0123456789abcdef"

// harness runs commands against one in-memory store shared by every
// invocation, the way a real database outlives each govctl process.
type harness struct {
	t     *testing.T
	cfg   *config.Config
	store *memory.Store
	opens int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		t: t,
		cfg: &config.Config{
			Store:     config.StoreConfig{Backend: config.StoreBackendMemory},
			Numbering: config.NumberingConfig{Timezone: "UTC", LockTimeout: time.Second},
			Security:  config.SecurityConfig{JWTSigningKey: testSigningKey, JWTIssuer: "govctl-test"},
			Worker:    config.WorkerConfig{BatchPoolSize: 2, MaxBatchSize: 10},
		},
		store: memory.New(memory.WithLockTimeout(time.Second)),
	}
}

func (h *harness) open(_ context.Context, cfg *config.Config) (*Env, error) {
	h.opens++
	infra := &modules.Infrastructure{
		Config:   cfg,
		Store:    h.store,
		Metrics:  telemetry.NoopMetrics(),
		Location: time.UTC,
	}
	num, err := modules.NewNumberingModule(infra)
	if err != nil {
		return nil, err
	}
	return &Env{Infra: infra, Lifecycle: modules.NewLifecycleModule(infra), Numbering: num}, nil
}

// env opens an environment for arranging state outside the CLI.
func (h *harness) env() *Env {
	h.t.Helper()
	env, err := h.open(context.Background(), h.cfg)
	require.NoError(h.t, err)
	h.t.Cleanup(env.Close)
	return env
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	opts := &RootOptions{
		LoadConfig: func() (*config.Config, error) { return h.cfg, nil },
		Open:       h.open,
	}
	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoot_InvalidFormat(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("number", "rules", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Zero(t, h.opens, "nothing is opened for a rejected flag")
}

func TestSeed_Default(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("seed")
	require.NoError(t, err)
	assert.Equal(t, "registered 0 states, 0 transitions, 9 numbering rules\n", out)

	out, err = h.run("number", "rules")
	require.NoError(t, err)
	assert.Contains(t, out, "invoice")
	assert.Contains(t, out, "reset=yearly")
}

func TestSeed_CatalogFileJSON(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
lifecycles:
  - entity_type: order
    states:
      - {name: draft, default: true}
      - {name: submitted}
      - {name: closed, kind: final}
    transitions:
      - {from: draft, to: submitted}
      - {from: submitted, to: closed}
numbering:
  - {entity_type: order, prefix: ORD, width: 4, delimiter: "-"}
`), 0o600))

	out, err := h.run("seed", "--catalog", path, "--format", "json")
	require.NoError(t, err)

	var summary catalog.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, catalog.Summary{States: 3, Transitions: 2, NumberingRules: 1}, summary)
}

func TestSeed_MissingCatalog(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("seed", "--catalog", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNumber_Show(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("seed")
	require.NoError(t, err)

	env := h.env()
	assigned, err := env.Numbering.Engine.Assign(context.Background(), "invoice", "inv-1", domain.Principal{ID: "u-1"})
	require.NoError(t, err)

	out, err := h.run("number", "show", "invoice", "inv-1")
	require.NoError(t, err)
	assert.Contains(t, out, assigned.Number)
	assert.Contains(t, out, "by u-1")

	out, err = h.run("number", "show", "invoice", "inv-1", "--format", "json")
	require.NoError(t, err)
	var got domain.AssignedNumber
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, assigned.Number, got.Number)

	_, err = h.run("number", "show", "invoice", "inv-2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestAudit_HistoryAndQuery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	env := h.env()

	for _, def := range []domain.StateDefinition{
		{EntityType: "order", Name: "draft", Kind: domain.StateKindNormal, IsDefault: true},
		{EntityType: "order", Name: "submitted", Kind: domain.StateKindNormal},
	} {
		_, err := env.Lifecycle.Registry.RegisterState(ctx, def)
		require.NoError(t, err)
	}
	_, err := env.Lifecycle.Registry.RegisterTransition(ctx, domain.TransitionRule{
		EntityType: "order", FromState: "draft", ToState: "submitted",
	})
	require.NoError(t, err)
	_, err = env.Lifecycle.Executor.PerformTransition(ctx, domain.TransitionRequest{
		EntityType: "order",
		EntityID:   "o-1",
		FromState:  "draft",
		ToState:    "submitted",
		Reason:     "ready",
		Principal:  domain.Principal{ID: "u-7"},
	})
	require.NoError(t, err)

	out, err := h.run("audit", "history", "order", "o-1")
	require.NoError(t, err)
	assert.Contains(t, out, "order/o-1  draft -> submitted  by u-7")
	assert.Contains(t, out, `reason: "ready"`)

	out, err = h.run("audit", "query", "--principal", "u-7", "--since", "1h", "--format", "json")
	require.NoError(t, err)
	var entries []domain.TransitionAuditEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "submitted", entries[0].ToState)

	out, err = h.run("audit", "history", "order", "o-unknown")
	require.NoError(t, err)
	assert.Equal(t, "no transitions recorded\n", out)
}

func TestToken(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("token", "--subject", "ops-bot", "--permission", "governance.admin", "--ttl", "5m", "--format", "json")
	require.NoError(t, err)

	var res struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), res.ExpiresAt, time.Minute)

	claims, err := middleware.JWTConfig{SigningKey: []byte(testSigningKey), Issuer: "govctl-test"}.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops-bot", claims.Subject)
	assert.Equal(t, []string{"governance.admin"}, claims.Permissions)
}

func TestToken_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("token", "--permission", "x")
	require.Error(t, err, "subject is required")

	_, err = h.run("token", "--subject", "a", "--ttl", "0s")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMigrate_RejectsUnknownDirection(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("migrate", "sideways")
	require.Error(t, err)
	assert.Zero(t, h.opens)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	wrapped := WrapExitError(ExitCommandError, "bad input", errors.New("boom"))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "bad input: boom", wrapped.Error())
}
