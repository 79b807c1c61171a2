// Package postgres implements repository.Store on PostgreSQL.
//
// Counter locking uses SELECT ... FOR UPDATE on sequence_counters, bounded by
// a transaction-local lock_timeout. Append-only tables are additionally
// protected by triggers installed with the schema migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"bizcore.io/governance/internal/domain"
	"bizcore.io/governance/internal/pkg/telemetry"
	"bizcore.io/governance/internal/repository"
)

// ErrLockTimeout is returned when a sequence counter lock could not be taken
// within the configured lock timeout.
var ErrLockTimeout = errors.New("postgres: sequence counter lock timeout")

var errTxRequired = errors.New("postgres: sequence counter lock requires a transaction")

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// queries runs every repository operation against db.
type queries struct {
	db     DBTX
	tracer trace.Tracer
	inTx   bool
}

var _ repository.Queries = (*queries)(nil)

func (q *queries) trace(ctx context.Context, name string, attrs []attribute.KeyValue, op func(ctx context.Context) error) error {
	all := make([]attribute.KeyValue, 0, len(defaultDBAttributes)+len(attrs))
	all = append(all, defaultDBAttributes...)
	all = append(all, attrs...)
	return mapError(telemetry.ExecuteAndTrace(ctx, q.tracer, "postgres."+name, all, op))
}

// Store is a PostgreSQL repository.Store.
type Store struct {
	*queries
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ repository.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTracer sets the tracer used for query spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) { s.tracer = t }
}

// WithLockTimeout bounds the wait for a sequence counter row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// NewStore returns a Store over pool.
func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		queries: &queries{db: pool, tracer: noop.NewTracerProvider().Tracer("postgres")},
		pool:    pool,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx runs fn in a read committed transaction.
func (s *Store) WithTx(ctx context.Context, fn repository.TxFunc) error {
	return s.trace(ctx, "with_tx", nil, func(ctx context.Context) error {
		err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			if s.lockTimeout > 0 {
				stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("set lock timeout: %w", err)
				}
			}
			return fn(ctx, &queries{db: tx, tracer: s.tracer, inTx: true})
		})
		return mapError(err)
	})
}

// UpsertStateDefinition clears the previous default in the same transaction.
func (s *Store) UpsertStateDefinition(ctx context.Context, def domain.StateDefinition) (out domain.StateDefinition, err error) {
	err = s.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		out, err = q.UpsertStateDefinition(ctx, def)
		return err
	})
	return out, err
}

// UpsertNumberingRule writes the rule and its counter in one transaction.
func (s *Store) UpsertNumberingRule(ctx context.Context, rule domain.NumberingRule) (out domain.NumberingRule, err error) {
	err = s.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		out, err = q.UpsertNumberingRule(ctx, rule)
		return err
	})
	return out, err
}

// mapError converts PostgreSQL errors into domain errors where the domain has
// a name for them.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.LockNotAvailable:
		return fmt.Errorf("%w: %s", ErrLockTimeout, pgErr.Message)
	case pgerrcode.IntegrityConstraintViolation:
		record := pgErr.TableName
		if record == "" {
			record = "append-only table"
		}
		return &domain.ImmutableRecordError{Record: record}
	}
	return err
}

func notFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
