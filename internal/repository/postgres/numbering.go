package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/attribute"

	"bizcore.io/governance/internal/domain"
	apperrors "bizcore.io/governance/internal/pkg/errors"
)

const numberingRuleColumns = `entity_type, enabled, prefix, include_year, year_format, include_month,
	sequence_width, delimiter, reset_policy, description, created_at, updated_at`

func scanNumberingRule(row pgx.Row) (domain.NumberingRule, error) {
	var r domain.NumberingRule
	var yearFormat, reset string
	err := row.Scan(&r.EntityType, &r.Enabled, &r.Prefix, &r.IncludeYear, &yearFormat, &r.IncludeMonth,
		&r.SequenceWidth, &r.Delimiter, &reset, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	r.YearFormat = domain.YearFormat(yearFormat)
	r.Reset = domain.ResetPolicy(reset)
	return r, err
}

func entityTypeAttrs(entityType string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("entity_type", entityType)}
}

func (q *queries) UpsertNumberingRule(ctx context.Context, r domain.NumberingRule) (domain.NumberingRule, error) {
	var out domain.NumberingRule
	err := q.trace(ctx, "upsert_numbering_rule", entityTypeAttrs(r.EntityType), func(ctx context.Context) error {
		var err error
		out, err = scanNumberingRule(q.db.QueryRow(ctx, `
			INSERT INTO numbering_rules (`+numberingRuleColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (entity_type) DO UPDATE SET
				enabled = EXCLUDED.enabled,
				prefix = EXCLUDED.prefix,
				include_year = EXCLUDED.include_year,
				year_format = EXCLUDED.year_format,
				include_month = EXCLUDED.include_month,
				sequence_width = EXCLUDED.sequence_width,
				delimiter = EXCLUDED.delimiter,
				reset_policy = EXCLUDED.reset_policy,
				description = EXCLUDED.description,
				updated_at = EXCLUDED.updated_at
			RETURNING `+numberingRuleColumns,
			r.EntityType, r.Enabled, r.Prefix, r.IncludeYear, string(r.YearFormat), r.IncludeMonth,
			r.SequenceWidth, r.Delimiter, string(r.Reset), r.Description, r.CreatedAt, r.UpdatedAt,
		))
		if err != nil {
			return fmt.Errorf("upsert numbering rule: %w", err)
		}
		if _, err := q.db.Exec(ctx, `
			INSERT INTO sequence_counters (entity_type, value) VALUES ($1, 0)
			ON CONFLICT (entity_type) DO NOTHING`,
			r.EntityType,
		); err != nil {
			return fmt.Errorf("create sequence counter: %w", err)
		}
		return nil
	})
	return out, err
}

func (q *queries) GetNumberingRule(ctx context.Context, entityType string) (domain.NumberingRule, error) {
	var out domain.NumberingRule
	err := q.trace(ctx, "get_numbering_rule", entityTypeAttrs(entityType), func(ctx context.Context) error {
		var err error
		out, err = scanNumberingRule(q.db.QueryRow(ctx,
			`SELECT `+numberingRuleColumns+` FROM numbering_rules WHERE entity_type = $1`, entityType))
		if notFound(err) {
			return fmt.Errorf("numbering rule %s: %w", entityType, apperrors.ErrNotFound)
		}
		return err
	})
	return out, err
}

func (q *queries) ListNumberingRules(ctx context.Context) ([]domain.NumberingRule, error) {
	var out []domain.NumberingRule
	err := q.trace(ctx, "list_numbering_rules", nil, func(ctx context.Context) error {
		rows, err := q.db.Query(ctx, `SELECT `+numberingRuleColumns+` FROM numbering_rules ORDER BY entity_type`)
		if err != nil {
			return fmt.Errorf("list numbering rules: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.NumberingRule, error) {
			return scanNumberingRule(row)
		})
		return err
	})
	return out, err
}

func (q *queries) LockSequenceCounter(ctx context.Context, entityType string) (domain.SequenceCounter, error) {
	if !q.inTx {
		return domain.SequenceCounter{}, errTxRequired
	}
	var out domain.SequenceCounter
	err := q.trace(ctx, "lock_sequence_counter", entityTypeAttrs(entityType), func(ctx context.Context) error {
		var lastReset pgtype.Date
		err := q.db.QueryRow(ctx, `
			SELECT entity_type, value, last_reset FROM sequence_counters
			WHERE entity_type = $1
			FOR UPDATE`,
			entityType,
		).Scan(&out.EntityType, &out.Value, &lastReset)
		if notFound(err) {
			return fmt.Errorf("sequence counter %s: %w", entityType, apperrors.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if lastReset.Valid {
			out.LastReset = lastReset.Time
		}
		return nil
	})
	return out, err
}

func (q *queries) SaveSequenceCounter(ctx context.Context, c domain.SequenceCounter) error {
	attrs := append(entityTypeAttrs(c.EntityType), attribute.Int64("value", c.Value))
	return q.trace(ctx, "save_sequence_counter", attrs, func(ctx context.Context) error {
		lastReset := pgtype.Date{Time: c.LastReset, Valid: !c.LastReset.IsZero()}
		tag, err := q.db.Exec(ctx,
			`UPDATE sequence_counters SET value = $2, last_reset = $3 WHERE entity_type = $1`,
			c.EntityType, c.Value, lastReset,
		)
		if err != nil {
			return fmt.Errorf("save sequence counter: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("sequence counter %s: %w", c.EntityType, apperrors.ErrNotFound)
		}
		return nil
	})
}

// InsertAssignedNumber relies on ON CONFLICT DO NOTHING so that a conflict
// does not abort the surrounding transaction, then reports which constraint
// was hit.
func (q *queries) InsertAssignedNumber(ctx context.Context, n domain.AssignedNumber) error {
	attrs := append(entityTypeAttrs(n.EntityType),
		attribute.String("entity_id", n.EntityID),
		attribute.String("number", n.Number),
	)
	return q.trace(ctx, "insert_assigned_number", attrs, func(ctx context.Context) error {
		tag, err := q.db.Exec(ctx, `
			INSERT INTO assigned_numbers (id, entity_type, entity_id, number, assigned_at, assigned_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT DO NOTHING`,
			n.ID, n.EntityType, n.EntityID, n.Number, n.AssignedAt, n.AssignedBy,
		)
		if err != nil {
			return fmt.Errorf("insert assigned number: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var existing string
		err = q.db.QueryRow(ctx,
			`SELECT number FROM assigned_numbers WHERE entity_type = $1 AND entity_id = $2`,
			n.EntityType, n.EntityID,
		).Scan(&existing)
		switch {
		case err == nil:
			return &domain.AlreadyAssignedError{EntityType: n.EntityType, EntityID: n.EntityID, Number: existing}
		case notFound(err):
			return &domain.DuplicateNumberError{EntityType: n.EntityType, Number: n.Number}
		default:
			return fmt.Errorf("resolve assigned number conflict: %w", err)
		}
	})
}

func (q *queries) GetAssignedNumber(ctx context.Context, entityType, entityID string) (domain.AssignedNumber, error) {
	attrs := append(entityTypeAttrs(entityType), attribute.String("entity_id", entityID))
	var out domain.AssignedNumber
	err := q.trace(ctx, "get_assigned_number", attrs, func(ctx context.Context) error {
		err := q.db.QueryRow(ctx, `
			SELECT id, entity_type, entity_id, number, assigned_at, assigned_by
			FROM assigned_numbers WHERE entity_type = $1 AND entity_id = $2`,
			entityType, entityID,
		).Scan(&out.ID, &out.EntityType, &out.EntityID, &out.Number, &out.AssignedAt, &out.AssignedBy)
		if notFound(err) {
			return fmt.Errorf("assigned number %s/%s: %w", entityType, entityID, apperrors.ErrNotFound)
		}
		return err
	})
	return out, err
}
