package postgres

import (
	"context"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"

	"bizcore.io/governance/internal/domain"
	apperrors "bizcore.io/governance/internal/pkg/errors"
)

const stateColumns = `entity_type, name, label, kind, is_default, description, active, created_at, updated_at`

func scanState(row pgx.Row) (domain.StateDefinition, error) {
	var d domain.StateDefinition
	var kind string
	err := row.Scan(&d.EntityType, &d.Name, &d.Label, &kind, &d.IsDefault, &d.Description, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	d.Kind = domain.StateKind(kind)
	return d, err
}

func (q *queries) UpsertStateDefinition(ctx context.Context, def domain.StateDefinition) (domain.StateDefinition, error) {
	attrs := []attribute.KeyValue{
		attribute.String("entity_type", def.EntityType),
		attribute.String("state", def.Name),
	}
	var out domain.StateDefinition
	err := q.trace(ctx, "upsert_state_definition", attrs, func(ctx context.Context) error {
		if def.IsDefault {
			if _, err := q.db.Exec(ctx, `
				UPDATE state_definitions SET is_default = FALSE, updated_at = $3
				WHERE entity_type = $1 AND name <> $2 AND is_default`,
				def.EntityType, def.Name, def.UpdatedAt,
			); err != nil {
				return fmt.Errorf("clear previous default: %w", err)
			}
		}
		row := q.db.QueryRow(ctx, `
			INSERT INTO state_definitions (`+stateColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8)
			ON CONFLICT (entity_type, name) DO UPDATE SET
				label = EXCLUDED.label,
				kind = EXCLUDED.kind,
				is_default = EXCLUDED.is_default,
				description = EXCLUDED.description,
				active = TRUE,
				updated_at = EXCLUDED.updated_at
			RETURNING `+stateColumns,
			def.EntityType, def.Name, def.Label, string(def.Kind), def.IsDefault, def.Description, def.CreatedAt, def.UpdatedAt,
		)
		var err error
		out, err = scanState(row)
		if err != nil {
			return fmt.Errorf("upsert state definition: %w", err)
		}
		return nil
	})
	return out, err
}

func (q *queries) SetStateDefinitionActive(ctx context.Context, entityType, name string, active bool) error {
	attrs := []attribute.KeyValue{
		attribute.String("entity_type", entityType),
		attribute.String("state", name),
		attribute.Bool("active", active),
	}
	return q.trace(ctx, "set_state_definition_active", attrs, func(ctx context.Context) error {
		tag, err := q.db.Exec(ctx, `
			UPDATE state_definitions SET active = $3, updated_at = NOW()
			WHERE entity_type = $1 AND name = $2`,
			entityType, name, active,
		)
		if err != nil {
			return fmt.Errorf("set state definition active: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("state definition %s/%s: %w", entityType, name, apperrors.ErrNotFound)
		}
		return nil
	})
}

func (q *queries) GetStateDefinition(ctx context.Context, entityType, name string) (domain.StateDefinition, error) {
	attrs := []attribute.KeyValue{
		attribute.String("entity_type", entityType),
		attribute.String("state", name),
	}
	var out domain.StateDefinition
	err := q.trace(ctx, "get_state_definition", attrs, func(ctx context.Context) error {
		var err error
		out, err = scanState(q.db.QueryRow(ctx,
			`SELECT `+stateColumns+` FROM state_definitions WHERE entity_type = $1 AND name = $2 AND active`,
			entityType, name,
		))
		if notFound(err) {
			return fmt.Errorf("state definition %s/%s: %w", entityType, name, apperrors.ErrNotFound)
		}
		return err
	})
	return out, err
}

func (q *queries) ListStateDefinitions(ctx context.Context, entityType string, includeInactive bool) ([]domain.StateDefinition, error) {
	attrs := []attribute.KeyValue{attribute.String("entity_type", entityType)}
	var out []domain.StateDefinition
	err := q.trace(ctx, "list_state_definitions", attrs, func(ctx context.Context) error {
		rows, err := q.db.Query(ctx, `
			SELECT `+stateColumns+` FROM state_definitions
			WHERE entity_type = $1 AND (active OR $2)
			ORDER BY name`,
			entityType, includeInactive,
		)
		if err != nil {
			return fmt.Errorf("list state definitions: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StateDefinition, error) {
			return scanState(row)
		})
		return err
	})
	return out, err
}

const ruleColumns = `entity_type, from_state, to_state, required_permission, requires_reason, description, active, created_at, updated_at`

func scanRule(row pgx.Row) (domain.TransitionRule, error) {
	var r domain.TransitionRule
	err := row.Scan(&r.EntityType, &r.FromState, &r.ToState, &r.RequiredPermission, &r.RequiresReason, &r.Description, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func ruleAttrs(entityType, from, to string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("entity_type", entityType),
		attribute.String("from_state", from),
		attribute.String("to_state", to),
	}
}

func (q *queries) UpsertTransitionRule(ctx context.Context, rule domain.TransitionRule) (domain.TransitionRule, error) {
	var out domain.TransitionRule
	err := q.trace(ctx, "upsert_transition_rule", ruleAttrs(rule.EntityType, rule.FromState, rule.ToState), func(ctx context.Context) error {
		var err error
		out, err = scanRule(q.db.QueryRow(ctx, `
			INSERT INTO transition_rules (`+ruleColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8)
			ON CONFLICT (entity_type, from_state, to_state) DO UPDATE SET
				required_permission = EXCLUDED.required_permission,
				requires_reason = EXCLUDED.requires_reason,
				description = EXCLUDED.description,
				active = TRUE,
				updated_at = EXCLUDED.updated_at
			RETURNING `+ruleColumns,
			rule.EntityType, rule.FromState, rule.ToState, rule.RequiredPermission, rule.RequiresReason, rule.Description, rule.CreatedAt, rule.UpdatedAt,
		))
		if err != nil {
			return fmt.Errorf("upsert transition rule: %w", err)
		}
		return nil
	})
	return out, err
}

func (q *queries) SetTransitionRuleActive(ctx context.Context, entityType, fromState, toState string, active bool) error {
	return q.trace(ctx, "set_transition_rule_active", ruleAttrs(entityType, fromState, toState), func(ctx context.Context) error {
		tag, err := q.db.Exec(ctx, `
			UPDATE transition_rules SET active = $4, updated_at = NOW()
			WHERE entity_type = $1 AND from_state = $2 AND to_state = $3`,
			entityType, fromState, toState, active,
		)
		if err != nil {
			return fmt.Errorf("set transition rule active: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("transition rule %s/%s->%s: %w", entityType, fromState, toState, apperrors.ErrNotFound)
		}
		return nil
	})
}

func (q *queries) GetTransitionRule(ctx context.Context, entityType, fromState, toState string) (domain.TransitionRule, error) {
	var out domain.TransitionRule
	err := q.trace(ctx, "get_transition_rule", ruleAttrs(entityType, fromState, toState), func(ctx context.Context) error {
		var err error
		out, err = scanRule(q.db.QueryRow(ctx, `
			SELECT `+ruleColumns+` FROM transition_rules
			WHERE entity_type = $1 AND from_state = $2 AND to_state = $3 AND active`,
			entityType, fromState, toState,
		))
		if notFound(err) {
			return fmt.Errorf("transition rule %s/%s->%s: %w", entityType, fromState, toState, apperrors.ErrNotFound)
		}
		return err
	})
	return out, err
}

func (q *queries) ListTransitionRulesFrom(ctx context.Context, entityType, fromState string) ([]domain.TransitionRule, error) {
	var out []domain.TransitionRule
	err := q.trace(ctx, "list_transition_rules_from", ruleAttrs(entityType, fromState, ""), func(ctx context.Context) error {
		rows, err := q.db.Query(ctx, `
			SELECT `+ruleColumns+` FROM transition_rules
			WHERE entity_type = $1 AND from_state = $2 AND active
			ORDER BY to_state`,
			entityType, fromState,
		)
		if err != nil {
			return fmt.Errorf("list transition rules: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TransitionRule, error) {
			return scanRule(row)
		})
		return err
	})
	return out, err
}

func (q *queries) AppendTransitionAudit(ctx context.Context, e domain.TransitionAuditEntry) error {
	attrs := []attribute.KeyValue{
		attribute.String("entity_type", e.EntityType),
		attribute.String("entity_id", e.EntityID),
	}
	return q.trace(ctx, "append_transition_audit", attrs, func(ctx context.Context) error {
		_, err := q.db.Exec(ctx, `
			INSERT INTO transition_audit
				(id, occurred_at, principal_id, entity_type, entity_id, from_state, to_state, reason, is_override)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ID, e.OccurredAt, e.PrincipalID, e.EntityType, e.EntityID, e.FromState, e.ToState, e.Reason, e.IsOverride,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return &domain.ImmutableRecordError{Record: "transition audit"}
		}
		if err != nil {
			return fmt.Errorf("append transition audit: %w", err)
		}
		return nil
	})
}

// auditQuery builds the filtered audit trail select.
func auditQuery(f domain.AuditFilter) (string, []any) {
	t := entsql.Table("transition_audit")
	sel := entsql.Dialect(dialect.Postgres).
		Select(
			t.C("id"), t.C("occurred_at"), t.C("principal_id"), t.C("entity_type"), t.C("entity_id"),
			t.C("from_state"), t.C("to_state"), t.C("reason"), t.C("is_override"),
		).
		From(t).
		OrderBy(t.C("seq"))
	if f.EntityType != "" {
		sel.Where(entsql.EQ(t.C("entity_type"), f.EntityType))
	}
	if f.EntityID != "" {
		sel.Where(entsql.EQ(t.C("entity_id"), f.EntityID))
	}
	if f.PrincipalID != "" {
		sel.Where(entsql.EQ(t.C("principal_id"), f.PrincipalID))
	}
	if !f.Since.IsZero() {
		sel.Where(entsql.GTE(t.C("occurred_at"), f.Since))
	}
	if !f.Until.IsZero() {
		sel.Where(entsql.LT(t.C("occurred_at"), f.Until))
	}
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	return sel.Query()
}

func (q *queries) ListTransitionAudit(ctx context.Context, f domain.AuditFilter) ([]domain.TransitionAuditEntry, error) {
	attrs := []attribute.KeyValue{
		attribute.String("entity_type", f.EntityType),
		attribute.String("entity_id", f.EntityID),
		attribute.Int("limit", f.Limit),
	}
	var out []domain.TransitionAuditEntry
	err := q.trace(ctx, "list_transition_audit", attrs, func(ctx context.Context) error {
		query, args := auditQuery(f)
		rows, err := q.db.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list transition audit: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TransitionAuditEntry, error) {
			var e domain.TransitionAuditEntry
			err := row.Scan(&e.ID, &e.OccurredAt, &e.PrincipalID, &e.EntityType, &e.EntityID, &e.FromState, &e.ToState, &e.Reason, &e.IsOverride)
			return e, err
		})
		return err
	})
	return out, err
}
