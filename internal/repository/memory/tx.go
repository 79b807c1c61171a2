package memory

import (
	"context"
	"fmt"

	"bizcore.io/governance/internal/domain"
	apperrors "bizcore.io/governance/internal/pkg/errors"
	"bizcore.io/governance/internal/repository"
)

var _ repository.Queries = (*tx)(nil)

// op applies one staged write to the store and returns how to revert it.
// It runs with s.mu held for writing.
type op func(s *Store) (undo func(), err error)

type tx struct {
	s        *Store
	ops      []op
	held     map[string]chan struct{}
	counters map[string]domain.SequenceCounter
}

func (t *tx) stage(o op) { t.ops = append(t.ops, o) }

func (t *tx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	undos := make([]func(), 0, len(t.ops))
	for _, o := range t.ops {
		undo, err := o(t.s)
		if err != nil {
			for i := len(undos) - 1; i >= 0; i-- {
				undos[i]()
			}
			return err
		}
		undos = append(undos, undo)
	}
	return nil
}

func (t *tx) release() {
	for et, ch := range t.held {
		<-ch
		delete(t.held, et)
	}
}

func (t *tx) acquire(ctx context.Context, entityType string) error {
	if _, ok := t.held[entityType]; ok {
		return nil
	}
	ch := t.s.counterLock(entityType)
	if t.s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.s.lockTimeout)
		defer cancel()
	}
	select {
	case ch <- struct{}{}:
		t.held[entityType] = ch
		return nil
	case <-ctx.Done():
		return fmt.Errorf("lock sequence counter %s: %w", entityType, ctx.Err())
	}
}

// Reads see committed data. Counter reads also see this transaction's own updates.

func (t *tx) GetStateDefinition(ctx context.Context, entityType, name string) (domain.StateDefinition, error) {
	return t.s.GetStateDefinition(ctx, entityType, name)
}

func (t *tx) ListStateDefinitions(ctx context.Context, entityType string, includeInactive bool) ([]domain.StateDefinition, error) {
	return t.s.ListStateDefinitions(ctx, entityType, includeInactive)
}

func (t *tx) GetTransitionRule(ctx context.Context, entityType, fromState, toState string) (domain.TransitionRule, error) {
	return t.s.GetTransitionRule(ctx, entityType, fromState, toState)
}

func (t *tx) ListTransitionRulesFrom(ctx context.Context, entityType, fromState string) ([]domain.TransitionRule, error) {
	return t.s.ListTransitionRulesFrom(ctx, entityType, fromState)
}

func (t *tx) ListTransitionAudit(ctx context.Context, f domain.AuditFilter) ([]domain.TransitionAuditEntry, error) {
	return t.s.ListTransitionAudit(ctx, f)
}

func (t *tx) GetNumberingRule(ctx context.Context, entityType string) (domain.NumberingRule, error) {
	return t.s.GetNumberingRule(ctx, entityType)
}

func (t *tx) ListNumberingRules(ctx context.Context) ([]domain.NumberingRule, error) {
	return t.s.ListNumberingRules(ctx)
}

func (t *tx) GetAssignedNumber(ctx context.Context, entityType, entityID string) (domain.AssignedNumber, error) {
	return t.s.GetAssignedNumber(ctx, entityType, entityID)
}

func (t *tx) LockSequenceCounter(ctx context.Context, entityType string) (domain.SequenceCounter, error) {
	if c, ok := t.counters[entityType]; ok {
		return c, nil
	}
	if err := t.acquire(ctx, entityType); err != nil {
		return domain.SequenceCounter{}, err
	}
	t.s.mu.RLock()
	c, ok := t.s.counters[entityType]
	t.s.mu.RUnlock()
	if !ok {
		return domain.SequenceCounter{}, fmt.Errorf("sequence counter %s: %w", entityType, apperrors.ErrNotFound)
	}
	t.counters[entityType] = c
	return c, nil
}

// Writes.

func (t *tx) UpsertStateDefinition(_ context.Context, def domain.StateDefinition) (domain.StateDefinition, error) {
	def.Active = true
	t.s.mu.RLock()
	if prev, ok := t.s.states[stateKey{def.EntityType, def.Name}]; ok {
		def.CreatedAt = prev.CreatedAt
	}
	t.s.mu.RUnlock()

	t.stage(func(s *Store) (func(), error) {
		var undos []func()
		if def.IsDefault {
			for k, other := range s.states {
				if k.entityType != def.EntityType || k.name == def.Name || !other.IsDefault {
					continue
				}
				prev, key := other, k
				other.IsDefault = false
				other.UpdatedAt = def.UpdatedAt
				s.states[k] = other
				undos = append(undos, func() { s.states[key] = prev })
			}
		}
		key := stateKey{def.EntityType, def.Name}
		prev, existed := s.states[key]
		if existed {
			def.CreatedAt = prev.CreatedAt
		}
		s.states[key] = def
		return func() {
			if existed {
				s.states[key] = prev
			} else {
				delete(s.states, key)
			}
			for _, u := range undos {
				u()
			}
		}, nil
	})
	return def, nil
}

func (t *tx) SetStateDefinitionActive(_ context.Context, entityType, name string, active bool) error {
	key := stateKey{entityType, name}
	t.s.mu.RLock()
	_, ok := t.s.states[key]
	t.s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("state definition %s/%s: %w", entityType, name, apperrors.ErrNotFound)
	}
	t.stage(func(s *Store) (func(), error) {
		prev, ok := s.states[key]
		if !ok {
			return nil, fmt.Errorf("state definition %s/%s: %w", entityType, name, apperrors.ErrNotFound)
		}
		next := prev
		next.Active = active
		s.states[key] = next
		return func() { s.states[key] = prev }, nil
	})
	return nil
}

func (t *tx) UpsertTransitionRule(_ context.Context, rule domain.TransitionRule) (domain.TransitionRule, error) {
	rule.Active = true
	key := transitionKey{rule.EntityType, rule.FromState, rule.ToState}
	t.s.mu.RLock()
	if prev, ok := t.s.transitions[key]; ok {
		rule.CreatedAt = prev.CreatedAt
	}
	t.s.mu.RUnlock()

	t.stage(func(s *Store) (func(), error) {
		prev, existed := s.transitions[key]
		next := rule
		if existed {
			next.CreatedAt = prev.CreatedAt
		}
		s.transitions[key] = next
		return func() {
			if existed {
				s.transitions[key] = prev
			} else {
				delete(s.transitions, key)
			}
		}, nil
	})
	return rule, nil
}

func (t *tx) SetTransitionRuleActive(_ context.Context, entityType, fromState, toState string, active bool) error {
	key := transitionKey{entityType, fromState, toState}
	t.s.mu.RLock()
	_, ok := t.s.transitions[key]
	t.s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transition rule %s/%s->%s: %w", entityType, fromState, toState, apperrors.ErrNotFound)
	}
	t.stage(func(s *Store) (func(), error) {
		prev := s.transitions[key]
		next := prev
		next.Active = active
		s.transitions[key] = next
		return func() { s.transitions[key] = prev }, nil
	})
	return nil
}

func (t *tx) AppendTransitionAudit(_ context.Context, entry domain.TransitionAuditEntry) error {
	t.stage(func(s *Store) (func(), error) {
		if _, dup := s.auditIDs[entry.ID]; dup {
			return nil, &domain.ImmutableRecordError{Record: "transition audit"}
		}
		s.auditIDs[entry.ID] = struct{}{}
		s.audit = append(s.audit, entry)
		return func() {
			delete(s.auditIDs, entry.ID)
			s.audit = s.audit[:len(s.audit)-1]
		}, nil
	})
	return nil
}

func (t *tx) UpsertNumberingRule(_ context.Context, rule domain.NumberingRule) (domain.NumberingRule, error) {
	t.s.mu.RLock()
	if prev, ok := t.s.rules[rule.EntityType]; ok {
		rule.CreatedAt = prev.CreatedAt
	}
	t.s.mu.RUnlock()

	t.stage(func(s *Store) (func(), error) {
		prev, existed := s.rules[rule.EntityType]
		next := rule
		if existed {
			next.CreatedAt = prev.CreatedAt
		}
		s.rules[rule.EntityType] = next
		_, hasCounter := s.counters[rule.EntityType]
		if !hasCounter {
			s.counters[rule.EntityType] = domain.SequenceCounter{EntityType: rule.EntityType}
		}
		return func() {
			if existed {
				s.rules[rule.EntityType] = prev
			} else {
				delete(s.rules, rule.EntityType)
			}
			if !hasCounter {
				delete(s.counters, rule.EntityType)
			}
		}, nil
	})
	return rule, nil
}

func (t *tx) SaveSequenceCounter(_ context.Context, counter domain.SequenceCounter) error {
	if _, ok := t.held[counter.EntityType]; !ok {
		return fmt.Errorf("save sequence counter %s: counter is not locked by this transaction", counter.EntityType)
	}
	t.counters[counter.EntityType] = counter
	t.stage(func(s *Store) (func(), error) {
		prev := s.counters[counter.EntityType]
		s.counters[counter.EntityType] = counter
		return func() { s.counters[counter.EntityType] = prev }, nil
	})
	return nil
}

func (t *tx) InsertAssignedNumber(_ context.Context, n domain.AssignedNumber) error {
	t.stage(func(s *Store) (func(), error) {
		ek := entityKey{n.EntityType, n.EntityID}
		if existing, ok := s.assigned[ek]; ok {
			return nil, &domain.AlreadyAssignedError{EntityType: n.EntityType, EntityID: n.EntityID, Number: existing.Number}
		}
		nk := numberKey{n.EntityType, n.Number}
		if _, taken := s.numbers[nk]; taken {
			return nil, &domain.DuplicateNumberError{EntityType: n.EntityType, Number: n.Number}
		}
		s.assigned[ek] = n
		s.numbers[nk] = n.EntityID
		return func() {
			delete(s.assigned, ek)
			delete(s.numbers, nk)
		}, nil
	})
	return nil
}
