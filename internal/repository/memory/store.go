// Package memory implements repository.Store in process memory.
//
// Writes made inside WithTx are staged and applied together at commit under
// the store mutex; constraint checks run again at commit so a conflicting
// concurrent transaction fails instead of overwriting. Sequence counters are
// guarded by one lock per entity type, held from LockSequenceCounter until
// the transaction ends.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"bizcore.io/governance/internal/domain"
	apperrors "bizcore.io/governance/internal/pkg/errors"
	"bizcore.io/governance/internal/repository"
)

var errTxRequired = errors.New("memory: sequence counter lock requires a transaction")

type stateKey struct{ entityType, name string }

type transitionKey struct{ entityType, from, to string }

type entityKey struct{ entityType, entityID string }

type numberKey struct{ entityType, number string }

// Store is an in-memory repository.Store.
type Store struct {
	mu          sync.RWMutex
	states      map[stateKey]domain.StateDefinition
	transitions map[transitionKey]domain.TransitionRule
	audit       []domain.TransitionAuditEntry
	auditIDs    map[string]struct{}
	rules       map[string]domain.NumberingRule
	counters    map[string]domain.SequenceCounter
	assigned    map[entityKey]domain.AssignedNumber
	numbers     map[numberKey]string

	locksMu     sync.Mutex
	locks       map[string]chan struct{}
	lockTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds the wait for a sequence counter lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

var _ repository.Store = (*Store)(nil)

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		states:      make(map[stateKey]domain.StateDefinition),
		transitions: make(map[transitionKey]domain.TransitionRule),
		auditIDs:    make(map[string]struct{}),
		rules:       make(map[string]domain.NumberingRule),
		counters:    make(map[string]domain.SequenceCounter),
		assigned:    make(map[entityKey]domain.AssignedNumber),
		numbers:     make(map[numberKey]string),
		locks:       make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx runs fn against a transaction and commits its staged writes when fn
// returns nil.
func (s *Store) WithTx(ctx context.Context, fn repository.TxFunc) error {
	t := &tx{s: s, held: make(map[string]chan struct{}), counters: make(map[string]domain.SequenceCounter)}
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return t.commit()
}

func (s *Store) counterLock(entityType string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[entityType]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[entityType] = ch
	}
	return ch
}

// Read operations.

func (s *Store) GetStateDefinition(_ context.Context, entityType, name string) (domain.StateDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.states[stateKey{entityType, name}]
	if !ok || !def.Active {
		return domain.StateDefinition{}, fmt.Errorf("state definition %s/%s: %w", entityType, name, apperrors.ErrNotFound)
	}
	return def, nil
}

func (s *Store) ListStateDefinitions(_ context.Context, entityType string, includeInactive bool) ([]domain.StateDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StateDefinition, 0)
	for k, def := range s.states {
		if k.entityType != entityType || (!def.Active && !includeInactive) {
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetTransitionRule(_ context.Context, entityType, fromState, toState string) (domain.TransitionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.transitions[transitionKey{entityType, fromState, toState}]
	if !ok || !rule.Active {
		return domain.TransitionRule{}, fmt.Errorf("transition rule %s/%s->%s: %w", entityType, fromState, toState, apperrors.ErrNotFound)
	}
	return rule, nil
}

func (s *Store) ListTransitionRulesFrom(_ context.Context, entityType, fromState string) ([]domain.TransitionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TransitionRule, 0)
	for k, rule := range s.transitions {
		if k.entityType == entityType && k.from == fromState && rule.Active {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToState < out[j].ToState })
	return out, nil
}

func (s *Store) ListTransitionAudit(_ context.Context, f domain.AuditFilter) ([]domain.TransitionAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TransitionAuditEntry, 0)
	for _, e := range s.audit {
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.PrincipalID != "" && e.PrincipalID != f.PrincipalID {
			continue
		}
		if !f.Since.IsZero() && e.OccurredAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && !e.OccurredAt.Before(f.Until) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetNumberingRule(_ context.Context, entityType string) (domain.NumberingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[entityType]
	if !ok {
		return domain.NumberingRule{}, fmt.Errorf("numbering rule %s: %w", entityType, apperrors.ErrNotFound)
	}
	return rule, nil
}

func (s *Store) ListNumberingRules(_ context.Context) ([]domain.NumberingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.NumberingRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityType < out[j].EntityType })
	return out, nil
}

func (s *Store) GetAssignedNumber(_ context.Context, entityType, entityID string) (domain.AssignedNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.assigned[entityKey{entityType, entityID}]
	if !ok {
		return domain.AssignedNumber{}, fmt.Errorf("assigned number %s/%s: %w", entityType, entityID, apperrors.ErrNotFound)
	}
	return n, nil
}

// LockSequenceCounter is only valid inside WithTx.
func (s *Store) LockSequenceCounter(context.Context, string) (domain.SequenceCounter, error) {
	return domain.SequenceCounter{}, errTxRequired
}

// Write operations outside WithTx run in their own transaction.

func (s *Store) UpsertStateDefinition(ctx context.Context, def domain.StateDefinition) (out domain.StateDefinition, err error) {
	err = s.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		out, err = q.UpsertStateDefinition(ctx, def)
		return err
	})
	return out, err
}

func (s *Store) SetStateDefinitionActive(ctx context.Context, entityType, name string, active bool) error {
	return s.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		return q.SetStateDefinitionActive(ctx, entityType, name, active)
	})
}

func (s *Store) UpsertTransitionRule(ctx context.Context, rule domain.TransitionRule) (out domain.TransitionRule, err error) {
	err = s.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		out, err = q.UpsertTransitionRule(ctx, rule)
		return err
	})
	return out, err
}

func (s *Store) SetTransitionRuleActive(ctx context.Context, entityType, fromState, toState string, active bool) error {
	return s.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		return q.SetTransitionRuleActive(ctx, entityType, fromState, toState, active)
	})
}

func (s *Store) AppendTransitionAudit(ctx context.Context, entry domain.TransitionAuditEntry) error {
	return s.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		return q.AppendTransitionAudit(ctx, entry)
	})
}

func (s *Store) UpsertNumberingRule(ctx context.Context, rule domain.NumberingRule) (out domain.NumberingRule, err error) {
	err = s.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		out, err = q.UpsertNumberingRule(ctx, rule)
		return err
	})
	return out, err
}

func (s *Store) SaveSequenceCounter(ctx context.Context, counter domain.SequenceCounter) error {
	return s.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		return q.SaveSequenceCounter(ctx, counter)
	})
}

func (s *Store) InsertAssignedNumber(ctx context.Context, n domain.AssignedNumber) error {
	return s.WithTx(ctx, func(ctx context.Context, q repository.Queries) error {
		return q.InsertAssignedNumber(ctx, n)
	})
}
