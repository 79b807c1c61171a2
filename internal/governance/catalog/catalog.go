// Package catalog loads lifecycle and numbering configuration from YAML and
// registers it with the engines.
//
// A catalog looks like:
//
//	lifecycles:
//	  - entity_type: order
//	    states:
//	      - {name: draft, default: true}
//	      - {name: submitted}
//	      - {name: closed, kind: final}
//	    transitions:
//	      - {from: draft, to: submitted, permission: order.submit}
//	      - {from: submitted, to: draft, requires_reason: true}
//	numbering:
//	  - {entity_type: invoice, prefix: INV, year_format: YY, width: 6, delimiter: "", reset: yearly}
package catalog

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"bizcore.io/governance/internal/domain"
	"bizcore.io/governance/internal/governance/lifecycle"
	"bizcore.io/governance/internal/governance/numbering"
)

// Catalog is the YAML document.
type Catalog struct {
	Lifecycles []Lifecycle      `yaml:"lifecycles"`
	Numbering  []NumberingEntry `yaml:"numbering"`
}

// Lifecycle lists the states and transitions of one entity type.
type Lifecycle struct {
	EntityType  string       `yaml:"entity_type"`
	States      []State      `yaml:"states"`
	Transitions []Transition `yaml:"transitions"`
}

type State struct {
	Name        string `yaml:"name"`
	Label       string `yaml:"label"`
	Kind        string `yaml:"kind"`
	Default     bool   `yaml:"default"`
	Description string `yaml:"description"`
}

type Transition struct {
	From           string `yaml:"from"`
	To             string `yaml:"to"`
	Permission     string `yaml:"permission"`
	RequiresReason bool   `yaml:"requires_reason"`
	Description    string `yaml:"description"`
}

// NumberingEntry is a numbering rule. Unset fields take the defaults of
// domain.NewNumberingRule.
type NumberingEntry struct {
	EntityType   string  `yaml:"entity_type"`
	Prefix       string  `yaml:"prefix"`
	Enabled      *bool   `yaml:"enabled"`
	IncludeYear  *bool   `yaml:"include_year"`
	YearFormat   string  `yaml:"year_format"`
	IncludeMonth bool    `yaml:"include_month"`
	Width        int     `yaml:"width"`
	Delimiter    *string `yaml:"delimiter"`
	Reset        string  `yaml:"reset"`
	Description  string  `yaml:"description"`
}

// Rule converts the entry into a numbering rule.
func (n NumberingEntry) Rule() domain.NumberingRule {
	r := domain.NewNumberingRule(n.EntityType, n.Prefix)
	if n.Enabled != nil {
		r.Enabled = *n.Enabled
	}
	if n.IncludeYear != nil {
		r.IncludeYear = *n.IncludeYear
	}
	if n.YearFormat != "" {
		r.YearFormat = domain.YearFormat(n.YearFormat)
	}
	r.IncludeMonth = n.IncludeMonth
	if n.Width > 0 {
		r.SequenceWidth = n.Width
	}
	if n.Delimiter != nil {
		r.Delimiter = *n.Delimiter
	}
	if n.Reset != "" {
		r.Reset = domain.ResetPolicy(n.Reset)
	}
	r.Description = n.Description
	return r
}

// Load decodes a catalog. Unknown keys are rejected.
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return &c, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &c, nil
}

// LoadFile reads a catalog from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the stock catalog: the built-in numbering rules and no
// lifecycles.
func Default() *Catalog {
	rules := numbering.DefaultRules()
	c := &Catalog{Numbering: make([]NumberingEntry, 0, len(rules))}
	for _, r := range rules {
		enabled, includeYear, delimiter := r.Enabled, r.IncludeYear, r.Delimiter
		c.Numbering = append(c.Numbering, NumberingEntry{
			EntityType:   r.EntityType,
			Prefix:       r.Prefix,
			Enabled:      &enabled,
			IncludeYear:  &includeYear,
			YearFormat:   string(r.YearFormat),
			IncludeMonth: r.IncludeMonth,
			Width:        r.SequenceWidth,
			Delimiter:    &delimiter,
			Reset:        string(r.Reset),
			Description:  r.Description,
		})
	}
	return c
}

// Summary counts what Apply registered.
type Summary struct {
	States         int `json:"states"`
	Transitions    int `json:"transitions"`
	NumberingRules int `json:"numbering_rules"`
}

// Apply registers the catalog. States of a lifecycle are registered before
// its transitions. Registration is idempotent, so applying the same catalog
// twice leaves the stores unchanged apart from update timestamps. Apply stops
// at the first failure.
func (c *Catalog) Apply(ctx context.Context, reg *lifecycle.Registry, eng *numbering.Engine) (Summary, error) {
	var sum Summary
	for _, lc := range c.Lifecycles {
		for _, s := range lc.States {
			_, err := reg.RegisterState(ctx, domain.StateDefinition{
				EntityType:  lc.EntityType,
				Name:        s.Name,
				Label:       s.Label,
				Kind:        domain.StateKind(s.Kind),
				IsDefault:   s.Default,
				Description: s.Description,
			})
			if err != nil {
				return sum, fmt.Errorf("catalog lifecycle %s: %w", lc.EntityType, err)
			}
			sum.States++
		}
		for _, t := range lc.Transitions {
			_, err := reg.RegisterTransition(ctx, domain.TransitionRule{
				EntityType:         lc.EntityType,
				FromState:          t.From,
				ToState:            t.To,
				RequiredPermission: t.Permission,
				RequiresReason:     t.RequiresReason,
				Description:        t.Description,
			})
			if err != nil {
				return sum, fmt.Errorf("catalog lifecycle %s: %w", lc.EntityType, err)
			}
			sum.Transitions++
		}
	}
	for _, n := range c.Numbering {
		if _, err := eng.RegisterRule(ctx, n.Rule()); err != nil {
			return sum, fmt.Errorf("catalog numbering %s: %w", n.EntityType, err)
		}
		sum.NumberingRules++
	}
	return sum, nil
}
