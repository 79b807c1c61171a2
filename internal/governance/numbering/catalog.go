package numbering

import "bizcore.io/governance/internal/domain"

// DefaultRules returns the stock numbering rules for the core business
// modules: two-digit year, yearly reset, no delimiter.
func DefaultRules() []domain.NumberingRule {
	stock := []struct {
		entityType string
		prefix     string
		width      int
	}{
		{"client", "CLI", 4},
		{"product", "PRO", 4},
		{"project", "PRJ", 5},
		{"task", "TSK", 5},
		{"invoice", "INV", 6},
		{"serviceitem", "SRV", 4},
		{"workorder", "WOR", 6},
		{"lead", "LED", 5},
		{"quote", "QOT", 5},
	}
	rules := make([]domain.NumberingRule, 0, len(stock))
	for _, s := range stock {
		r := domain.NewNumberingRule(s.entityType, s.prefix)
		r.YearFormat = domain.YearFormatShort
		r.SequenceWidth = s.width
		r.Delimiter = ""
		r.Reset = domain.ResetYearly
		rules = append(rules, r)
	}
	return rules
}
