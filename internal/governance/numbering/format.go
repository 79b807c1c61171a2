package numbering

import (
	"fmt"
	"strings"
	"time"

	"bizcore.io/governance/internal/domain"
)

// Format renders value under rule at the given instant. Segments are prefix,
// year, month and the zero-padded sequence, joined by the rule's delimiter;
// empty segments are skipped. Values wider than the sequence width are kept
// whole.
func Format(rule domain.NumberingRule, value int64, at time.Time) string {
	parts := make([]string, 0, 4)
	if rule.Prefix != "" {
		parts = append(parts, rule.Prefix)
	}
	if rule.IncludeYear {
		if rule.YearFormat == domain.YearFormatShort {
			parts = append(parts, fmt.Sprintf("%02d", at.Year()%100))
		} else {
			parts = append(parts, fmt.Sprintf("%04d", at.Year()))
		}
	}
	if rule.IncludeMonth {
		parts = append(parts, fmt.Sprintf("%02d", int(at.Month())))
	}
	width := rule.SequenceWidth
	if width <= 0 {
		width = domain.DefaultSequenceWidth
	}
	parts = append(parts, fmt.Sprintf("%0*d", width, value))
	return strings.Join(parts, rule.Delimiter)
}
