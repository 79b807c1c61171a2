package domain

import "time"

// ResetPolicy controls when a sequence counter restarts at zero.
type ResetPolicy string

const (
	ResetNever   ResetPolicy = "none"
	ResetYearly  ResetPolicy = "yearly"
	ResetMonthly ResetPolicy = "monthly"
)

// YearFormat selects the rendering of the year segment.
type YearFormat string

const (
	YearFormatFull  YearFormat = "YYYY"
	YearFormatShort YearFormat = "YY"
)

// Numbering defaults.
const (
	DefaultSequenceWidth = 5
	DefaultDelimiter     = "-"
	MaxSequenceWidth     = 18
)

// NumberingRule configures number generation for one entity type.
//
// A resetting rule must print the period it resets on: yearly needs the year
// segment, monthly needs year and month. Otherwise the first number after a
// reset repeats one issued in an earlier period.
type NumberingRule struct {
	EntityType    string      `json:"entity_type" validate:"required,entitytype"`
	Enabled       bool        `json:"enabled"`
	Prefix        string      `json:"prefix" validate:"max=20"`
	IncludeYear   bool        `json:"include_year" validate:"required_unless=Reset none"`
	YearFormat    YearFormat  `json:"year_format" validate:"required,oneof=YYYY YY"`
	IncludeMonth  bool        `json:"include_month" validate:"required_if=Reset monthly"`
	SequenceWidth int         `json:"sequence_width" validate:"min=1,max=18"`
	Delimiter     string      `json:"delimiter" validate:"max=5"`
	Reset         ResetPolicy `json:"reset" validate:"required,oneof=none yearly monthly"`
	Description   string      `json:"description,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NewNumberingRule returns an enabled rule with the default format options.
func NewNumberingRule(entityType, prefix string) NumberingRule {
	return NumberingRule{
		EntityType:    entityType,
		Enabled:       true,
		Prefix:        prefix,
		IncludeYear:   true,
		YearFormat:    YearFormatFull,
		SequenceWidth: DefaultSequenceWidth,
		Delimiter:     DefaultDelimiter,
		Reset:         ResetNever,
	}
}

// SequenceCounter is the persisted state behind a rule's numbers.
type SequenceCounter struct {
	EntityType string
	Value      int64
	// LastReset is the calendar date of the last reset; zero means never.
	LastReset time.Time
}

// AssignedNumber binds one generated number to one record. It is never
// updated or deleted.
type AssignedNumber struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Number     string    `json:"number"`
	AssignedAt time.Time `json:"assigned_at"`
	AssignedBy string    `json:"assigned_by"`
}
