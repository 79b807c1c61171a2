package errors

// Error codes returned to API clients. Messages are English; clients translate by code.

// Lifecycle error codes.
const (
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeStateLocked            = "STATE_LOCKED"
	CodeStateDefinitionMissing = "STATE_DEFINITION_MISSING"
	CodeStateNotFound          = "STATE_NOT_FOUND"
	CodeTransitionRuleNotFound = "TRANSITION_RULE_NOT_FOUND"
)

// Numbering error codes.
const (
	CodeNumberingRuleMissing  = "NUMBERING_RULE_MISSING"
	CodeNumberingDisabled     = "NUMBERING_DISABLED"
	CodeNumberAlreadyAssigned = "NUMBER_ALREADY_ASSIGNED"
	CodeNumberNotAssigned     = "NUMBER_NOT_ASSIGNED"
	CodeDuplicateNumber       = "DUPLICATE_NUMBER"
	CodeBatchTooLarge         = "BATCH_TOO_LARGE"
)

// Integrity error codes.
const (
	CodeImmutableRecord = "IMMUTABLE_RECORD"
)

// Auth error codes.
const (
	CodeAuthRequired = "AUTH_REQUIRED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
	CodeForbidden    = "FORBIDDEN"
)

// Validation error codes.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
)

// Generic codes.
const (
	CodeInternal = "INTERNAL_ERROR"
	CodeNotFound = "NOT_FOUND"
)
