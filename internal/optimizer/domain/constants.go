package domain

// Job status constants
const (
	JobStatusPending    = "PENDING"
	JobStatusProcessing = "PROCESSING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
)

// Job type constants
const (
	JobTypeTitleDesc = "TITLE_DESC"
	JobTypeAltText   = "ALT_TEXT"
	JobTypeSchema    = "SCHEMA"
)

// Optimized field constants
const (
	FieldTitle       = "TITLE"
	FieldDescription = "DESCRIPTION"
	FieldAltText     = "ALT_TEXT"
	FieldSchema      = "SCHEMA"
)

// ValidJobType reports whether t is a known job type
func ValidJobType(t string) bool {
	switch t {
	case JobTypeTitleDesc, JobTypeAltText, JobTypeSchema:
		return true
	}
	return false
}

// TerminalStatus reports whether s is a terminal job status
func TerminalStatus(s string) bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
