// Package quality detects data quality issues in curated records and applies
// the safe subset of fixes.
package quality

import "github.com/sells-group/wrestlebot/internal/model"

// Severity grades a quality issue.
type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
)

// Issue codes.
const (
	CodeMissingName            = "MISSING_NAME"
	CodeNameWhitespace         = "NAME_WHITESPACE"
	CodeNameControlChars       = "NAME_CONTROL_CHARS"
	CodeSuspiciousNameFormat   = "SUSPICIOUS_NAME_FORMAT"
	CodeSuspiciousNameVS       = "SUSPICIOUS_NAME_VS"
	CodeSuspiciousNameMulti    = "SUSPICIOUS_NAME_MULTI"
	CodeInvalidPlaceholderName = "INVALID_PLACEHOLDER_NAME"
	CodeMisclassifiedStable    = "MISCLASSIFIED_STABLE"
	CodeInvalidMultiName       = "INVALID_MULTI_NAME"
	CodeInvalidDebutYear       = "INVALID_DEBUT_YEAR"
	CodeInvalidRetirementYear  = "INVALID_RETIREMENT_YEAR"
	CodeInvalidYearSequence    = "INVALID_YEAR_SEQUENCE"
	CodeIncompleteAbout        = "INCOMPLETE_ABOUT"
	CodeOrphanNoMatches        = "ORPHAN_NO_MATCHES"
	CodeOrphanNoEvents         = "ORPHAN_NO_EVENTS"
	CodeInvalidDate            = "INVALID_DATE"
	CodeMissingPromotion       = "MISSING_PROMOTION"
	CodeInvalidAttendance      = "INVALID_ATTENDANCE"
	CodeSuspiciousAttendance   = "SUSPICIOUS_ATTENDANCE"
	CodeFutureEvent            = "FUTURE_EVENT"
	CodeInvalidFoundedYear     = "INVALID_FOUNDED_YEAR"
	CodeInvalidClosedYear      = "INVALID_CLOSED_YEAR"
	CodeInvalidURLFormat       = "INVALID_URL_FORMAT"
	CodeInvalidCapacity        = "INVALID_CAPACITY"
	CodeSuspiciousCapacity     = "SUSPICIOUS_CAPACITY"
)

// Issue is one detected problem. AutoFixable is decided when the issue is
// detected and never inferred later.
type Issue struct {
	Kind           model.Kind `json:"kind"`
	EntityID       int64      `json:"entity_id"`
	EntityName     string     `json:"entity_name"`
	Severity       Severity   `json:"severity"`
	Code           string     `json:"code"`
	Description    string     `json:"description"`
	Field          string     `json:"field,omitempty"`
	CurrentValue   any        `json:"current_value,omitempty"`
	SuggestedValue any        `json:"suggested_value,omitempty"`
	AutoFixable    bool       `json:"auto_fixable"`
}

// Report aggregates the issues found over a set of records.
type Report struct {
	TotalChecked       int     `json:"total_checked"`
	EntitiesWithIssues int     `json:"entities_with_issues"`
	Issues             []Issue `json:"issues"`
	Errors             int     `json:"errors"`
	Warnings           int     `json:"warnings"`
	Suggestions        int     `json:"suggestions"`
	AutoFixable        int     `json:"auto_fixable"`
}

// Add appends an issue and updates the counters.
func (r *Report) Add(issue Issue) {
	r.Issues = append(r.Issues, issue)
	switch issue.Severity {
	case SeverityError:
		r.Errors++
	case SeverityWarning:
		r.Warnings++
	default:
		r.Suggestions++
	}
	if issue.AutoFixable {
		r.AutoFixable++
	}
}

// Fixable returns the auto-fixable subset of the report's issues.
func (r *Report) Fixable() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.AutoFixable {
			out = append(out, i)
		}
	}
	return out
}

// CountByCode tallies issues per code.
func (r *Report) CountByCode() map[string]int {
	out := make(map[string]int)
	for _, i := range r.Issues {
		out[i.Code]++
	}
	return out
}
