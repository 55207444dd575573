package ai

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/wrestlebot/internal/model"
)

var suspiciousNameParts = []string{"test", "example", "xxx", "null"}

var fallbackYearFields = []string{"debut_year", "founded_year", "release_year", "retirement_year"}

const (
	minFallbackYear = 1900
	maxFallbackYear = 2030
)

// FallbackVerify is the heuristic plausibility check used when no AI answer
// is available. Confidence grows with the number of populated fields and is
// capped at 0.9.
func FallbackVerify(_ model.Kind, data map[string]any) Verdict {
	name, _ := data["name"].(string)
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return Verdict{Valid: false, Confidence: 0, Reasoning: "Name too short"}
	}
	lower := strings.ToLower(name)
	for _, p := range suspiciousNameParts {
		if strings.Contains(lower, p) {
			return Verdict{Valid: false, Confidence: 0.3, Reasoning: "Name contains suspicious pattern"}
		}
	}

	var issues []string
	if len(name) > 200 {
		issues = append(issues, "name too long")
	}
	for _, f := range fallbackYearFields {
		y, ok := yearValue(data[f])
		if ok && (y < minFallbackYear || y > maxFallbackYear) {
			issues = append(issues, "invalid "+strings.ReplaceAll(f, "_", " ")+": "+strconv.Itoa(y))
		}
	}

	filled := 0
	for _, v := range data {
		if nonEmpty(v) {
			filled++
		}
	}
	conf := math.Min(0.9, 0.5+0.05*float64(filled))
	if len(issues) > 0 {
		return Verdict{
			Valid:      true,
			Confidence: conf * 0.8,
			Reasoning:  "Minor issues: " + strings.Join(issues, "; "),
			Issues:     issues,
		}
	}
	return Verdict{Valid: true, Confidence: conf, Reasoning: "Passed basic validation (AI unavailable)"}
}

func yearValue(v any) (int, bool) {
	r := model.Record{Fields: map[string]any{"y": v}}
	return r.Int("y")
}

func nonEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []string:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}
