package model

import "time"

// DailyStats holds aggregate counters for one UTC day.
type DailyStats struct {
	Date            time.Time `json:"date"`
	CyclesRun       int       `json:"cycles_run"`
	Discoveries     int       `json:"discoveries"`
	Enrichments     int       `json:"enrichments"`
	ImagesAdded     int       `json:"images_added"`
	Verifications   int       `json:"verifications"`
	Cleanups        int       `json:"cleanups"`
	Errors          int       `json:"errors"`
	FactCalls       int       `json:"fact_calls"`
	ImageCalls      int       `json:"image_calls"`
	ResultsCalls    int       `json:"results_calls"`
	AICalls         int       `json:"ai_calls"`
	TotalDurationMS int64     `json:"total_duration_ms"`
}

// Add accumulates d into s.
func (s *DailyStats) Add(d DailyStats) {
	s.CyclesRun += d.CyclesRun
	s.Discoveries += d.Discoveries
	s.Enrichments += d.Enrichments
	s.ImagesAdded += d.ImagesAdded
	s.Verifications += d.Verifications
	s.Cleanups += d.Cleanups
	s.Errors += d.Errors
	s.FactCalls += d.FactCalls
	s.ImageCalls += d.ImageCalls
	s.ResultsCalls += d.ResultsCalls
	s.AICalls += d.AICalls
	s.TotalDurationMS += d.TotalDurationMS
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
