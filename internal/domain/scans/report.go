package scans

import (
	"strings"
	"time"
)

// Finding levels emitted by the engine.
const (
	LevelViolation               = "violation"
	LevelPotentialViolation      = "potentialviolation"
	LevelRecommendation          = "recommendation"
	LevelPotentialRecommendation = "potentialrecommendation"
	LevelManual                  = "manual"
	LevelPass                    = "pass"
)

// Report is the compliance report produced by the analysis engine.
type Report struct {
	ToolID      string        `json:"toolID"`
	Summary     ReportSummary `json:"summary"`
	Results     []Finding     `json:"results"`
	NumExecuted int           `json:"numExecuted"`
	Label       string        `json:"label"`
}

type ReportSummary struct {
	Counts       SummaryCounts `json:"counts"`
	ScanTime     string        `json:"scanTime"`
	RuleArchive  string        `json:"ruleArchive"`
	Policies     []string      `json:"policies"`
	ReportLevels []string      `json:"reportLevels"`
	StartScan    int64         `json:"startScan"` // unix milliseconds
	URL          string        `json:"URL"`
}

// FindingPath locates a finding in the DOM and in the accessibility tree.
type FindingPath struct {
	DOM  string `json:"dom,omitempty"`
	ARIA string `json:"aria,omitempty"`
}

// Finding is one rule outcome. Value is [policy requirement, outcome], e.g.
// ["VALUE_PV_GROUP_REQUIRED", "FAIL"].
type Finding struct {
	RuleID   string      `json:"ruleId"`
	ReasonID string      `json:"reasonId,omitempty"`
	Value    []string    `json:"value"`
	Path     FindingPath `json:"path"`
	Message  string      `json:"message"`
	Snippet  string      `json:"snippet"`
	Category string      `json:"category"`
	Level    string      `json:"level"`
}

// IsEmpty reports whether the engine produced nothing usable.
func (r *Report) IsEmpty() bool {
	return r == nil || (r.ToolID == "" && r.Summary.URL == "" && len(r.Results) == 0 && r.NumExecuted == 0)
}

// StartTime converts Summary.StartScan, falling back to fallback when unset.
func (r *Report) StartTime(fallback time.Time) time.Time {
	if r.Summary.StartScan <= 0 {
		return fallback
	}
	return time.UnixMilli(r.Summary.StartScan).UTC()
}

// TargetURL prefers the engine's canonical URL over the requested one.
func (r *Report) TargetURL(requested string) string {
	if r.Summary.URL != "" {
		return r.Summary.URL
	}
	return requested
}

// ResultItems maps findings to persisted items for scanID.
func (r *Report) ResultItems(scanID ScanID, requestedURL string) []ResultItem {
	pageURL := r.TargetURL(requestedURL)
	items := make([]ResultItem, 0, len(r.Results))
	for _, f := range r.Results {
		items = append(items, ResultItem{
			ScanID:   scanID,
			RuleID:   f.RuleID,
			ReasonID: optional(f.ReasonID),
			Level:    f.Level,
			Value:    strings.Join(f.Value, ","),
			Message:  f.Message,
			Snippet:  f.Snippet,
			PathDOM:  optional(f.Path.DOM),
			PathARIA: optional(f.Path.ARIA),
			Category: f.Category,
			PageURL:  pageURL,
		})
	}
	return items
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
