package scans

import (
	"time"
)

// ID tipe untuk Scan
type ScanID string

// Type tags the kind of scan a record was produced by.
type Type string

const (
	TypeWebpageAccessibility Type = "webpage_accessibility"
)

// Status enum
type Status string

const (
	StatusCompleted Status = "completed"
)

// Services are the requested service flags. Only Accessibility is acted upon;
// the rest are accepted and stored as requested.
type Services struct {
	Accessibility bool `json:"accessibility"`
	Readability   bool `json:"readability"`
	SEO           bool `json:"seo"`
	PageHealth    bool `json:"pageHealth"`
}

// SummaryCounts are the per-level counts copied verbatim from the report summary.
type SummaryCounts struct {
	Violation               int   `json:"violation"`
	PotentialViolation      int   `json:"potentialviolation"`
	Recommendation          int   `json:"recommendation"`
	PotentialRecommendation int   `json:"potentialrecommendation"`
	Manual                  int   `json:"manual"`
	Pass                    int   `json:"pass"`
	Ignored                 int   `json:"ignored"`
	Elapsed                 int64 `json:"elapsed"`
}

// Aggregate Root: ScanRecord. Written once, when the engine returns a report.
type ScanRecord struct {
	ID                ScanID        `json:"id"`
	UserID            string        `json:"userId"`
	TargetURL         string        `json:"targetUrl"`
	ScanLabel         string        `json:"scanLabel"`
	ScanType          Type          `json:"scanType"`
	ServicesRequested Services      `json:"servicesRequested"`
	Status            Status        `json:"status"`
	StartTimestamp    time.Time     `json:"startTimestamp"`
	EndTimestamp      time.Time     `json:"endTimestamp"`
	CreditsConsumed   int64         `json:"creditsConsumed"`
	SummaryCounts     SummaryCounts `json:"summaryCounts"`
	ToolID            string        `json:"toolId"`
	RuleArchive       string        `json:"ruleArchive"`
	Policies          []string      `json:"policies"`
	NumRulesExecuted  int           `json:"numRulesExecuted"`
	ReportURL         string        `json:"reportUrl,omitempty"`
}

// ResultItem is one persisted finding, scoped under its parent ScanRecord.
type ResultItem struct {
	ID       string  `json:"id"`
	ScanID   ScanID  `json:"scanId"`
	RuleID   string  `json:"ruleId"`
	ReasonID *string `json:"reasonId"`
	Level    string  `json:"level"`
	Value    string  `json:"value"`
	Message  string  `json:"message"`
	Snippet  string  `json:"snippet"`
	PathDOM  *string `json:"pathDom"`
	PathARIA *string `json:"pathAria"`
	Category string  `json:"category"`
	PageURL  string  `json:"pageUrl"`
}
