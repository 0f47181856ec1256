package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	domain "github.com/bryanwahyu/iaccessible/internal/domain/scans"
)

// ToolID identifies this engine in every report it produces.
const ToolID = "iaccessible-checker-v1.0"

var reportLevels = []string{
	domain.LevelViolation,
	domain.LevelPotentialViolation,
	domain.LevelRecommendation,
	domain.LevelPotentialRecommendation,
	domain.LevelManual,
}

// Evaluate runs the rule set against rendered markup. It needs no browser and
// is what Checker calls once a page has settled.
func Evaluate(src, pageURL string, opts Options) (*domain.Report, error) {
	return evaluate(src, pageURL, time.Now(), opts)
}

func evaluate(src, pageURL string, start time.Time, opts Options) (*domain.Report, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parsing rendered page: %w", err)
	}

	r := &domain.Report{
		ToolID:  ToolID,
		Results: []domain.Finding{},
	}
	counts := &r.Summary.Counts
	for _, ru := range rules {
		for _, c := range ru.eval(doc) {
			r.NumExecuted++
			lvl := level(ru.requirement, c.outcome)
			switch lvl {
			case domain.LevelPass:
				counts.Pass++
				continue
			case domain.LevelViolation:
				counts.Violation++
			case domain.LevelPotentialViolation:
				counts.PotentialViolation++
			case domain.LevelRecommendation:
				counts.Recommendation++
			case domain.LevelPotentialRecommendation:
				counts.PotentialRecommendation++
			case domain.LevelManual:
				counts.Manual++
			}
			r.Results = append(r.Results, finding(ru, c, lvl))
		}
	}

	elapsed := time.Since(start)
	counts.Elapsed = elapsed.Milliseconds()
	r.Summary.ScanTime = strconv.FormatInt(elapsed.Milliseconds(), 10)
	r.Summary.RuleArchive = opts.ruleArchive()
	r.Summary.Policies = opts.policies()
	r.Summary.ReportLevels = reportLevels
	r.Summary.StartScan = start.UnixMilli()
	r.Summary.URL = pageURL
	return r, nil
}

func level(requirement string, o outcome) string {
	switch o {
	case outcomePass:
		return domain.LevelPass
	case outcomeManual:
		return domain.LevelManual
	case outcomePotential:
		if requirement == requirementRecommended {
			return domain.LevelPotentialRecommendation
		}
		return domain.LevelPotentialViolation
	default:
		if requirement == requirementRecommended {
			return domain.LevelRecommendation
		}
		return domain.LevelViolation
	}
}

func finding(ru rule, c check, lvl string) domain.Finding {
	f := domain.Finding{
		RuleID:   ru.id,
		ReasonID: c.reason,
		Value:    []string{ru.requirement, string(c.outcome)},
		Message:  c.message,
		Category: ru.category,
		Level:    lvl,
	}
	if c.node != nil && c.node.Type == html.ElementNode {
		f.Snippet = snippet(c.node)
		f.Path = domain.FindingPath{DOM: xpath(c.node), ARIA: ariaPath(c.node)}
	}
	return f
}
