package engine

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/iaccessible/internal/domain/scans"
)

const cleanPage = `<!DOCTYPE html>
<html lang="en">
<head><title>Home</title><meta name="viewport" content="width=device-width, initial-scale=1"></head>
<body>
<header><nav><a href="/about">About us</a></nav></header>
<main>
  <h1>Welcome</h1>
  <h2>Products</h2>
  <img src="logo.png" alt="Company logo">
  <label for="email">Email</label><input id="email" type="email">
  <button type="submit">Subscribe</button>
  <table><tr><th>Plan</th></tr><tr><td>Basic</td></tr></table>
</main>
</body>
</html>`

func findingsFor(r *domain.Report, ruleID string) []domain.Finding {
	var out []domain.Finding
	for _, f := range r.Results {
		if f.RuleID == ruleID {
			out = append(out, f)
		}
	}
	return out
}

func TestEvaluate_CleanPageHasNoFindings(t *testing.T) {
	r, err := Evaluate(cleanPage, "https://example.com/", Options{})
	require.NoError(t, err)

	assert.Empty(t, r.Results)
	assert.Equal(t, ToolID, r.ToolID)
	assert.Equal(t, "https://example.com/", r.Summary.URL)
	assert.Equal(t, "latest", r.Summary.RuleArchive)
	assert.Equal(t, []string{"WCAG_2_1"}, r.Summary.Policies)
	assert.Greater(t, r.Summary.Counts.Pass, 0)
	assert.Equal(t, r.Summary.Counts.Pass, r.NumExecuted)
	assert.False(t, r.IsEmpty())
}

func TestEvaluate_PageLevelViolations(t *testing.T) {
	r, err := Evaluate(`<html><head></head><body><p>hi</p></body></html>`, "https://example.com", Options{})
	require.NoError(t, err)

	lang := findingsFor(r, "html_lang_exists")
	require.Len(t, lang, 1)
	assert.Equal(t, domain.LevelViolation, lang[0].Level)
	assert.Equal(t, []string{"VALUE_PV_GROUP_REQUIRED", "FAIL"}, lang[0].Value)
	assert.Equal(t, "/html[1]", lang[0].Path.DOM)
	assert.Equal(t, "<html>", lang[0].Snippet)

	require.Len(t, findingsFor(r, "page_title_exists"), 1)

	mainLm := findingsFor(r, "landmark_main_exists")
	require.Len(t, mainLm, 1)
	assert.Equal(t, domain.LevelRecommendation, mainLm[0].Level)
	assert.Equal(t, "/html[1]/body[1]", mainLm[0].Path.DOM)

	assert.Equal(t, 2, r.Summary.Counts.Violation)
	assert.Equal(t, 1, r.Summary.Counts.Recommendation)
}

func TestEvaluate_ImageAlternatives(t *testing.T) {
	page := `<html lang="en"><head><title>t</title></head><body><main>
<img src="a.png">
<img src="b.png" alt="">
<img src="c.png" alt="   ">
<img src="d.png" alt="IMG_0042.JPG">
<img src="e.png" aria-label="Chart of sales">
<img src="f.png" role="presentation">
<div hidden><img src="g.png"></div>
</main></body></html>`
	r, err := Evaluate(page, "https://example.com", Options{})
	require.NoError(t, err)

	got := findingsFor(r, "img_alt_valid")
	require.Len(t, got, 3)

	assert.Equal(t, "Fail_1", got[0].ReasonID)
	assert.Equal(t, domain.LevelViolation, got[0].Level)
	assert.Equal(t, "/html[1]/body[1]/main[1]/img[1]", got[0].Path.DOM)
	assert.Equal(t, "/document[1]/main[1]/img[1]", got[0].Path.ARIA)
	assert.Equal(t, `<img src="a.png">`, got[0].Snippet)

	assert.Equal(t, "Fail_2", got[1].ReasonID)
	assert.Equal(t, "/html[1]/body[1]/main[1]/img[3]", got[1].Path.DOM)

	assert.Equal(t, domain.LevelPotentialViolation, got[2].Level)
	assert.Equal(t, []string{"VALUE_PV_GROUP_REQUIRED", "POTENTIAL"}, got[2].Value)
}

func TestEvaluate_FormControlsAndButtons(t *testing.T) {
	page := `<html lang="en"><head><title>t</title></head><body><main>
<input id="name" type="text">
<input type="search" placeholder="Search">
<label>Age <input type="number"></label>
<input type="hidden" name="csrf">
<button></button>
<button aria-label="Close">x</button>
<input type="button">
<input type="submit">
</main></body></html>`
	r, err := Evaluate(page, "https://example.com", Options{})
	require.NoError(t, err)

	labels := findingsFor(r, "input_label_exists")
	require.Len(t, labels, 2)
	assert.Equal(t, domain.LevelViolation, labels[0].Level)
	assert.Equal(t, domain.LevelPotentialViolation, labels[1].Level)
	assert.Equal(t, "/document[1]/main[1]/textbox[1]", labels[0].Path.ARIA)

	buttons := findingsFor(r, "button_name_exists")
	require.Len(t, buttons, 2)
	assert.Equal(t, "/html[1]/body[1]/main[1]/button[1]", buttons[0].Path.DOM)
	assert.Equal(t, `<input type="button">`, buttons[1].Snippet)
}

func TestEvaluate_LinksHeadingsAndIDs(t *testing.T) {
	page := `<html lang="en"><head><title>t</title></head><body><main>
<h1 id="top">Title</h1>
<h3></h3>
<a href="/x"></a>
<a href="/y">Click here</a>
<a href="/z"><img src="z.png" alt="Home"></a>
<p id="top">dup</p>
</main></body></html>`
	r, err := Evaluate(page, "https://example.com", Options{})
	require.NoError(t, err)

	require.Len(t, findingsFor(r, "heading_content_exists"), 1)

	order := findingsFor(r, "heading_order_valid")
	require.Len(t, order, 1)
	assert.Equal(t, domain.LevelRecommendation, order[0].Level)
	assert.Contains(t, order[0].Message, "h1 to h3")

	links := findingsFor(r, "a_text_purpose")
	require.Len(t, links, 2)
	assert.Equal(t, domain.LevelViolation, links[0].Level)
	assert.Equal(t, domain.LevelPotentialViolation, links[1].Level)

	ids := findingsFor(r, "element_id_unique")
	require.Len(t, ids, 1)
	assert.Equal(t, "/html[1]/body[1]/main[1]/p[1]", ids[0].Path.DOM)
}

func TestEvaluate_MetaFramesTablesMedia(t *testing.T) {
	page := `<html lang="en"><head><title>t</title>
<meta name="viewport" content="width=device-width, user-scalable=no">
<meta http-equiv="Refresh" content="5; url=https://example.com/next">
</head><body><main>
<iframe src="/ad"></iframe>
<iframe src="/map" title="Office map"></iframe>
<table><tr><td>a</td></tr><tr><td>b</td></tr></table>
<table role="presentation"><tr><td>x</td></tr><tr><td>y</td></tr></table>
<video src="intro.mp4"></video>
<video src="talk.mp4"><track kind="captions" src="talk.vtt"></video>
</main></body></html>`
	r, err := Evaluate(page, "https://example.com", Options{RuleArchive: "2024.1", Policies: []string{"WCAG_2_2"}})
	require.NoError(t, err)

	assert.Len(t, findingsFor(r, "meta_viewport_zoomable"), 1)
	refresh := findingsFor(r, "meta_redirect_optional")
	require.Len(t, refresh, 1)
	assert.Equal(t, "Fail_1", refresh[0].ReasonID)
	assert.Len(t, findingsFor(r, "frame_title_exists"), 1)
	assert.Len(t, findingsFor(r, "table_headers_exists"), 1)

	media := findingsFor(r, "media_alt_exists")
	require.Len(t, media, 1)
	assert.Equal(t, domain.LevelManual, media[0].Level)
	assert.Equal(t, 1, r.Summary.Counts.Manual)

	assert.Equal(t, "2024.1", r.Summary.RuleArchive)
	assert.Equal(t, []string{"WCAG_2_2"}, r.Summary.Policies)
}

func TestEvaluate_ResultItemsMatchFindings(t *testing.T) {
	r, err := Evaluate(`<html><body><img src="x.png"></body></html>`, "https://example.com/final", Options{})
	require.NoError(t, err)

	items := r.ResultItems("scan-1", "https://example.com")
	require.Len(t, items, len(r.Results))
	for _, it := range items {
		assert.Equal(t, "https://example.com/final", it.PageURL)
		assert.Equal(t, domain.ScanID("scan-1"), it.ScanID)
		assert.True(t, strings.HasPrefix(it.Value, "VALUE_PV_GROUP_"))
	}
}

func TestSnippetIsTruncated(t *testing.T) {
	long := strings.Repeat("a", 400)
	r, err := Evaluate(`<html><body><main><img src="`+long+`"></main></body></html>`, "u", Options{})
	require.NoError(t, err)

	img := findingsFor(r, "img_alt_valid")
	require.Len(t, img, 1)
	assert.Len(t, img[0].Snippet, maxSnippet)
	assert.True(t, strings.HasSuffix(img[0].Snippet, "..."))
}

func TestSnippetTruncationKeepsValidUTF8(t *testing.T) {
	accented := strings.Repeat("é", 200)
	for _, src := range []string{"xy.png", "x.png"} {
		r, err := Evaluate(`<html><body><main><img src="`+src+`" data-x="`+accented+`"></main></body></html>`, "u", Options{})
		require.NoError(t, err)

		img := findingsFor(r, "img_alt_valid")
		require.Len(t, img, 1)
		assert.True(t, utf8.ValidString(img[0].Snippet), "src=%s", src)
		assert.LessOrEqual(t, len(img[0].Snippet), maxSnippet)
		assert.True(t, strings.HasSuffix(img[0].Snippet, "..."))
	}
}

func TestCheckerCloseWithoutUse(t *testing.T) {
	c := NewChecker(Options{})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.GetCompliance(t.Context(), "https://example.com", "label")
	assert.ErrorIs(t, err, ErrClosed)
}
