package engine

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type outcome string

const (
	outcomeFail      outcome = "FAIL"
	outcomePotential outcome = "POTENTIAL"
	outcomeManual    outcome = "MANUAL"
	outcomePass      outcome = "PASS"
)

// Policy requirement attached to every finding value.
const (
	requirementRequired    = "VALUE_PV_GROUP_REQUIRED"
	requirementRecommended = "VALUE_PV_GROUP_RECOMMENDED"
)

const (
	categoryPerceivable    = "Perceivable"
	categoryOperable       = "Operable"
	categoryUnderstandable = "Understandable"
	categoryRobust         = "Robust"
)

// check is one evaluated node.
type check struct {
	node    *html.Node
	outcome outcome
	reason  string
	message string
}

type rule struct {
	id          string
	category    string
	requirement string
	eval        func(doc *goquery.Document) []check
}

func pass(sel *goquery.Selection) check {
	return check{node: sel.Get(0), outcome: outcomePass, reason: "Pass_0"}
}

func fail(sel *goquery.Selection, reason, msg string) check {
	return check{node: sel.Get(0), outcome: outcomeFail, reason: reason, message: msg}
}

func potential(sel *goquery.Selection, reason, msg string) check {
	return check{node: sel.Get(0), outcome: outcomePotential, reason: reason, message: msg}
}

func manual(sel *goquery.Selection, reason, msg string) check {
	return check{node: sel.Get(0), outcome: outcomeManual, reason: reason, message: msg}
}

// rules is the rule set executed against every page, in report order.
var rules = []rule{
	{id: "html_lang_exists", category: categoryUnderstandable, requirement: requirementRequired, eval: htmlLang},
	{id: "page_title_exists", category: categoryOperable, requirement: requirementRequired, eval: pageTitle},
	{id: "img_alt_valid", category: categoryPerceivable, requirement: requirementRequired, eval: imgAlt},
	{id: "input_label_exists", category: categoryPerceivable, requirement: requirementRequired, eval: inputLabel},
	{id: "button_name_exists", category: categoryOperable, requirement: requirementRequired, eval: buttonName},
	{id: "a_text_purpose", category: categoryOperable, requirement: requirementRequired, eval: linkText},
	{id: "heading_content_exists", category: categoryPerceivable, requirement: requirementRequired, eval: headingEmpty},
	{id: "element_id_unique", category: categoryRobust, requirement: requirementRequired, eval: duplicateID},
	{id: "frame_title_exists", category: categoryRobust, requirement: requirementRequired, eval: frameTitle},
	{id: "meta_viewport_zoomable", category: categoryPerceivable, requirement: requirementRequired, eval: metaViewportZoom},
	{id: "meta_redirect_optional", category: categoryOperable, requirement: requirementRequired, eval: metaRefresh},
	{id: "table_headers_exists", category: categoryPerceivable, requirement: requirementRequired, eval: tableHeader},
	{id: "media_alt_exists", category: categoryPerceivable, requirement: requirementRequired, eval: mediaAlternative},
	{id: "heading_order_valid", category: categoryPerceivable, requirement: requirementRecommended, eval: headingOrder},
	{id: "landmark_main_exists", category: categoryOperable, requirement: requirementRecommended, eval: landmarkMain},
}

func root(doc *goquery.Document) *goquery.Selection {
	if h := doc.Find("html").First(); h.Length() > 0 {
		return h
	}
	return doc.Selection
}

func htmlLang(doc *goquery.Document) []check {
	h := root(doc)
	if strings.TrimSpace(h.AttrOr("lang", "")) == "" {
		return []check{fail(h, "Fail_1", "Page must identify its default language with the lang attribute of the <html> element")}
	}
	return []check{pass(h)}
}

func pageTitle(doc *goquery.Document) []check {
	t := doc.Find("head title").First()
	if t.Length() == 0 {
		return []check{fail(root(doc), "Fail_1", "Page is missing a <title> element in the <head>")}
	}
	if strings.TrimSpace(t.Text()) == "" {
		return []check{fail(t, "Fail_2", "Page <title> element is empty")}
	}
	return []check{pass(t)}
}

func presentational(sel *goquery.Selection) bool {
	r := strings.TrimSpace(sel.AttrOr("role", ""))
	return r == "presentation" || r == "none"
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".bmp": true}

func imgAlt(doc *goquery.Document) []check {
	var out []check
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if hidden(img) {
			return
		}
		if presentational(img) {
			out = append(out, pass(img))
			return
		}
		alt, ok := img.Attr("alt")
		switch {
		case ok && alt != "" && strings.TrimSpace(alt) == "":
			out = append(out, fail(img, "Fail_2", "Image alt attribute contains only whitespace"))
		case ok && imageExts[strings.ToLower(path.Ext(strings.TrimSpace(alt)))]:
			out = append(out, potential(img, "Potential_1", fmt.Sprintf("Image alt text %q looks like a file name", alt)))
		case ok, labelled(img, doc):
			out = append(out, pass(img))
		default:
			out = append(out, fail(img, "Fail_1", "Image does not have a text alternative"))
		}
	})
	return out
}

var unlabelledInputTypes = map[string]bool{"hidden": true, "submit": true, "button": true, "reset": true, "image": true}

func inputLabel(doc *goquery.Document) []check {
	var out []check
	doc.Find("input, select, textarea").Each(func(_ int, in *goquery.Selection) {
		if unlabelledInputTypes[strings.ToLower(in.AttrOr("type", ""))] || hidden(in) {
			return
		}
		if labelled(in, doc) {
			out = append(out, pass(in))
			return
		}
		if id := strings.TrimSpace(in.AttrOr("id", "")); id != "" {
			if l := doc.Find(`label[for="` + cssEscape(id) + `"]`); strings.TrimSpace(l.Text()) != "" {
				out = append(out, pass(in))
				return
			}
		}
		if l := in.ParentsFiltered("label").First(); l.Length() > 0 && strings.TrimSpace(l.Text()) != "" {
			out = append(out, pass(in))
			return
		}
		if strings.TrimSpace(in.AttrOr("placeholder", "")) != "" {
			out = append(out, potential(in, "Potential_1", "Form control is labelled only by its placeholder"))
			return
		}
		out = append(out, fail(in, "Fail_1", "Form control does not have an associated label"))
	})
	return out
}

func buttonName(doc *goquery.Document) []check {
	var out []check
	doc.Find(`button, [role="button"], input[type="submit"], input[type="button"], input[type="reset"]`).Each(func(_ int, b *goquery.Selection) {
		if hidden(b) {
			return
		}
		named := labelled(b, doc)
		if goquery.NodeName(b) == "input" {
			typ := strings.ToLower(b.AttrOr("type", ""))
			// browsers supply a default label for submit and reset
			named = named || strings.TrimSpace(b.AttrOr("value", "")) != "" || typ == "submit" || typ == "reset"
		} else {
			named = named || accessibleText(b) != ""
		}
		if named {
			out = append(out, pass(b))
			return
		}
		out = append(out, fail(b, "Fail_1", "Button does not have an accessible name"))
	})
	return out
}

var genericLinkText = map[string]bool{
	"click here": true,
	"here":       true,
	"more":       true,
	"read more":  true,
	"link":       true,
	"learn more": true,
}

func linkText(doc *goquery.Document) []check {
	var out []check
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if hidden(a) {
			return
		}
		text := accessibleText(a)
		switch {
		case text == "" && !labelled(a, doc):
			out = append(out, fail(a, "Fail_1", "Hyperlink has no link text, label or image with a text alternative"))
		case genericLinkText[strings.ToLower(strings.Join(strings.Fields(text), " "))]:
			out = append(out, potential(a, "Potential_1", fmt.Sprintf("Link text %q does not describe the purpose of the link", text)))
		default:
			out = append(out, pass(a))
		}
	})
	return out
}

func headingEmpty(doc *goquery.Document) []check {
	var out []check
	doc.Find(`h1, h2, h3, h4, h5, h6, [role="heading"]`).Each(func(_ int, h *goquery.Selection) {
		if hidden(h) {
			return
		}
		if accessibleText(h) == "" && !labelled(h, doc) {
			out = append(out, fail(h, "Fail_1", "Heading element has no descriptive content"))
			return
		}
		out = append(out, pass(h))
	})
	return out
}

func duplicateID(doc *goquery.Document) []check {
	var out []check
	seen := map[string]bool{}
	doc.Find("[id]").Each(func(_ int, el *goquery.Selection) {
		id := strings.TrimSpace(el.AttrOr("id", ""))
		if id == "" {
			return
		}
		if seen[id] {
			out = append(out, fail(el, "Fail_1", fmt.Sprintf("The id %q is already used by another element", id)))
			return
		}
		seen[id] = true
		out = append(out, pass(el))
	})
	return out
}

func frameTitle(doc *goquery.Document) []check {
	var out []check
	doc.Find("iframe, frame").Each(func(_ int, f *goquery.Selection) {
		if hidden(f) || presentational(f) {
			return
		}
		if labelled(f, doc) {
			out = append(out, pass(f))
			return
		}
		out = append(out, fail(f, "Fail_1", "Inline frame does not have a title"))
	})
	return out
}

// viewportParams parses "width=device-width, user-scalable=no" style content.
func viewportParams(content string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.FieldsFunc(content, func(r rune) bool { return r == ',' || r == ';' }) {
		k, v, _ := strings.Cut(part, "=")
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func metaViewportZoom(doc *goquery.Document) []check {
	var out []check
	doc.Find(`meta[name="viewport"]`).Each(func(_ int, m *goquery.Selection) {
		p := viewportParams(m.AttrOr("content", ""))
		if v := p["user-scalable"]; v == "no" || v == "0" {
			out = append(out, potential(m, "Potential_1", "Viewport disables user scaling, so text may not be resizable to 200%"))
			return
		}
		if v, ok := p["maximum-scale"]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f < 2 {
				out = append(out, potential(m, "Potential_2", fmt.Sprintf("Viewport maximum-scale %s prevents zooming to 200%%", v)))
				return
			}
		}
		out = append(out, pass(m))
	})
	return out
}

func metaRefresh(doc *goquery.Document) []check {
	var out []check
	doc.Find("meta[http-equiv]").Each(func(_ int, m *goquery.Selection) {
		if !strings.EqualFold(strings.TrimSpace(m.AttrOr("http-equiv", "")), "refresh") {
			return
		}
		delay, rest, _ := strings.Cut(m.AttrOr("content", ""), ";")
		secs, err := strconv.Atoi(strings.TrimSpace(delay))
		if err != nil || secs <= 0 {
			out = append(out, pass(m))
			return
		}
		if strings.Contains(strings.ToLower(rest), "url") {
			out = append(out, fail(m, "Fail_1", fmt.Sprintf("Page redirects after a %d second delay", secs)))
			return
		}
		out = append(out, fail(m, "Fail_2", fmt.Sprintf("Page refreshes itself every %d seconds", secs)))
	})
	return out
}

func tableHeader(doc *goquery.Document) []check {
	var out []check
	doc.Find("table").Each(func(_ int, t *goquery.Selection) {
		if hidden(t) || presentational(t) {
			return
		}
		headers := t.Find(`th, td[scope], [role="columnheader"], [role="rowheader"]`)
		switch {
		case headers.Length() > 0:
			out = append(out, pass(t))
		case t.Find("tr").Length() >= 2:
			out = append(out, potential(t, "Potential_1", "Data table does not identify any header cells"))
		}
	})
	return out
}

func mediaAlternative(doc *goquery.Document) []check {
	var out []check
	doc.Find("video, audio").Each(func(_ int, m *goquery.Selection) {
		if hidden(m) {
			return
		}
		if m.Find(`track[kind="captions"], track[kind="subtitles"], track[kind="descriptions"]`).Length() > 0 {
			out = append(out, pass(m))
			return
		}
		out = append(out, manual(m, "Manual_1", "Verify that the media has captions or an equivalent text alternative"))
	})
	return out
}

func headingOrder(doc *goquery.Document) []check {
	var out []check
	prev := 0
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, h *goquery.Selection) {
		if hidden(h) {
			return
		}
		level := int(goquery.NodeName(h)[1] - '0')
		if prev > 0 && level > prev+1 {
			out = append(out, fail(h, "Fail_1", fmt.Sprintf("Heading level jumps from h%d to h%d", prev, level)))
		} else {
			out = append(out, pass(h))
		}
		prev = level
	})
	return out
}

func landmarkMain(doc *goquery.Document) []check {
	mains := doc.Find(`main, [role="main"]`)
	if mains.Length() == 0 {
		body := doc.Find("body").First()
		if body.Length() == 0 {
			body = root(doc)
		}
		return []check{fail(body, "Fail_1", "Page does not contain a main landmark")}
	}
	out := []check{pass(mains.First())}
	mains.Slice(1, mains.Length()).Each(func(_ int, m *goquery.Selection) {
		out = append(out, fail(m, "Fail_2", "Page contains more than one main landmark"))
	})
	return out
}
