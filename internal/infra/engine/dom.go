package engine

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const maxSnippet = 256

// xpath returns an indexed absolute path like /html[1]/body[1]/img[2].
func xpath(n *html.Node) string {
	var parts []string
	for ; n != nil && n.Type == html.ElementNode; n = n.Parent {
		idx := 1
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode && s.Data == n.Data {
				idx++
			}
		}
		parts = append(parts, n.Data+"["+strconv.Itoa(idx)+"]")
	}
	if len(parts) == 0 {
		return ""
	}
	reverse(parts)
	return "/" + strings.Join(parts, "/")
}

// ariaPath walks the role-bearing ancestors, e.g. /document[1]/main[1]/img[1].
func ariaPath(n *html.Node) string {
	var parts []string
	for ; n != nil && n.Type == html.ElementNode; n = n.Parent {
		r := role(n)
		if r == "" {
			continue
		}
		idx := 1
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode && role(s) == r {
				idx++
			}
		}
		parts = append(parts, r+"["+strconv.Itoa(idx)+"]")
	}
	parts = append(parts, "document[1]")
	reverse(parts)
	return "/" + strings.Join(parts, "/")
}

var implicitRoles = map[string]string{
	"article":  "article",
	"aside":    "complementary",
	"button":   "button",
	"dialog":   "dialog",
	"footer":   "contentinfo",
	"form":     "form",
	"h1":       "heading",
	"h2":       "heading",
	"h3":       "heading",
	"h4":       "heading",
	"h5":       "heading",
	"h6":       "heading",
	"header":   "banner",
	"iframe":   "document",
	"img":      "img",
	"li":       "listitem",
	"main":     "main",
	"nav":      "navigation",
	"ol":       "list",
	"select":   "combobox",
	"table":    "table",
	"textarea": "textbox",
	"ul":       "list",
}

func role(n *html.Node) string {
	if r := strings.TrimSpace(attr(n, "role")); r != "" {
		return strings.Fields(r)[0]
	}
	switch n.Data {
	case "a":
		if hasAttr(n, "href") {
			return "link"
		}
		return ""
	case "input":
		switch strings.ToLower(attr(n, "type")) {
		case "hidden":
			return ""
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio"
		case "submit", "button", "reset", "image":
			return "button"
		default:
			return "textbox"
		}
	}
	return implicitRoles[n.Data]
}

// snippet renders the element's opening tag, truncated.
func snippet(n *html.Node) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(n.Data)
	for _, a := range n.Attr {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Val))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	s := b.String()
	if len(s) > maxSnippet {
		// cut on a rune boundary so the stored text stays valid UTF-8
		cut := maxSnippet - 3
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// accessibleText approximates the accessible name from content: visible text
// plus alt text of descendant images.
func accessibleText(sel *goquery.Selection) string {
	text := strings.TrimSpace(sel.Text())
	if text != "" {
		return text
	}
	var alts []string
	sel.Find("img[alt]").Each(func(_ int, img *goquery.Selection) {
		if v := strings.TrimSpace(img.AttrOr("alt", "")); v != "" {
			alts = append(alts, v)
		}
	})
	return strings.Join(alts, " ")
}

// labelled reports whether the element has a name from ARIA or title.
func labelled(sel *goquery.Selection, doc *goquery.Document) bool {
	if strings.TrimSpace(sel.AttrOr("aria-label", "")) != "" {
		return true
	}
	if ids := strings.Fields(sel.AttrOr("aria-labelledby", "")); len(ids) > 0 {
		for _, id := range ids {
			if strings.TrimSpace(byID(doc, id).Text()) != "" {
				return true
			}
		}
	}
	return strings.TrimSpace(sel.AttrOr("title", "")) != ""
}

func byID(doc *goquery.Document, id string) *goquery.Selection {
	return doc.Find(`[id="` + cssEscape(id) + `"]`)
}

var cssQuote = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func cssEscape(s string) string {
	return cssQuote.Replace(s)
}

func hidden(sel *goquery.Selection) bool {
	if _, ok := sel.Attr("hidden"); ok {
		return true
	}
	if sel.AttrOr("aria-hidden", "") == "true" {
		return true
	}
	return sel.ParentsFiltered("[hidden],[aria-hidden=true]").Length() > 0
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
