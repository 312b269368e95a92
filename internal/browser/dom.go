package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

func parseHTML(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func attrSelector(name, value string) string {
	return fmt.Sprintf("[%s=%q]", name, value)
}

// selectorFor builds a CSS selector for the element. With unique set, radios are
// addressed by name and value so each option gets its own selector.
func selectorFor(sel *goquery.Selection, unique bool) string {
	name := sel.AttrOr("name", "")
	id := sel.AttrOr("id", "")

	if unique {
		if value, ok := sel.Attr("value"); ok && name != "" && value != "" {
			return fmt.Sprintf("input%s%s", attrSelector("name", name), attrSelector("value", value))
		}
		if id != "" {
			return attrSelector("id", id)
		}
	}

	switch {
	case name != "" && !unique:
		return attrSelector("name", name)
	case sel.AttrOr("data-ui", "") != "":
		return attrSelector("data-ui", sel.AttrOr("data-ui", ""))
	case sel.AttrOr("data-testid", "") != "":
		return attrSelector("data-testid", sel.AttrOr("data-testid", ""))
	case id != "":
		return attrSelector("id", id)
	}

	if refs := strings.Fields(sel.AttrOr("aria-labelledby", "")); len(refs) > 0 {
		return fmt.Sprintf("[aria-labelledby~=%q]", refs[0])
	}
	if classes := classSelector(sel); classes != "" {
		return classes
	}
	if placeholder := sel.AttrOr("placeholder", ""); placeholder != "" {
		return attrSelector("placeholder", placeholder)
	}
	if name != "" {
		return attrSelector("name", name)
	}
	return ""
}

// buttonSelector addresses a clickable element by id or classes only.
func buttonSelector(sel *goquery.Selection) string {
	if id := sel.AttrOr("id", ""); id != "" {
		return attrSelector("id", id)
	}
	return classSelector(sel)
}

// classSelector joins up to three plain class names. Classes with CSS-special characters are ignored.
func classSelector(sel *goquery.Selection) string {
	var picked []string
	for _, class := range strings.Fields(sel.AttrOr("class", "")) {
		if !plainIdent(class) {
			continue
		}
		picked = append(picked, class)
		if len(picked) == 3 {
			break
		}
	}
	if len(picked) == 0 {
		return ""
	}
	return "." + strings.Join(picked, ".")
}

func plainIdent(s string) bool {
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
