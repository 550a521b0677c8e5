// Package extract turns raw HTML into normalized text and outbound links,
// and decides whether a page is worth indexing at all.
package extract

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Page is the extraction result for one fetched document.
type Page struct {
	URL   string
	Title string
	Text  string
	Links []string
}

// maxPageChars caps how much text a single page contributes to the index.
const maxPageChars = 15000

// skippedElements are removed wholesale before text collection. They hold
// navigation chrome and executable content, not prose.
var skippedElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"nav":      {},
	"footer":   {},
	"header":   {},
	"aside":    {},
	"noscript": {},
	"iframe":   {},
	"svg":      {},
}

// Parse extracts the title, visible text, and absolute outbound links from an
// HTML document. Relative links are resolved against baseURL; fragments are
// dropped and only http(s) schemes survive.
func Parse(rawHTML string, baseURL string) (Page, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return Page{}, &Error{URL: baseURL, Err: err}
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return Page{}, &Error{URL: baseURL, Err: err}
	}

	var (
		title strings.Builder
		text  strings.Builder
		links []string
		seen  = map[string]struct{}{}
	)

	var walk func(n *html.Node, inTitle bool)
	walk = func(n *html.Node, inTitle bool) {
		switch n.Type {
		case html.ElementNode:
			name := strings.ToLower(n.Data)
			if _, skip := skippedElements[name]; skip {
				return
			}
			if name == "title" {
				inTitle = true
			}
			if name == "a" {
				if link, ok := resolveLink(base, attr(n, "href")); ok {
					if _, dup := seen[link]; !dup {
						seen[link] = struct{}{}
						links = append(links, link)
					}
				}
			}
		case html.TextNode:
			if inTitle {
				title.WriteString(n.Data)
			} else {
				text.WriteString(n.Data)
				text.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inTitle)
		}
	}
	walk(doc, false)

	pageTitle := CollapseWhitespace(title.String())
	if pageTitle == "" {
		pageTitle = base.Hostname()
	}
	body := CollapseWhitespace(text.String())
	if len(body) > maxPageChars {
		body = body[:maxPageChars]
	}

	return Page{
		URL:   baseURL,
		Title: pageTitle,
		Text:  body,
		Links: links,
	}, nil
}

// CollapseWhitespace squeezes runs of whitespace and control characters into
// single spaces and trims the result.
func CollapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			if !space {
				b.WriteByte(' ')
				space = true
			}
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return strings.TrimRight(b.String(), " ")
}

func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	normalized, err := NormalizeURL(abs.String())
	if err != nil {
		return "", false
	}
	return normalized, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// Error marks a page whose markup could not be processed. The crawler skips
// the page and continues the job.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string { return "extract " + e.URL + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
