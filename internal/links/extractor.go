package links

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/FleetingTimes/nor-crawler/internal/model"
)

// Result holds everything extracted from one HTML page.
type Result struct {
	// Title is the page title.
	Title string

	// Links contains discovered anchor URLs, resolved against the page
	// URL. Fragments and non-http schemes are already filtered out.
	Links []string

	// Forms describes the page's HTML forms.
	Forms []Form

	// Meta maps meta tag names (or OpenGraph properties) to content.
	Meta map[string]string
}

// Form describes one HTML form.
type Form struct {
	// Action is the resolved submission URL.
	Action string

	// Method is the uppercased HTTP method, defaulting to GET.
	Method string

	// Fields holds the form's named fields in document order.
	Fields []Field
}

// Field is one input, select, or textarea element.
type Field struct {
	Name  string
	Type  string
	Value string
}

// HiddenValues returns the form's hidden fields as name/value pairs. Login
// flows merge these into the submitted payload to satisfy CSRF checks.
func (f Form) HiddenValues() map[string]string {
	values := make(map[string]string)
	for _, field := range f.Fields {
		if field.Type == "hidden" && field.Name != "" {
			values[field.Name] = field.Value
		}
	}
	return values
}

// Extract parses a fetched page and returns its links and forms. Non-HTML
// pages yield an empty result rather than an error.
func Extract(page *model.Page) (*Result, error) {
	if !page.IsHTML() {
		return &Result{Meta: make(map[string]string)}, nil
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page URL %q: %w", page.URL, err)
	}

	doc, err := html.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML for %q: %w", page.URL, err)
	}

	result := &Result{Meta: make(map[string]string)}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					result.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a":
				if resolved := resolve(base, attr(n, "href")); resolved != "" {
					result.Links = append(result.Links, resolved)
				}
			case "form":
				form := Form{
					Action: resolve(base, attr(n, "action")),
					Method: strings.ToUpper(attr(n, "method")),
				}
				if form.Method == "" {
					form.Method = "GET"
				}
				if form.Action == "" {
					// A form without an action posts back to the page.
					form.Action = page.URL
				}
				collectFields(n, &form)
				result.Forms = append(result.Forms, form)
			case "meta":
				name := attr(n, "name")
				if name == "" {
					name = attr(n, "property")
				}
				if content := attr(n, "content"); name != "" && content != "" {
					result.Meta[name] = content
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return result, nil
}

// collectFields gathers named input, select, and textarea elements under a
// form node.
func collectFields(n *html.Node, form *Form) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "input", "select", "textarea":
			field := Field{
				Name:  attr(n, "name"),
				Type:  attr(n, "type"),
				Value: attr(n, "value"),
			}
			if field.Type == "" {
				switch n.Data {
				case "select", "textarea":
					field.Type = n.Data
				default:
					field.Type = "text"
				}
			}
			if field.Name != "" {
				form.Fields = append(form.Fields, field)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectFields(c, form)
	}
}

// resolve turns an href into an absolute http(s) URL, or "" when the link
// is not crawlable (mailto, javascript, fragments, malformed).
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// attr returns the value of the named attribute, or "".
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
