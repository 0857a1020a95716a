package links

import (
	"testing"

	"github.com/FleetingTimes/nor-crawler/internal/model"
)

func htmlPage(url, body string) *model.Page {
	return &model.Page{
		URL:         url,
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(body),
	}
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	page := htmlPage("https://example.com/dir/page", `
		<html><head><title> Listing </title></head><body>
		<a href="/absolute">abs</a>
		<a href="relative">rel</a>
		<a href="https://other.test/x">other</a>
		<a href="#frag">fragment only</a>
		<a href="mailto:hi@example.com">mail</a>
		<a href="javascript:void(0)">js</a>
		</body></html>`)

	result, err := Extract(page)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if result.Title != "Listing" {
		t.Errorf("Title = %q, want Listing", result.Title)
	}

	want := []string{
		"https://example.com/absolute",
		"https://example.com/dir/relative",
		"https://other.test/x",
	}
	if len(result.Links) != len(want) {
		t.Fatalf("Links = %v, want %v", result.Links, want)
	}
	for i, link := range want {
		if result.Links[i] != link {
			t.Errorf("Links[%d] = %q, want %q", i, result.Links[i], link)
		}
	}
}

func TestExtractForms(t *testing.T) {
	t.Parallel()

	page := htmlPage("https://example.com/login", `
		<html><body>
		<form action="/do-login" method="post">
		  <input type="text" name="username">
		  <input type="password" name="password">
		  <input type="hidden" name="csrf_token" value="tok-42">
		  <input type="submit" value="Go">
		</form>
		<form>
		  <textarea name="comment"></textarea>
		</form>
		</body></html>`)

	result, err := Extract(page)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Forms) != 2 {
		t.Fatalf("got %d forms, want 2", len(result.Forms))
	}

	login := result.Forms[0]
	if login.Action != "https://example.com/do-login" {
		t.Errorf("Action = %q, want resolved login URL", login.Action)
	}
	if login.Method != "POST" {
		t.Errorf("Method = %q, want POST", login.Method)
	}
	hidden := login.HiddenValues()
	if hidden["csrf_token"] != "tok-42" {
		t.Errorf("HiddenValues = %v, want csrf_token=tok-42", hidden)
	}

	// A form without action or method posts back to the page with GET.
	second := result.Forms[1]
	if second.Action != page.URL {
		t.Errorf("second form Action = %q, want page URL", second.Action)
	}
	if second.Method != "GET" {
		t.Errorf("second form Method = %q, want GET", second.Method)
	}
	if len(second.Fields) != 1 || second.Fields[0].Type != "textarea" {
		t.Errorf("second form Fields = %v, want one textarea", second.Fields)
	}
}

func TestExtractNonHTML(t *testing.T) {
	t.Parallel()

	page := &model.Page{
		URL:         "https://example.com/data.json",
		ContentType: "application/json",
		Body:        []byte(`{"not": "html"}`),
	}
	result, err := Extract(page)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.Links) != 0 || len(result.Forms) != 0 {
		t.Errorf("non-HTML page produced links %v forms %v, want none", result.Links, result.Forms)
	}
}
