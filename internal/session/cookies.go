package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// exportedCookie is one entry of a JSON cookies export, as produced by
// browser extensions and headless-browser dumps.
type exportedCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// loadCookiesFile seeds a cookie jar from an exported cookies file.
// Files ending in .json are parsed as a JSON array (or an object with a
// "cookies" array); anything else is parsed as Netscape cookies.txt.
func loadCookiesFile(jar http.CookieJar, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided cookies path is intentional
	if err != nil {
		return err
	}

	var cookies []exportedCookie
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		cookies, err = parseJSONCookies(data)
	} else {
		cookies, err = parseNetscapeCookies(data)
	}
	if err != nil {
		return err
	}

	// Group by domain so each SetCookies call carries a matching URL.
	byDomain := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		domain := strings.TrimPrefix(c.Domain, ".")
		byDomain[domain] = append(byDomain[domain], &http.Cookie{
			Name:  c.Name,
			Value: c.Value,
			Path:  path,
		})
	}

	for domain, dc := range byDomain {
		u := &url.URL{Scheme: "https", Host: domain, Path: "/"}
		jar.SetCookies(u, dc)
	}
	return nil
}

// parseJSONCookies handles both a bare array and {"cookies": [...]}.
func parseJSONCookies(data []byte) ([]exportedCookie, error) {
	var cookies []exportedCookie
	if err := json.Unmarshal(data, &cookies); err == nil {
		return cookies, nil
	}

	var wrapped struct {
		Cookies []exportedCookie `json:"cookies"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("unparsable JSON cookies file: %w", err)
	}
	return wrapped.Cookies, nil
}

// parseNetscapeCookies parses the tab-separated cookies.txt format:
// domain, include-subdomains, path, secure, expiry, name, value.
func parseNetscapeCookies(data []byte) ([]exportedCookie, error) {
	var cookies []exportedCookie
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		cookies = append(cookies, exportedCookie{
			Domain: fields[0],
			Path:   fields[2],
			Name:   fields[5],
			Value:  fields[6],
		})
	}
	return cookies, nil
}
