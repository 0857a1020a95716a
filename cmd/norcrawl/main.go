// Package main provides the entry point for the norcrawl CLI.
//
// norcrawl is a polite web crawler with per-domain pacing, retry budgets,
// identity rotation, and authenticated-session support.
//
// Usage:
//
//	norcrawl crawl https://example.com/
//	norcrawl crawl -c crawl.yml
//
// See --help for all available options.
package main

// main is the entry point for norcrawl.
func main() {
	Execute()
}
