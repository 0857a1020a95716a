// Package report renders crawl run summaries in several output formats.
//
// Three writers share one interface: a plain-text writer for terminal
// display, a JSON writer for tool integration, and a Markdown writer for
// documentation and sharing. MultiWriter fans a summary out to several
// destinations at once.
package report
