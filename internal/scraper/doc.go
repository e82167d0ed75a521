// Package scraper defines the leader records, the ordered country mapping,
// the shared error taxonomy, and the interfaces wired together by the
// fetch-and-enrich pipeline.
package scraper
