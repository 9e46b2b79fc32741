// Package crawler holds the domain model of a roster crawl: entity
// references, extracted records, task outcomes and their failure taxonomy,
// run options, and the interfaces implemented by fetchers, stores and
// publishers.
package crawler
