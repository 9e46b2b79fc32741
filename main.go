// Command roster-crawler crawls the camara.cl legislator roster.
//
// Architecture overview:
//   - Discovery: the listing page is fetched once with the Colly fetcher and
//     parsed with goquery. Entity links are matched by marker and id
//     parameter; inline scripts are a fallback. References are deduplicated
//     in first-seen order.
//   - Fan-out: the dispatcher runs one fetch+extract task per reference in an
//     errgroup bounded by crawl.concurrency_limit. Every task ends in exactly
//     one outcome slot; failures and panics never cancel siblings.
//   - Extraction: each record field is filled by an ordered chain of
//     strategies (labeled patterns, element probes, paragraph bands)
//     with a default when none match.
//   - Output: outcomes are aggregated, sorted by name, and written as a full
//     and a reduced JSON payload to the local, memory, GCS or S3 backend.
//     Records can be persisted to Postgres or SQLite and a completion notice
//     published to Pub/Sub.
//   - Observability: zap logs, progress events batched into log and
//     Prometheus sinks, and HTTP metrics in serve mode.
//
// Run a batch with `roster-crawler crawl --config config.yaml`, or start the
// HTTP service with `roster-crawler serve`.
package main

import "github.com/JakeFAU/roster-crawler/cmd"

func main() {
	cmd.Execute()
}
