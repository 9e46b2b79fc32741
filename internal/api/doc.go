// Package api hosts the HTTP server, middleware, and REST handlers of the
// serve mode. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start a crawl, GET /v1/runs/latest for its report.
//   - GET /v1/records for the reduced payload of the latest run, or the
//     stored records of a past run when a record reader is configured.
package api
