// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawl to enqueue URLs on the worker pool.
//   - GET /v1/pool for pool and crawl counters.
//   - GET /v1/sweep and PUT /v1/sweep/interval to inspect and retune the
//     periodic re-crawl.
//   - GET /v1/notifications for link events kept in memory.
package api
