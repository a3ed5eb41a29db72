// Package query exposes the read-only query API of the sync engines over
// HTTP.
//
// # Routes
//
//   - GET /links: every link with its engine state
//   - GET /links/:id/nodes: every node of a link
//   - GET /links/:id/query?path=docs/a.txt: one node with its per-storage
//     properties, names, desired storages and equivalents
//   - GET /links/:id/storage-path?path=...: display path on each remote
//   - GET /links/:id/share?path=...: share state inherited from ancestors
//   - GET /queue: pending and running task counts
//   - GET /metrics: Prometheus metrics of the task pipeline
//
// Unknown links and paths answer 404, a stopped engine 503.
package query
