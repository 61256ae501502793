// Package server exposes the orchestrator over HTTP for the serve command.
//
// Routes:
//
//	POST /v1/operations  run one operation, body {"kind": ..., "options": {...}}
//	GET  /v1/metrics     metrics snapshot as JSON
//	GET  /v1/status      executor, resolver and cache state
//	GET  /v1/history     recent journal records (when history is enabled)
//	GET  /metrics        Prometheus exposition
//	GET  /health         liveness
//
// Operation results are returned as 200 whether or not they succeeded; the
// body carries success and the failure explanation. Malformed requests get
// 400, operations rejected by validation get 422 and permission failures get
// 403.
package server
