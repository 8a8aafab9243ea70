// Package api serves the progress of a recovery run over HTTP.
//
// Endpoints:
//
//	GET /api/status   current phase, leader and outcome
//	GET /api/members  members of the plan with their lifecycle state
//	GET /api/metrics  per-operation counters and latencies
//	GET /api/report   final report of the last run (404 before it finishes)
//	GET /api/events   retained progress events
//	    /ws           WebSocket stream of progress events
//
// The server is read-only: it cannot start or cancel a run.
package api
