// Package http exposes the orchestrator's inbound commands as JSON over HTTP.
//
// The router serves:
//   - POST /projects, GET|PUT /projects/{id}: projects and their locked zone.
//   - GET|POST /projects/{id}/sessions, POST /projects/{id}/series: scheduling.
//   - GET|PUT|DELETE /sessions/{id}, POST /sessions/{id}/duplicate.
//   - GET /sessions/{id}/live, POST /sessions/{id}/live/{start,end,enqueue,
//     admit,reject,leave,admit-all,token}, GET /sessions/{id}/live/activity.
//   - GET|POST /sessions/{id}/breakouts, POST /sessions/{id}/breakouts/{index}/close,
//     POST /sessions/{id}/breakouts/{index}/extend, POST /sessions/{id}/breakouts/move.
//
// Request and response DTOs live next to their handlers. The surface trusts
// its caller; authentication is handled in front of it.
package http
