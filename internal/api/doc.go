// Package api exposes the scholarship search over HTTP.
//
// Routes:
//
//	GET  /healthz
//	GET  /readyz
//	GET  /metrics
//	GET  /v1/opportunities?goal=&keywords=a,b&country=&user_id=&limit=
//	POST /v1/sources               {"url", "added_by", "is_public"}
//	GET  /v1/sources?user_id=
//	POST /v1/refreshes             {"goal", "country", "user_id"}
//	GET  /v1/refreshes?limit=
//	GET  /v1/refreshes/{run_id}
package api
