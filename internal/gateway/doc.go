// Package gateway exposes the authenticated API client over a local HTTP
// server.
//
// Routes:
//
//	ANY    /api/{path...}  forward to the backend through the client
//	POST   /session        log in with {"username", "password"}
//	GET    /session        current session status
//	DELETE /session        log out
//	GET    /events         notifications and session expiry as Server-Sent Events
//	GET    /metrics        Prometheus exposition (when a registry is configured)
//
// Local callers never see tokens: credentials live in the client's session
// store and renewal happens behind the forwarded request.
package gateway
