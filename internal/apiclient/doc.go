// Package apiclient issues authenticated requests to the business REST API.
//
// Every call reads the session store and attaches "Authorization: Bearer
// <access>" when an access token is present. A 401 answer triggers one renewal
// with the stored refresh token and a single replay of the original request;
// the caller only sees the 401 when renewal is impossible or the replay fails
// again. Renewal failures purge the session and emit a SessionExpired signal.
//
// Failures that don't end the session are reported to the injected
// notify.Notifier so a display surface can react without every caller wiring
// its own handler:
//   - 5xx: error notification
//   - 403: warning notification
//   - no response: error notification
//   - 400 and 404: nothing, left to the caller
//
// Notifications are always in addition to the returned error, never instead of it.
//
// # Concurrency
//
// A Client is safe for concurrent use. Each request decides on renewal on its
// own. With WithCoalescedRenewal, concurrent 401s that hold the same refresh
// token share one in-flight renewal instead of each calling the endpoint.
package apiclient
