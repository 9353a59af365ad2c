package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/gerente/internal/apiclient"
	"github.com/florianilch/gerente/internal/notify"
)

// SessionStatus is the body of GET /session.
type SessionStatus struct {
	Authenticated bool       `json:"authenticated"`
	UserID        string     `json:"user_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Expired       bool       `json:"expired,omitempty"`
}

// forward relays the request to the backend through the API client.
func (g *Gateway) forward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	path := "/" + r.PathValue("path")

	var body any
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes))
	if err != nil {
		writeJSONError(ctx, w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) > 0 {
		if !json.Valid(data) {
			writeJSONError(ctx, w, "request body must be JSON", http.StatusBadRequest)
			return
		}
		body = json.RawMessage(data)
	}

	resp, err := g.api.Request(ctx, r.Method, path, body, r.URL.Query())
	if err != nil {
		g.writeClientError(w, r, err)
		return
	}

	writeRaw(ctx, w, resp.Header.Get("Content-Type"), resp.Body, resp.StatusCode)
}

// login opens a session with the posted credentials.
func (g *Gateway) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req apiclient.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)).Decode(&req); err != nil {
		writeJSONError(ctx, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := g.api.Login(ctx, req.Username, req.Password); err != nil {
		g.writeClientError(w, r, err)
		return
	}

	g.status(w, r)
}

// logout removes the stored session.
func (g *Gateway) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := g.api.Logout(ctx); err != nil {
		g.logger.ErrorContext(ctx, "logout failed", "error", err)
		writeJSONError(ctx, w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// status reports whether a session is held and what its access token claims.
func (g *Gateway) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	creds, err := g.api.Session(ctx)
	if err != nil {
		g.logger.ErrorContext(ctx, "reading session failed", "error", err)
		writeJSONError(ctx, w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	status := SessionStatus{Authenticated: creds.AccessToken != ""}
	if claims, err := creds.Claims(); err == nil {
		status.UserID = claims.UserID
		if !claims.ExpiresAt.IsZero() {
			status.ExpiresAt = &claims.ExpiresAt
			status.Expired = claims.Expired(time.Now())
		}
	}

	writeJSON(ctx, w, status, http.StatusOK)
}

// stream delivers client events to the caller until it disconnects.
func (g *Gateway) stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sse, err := NewSSEWriter(w)
	if err != nil {
		g.logger.ErrorContext(ctx, "SSE not supported", "error", err)
		writeJSONError(ctx, w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	events, cancel := g.events.Subscribe()
	defer cancel()

	if err := sse.WriteComment("connected"); err != nil {
		return
	}

	heartbeat := time.NewTicker(g.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.DebugContext(ctx, "event subscriber disconnected")
			return
		case <-heartbeat.C:
			if err := sse.WriteComment("heartbeat"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(sse, ev); err != nil {
				g.logger.DebugContext(ctx, "failed to write event", "error", err)
				return
			}
		}
	}
}

func writeEvent(sse *SSEWriter, ev notify.Event) error {
	switch {
	case ev.Notification != nil:
		return sse.WriteEvent("notification", ev.Notification)
	case ev.SessionExpired != nil:
		return sse.WriteEvent("session_expired", ev.SessionExpired)
	default:
		return nil
	}
}

// writeClientError translates an API client error into a gateway response.
// Backend answers pass through with their status and body.
func (g *Gateway) writeClientError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var apiErr *apiclient.Error
	var transportErr *apiclient.TransportError
	var invalid validator.ValidationErrors

	switch {
	case errors.As(err, &apiErr):
		writeRaw(ctx, w, apiErr.Header.Get("Content-Type"), apiErr.Body, apiErr.StatusCode)
	case errors.As(err, &transportErr):
		if ctx.Err() != nil {
			return
		}
		g.logger.WarnContext(ctx, "backend unreachable", "error", err)
		writeJSONError(ctx, w, apiclient.MessageConnectionError, http.StatusBadGateway)
	case errors.As(err, &invalid):
		writeJSONError(ctx, w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, apiclient.ErrSessionExpired):
		writeJSONError(ctx, w, err.Error(), http.StatusUnauthorized)
	default:
		if ctx.Err() != nil {
			return
		}
		g.logger.ErrorContext(ctx, "request failed", "error", err)
		writeJSONError(ctx, w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
