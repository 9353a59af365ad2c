package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/gerente/internal/notify"
	"github.com/florianilch/gerente/internal/session"
)

// DefaultTimeout bounds a single request when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

// RequestIDHeader carries the per-request identifier; a replay reuses it.
const RequestIDHeader = "X-Request-Id"

// Messages of the global notifications.
const (
	MessageInternalError    = "The server hit an internal error. Please try again later."
	MessagePermissionDenied = "You don't have permission to perform this action."
	MessageConnectionError  = "Connection error. Check your network connection."
)

// Renewer exchanges a refresh token for a new access token.
type Renewer interface {
	Renew(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithNotifier sets the receiver of global notifications and session expiry signals.
func WithNotifier(notifier notify.Notifier) Option {
	return func(c *Client) {
		c.notifier = notifier
	}
}

// WithMetrics sets the collectors updated by the client.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCoalescedRenewal makes concurrent 401s holding the same refresh token
// share a single in-flight renewal.
func WithCoalescedRenewal(enabled bool) Option {
	return func(c *Client) {
		c.coalesce = enabled
	}
}

// WithLoginPath sets the path of the login endpoint, relative to the base URL.
func WithLoginPath(path string) Option {
	return func(c *Client) {
		c.loginPath = path
	}
}

// Client is an authenticated API client with automatic token renewal.
type Client struct {
	baseURL    string
	loginPath  string
	httpClient *http.Client
	store      session.Store
	renewer    Renewer
	notifier   notify.Notifier
	metrics    *Metrics
	logger     *slog.Logger
	propagator propagation.TextMapPropagator

	coalesce bool
	renewals singleflight.Group
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, store session.Store, renewer Renewer, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	if store == nil {
		return nil, fmt.Errorf("missing session store")
	}
	if renewer == nil {
		return nil, fmt.Errorf("missing renewer")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		loginPath:  "/token/",
		httpClient: &http.Client{Timeout: DefaultTimeout},
		store:      store,
		renewer:    renewer,
		notifier:   notify.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.propagator == nil {
		c.propagator = otel.GetTextMapPropagator()
	}

	return c, nil
}

// pendingRequest captures an outbound call so it can be replayed after renewal.
type pendingRequest struct {
	method      string
	url         string
	body        []byte
	requestID   string
	accessToken string

	// anonymous requests never carry credentials and never renew
	anonymous bool
}

// withAccessToken returns a copy of the request carrying token.
func (p pendingRequest) withAccessToken(token string) pendingRequest {
	p.accessToken = token
	return p
}

// Request issues method on path (relative to the base URL) with an optional
// JSON body and query parameters.
//
// A nil body sends no body; json.RawMessage is sent verbatim. Returns *Error
// for non-2xx answers and *TransportError when no answer arrived. Errors that
// ended the session also match ErrSessionExpired.
func (c *Client) Request(ctx context.Context, method, path string, body any, query url.Values) (*Response, error) {
	req, err := c.newRequest(method, path, body, query)
	if err != nil {
		return nil, err
	}

	creds, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	// Proceed unauthenticated when no access token is held
	req.accessToken = creds.AccessToken

	return c.attempt(ctx, req, false)
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil, query)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, body, nil)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, body, nil)
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPatch, path, body, nil)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, nil)
}

// newRequest resolves path against the base URL and encodes the body.
func (c *Client) newRequest(method, path string, body any, query url.Values) (pendingRequest, error) {
	target, err := c.resolve(path, query)
	if err != nil {
		return pendingRequest{}, err
	}

	var encoded []byte
	if body != nil {
		encoded, err = json.Marshal(body)
		if err != nil {
			return pendingRequest{}, fmt.Errorf("encoding request body: %w", err)
		}
	}

	return pendingRequest{
		method:    strings.ToUpper(method),
		url:       target,
		body:      encoded,
		requestID: uuid.NewString(),
	}, nil
}

// resolve joins path to the base URL and merges query into any query the path carries.
// Absolute URLs are used as-is.
func (c *Client) resolve(path string, query url.Values) (string, error) {
	raw := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		raw = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if len(query) > 0 {
		merged := u.Query()
		for key, values := range query {
			for _, v := range values {
				merged.Add(key, v)
			}
		}
		u.RawQuery = merged.Encode()
	}
	return u.String(), nil
}

// attempt dispatches req and handles its failure. renewed reports whether req
// is already the replay after a renewal, in which case a 401 is final.
func (c *Client) attempt(ctx context.Context, req pendingRequest, renewed bool) (*Response, error) {
	resp, err := c.dispatch(ctx, req)
	if err != nil {
		c.signal(ctx, err)
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return resp, nil
	}

	apiErr := &Error{
		Method:     req.method,
		URL:        req.url,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}

	if apiErr.StatusCode == http.StatusUnauthorized && !req.anonymous {
		if !renewed {
			return c.renewAndReplay(ctx, req, apiErr)
		}
		// A fresh token was rejected too; the session is not usable
		c.expire(ctx, "access token rejected after renewal")
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, apiErr)
	}

	c.signal(ctx, apiErr)
	return nil, apiErr
}

// renewAndReplay obtains a new access token and replays req exactly once.
func (c *Client) renewAndReplay(ctx context.Context, req pendingRequest, unauthorized *Error) (*Response, error) {
	creds, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	if c.coalesce && creds.AccessToken != "" && creds.AccessToken != req.accessToken {
		// Another request renewed while this one was in flight
		return c.attempt(ctx, req.withAccessToken(creds.AccessToken), true)
	}

	if creds.RefreshToken == "" {
		c.metrics.Renewals.WithLabelValues(renewalMissingRefresh).Inc()
		c.expire(ctx, "no refresh token")
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, unauthorized)
	}

	accessToken, err := c.renew(ctx, req.accessToken, creds)
	if err != nil {
		c.metrics.Renewals.WithLabelValues(renewalFailure).Inc()
		if ctx.Err() != nil {
			// The caller gave up; the refresh token may still be good
			return nil, err
		}
		c.logger.WarnContext(ctx, "access token renewal failed", "error", err)
		c.expire(ctx, "renewal failed")
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, renewalError(err))
	}
	c.metrics.Renewals.WithLabelValues(renewalSuccess).Inc()

	c.logger.DebugContext(ctx, "replaying request with renewed access token", "method", req.method, "url", req.url, "request_id", req.requestID)
	return c.attempt(ctx, req.withAccessToken(accessToken), true)
}

// renew exchanges the refresh token and persists the result. Returns the new
// access token. rejected is the access token the server just refused.
func (c *Client) renew(ctx context.Context, rejected string, creds session.Credentials) (string, error) {
	if !c.coalesce {
		return c.renewOnce(ctx, creds)
	}

	// Shared calls must outlive any single waiter; the renewer bounds them with its own timeout
	ch := c.renewals.DoChan(creds.RefreshToken, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		// A flight that finished just before this one started may already have stored a new token
		if current, err := c.store.Get(shared); err == nil && current.AccessToken != "" && current.AccessToken != rejected {
			return current.AccessToken, nil
		}
		return c.renewOnce(shared, creds)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) renewOnce(ctx context.Context, creds session.Credentials) (string, error) {
	c.logger.DebugContext(ctx, "renewing access token")

	tok, err := c.renewer.Renew(ctx, creds.RefreshToken)
	if err != nil {
		return "", err
	}

	// Persist failure is not fatal to the replay
	if err := c.store.Set(ctx, creds.FromToken(tok)); err != nil {
		c.logger.ErrorContext(ctx, "failed to persist renewed credentials", "error", err)
	}

	return tok.AccessToken, nil
}

// expire purges the session and tells the notifier.
func (c *Client) expire(ctx context.Context, reason string) {
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.ErrorContext(ctx, "failed to purge session", "error", err)
	}
	c.metrics.SessionExpirations.Inc()
	c.logger.InfoContext(ctx, "session expired", "reason", reason)
	c.notifier.SessionExpired(ctx, notify.SessionExpired{
		Reason:   reason,
		Redirect: notify.LoginPath,
	})
}

// signal emits the global notification matching err, if any.
func (c *Client) signal(ctx context.Context, err error) {
	var apiErr *Error
	var transportErr *TransportError

	switch {
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode >= 500:
			c.notify(ctx, notify.Notification{Message: MessageInternalError, Type: notify.TypeError})
		case apiErr.StatusCode == http.StatusForbidden:
			c.notify(ctx, notify.Notification{Message: MessagePermissionDenied, Type: notify.TypeWarning})
		case apiErr.StatusCode == http.StatusNotFound:
			// Commonly benign for reads; the caller decides
			c.logger.WarnContext(ctx, "resource not found", "method", apiErr.Method, "url", apiErr.URL)
		}
	case errors.As(err, &transportErr):
		if errors.Is(err, context.Canceled) {
			return
		}
		c.notify(ctx, notify.Notification{Message: MessageConnectionError, Type: notify.TypeError})
	}
}

func (c *Client) notify(ctx context.Context, n notify.Notification) {
	c.metrics.Notifications.WithLabelValues(string(n.Type)).Inc()
	c.notifier.Notify(ctx, n)
}

// dispatch performs one HTTP round trip for req and reads the whole answer.
func (c *Client) dispatch(ctx context.Context, req pendingRequest) (*Response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(RequestIDHeader, req.requestID)
	if req.accessToken != "" && !req.anonymous {
		(&oauth2.Token{AccessToken: req.accessToken, TokenType: "Bearer"}).SetAuthHeader(httpReq)
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	logger := c.logger
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		logger = logger.With("trace_id", sc.TraceID().String())
	}
	logger.DebugContext(ctx, "dispatching request", "method", req.method, "url", req.url, "request_id", req.requestID, "authenticated", req.accessToken != "" && !req.anonymous)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.Requests.WithLabelValues(req.method, "error").Inc()
		return nil, &TransportError{Method: req.method, URL: req.url, Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	c.metrics.Requests.WithLabelValues(req.method, strconv.Itoa(httpResp.StatusCode)).Inc()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.method, URL: req.url, Err: fmt.Errorf("reading response body: %w", err)}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

// renewalError converts an oauth2 retrieve error into an *Error so callers
// handle renewal rejections like any other API answer.
func renewalError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) || retrieveErr.Response == nil {
		return fmt.Errorf("renewing access token: %w", err)
	}

	apiErr := &Error{
		Method:     http.MethodPost,
		StatusCode: retrieveErr.Response.StatusCode,
		Header:     retrieveErr.Response.Header,
		Body:       retrieveErr.Body,
	}
	if retrieveErr.Response.Request != nil {
		apiErr.URL = retrieveErr.Response.Request.URL.String()
	}
	return apiErr
}
