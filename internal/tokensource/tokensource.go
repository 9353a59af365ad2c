package tokensource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a single renewal round trip.
const DefaultTimeout = 30 * time.Second

// ErrMissingRefreshToken is returned when Renew is called without a refresh token.
var ErrMissingRefreshToken = errors.New("missing refresh token")

// RenewerOption configures a Renewer.
type RenewerOption func(*renewerConfig)

// renewerConfig holds configuration for NewRenewer.
type renewerConfig struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
}

// WithTransport sets a custom base transport for renewal requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) RenewerOption {
	return func(c *renewerConfig) {
		c.baseTransport = transport
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) RenewerOption {
	return func(c *renewerConfig) {
		c.timeout = timeout
	}
}

// Renewer exchanges refresh tokens for access tokens at a fixed endpoint.
// It is safe for concurrent use; every call performs its own exchange.
type Renewer struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewRenewer creates a Renewer for the given renewal endpoint URL.
func NewRenewer(tokenURL string, opts ...RenewerOption) *Renewer {
	cfg := &renewerConfig{
		baseTransport: http.DefaultTransport,
		timeout:       DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Renewer{
		config: &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		// HTTP client with JSON transport (wraps provided or default transport for connection pooling)
		httpClient: &http.Client{
			Timeout: cfg.timeout,
			Transport: &tokenRefreshTransport{
				base: cfg.baseTransport,
			},
		},
	}
}

// Renew exchanges refreshToken for a new access token.
//
// The returned token keeps refreshToken unless the server rotated it.
// Non-2xx answers from the endpoint are returned as *oauth2.RetrieveError.
func (r *Renewer) Renew(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrMissingRefreshToken
	}

	// oauth2 picks up a custom HTTP client from the context (oauth2.HTTPClient key)
	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	// An empty access token forces the token source to refresh immediately
	tok, err := r.config.TokenSource(oauthCtx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// tokenRefreshTransport converts oauth2's form-encoded refresh requests into
// the backend's JSON format and maps the JSON answer back into the standard
// token response that oauth2 parses.
// The oauth2 package guarantees this transport only receives token endpoint requests.
type tokenRefreshTransport struct {
	base http.RoundTripper
}

// Compile-time check that tokenRefreshTransport implements http.RoundTripper.
var _ http.RoundTripper = (*tokenRefreshTransport)(nil)

// renewalRequest is the body accepted by the renewal endpoint.
type renewalRequest struct {
	Refresh string `json:"refresh"`
}

// renewalResponse is the body returned by the renewal endpoint.
type renewalResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// standardTokenResponse is the RFC 6749 shape oauth2 expects.
type standardTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// RoundTrip rewrites the refresh request to JSON and normalizes a successful answer.
func (t *tokenRefreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Defer close since we consume the body entirely and create a new body for the cloned request.
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	formData, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}

	jsonBody, err := json.Marshal(renewalRequest{Refresh: formData.Get("refresh_token")})
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON request: %w", err)
	}

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(bytes.NewReader(jsonBody))
	newReq.ContentLength = int64(len(jsonBody))
	newReq.Header.Set("Content-Type", "application/json")
	newReq.Header.Set("Accept", "application/json")

	resp, err := t.base.RoundTrip(newReq)
	if err != nil {
		return nil, err
	}

	// Error bodies pass through untouched; oauth2 wraps them in RetrieveError
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}

	return normalizeResponse(resp)
}

// normalizeResponse replaces the body of a successful renewal answer with the
// standard token response. Answers that don't decode are passed on unchanged so
// oauth2 reports them.
func normalizeResponse(resp *http.Response) (*http.Response, error) {
	original := resp.Body
	defer func() { _ = original.Close() }()
	raw, err := io.ReadAll(original)
	if err != nil {
		return nil, fmt.Errorf("reading renewal response: %w", err)
	}

	var renewed renewalResponse
	if err := json.Unmarshal(raw, &renewed); err != nil || renewed.Access == "" {
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return resp, nil
	}

	normalized, err := json.Marshal(standardTokenResponse{
		AccessToken:  renewed.Access,
		TokenType:    "Bearer",
		RefreshToken: renewed.Refresh,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling token response: %w", err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(normalized))
	resp.ContentLength = int64(len(normalized))
	resp.Header = resp.Header.Clone()
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set("Content-Type", "application/json")
	resp.Header.Del("Content-Length")
	return resp, nil
}
