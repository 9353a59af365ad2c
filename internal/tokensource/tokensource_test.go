package tokensource_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"

	"github.com/florianilch/gerente/internal/tokensource"
)

// renewalServer records the last renewal body and answers with the given status and body.
func renewalServer(t *testing.T, status int, response string, gotBody *map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		body := map[string]string{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding renewal body: %v", err)
		}
		if gotBody != nil {
			*gotBody = body
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRenewSuccess(t *testing.T) {
	var body map[string]string
	srv := renewalServer(t, http.StatusOK, `{"access":"A2"}`, &body)

	tok, err := tokensource.NewRenewer(srv.URL+"/token/refresh/").Renew(context.Background(), "R1")
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}

	if len(body) != 1 || body["refresh"] != "R1" {
		t.Errorf("renewal body = %v, want exactly {refresh: R1}", body)
	}
	if tok.AccessToken != "A2" {
		t.Errorf("AccessToken = %q, want A2", tok.AccessToken)
	}
	if tok.RefreshToken != "R1" {
		t.Errorf("RefreshToken = %q, want retained R1", tok.RefreshToken)
	}
	if tok.Type() != "Bearer" {
		t.Errorf("Type = %q, want Bearer", tok.Type())
	}
}

func TestRenewRotatedRefreshToken(t *testing.T) {
	srv := renewalServer(t, http.StatusOK, `{"access":"A2","refresh":"R2"}`, nil)

	tok, err := tokensource.NewRenewer(srv.URL).Renew(context.Background(), "R1")
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if tok.RefreshToken != "R2" {
		t.Errorf("RefreshToken = %q, want rotated R2", tok.RefreshToken)
	}
}

func TestRenewFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		response   string
		wantStatus int
	}{
		{
			name:       "expired refresh token",
			status:     http.StatusUnauthorized,
			response:   `{"detail":"Token is invalid or expired","code":"token_not_valid"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			response:   `{"detail":"boom"}`,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := renewalServer(t, tt.status, tt.response, nil)

			_, err := tokensource.NewRenewer(srv.URL).Renew(context.Background(), "R1")
			var retrieveErr *oauth2.RetrieveError
			if !errors.As(err, &retrieveErr) {
				t.Fatalf("expected *oauth2.RetrieveError, got %T: %v", err, err)
			}
			if retrieveErr.Response.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", retrieveErr.Response.StatusCode, tt.wantStatus)
			}
			if string(retrieveErr.Body) != tt.response {
				t.Errorf("body = %s, want %s", retrieveErr.Body, tt.response)
			}
		})
	}
}

func TestRenewMalformedSuccess(t *testing.T) {
	srv := renewalServer(t, http.StatusOK, `{"unexpected":true}`, nil)

	if _, err := tokensource.NewRenewer(srv.URL).Renew(context.Background(), "R1"); err == nil {
		t.Fatal("expected error for response without access token")
	}
}

func TestRenewWithoutRefreshToken(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := tokensource.NewRenewer(srv.URL).Renew(context.Background(), "")
	if !errors.Is(err, tokensource.ErrMissingRefreshToken) {
		t.Errorf("expected ErrMissingRefreshToken, got %v", err)
	}
	if called {
		t.Error("renewal endpoint must not be called without a refresh token")
	}
}

func TestRenewUsesCustomTransport(t *testing.T) {
	srv := renewalServer(t, http.StatusOK, `{"access":"A2"}`, nil)

	counting := &countingTransport{base: http.DefaultTransport}
	r := tokensource.NewRenewer(srv.URL, tokensource.WithTransport(counting))
	if _, err := r.Renew(context.Background(), "R1"); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if counting.calls != 1 {
		t.Errorf("transport calls = %d, want 1", counting.calls)
	}
}

type countingTransport struct {
	base  http.RoundTripper
	calls int
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	return c.base.RoundTrip(req)
}
