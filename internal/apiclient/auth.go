package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/gerente/internal/session"
)

var validate = validator.New()

// LoginRequest is the body of the login endpoint.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// loginResponse is the token pair issued by the login endpoint.
type loginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Login exchanges a username and password for a token pair and stores it.
//
// The call is sent without credentials and never renews: a 401 here means the
// credentials were rejected and is returned as *Error without touching the
// current session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := LoginRequest{Username: username, Password: password}
	if err := validate.Struct(body); err != nil {
		return fmt.Errorf("invalid login: %w", err)
	}

	req, err := c.newRequest(http.MethodPost, c.loginPath, body, nil)
	if err != nil {
		return err
	}
	req.anonymous = true

	resp, err := c.attempt(ctx, req, true)
	if err != nil {
		return err
	}

	var tokens loginResponse
	if err := resp.Decode(&tokens); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if tokens.Access == "" || tokens.Refresh == "" {
		return fmt.Errorf("login response missing access or refresh token")
	}

	if err := c.store.Set(ctx, session.Credentials{AccessToken: tokens.Access, RefreshToken: tokens.Refresh}); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}

	c.logger.InfoContext(ctx, "logged in", "username", username)
	return nil
}

// Logout removes both tokens from the session store.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	c.logger.InfoContext(ctx, "logged out")
	return nil
}

// Authenticated reports whether an access token is held.
func (c *Client) Authenticated(ctx context.Context) (bool, error) {
	creds, err := c.Session(ctx)
	if err != nil {
		return false, err
	}
	return creds.AccessToken != "", nil
}

// Session returns the currently stored credentials.
func (c *Client) Session(ctx context.Context) (session.Credentials, error) {
	creds, err := c.store.Get(ctx)
	if err != nil {
		return session.Credentials{}, fmt.Errorf("reading session: %w", err)
	}
	return creds, nil
}
