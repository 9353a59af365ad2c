package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ErrNoAccessToken is returned by Claims when no access token is held.
var ErrNoAccessToken = errors.New("no access token")

// Credentials holds the tokens of an authenticated session.
type Credentials struct {
	AccessToken  string `json:"access,omitempty"`
	RefreshToken string `json:"refresh,omitempty"`
}

// IsZero reports whether neither token is present.
func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Token converts the credentials into a bearer oauth2.Token.
// Returns nil if no access token is present.
func (c Credentials) Token() *oauth2.Token {
	if c.AccessToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
	}
}

// FromToken builds Credentials from a token returned by a renewal, keeping
// the current refresh token when the server did not rotate it.
func (c Credentials) FromToken(tok *oauth2.Token) Credentials {
	next := Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = c.RefreshToken
	}
	return next
}

// Claims describes the unverified claims of an access token.
type Claims struct {
	Subject   string
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the access token expiry has passed at now.
// Tokens without an exp claim never expire from the client's point of view.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Claims decodes the access token as a JWT without verifying its signature.
// The result is informational only; the server remains the authority on validity.
func (c Credentials) Claims() (Claims, error) {
	if c.AccessToken == "" {
		return Claims{}, ErrNoAccessToken
	}

	token, _, err := jwt.NewParser().ParseUnverified(c.AccessToken, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("parsing access token: %w", err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	var claims Claims
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	// SimpleJWT puts the user identifier in user_id, usually as a number
	switch v := mapClaims["user_id"].(type) {
	case string:
		claims.UserID = v
	case float64:
		claims.UserID = fmt.Sprintf("%.0f", v)
	}

	return claims, nil
}
