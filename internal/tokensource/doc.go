// Package tokensource exchanges refresh tokens for new access tokens.
//
// The backend's renewal endpoint deviates from standard OAuth2 in ways that
// require custom handling:
//   - The request is a JSON object {"refresh": "..."} instead of a form-encoded
//     refresh_token grant
//   - The response is {"access": "..."} (optionally with a rotated "refresh")
//     instead of {"access_token": ..., "token_type": ...}
//
// A Renewer keeps golang.org/x/oauth2 in charge of the exchange (error
// classification, refresh token retention) and rewrites both directions on the
// wire with a custom transport.
//
// # Usage
//
//	r := tokensource.NewRenewer("https://erp.example.com/api/token/refresh/")
//	tok, err := r.Renew(ctx, refreshToken)
//
// # Custom Base Transport
//
// Configure a custom base transport for renewal requests (e.g., for proxies or tests):
//
//	r := tokensource.NewRenewer(endpoint, tokensource.WithTransport(customTransport))
package tokensource
