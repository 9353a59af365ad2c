// Package session provides persistent storage for the credentials of an
// authenticated API session.
//
// A session is a pair of tokens: a short-lived access token attached to every
// outbound call and a longer-lived refresh token used only to mint a new access
// token. Both live in a single Store so they are always replaced and purged
// together.
//
// Supported backends with different durability and deployment tradeoffs:
//   - Memory: process-local, lost on exit (tests, ephemeral gateways)
//   - File: JSON document on the local filesystem with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Bolt: embedded bbolt database, both keys written in one transaction
package session
