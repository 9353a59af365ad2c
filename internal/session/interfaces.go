package session

import "context"

// Store reads and writes session credentials to persistent storage.
//
// Implementations must be safe for concurrent use. Get returns the zero
// Credentials (and no error) when nothing is stored.
type Store interface {
	// Get returns the stored credentials.
	Get(ctx context.Context) (Credentials, error)

	// Set replaces the stored credentials with creds.
	Set(ctx context.Context, creds Credentials) error

	// Clear removes both tokens in a single operation.
	// Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
