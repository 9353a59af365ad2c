package session

import (
	"fmt"
	"os"
)

// EnvStore seeds a session from environment variables.
//
// Environment variables are read-only: renewed and cleared credentials live in
// process memory only, so a restarted process starts again from the seed.
type EnvStore struct {
	*MemoryStore
}

// Compile-time check to ensure EnvStore implements Store
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore from the variables accessKey and refreshKey.
// The refresh token variable must be set; the access token may be left out and
// is obtained by renewal on the first 401.
func NewEnvStore(accessKey, refreshKey string) (*EnvStore, error) {
	if refreshKey == "" {
		return nil, fmt.Errorf("refresh token environment key cannot be empty")
	}

	refresh := os.Getenv(refreshKey)
	if refresh == "" {
		return nil, fmt.Errorf("environment variable %s not set", refreshKey)
	}

	var access string
	if accessKey != "" {
		access = os.Getenv(accessKey)
	}

	return &EnvStore{
		MemoryStore: NewMemoryStore(Credentials{AccessToken: access, RefreshToken: refresh}),
	}, nil
}
