package session_test

import (
	"context"
	"testing"

	"github.com/florianilch/gerente/internal/session"
)

func TestEnvStore(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds from environment", func(t *testing.T) {
		t.Setenv("TEST_ERP_ACCESS", "A1")
		t.Setenv("TEST_ERP_REFRESH", "R1")

		store, err := session.NewEnvStore("TEST_ERP_ACCESS", "TEST_ERP_REFRESH")
		if err != nil {
			t.Fatalf("NewEnvStore: %v", err)
		}
		got, err := store.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != (session.Credentials{AccessToken: "A1", RefreshToken: "R1"}) {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("renewals stay in memory", func(t *testing.T) {
		t.Setenv("TEST_ERP_REFRESH", "R1")

		store, err := session.NewEnvStore("", "TEST_ERP_REFRESH")
		if err != nil {
			t.Fatalf("NewEnvStore: %v", err)
		}
		if err := store.Set(ctx, session.Credentials{AccessToken: "A2", RefreshToken: "R1"}); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if got, _ := store.Get(ctx); got.AccessToken != "A2" {
			t.Errorf("access token = %q, want A2", got.AccessToken)
		}
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if got, _ := store.Get(ctx); !got.IsZero() {
			t.Errorf("credentials after clear = %+v", got)
		}
	})

	t.Run("missing refresh token", func(t *testing.T) {
		t.Setenv("TEST_ERP_REFRESH", "")
		if _, err := session.NewEnvStore("TEST_ERP_ACCESS", "TEST_ERP_REFRESH"); err == nil {
			t.Error("expected error for unset refresh variable")
		}
		if _, err := session.NewEnvStore("TEST_ERP_ACCESS", ""); err == nil {
			t.Error("expected error for empty key")
		}
	})
}
