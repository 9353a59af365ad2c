package apiclient_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/florianilch/gerente/internal/apiclient"
	"github.com/florianilch/gerente/internal/session"
)

const concurrentRequests = 5

// runConcurrently issues n GETs in parallel and fails the test on any error.
func runConcurrently(t *testing.T, client *apiclient.Client, n int) {
	t.Helper()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Get(context.Background(), "/produtos/", nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("request failed: %v", err)
	}
}

// Without coalescing every request that sees a 401 renews on its own.
func TestConcurrentUnauthorizedRenewIndependently(t *testing.T) {
	srv := httptest.NewServer(tokenGatedHandler(&authRecorder{}, "A2", `[]`))
	defer srv.Close()

	// Hold every renewal until all requests are renewing, so none can
	// observe another's result
	var barrier sync.WaitGroup
	barrier.Add(concurrentRequests)
	renewer := &fakeRenewer{
		token: &oauth2.Token{AccessToken: "A2"},
		before: func() {
			barrier.Done()
			barrier.Wait()
		},
	}

	store := session.NewMemoryStore(session.Credentials{AccessToken: "A1", RefreshToken: "R1"})
	client := newTestClient(t, srv.URL, store, renewer)

	runConcurrently(t, client, concurrentRequests)

	if got := renewer.calls(); got != concurrentRequests {
		t.Errorf("renewals = %d, want %d", got, concurrentRequests)
	}
}

// With coalescing concurrent 401s share one renewal.
func TestConcurrentUnauthorizedShareRenewal(t *testing.T) {
	rec := &authRecorder{}
	srv := httptest.NewServer(tokenGatedHandler(rec, "A2", `[]`))
	defer srv.Close()

	release := make(chan struct{})
	renewer := &fakeRenewer{
		token:  &oauth2.Token{AccessToken: "A2"},
		before: func() { <-release },
	}

	store := session.NewMemoryStore(session.Credentials{AccessToken: "A1", RefreshToken: "R1"})
	client := newTestClient(t, srv.URL, store, renewer, apiclient.WithCoalescedRenewal(true))

	done := make(chan struct{})
	go func() {
		defer close(done)
		runConcurrently(t, client, concurrentRequests)
	}()

	// Release the renewal once at least one request is waiting on it; the
	// rest either join the flight or find the renewed token in the store
	close(release)
	<-done

	if got := renewer.calls(); got != 1 {
		t.Errorf("renewals = %d, want 1", got)
	}

	creds, _ := store.Get(context.Background())
	if creds.AccessToken != "A2" || creds.RefreshToken != "R1" {
		t.Errorf("stored credentials = %+v, want access=A2 refresh=R1", creds)
	}

	replays := 0
	for _, h := range rec.all() {
		if h == "Bearer A2" {
			replays++
		}
	}
	if replays != concurrentRequests {
		t.Errorf("successful replays = %d, want %d", replays, concurrentRequests)
	}
}
