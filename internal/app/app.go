package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/gerente/internal/apiclient"
	"github.com/florianilch/gerente/internal/gateway"
	"github.com/florianilch/gerente/internal/notify"
	"github.com/florianilch/gerente/internal/session"
	"github.com/florianilch/gerente/internal/tokensource"
)

// eventBuffer is the number of events a slow /events subscriber may lag behind.
const eventBuffer = 32

// App wires the session store, the API client and the gateway, and
// orchestrates the lifecycle of the gateway server.
type App struct {
	cfg      *Config
	store    session.Store
	events   *notify.Broadcaster
	registry *prometheus.Registry
	client   *apiclient.Client
}

// New creates a new App instance. The session store is opened here; Close
// releases it.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := cfg.Session.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	events := notify.NewBroadcaster(eventBuffer)

	renewer := tokensource.NewRenewer(cfg.API.RefreshURL(), tokensource.WithTimeout(cfg.API.Timeout))

	client, err := apiclient.New(cfg.API.BaseURL, store, renewer,
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		apiclient.WithLoginPath(cfg.API.LoginPath),
		apiclient.WithCoalescedRenewal(cfg.CoalesceRenewals()),
		apiclient.WithNotifier(notify.Multi{&notify.LogNotifier{}, events}),
		apiclient.WithMetrics(apiclient.NewMetrics(registry)),
	)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	return &App{
		cfg:      cfg,
		store:    store,
		events:   events,
		registry: registry,
		client:   client,
	}, nil
}

// Client returns the authenticated API client.
func (a *App) Client() *apiclient.Client {
	return a.client
}

// Events returns the broadcaster fed by the client's notifications.
func (a *App) Events() *notify.Broadcaster {
	return a.events
}

// Close releases the session store.
func (a *App) Close() error {
	if closer, ok := a.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Start starts the gateway and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	gw, err := gateway.New(a.client, a.events,
		gateway.WithLogger(slog.Default()),
		gateway.WithRegistry(a.registry),
	)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting gateway", "address", address, "api", a.cfg.API.BaseURL)
	gatewayErrCh, err := gw.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("gateway startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, gw.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-gatewayErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "gateway runtime error", "error", err)
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", gw.Addr())

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

func closeStore(store session.Store) {
	if closer, ok := store.(io.Closer); ok {
		_ = closer.Close()
	}
}
