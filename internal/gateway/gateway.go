package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/florianilch/gerente/internal/apiclient"
	"github.com/florianilch/gerente/internal/notify"
	"github.com/florianilch/gerente/internal/session"
)

// DefaultHeartbeat is the interval of keep-alive comments on /events.
const DefaultHeartbeat = 30 * time.Second

// DefaultMaxBodyBytes limits forwarded and login request bodies.
const DefaultMaxBodyBytes = 1 << 20

// API is the subset of *apiclient.Client the gateway drives.
type API interface {
	Request(ctx context.Context, method, path string, body any, query url.Values) (*apiclient.Response, error)
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	Session(ctx context.Context) (session.Credentials, error)
}

// Events hands out subscriptions to client notifications. *notify.Broadcaster implements it.
type Events interface {
	Subscribe() (<-chan notify.Event, func())
}

// Registry collects and exposes metrics. *prometheus.Registry implements it.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used for request logging.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithRegistry instruments the routes and serves reg on /metrics.
func WithRegistry(reg Registry) Option {
	return func(g *Gateway) {
		g.registry = reg
	}
}

// WithHeartbeat sets the keep-alive interval of /events.
func WithHeartbeat(interval time.Duration) Option {
	return func(g *Gateway) {
		g.heartbeat = interval
	}
}

// Gateway represents the local HTTP server in front of the API client.
type Gateway struct {
	mux    *http.ServeMux
	server *http.Server
	addr   string

	api       API
	events    Events
	logger    *slog.Logger
	registry  Registry
	heartbeat time.Duration
}

// Compile-time check that Gateway implements http.Handler
var _ http.Handler = (*Gateway)(nil)

// New creates a Gateway serving api and events.
func New(api API, events Events, opts ...Option) (*Gateway, error) {
	if api == nil {
		return nil, fmt.Errorf("missing API client")
	}
	if events == nil {
		return nil, fmt.Errorf("missing event source")
	}

	g := &Gateway{
		mux:       http.NewServeMux(),
		api:       api,
		events:    events,
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}

	routes := []struct {
		pattern string
		name    string
		handler http.Handler
	}{
		{"/api/{path...}", "api", http.HandlerFunc(g.forward)},
		{"POST /session", "session", http.HandlerFunc(g.login)},
		{"GET /session", "session", http.HandlerFunc(g.status)},
		{"DELETE /session", "session", http.HandlerFunc(g.logout)},
		{"GET /events", "events", http.HandlerFunc(g.stream)},
	}

	var requests *prometheus.CounterVec
	if g.registry != nil {
		requests = promauto.With(g.registry).NewCounterVec(prometheus.CounterOpts{
			Name: "gerente_gateway_requests_total",
			Help: "Total number of gateway requests, by route, method and status code",
		}, []string{"route", "method", "code"})
		g.mux.Handle("GET /metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}

	for _, route := range routes {
		h := route.handler
		if requests != nil {
			h = promhttp.InstrumentHandlerCounter(requests.MustCurryWith(prometheus.Labels{"route": route.name}), h)
		}
		g.mux.Handle(route.pattern, applyMiddlewares(h,
			Logging(g.logger),
			Recovery,
		))
	}

	return g, nil
}

// ServeHTTP implements http.Handler interface
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (g *Gateway) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	g.addr = listener.Addr().String()
	g.server = &http.Server{
		Handler:     g,
		ReadTimeout: 30 * time.Second, // Inbound: Read entire client request
		// No WriteTimeout: /events streams for as long as the subscriber stays connected
		IdleTimeout: 90 * time.Second, // Inbound: Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := g.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Addr returns the address the server listens on, or "" before Start.
func (g *Gateway) Addr() string {
	return g.addr
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	if err := g.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = g.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
