package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/coordinator"
	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultRequestTimeout bounds every request. Ledger writes wait until
	// the transaction is mined, so it must be larger than the tx timeout.
	DefaultRequestTimeout = 4 * time.Minute
	// DefaultWritesPerMinute is the number of write requests allowed per
	// client and minute.
	DefaultWritesPerMinute = 30
	// DefaultWriteBurst is the burst of write requests allowed per client.
	DefaultWriteBurst = 5

	maxBodySize = 64 * 1024
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host        string
	Port        int
	Coordinator *coordinator.Coordinator

	RequestTimeout  time.Duration
	WritesPerMinute float64
	WriteBurst      int
}

// API type represents the API HTTP server.
type API struct {
	router   *chi.Mux
	coord    *coordinator.Coordinator
	limiter  *rateLimiter
	timeout  time.Duration
	server   *http.Server
	listener net.Listener
}

// New creates a new API instance with the given configuration and starts
// the HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Coordinator == nil {
		return nil, fmt.Errorf("missing coordinator instance")
	}
	a := NewHandler(conf)

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", conf.Host, conf.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "address", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
	return a, nil
}

// NewHandler creates the API router without starting any server.
func NewHandler(conf *APIConfig) *API {
	a := &API{
		coord:   conf.Coordinator,
		timeout: conf.RequestTimeout,
	}
	if a.timeout <= 0 {
		a.timeout = DefaultRequestTimeout
	}
	perMinute, burst := conf.WritesPerMinute, conf.WriteBurst
	if perMinute <= 0 {
		perMinute = DefaultWritesPerMinute
	}
	if burst <= 0 {
		burst = DefaultWriteBurst
	}
	a.limiter = newRateLimiter(perMinute, burst)
	a.initRouter()
	return a
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the address the server listens on, empty if not listening.
func (a *API) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Close gracefully stops the HTTP server.
func (a *API) Close(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", MetricsEndpoint, "method", "GET")
	a.router.Method(http.MethodGet, MetricsEndpoint, promhttp.Handler())
	log.Infow("register handler", "endpoint", StateEndpoint, "method", "GET")
	a.router.Get(StateEndpoint, a.state)

	log.Infow("register handler", "endpoint", ProposalsEndpoint, "method", "GET")
	a.router.Get(ProposalsEndpoint, a.proposals)
	log.Infow("register handler", "endpoint", ProposalEndpoint, "method", "GET")
	a.router.Get(ProposalEndpoint, a.proposal)
	log.Infow("register handler", "endpoint", ProposalTalliesEndpoint, "method", "GET")
	a.router.Get(ProposalTalliesEndpoint, a.tallies)
	log.Infow("register handler", "endpoint", ProposalVotedEndpoint, "method", "GET")
	a.router.Get(ProposalVotedEndpoint, a.voted)

	// writes are rate limited per client
	a.router.Group(func(r chi.Router) {
		r.Use(a.limiter.Handler)
		log.Infow("register handler", "endpoint", ProposalsEndpoint, "method", "POST")
		r.Post(ProposalsEndpoint, a.newProposal)
		log.Infow("register handler", "endpoint", ProposalsEndEndpoint, "method", "POST")
		r.Post(ProposalsEndEndpoint, a.endAll)
		log.Infow("register handler", "endpoint", ProposalVotesEndpoint, "method", "POST")
		r.Post(ProposalVotesEndpoint, a.castVote)
		log.Infow("register handler", "endpoint", ProposalEndEndpoint, "method", "POST")
		r.Post(ProposalEndEndpoint, a.endProposal)
	})
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(requestID)
	a.router.Use(logRequests)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(a.timeout))
	a.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrResourceNotFound.Write(w)
	})

	// Register the API handlers
	a.registerHandlers()
}
