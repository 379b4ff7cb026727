package service

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/api"
	"github.com/Malyypnrhz7/vote-vault-fhe/coordinator"
	"github.com/Malyypnrhz7/vote-vault-fhe/log"
)

const apiShutdownTimeout = 10 * time.Second

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	coord *coordinator.Coordinator
	api   *api.API
	mu    sync.Mutex
	host  string
	port  int
}

// NewAPI creates a new APIService instance.
func NewAPI(coord *coordinator.Coordinator, host string, port int) *APIService {
	return &APIService{
		coord: coord,
		host:  host,
		port:  port,
	}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api != nil {
		return fmt.Errorf("service already running")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	as.api, err = api.New(&api.APIConfig{
		Host:        as.host,
		Port:        as.port,
		Coordinator: as.coord,
	})
	if err != nil {
		as.api = nil
		return fmt.Errorf("failed to start API server: %w", err)
	}
	// with port 0 the listener picks a free port
	if _, port, err := net.SplitHostPort(as.api.Addr()); err == nil {
		if p, err := strconv.Atoi(port); err == nil {
			as.port = p
		}
	}
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
	defer cancel()
	if err := as.api.Close(ctx); err != nil {
		log.Warnw("API server shutdown failed", "error", err.Error())
	}
	as.api = nil
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.host, as.port
}
