package rpc

// This package contains the Web3Pool struct, which is a pool of Web3Endpoint
// instances grouped by chainID. It provides an implementation of the
// bind.ContractBackend and bind.DeployBackend interfaces for a given chainID
// (Client) that balances the load between the available endpoints and
// switches to the next one when an endpoint fails, flagging the failing one as
// disabled. If every endpoint of a chainID is disabled, the flags are reset and
// the pool starts again.

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	// DefaultMaxWeb3ClientRetries is the default number of retries to connect to
	// a web3 provider.
	DefaultMaxWeb3ClientRetries = 3
	// checkWeb3EndpointsTimeout is the timeout to check the web3 endpoints.
	checkWeb3EndpointsTimeout = time.Second * 10
)

// EthBackend is the subset of *ethclient.Client used by the pool.
type EthBackend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// Dialer opens a backend for the given URI.
type Dialer func(ctx context.Context, uri string) (EthBackend, error)

// Web3Endpoint is a single web3 provider of a chain.
type Web3Endpoint struct {
	ChainID uint64 `json:"chainId"`
	URI     string `json:"uri"`
	client  EthBackend
}

// Web3Pool struct contains a map of chainID-*Web3Iterator, where the key is
// the chainID and the value is the list of endpoints of that chain.
type Web3Pool struct {
	mu        sync.RWMutex
	endpoints map[uint64]*Web3Iterator
	dial      Dialer
}

// NewWeb3Pool method returns a new *Web3Pool instance dialing endpoints with
// ethclient.
func NewWeb3Pool() *Web3Pool {
	return NewWeb3PoolWithDialer(dialEthClient)
}

// NewWeb3PoolWithDialer returns a pool that opens endpoints with the given
// dialer.
func NewWeb3PoolWithDialer(dial Dialer) *Web3Pool {
	return &Web3Pool{
		endpoints: make(map[uint64]*Web3Iterator),
		dial:      dial,
	}
}

// AddEndpoint method adds a new web3 provider URI to the Web3Pool.
// It returns the chainID of the endpoint added to the pool.
func (nm *Web3Pool) AddEndpoint(uri string) (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), checkWeb3EndpointsTimeout)
	defer cancel()
	client, err := nm.connect(ctx, uri)
	if err != nil {
		return 0, err
	}
	// get the chainID from the web3 endpoint
	bChainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return 0, fmt.Errorf("error getting the chainID from the web3 provider '%s': %w", uri, err)
	}
	chainID := bChainID.Uint64()
	endpoint := &Web3Endpoint{
		ChainID: chainID,
		URI:     uri,
		client:  client,
	}
	nm.mu.Lock()
	defer nm.mu.Unlock()
	if _, ok := nm.endpoints[chainID]; !ok {
		nm.endpoints[chainID] = NewWeb3Iterator(endpoint)
	} else {
		nm.endpoints[chainID].Add(endpoint)
	}
	log.Debugw("web3 endpoint added", "chainId", chainID, "uri", uri)
	return chainID, nil
}

// DelEndpoint method disables a web3 provider URI in every chain.
func (nm *Web3Pool) DelEndpoint(uri string) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	for _, endpoints := range nm.endpoints {
		endpoints.Disable(uri)
	}
}

// Endpoint method returns the next available Web3Endpoint configured for the
// chainID provided. If no available endpoint is found, returns an error.
func (nm *Web3Pool) Endpoint(chainID uint64) (*Web3Endpoint, error) {
	nm.mu.RLock()
	endpoints, ok := nm.endpoints[chainID]
	nm.mu.RUnlock()
	if ok {
		return endpoints.Next()
	}
	return nil, fmt.Errorf("no endpoint found for chainID %d", chainID)
}

// DisableEndpoint method sets the available flag to false for the URI provided
// in the chainID provided.
func (nm *Web3Pool) DisableEndpoint(chainID uint64, uri string) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if endpoints, ok := nm.endpoints[chainID]; ok {
		endpoints.Disable(uri)
	}
}

// NumberOfEndpoints method returns the total number (or just the available ones)
// of endpoints for the chainID provided.
func (nm *Web3Pool) NumberOfEndpoints(chainID uint64, onlyAvailable bool) int {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if endpoints, ok := nm.endpoints[chainID]; ok {
		n := endpoints.Available()
		if !onlyAvailable {
			n += endpoints.Disabled()
		}
		return n
	}
	return 0
}

// Client method returns a new *Client instance for the chainID provided.
// It returns an error if the endpoint is not found.
func (nm *Web3Pool) Client(chainID uint64) (*Client, error) {
	if _, err := nm.Endpoint(chainID); err != nil {
		return nil, fmt.Errorf("error getting endpoint for chainID %d: %w", chainID, err)
	}
	return &Client{w3p: nm, chainID: chainID}, nil
}

// Close closes every endpoint client of the pool.
func (nm *Web3Pool) Close() {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	for chainID, endpoints := range nm.endpoints {
		endpoints.each(func(e *Web3Endpoint) { e.client.Close() })
		delete(nm.endpoints, chainID)
	}
}

// connect method dials the URI provided. It retries up to
// DefaultMaxWeb3ClientRetries times.
func (nm *Web3Pool) connect(ctx context.Context, uri string) (client EthBackend, err error) {
	for i := 0; i < DefaultMaxWeb3ClientRetries; i++ {
		if client, err = nm.dial(ctx, uri); err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return client, nil
	}
	return nil, fmt.Errorf("error dialing web3 provider uri '%s': %w", uri, err)
}

func dialEthClient(ctx context.Context, uri string) (EthBackend, error) {
	return ethclient.DialContext(ctx, uri)
}
