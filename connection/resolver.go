// Package connection decides how the client talks to the voting ledger: a
// local demo ledger, a read only live ledger or a signing live ledger.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Malyypnrhz7/vote-vault-fhe/config"
	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/Malyypnrhz7/vote-vault-fhe/wallet"
	"github.com/Malyypnrhz7/vote-vault-fhe/web3"
	"github.com/ethereum/go-ethereum/common"
)

// Dialer builds a read only gateway to the ledger.
type Dialer func(ctx context.Context) (web3.LedgerGateway, error)

// Resolver owns the ledger gateway and the connection state.
type Resolver struct {
	ledger common.Address
	dial   Dialer

	mu      sync.RWMutex
	state   types.ConnectionState
	gateway web3.LedgerGateway
	account common.Address
}

// New returns a resolver for the ledger at address. A zero address always
// resolves to demo mode.
func New(ledger common.Address, dial Dialer) *Resolver {
	return &Resolver{ledger: ledger, dial: dial}
}

// NewFromConfig returns a resolver dialing the configured web3 endpoints.
// Signers are only obtained through probe.
func NewFromConfig(cfg *config.Config, probe wallet.Probe) *Resolver {
	return New(cfg.ContractAddress, func(context.Context) (web3.LedgerGateway, error) {
		contracts, err := web3.NewContracts(cfg.ContractAddress, cfg.ChainID, cfg.RPCURLs, web3.Options{
			Probe:       probe,
			CallTimeout: cfg.CallTimeout,
			TxTimeout:   cfg.TxTimeout,
		})
		if err != nil {
			return nil, err
		}
		return contracts, nil
	})
}

// Ledger returns the configured ledger address.
func (r *Resolver) Ledger() common.Address {
	return r.ledger
}

// State returns the current connection state.
func (r *Resolver) State() types.ConnectionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Gateway returns the live ledger gateway, nil unless the state is live.
func (r *Resolver) Gateway() web3.LedgerGateway {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gateway
}

// Account returns the signing account, the zero address when not signing.
func (r *Resolver) Account() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.account
}

// Resolve establishes the connection if it is not established yet and returns
// the resulting state. It never fails: any problem building the live
// connection ends in demo mode.
func (r *Resolver) Resolve(ctx context.Context) types.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != types.Uninitialized {
		return r.state
	}
	if r.ledger == (common.Address{}) {
		log.Infow("no ledger address configured, using demo mode")
		r.state = types.DemoMode
		return r.state
	}

	gw, err := r.safeDial(ctx)
	if err != nil {
		log.Warnw("cannot connect to the ledger, using demo mode", "ledger", r.ledger.Hex(), "error", err)
		r.state = types.DemoMode
		return r.state
	}
	r.gateway = gw
	r.state = types.LiveReadOnly
	addr, err := safeUpgrade(ctx, gw)
	if err != nil {
		log.Infow("ledger connected read only", "ledger", r.ledger.Hex(), "reason", err.Error())
		return r.state
	}
	r.account = addr
	r.state = types.LiveSigning
	log.Infow("ledger connected", "ledger", r.ledger.Hex(), "account", addr.Hex())
	return r.state
}

// Upgrade turns a read only live connection into a signing one and returns
// the signing account. It fails with ErrNotConnected when no signer is
// available or the connection is not live.
func (r *Resolver) Upgrade(ctx context.Context) (common.Address, error) {
	r.mu.RLock()
	state, gw, account := r.state, r.gateway, r.account
	r.mu.RUnlock()
	switch state {
	case types.LiveSigning:
		return account, nil
	case types.LiveReadOnly:
	default:
		return common.Address{}, fmt.Errorf("%w: connection is %s", types.ErrNotConnected, state)
	}

	addr, err := safeUpgrade(ctx, gw)
	if err != nil {
		return common.Address{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// a concurrent Disconnect wins
	if r.gateway == gw {
		r.account = addr
		r.state = types.LiveSigning
	}
	return addr, nil
}

// Disconnect releases the gateway and resets the state to Uninitialized.
func (r *Resolver) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gateway != nil {
		r.gateway.Close()
	}
	r.gateway = nil
	r.account = common.Address{}
	r.state = types.Uninitialized
	log.Infow("ledger disconnected")
}

func (r *Resolver) safeDial(ctx context.Context) (gw web3.LedgerGateway, err error) {
	defer func() {
		if p := recover(); p != nil {
			gw, err = nil, fmt.Errorf("ledger dial panic: %v", p)
		}
	}()
	if r.dial == nil {
		return nil, errors.New("no ledger dialer")
	}
	gw, err = r.dial(ctx)
	if err == nil && gw == nil {
		err = errors.New("no gateway returned")
	}
	return gw, err
}

func safeUpgrade(ctx context.Context, gw web3.LedgerGateway) (addr common.Address, err error) {
	defer func() {
		if p := recover(); p != nil {
			addr, err = common.Address{}, fmt.Errorf("%w: signer probe panic: %v", types.ErrNotConnected, p)
		}
	}()
	return gw.Upgrade(ctx)
}
