package web3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/Malyypnrhz7/vote-vault-fhe/wallet"
	"github.com/Malyypnrhz7/vote-vault-fhe/web3/rpc"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultCallTimeout bounds a single ledger read.
	DefaultCallTimeout = 15 * time.Second
	// DefaultTxTimeout bounds a ledger write, mining included.
	DefaultTxTimeout = 3 * time.Minute
	// DefaultMaxLogRange is the widest block range of a single log query.
	DefaultMaxLogRange = 5000
)

// LedgerGateway is the contract over the VoteVaultFHE ledger. Reads work on a
// read only connection; writes need a signer and try to upgrade the
// connection before failing with types.ErrNotConnected.
type LedgerGateway interface {
	Address() common.Address
	Signing() bool
	// Upgrade makes sure the connection can sign and returns the signer
	// address.
	Upgrade(ctx context.Context) (common.Address, error)

	ProposalCount(ctx context.Context) (uint64, error)
	ProposalInfo(ctx context.Context, id uint64) (*types.Proposal, error)
	HasVoted(ctx context.Context, voter common.Address, id uint64) (bool, error)
	EncryptedTallies(ctx context.Context, id uint64) (*types.EncryptedTallies, error)
	IsVotingActive(ctx context.Context, id uint64) (bool, error)
	CanRevealVotes(ctx context.Context, id uint64) (bool, error)
	VoteCount(ctx context.Context) (uint64, error)

	CreateProposal(ctx context.Context, title, description string, durationSeconds uint64) (uint64, *types.Receipt, error)
	CastVote(ctx context.Context, id uint64, input *types.EncryptedInput) (*types.Receipt, error)
	EndProposal(ctx context.Context, id uint64) (*types.Receipt, error)

	Close()
}

var _ LedgerGateway = (*Contracts)(nil)

// Backend is what the gateway needs from the chain: calls, transactions and
// receipts.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Connection is the handle used to reach the ledger. A connection is either
// read only or signing, only the signing variant carries a Signer.
type Connection struct {
	contract *bind.BoundContract
	signer   wallet.Signer
}

// Signing reports whether the connection can submit transactions.
func (c *Connection) Signing() bool {
	return c.signer != nil
}

// Signer returns the connection signer, nil for read only connections.
func (c *Connection) Signer() wallet.Signer {
	return c.signer
}

// Options tune a Contracts instance. Zero values take the defaults.
type Options struct {
	Probe       wallet.Probe
	CallTimeout time.Duration
	TxTimeout   time.Duration
	MaxLogRange uint64
}

// Contracts is the go-ethereum backed LedgerGateway.
type Contracts struct {
	ChainID  uint64
	address  common.Address
	web3pool *rpc.Web3Pool
	backend  Backend
	probe    wallet.Probe

	conn        atomic.Pointer[Connection]
	callTimeout time.Duration
	txTimeout   time.Duration
	maxLogRange uint64

	revealsMu sync.Mutex
	// revealed results are final once published
	reveals map[uint64]*resultsDecrypted
	// next block to scan for ResultsDecrypted, per proposal
	revealNext map[uint64]uint64
}

// NewContracts creates a new Contracts instance over the given web3 endpoints.
// Every endpoint must serve chainID. The returned instance is read only until
// Upgrade finds a signer.
func NewContracts(address common.Address, chainID uint64, web3rpcs []string, opts Options) (*Contracts, error) {
	if len(web3rpcs) == 0 {
		return nil, fmt.Errorf("no web3 endpoints provided")
	}
	w3pool := rpc.NewWeb3Pool()
	for _, uri := range web3rpcs {
		id, err := w3pool.AddEndpoint(uri)
		if err != nil {
			log.Warnw("cannot add web3 endpoint", "uri", uri, "error", err)
			continue
		}
		if id != chainID {
			log.Warnw("web3 endpoint serves another chain, ignoring", "uri", uri, "chainId", id, "expected", chainID)
			w3pool.DelEndpoint(uri)
		}
	}
	if w3pool.NumberOfEndpoints(chainID, true) == 0 {
		w3pool.Close()
		return nil, fmt.Errorf("failed to add web3 endpoint for chainID %d", chainID)
	}
	cli, err := w3pool.Client(chainID)
	if err != nil {
		w3pool.Close()
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	c := NewContractsWithBackend(address, chainID, cli, opts)
	c.web3pool = w3pool
	return c, nil
}

// NewContractsWithBackend creates a read only Contracts instance over an
// existing backend.
func NewContractsWithBackend(address common.Address, chainID uint64, backend Backend, opts Options) *Contracts {
	c := &Contracts{
		ChainID:     chainID,
		address:     address,
		backend:     backend,
		probe:       opts.Probe,
		callTimeout: opts.CallTimeout,
		txTimeout:   opts.TxTimeout,
		maxLogRange: opts.MaxLogRange,
		reveals:     make(map[uint64]*resultsDecrypted),
		revealNext:  make(map[uint64]uint64),
	}
	if c.probe == nil {
		c.probe = wallet.StaticProbe(nil)
	}
	if c.callTimeout == 0 {
		c.callTimeout = DefaultCallTimeout
	}
	if c.maxLogRange == 0 {
		c.maxLogRange = DefaultMaxLogRange
	}
	if c.txTimeout == 0 {
		c.txTimeout = DefaultTxTimeout
	}
	c.conn.Store(&Connection{contract: c.bind()})
	return c
}

func (c *Contracts) bind() *bind.BoundContract {
	return bind.NewBoundContract(c.address, voteVaultABI, c.backend, c.backend, c.backend)
}

// AddWeb3Endpoint adds a new web3 endpoint to the pool.
func (c *Contracts) AddWeb3Endpoint(web3rpc string) error {
	if c.web3pool == nil {
		return fmt.Errorf("contracts not backed by an endpoint pool")
	}
	_, err := c.web3pool.AddEndpoint(web3rpc)
	return err
}

// Address returns the ledger contract address.
func (c *Contracts) Address() common.Address {
	return c.address
}

// Connection returns the current connection handle.
func (c *Contracts) Connection() *Connection {
	return c.conn.Load()
}

// Signing reports whether the current connection can sign.
func (c *Contracts) Signing() bool {
	return c.conn.Load().Signing()
}

// AccountAddress returns the address of the account used to sign
// transactions, the zero address when read only.
func (c *Contracts) AccountAddress() common.Address {
	if s := c.conn.Load().Signer(); s != nil {
		return s.Address()
	}
	return common.Address{}
}

// Upgrade turns a read only connection into a signing one using the signer
// probe. It is a no-op for signing connections. Concurrent upgrades may both
// probe, the last one stored wins.
func (c *Contracts) Upgrade(ctx context.Context) (common.Address, error) {
	if s := c.conn.Load().Signer(); s != nil {
		return s.Address(), nil
	}
	signer, err := c.probe.Signer(ctx)
	if err != nil {
		if errors.Is(err, wallet.ErrNoSigner) {
			return common.Address{}, fmt.Errorf("%w: %w", types.ErrNotConnected, err)
		}
		return common.Address{}, fmt.Errorf("%w: signer probe failed: %w", types.ErrNotConnected, err)
	}
	c.conn.Store(&Connection{contract: c.bind(), signer: signer})
	log.Infow("ledger connection upgraded to signing", "address", signer.Address().Hex())
	return signer.Address(), nil
}

// Close releases the endpoint pool.
func (c *Contracts) Close() {
	if c.web3pool != nil {
		c.web3pool.Close()
	}
}

// signing returns a signing connection, upgrading the current one when
// needed.
func (c *Contracts) signing(ctx context.Context) (*Connection, error) {
	if _, err := c.Upgrade(ctx); err != nil {
		return nil, err
	}
	return c.conn.Load(), nil
}

// authTransactOpts helper method creates the transact options with the signer
// of the connection. It sets the nonce and the gas tip cap; the gas limit is
// estimated by the bound contract.
func (c *Contracts) authTransactOpts(ctx context.Context, conn *Connection) (*bind.TransactOpts, error) {
	signer := conn.Signer()
	auth, err := signer.TransactOpts(ctx, new(big.Int).SetUint64(c.ChainID))
	if err != nil {
		return nil, err
	}
	log.Debugw("getting nonce", "address", signer.Address().Hex())
	nonce, err := c.backend.PendingNonceAt(ctx, signer.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	if auth.GasTipCap, err = c.backend.SuggestGasTipCap(ctx); err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	return auth, nil
}

func (c *Contracts) callOpts(ctx context.Context) (*bind.CallOpts, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	return &bind.CallOpts{Context: ctx}, cancel
}
