package relayer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/Malyypnrhz7/vote-vault-fhe/metrics"
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

// DefaultAcquireTimeout bounds the shared capability initialization. It does
// not depend on the deadline of the caller that triggered it.
const DefaultAcquireTimeout = 30 * time.Second

// Acquirer initializes the encryption capability.
type Acquirer func(ctx context.Context) (Capability, error)

// Acquisition is the outcome of the capability initialization: either a real
// capability or the placeholder mode, with the error that caused it.
type Acquisition struct {
	Capability Capability
	Err        error
}

// Real returns an acquisition holding c.
func Real(c Capability) Acquisition {
	return Acquisition{Capability: c}
}

// Placeholder returns the acquisition used when no capability is available.
func Placeholder(cause error) Acquisition {
	return Acquisition{Err: cause}
}

// IsPlaceholder reports whether no real capability was acquired.
func (a Acquisition) IsPlaceholder() bool {
	return a.Capability == nil
}

// Options configure a Channel.
type Options struct {
	// AllowPlaceholder makes the channel return the placeholder input when
	// the relayer cannot be used. When false ErrTransientUnavailable is
	// returned instead.
	AllowPlaceholder bool
	AcquireTimeout   time.Duration
}

// Channel encrypts vote choices. The capability is acquired lazily, once per
// Channel, and concurrent first callers share the same attempt.
type Channel struct {
	acquire Acquirer
	opts    Options
	group   singleflight.Group
	acq     atomic.Pointer[Acquisition]
}

// NewChannel returns a channel using acquire to initialize the capability.
func NewChannel(acquire Acquirer, opts Options) *Channel {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	return &Channel{acquire: acquire, opts: opts}
}

// NewRemoteChannel returns a channel backed by the relayer at url. An empty
// url makes the channel work in placeholder mode.
func NewRemoteChannel(url string, timeout time.Duration, opts Options) *Channel {
	return NewChannel(func(ctx context.Context) (Capability, error) {
		if url == "" {
			return nil, fmt.Errorf("no relayer configured")
		}
		return Dial(ctx, url, timeout)
	}, opts)
}

// Acquire returns the capability acquisition, running it if this is the
// first call. The result is kept for the lifetime of the channel, including
// the placeholder outcome.
func (ch *Channel) Acquire(ctx context.Context) (Acquisition, error) {
	if a := ch.acq.Load(); a != nil {
		return *a, nil
	}
	res := ch.group.DoChan("acquire", func() (any, error) {
		if a := ch.acq.Load(); a != nil {
			return *a, nil
		}
		actx, cancel := context.WithTimeout(context.Background(), ch.opts.AcquireTimeout)
		defer cancel()
		a := ch.initialize(actx)
		ch.acq.Store(&a)
		return a, nil
	})
	select {
	case r := <-res:
		return r.Val.(Acquisition), nil
	case <-ctx.Done():
		return Acquisition{}, fmt.Errorf("relayer acquisition: %w: %w", types.ErrTimeout, ctx.Err())
	}
}

func (ch *Channel) initialize(ctx context.Context) (a Acquisition) {
	defer func() {
		if r := recover(); r != nil {
			a = Placeholder(fmt.Errorf("relayer initialization panic: %v", r))
			log.Warnw("encryption relayer unavailable, using placeholder inputs", "error", a.Err)
		}
	}()
	c, err := ch.acquire(ctx)
	if err != nil || c == nil {
		if err == nil {
			err = fmt.Errorf("no capability returned")
		}
		log.Warnw("encryption relayer unavailable, using placeholder inputs", "error", err)
		return Placeholder(err)
	}
	log.Info("encryption relayer initialized")
	return Real(c)
}

// Encrypt encrypts choice for voter on ledger. The result is only valid for
// that exact pair.
func (ch *Channel) Encrypt(ctx context.Context, ledger, voter common.Address, choice types.VoteChoice) (*types.EncryptedInput, error) {
	if ledger == (common.Address{}) {
		return nil, fmt.Errorf("%w: empty ledger address", types.ErrInvalidIdentity)
	}
	if voter == (common.Address{}) {
		return nil, fmt.Errorf("%w: empty voter address", types.ErrInvalidIdentity)
	}
	acq, err := ch.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if acq.IsPlaceholder() {
		return ch.placeholder(acq.Err)
	}
	res, err := acq.Capability.CreateInput(ledger, voter).AddBit(choice.Bit()).Encrypt(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("encrypt vote: %w: %w", types.ErrTimeout, ctx.Err())
		}
		log.Warnw("cannot encrypt vote", "ledger", ledger.Hex(), "voter", voter.Hex(), "error", err)
		return ch.placeholder(err)
	}
	if len(res.Handles) != 1 {
		return ch.placeholder(fmt.Errorf("expected one handle, got %d", len(res.Handles)))
	}
	metrics.Votes().ObserveEncryption(false)
	return &types.EncryptedInput{Handle: res.Handles[0], Proof: res.InputProof}, nil
}

func (ch *Channel) placeholder(cause error) (*types.EncryptedInput, error) {
	if !ch.opts.AllowPlaceholder {
		return nil, fmt.Errorf("%w: encryption relayer: %w", types.ErrTransientUnavailable, cause)
	}
	metrics.Votes().ObserveEncryption(true)
	return types.PlaceholderInput(), nil
}
