// Package wallet provides the signing identities used to submit ledger
// writes. Signers are obtained through a Probe so the rest of the client never
// reaches into ambient wallet state.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoSigner is returned by a Probe when no signer is available.
var ErrNoSigner = errors.New("no signer available")

// Signer is an identity able to sign ledger transactions.
type Signer interface {
	Address() common.Address
	TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error)
}

// Probe looks up a signer in the environment.
type Probe interface {
	Signer(ctx context.Context) (Signer, error)
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) (Signer, error)

// Signer implements Probe.
func (f ProbeFunc) Signer(ctx context.Context) (Signer, error) {
	return f(ctx)
}

// KeySigner signs with an in-memory ECDSA private key.
type KeySigner struct {
	privKey *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner parses a hex encoded private key, with or without 0x prefix.
func NewKeySigner(hexPrivKey string) (*KeySigner, error) {
	hexPrivKey = strings.TrimPrefix(strings.TrimSpace(hexPrivKey), "0x")
	privKey, err := crypto.HexToECDSA(hexPrivKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &KeySigner{
		privKey: privKey,
		address: crypto.PubkeyToAddress(privKey.PublicKey),
	}, nil
}

// GenerateKeySigner creates a signer with a fresh random key.
func GenerateKeySigner() (*KeySigner, error) {
	privKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &KeySigner{privKey: privKey, address: crypto.PubkeyToAddress(privKey.PublicKey)}, nil
}

// Address returns the address derived from the key.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// TransactOpts returns keyed transactor options bound to ctx.
func (s *KeySigner) TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(s.privKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	return auth, nil
}

// KeystoreSigner signs with an unlocked account of an encrypted keystore.
type KeystoreSigner struct {
	ks      *keystore.KeyStore
	account accounts.Account
}

// Address returns the keystore account address.
func (s *KeystoreSigner) Address() common.Address {
	return s.account.Address
}

// TransactOpts returns keystore transactor options bound to ctx.
func (s *KeystoreSigner) TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyStoreTransactorWithChainID(s.ks, s.account, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create keystore transactor: %w", err)
	}
	auth.Context = ctx
	return auth, nil
}

// KeyProbe returns a probe that yields a KeySigner for the given key. An
// empty key yields ErrNoSigner.
func KeyProbe(hexPrivKey string) Probe {
	return ProbeFunc(func(context.Context) (Signer, error) {
		if strings.TrimSpace(hexPrivKey) == "" {
			return nil, ErrNoSigner
		}
		return NewKeySigner(hexPrivKey)
	})
}

// KeystoreProbe returns a probe that unlocks the first account found in the
// keystore directory with the given passphrase.
func KeystoreProbe(dir, passphrase string) Probe {
	return ProbeFunc(func(context.Context) (Signer, error) {
		if dir == "" {
			return nil, ErrNoSigner
		}
		ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
		accs := ks.Accounts()
		if len(accs) == 0 {
			return nil, fmt.Errorf("%w: empty keystore %s", ErrNoSigner, dir)
		}
		if err := ks.Unlock(accs[0], passphrase); err != nil {
			return nil, fmt.Errorf("cannot unlock keystore account %s: %w", accs[0].Address.Hex(), err)
		}
		return &KeystoreSigner{ks: ks, account: accs[0]}, nil
	})
}

// StaticProbe always yields the given signer, or ErrNoSigner when nil.
func StaticProbe(s Signer) Probe {
	return ProbeFunc(func(context.Context) (Signer, error) {
		if s == nil {
			return nil, ErrNoSigner
		}
		return s, nil
	})
}

// ChainProbe tries every probe in order and returns the first signer found.
func ChainProbe(probes ...Probe) Probe {
	return ProbeFunc(func(ctx context.Context) (Signer, error) {
		var errs []error
		for _, p := range probes {
			s, err := p.Signer(ctx)
			if err == nil {
				return s, nil
			}
			if !errors.Is(err, ErrNoSigner) {
				log.Warnw("signer probe failed", "error", err)
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return nil, fmt.Errorf("%w: %w", ErrNoSigner, errors.Join(errs...))
		}
		return nil, ErrNoSigner
	})
}
