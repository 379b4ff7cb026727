package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	qt "github.com/frankban/quicktest"
)

const testPrivKey = "fad9c8855b740a0b7ed4c221dbad0f33a83a49cad6b3fe8d5817ac83d38b6a19"

func TestKeySigner(t *testing.T) {
	c := qt.New(t)

	s, err := NewKeySigner("0x" + testPrivKey)
	c.Assert(err, qt.IsNil)
	same, err := NewKeySigner(testPrivKey)
	c.Assert(err, qt.IsNil)
	c.Assert(s.Address(), qt.Equals, same.Address())
	c.Assert(s.Address(), qt.Not(qt.Equals), common.Address{})

	opts, err := s.TransactOpts(context.Background(), big.NewInt(11155111))
	c.Assert(err, qt.IsNil)
	c.Assert(opts.From, qt.Equals, s.Address())

	// the signer must accept transactions from its own address only
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1)})
	_, err = opts.Signer(s.Address(), tx)
	c.Assert(err, qt.IsNil)
	_, err = opts.Signer(common.Address{1}, tx)
	c.Assert(err, qt.Not(qt.IsNil))

	_, err = NewKeySigner("not-a-key")
	c.Assert(err, qt.ErrorMatches, "failed to parse private key: .*")
}

func TestKeystoreProbe(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	_, err := KeystoreProbe(dir, "secret").Signer(context.Background())
	c.Assert(errors.Is(err, ErrNoSigner), qt.IsTrue)

	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	acc, err := ks.NewAccount("secret")
	c.Assert(err, qt.IsNil)

	s, err := KeystoreProbe(dir, "secret").Signer(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(s.Address(), qt.Equals, acc.Address)

	opts, err := s.TransactOpts(context.Background(), big.NewInt(1))
	c.Assert(err, qt.IsNil)
	c.Assert(opts.From, qt.Equals, acc.Address)

	_, err = KeystoreProbe(dir, "wrong").Signer(context.Background())
	c.Assert(err, qt.ErrorMatches, "cannot unlock keystore account .*")
}

func TestChainProbe(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	_, err := ChainProbe(KeyProbe(""), KeystoreProbe("", "")).Signer(ctx)
	c.Assert(err, qt.Equals, ErrNoSigner)

	s, err := ChainProbe(KeyProbe(""), KeyProbe(testPrivKey)).Signer(ctx)
	c.Assert(err, qt.IsNil)
	expected, _ := NewKeySigner(testPrivKey)
	c.Assert(s.Address(), qt.Equals, expected.Address())

	// broken sources are reported but still map to ErrNoSigner
	_, err = ChainProbe(KeyProbe("zz")).Signer(ctx)
	c.Assert(errors.Is(err, ErrNoSigner), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, ".*failed to parse private key.*")

	_, err = StaticProbe(nil).Signer(ctx)
	c.Assert(err, qt.Equals, ErrNoSigner)
}
