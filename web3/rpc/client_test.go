package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	qt "github.com/frankban/quicktest"
)

var errTransport = errors.New("connection refused")

type rpcAnswerErr struct{}

func (rpcAnswerErr) Error() string  { return "execution reverted" }
func (rpcAnswerErr) ErrorCode() int { return 3 }

// testBackend answers every call with its uri as data, or with err when set.
type testBackend struct {
	uri     string
	chainID int64
	err     error
	calls   atomic.Int32
	closed  atomic.Bool
}

func (b *testBackend) answer() error {
	b.calls.Add(1)
	return b.err
}

func (b *testBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte(b.uri), b.answer()
}

func (b *testBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	if err := b.answer(); err != nil {
		return nil, err
	}
	return []byte(b.uri), nil
}

func (b *testBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, b.answer()
}

func (b *testBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return nil, b.answer()
}

func (b *testBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, b.answer()
}

func (b *testBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), b.answer()
}

func (b *testBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1), b.answer()
}

func (b *testBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21000, b.answer()
}

func (b *testBackend) SendTransaction(context.Context, *types.Transaction) error {
	return b.answer()
}

func (b *testBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, b.answer()
}

func (b *testBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, b.answer()
}

func (b *testBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	if err := b.answer(); err != nil {
		return nil, err
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (b *testBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(b.chainID), nil
}

func (b *testBackend) BlockNumber(context.Context) (uint64, error) {
	return 100, b.answer()
}

func (b *testBackend) Close() { b.closed.Store(true) }

func testPool(c *qt.C, backends ...*testBackend) *Web3Pool {
	byURI := map[string]*testBackend{}
	for _, b := range backends {
		byURI[b.uri] = b
	}
	pool := NewWeb3PoolWithDialer(func(_ context.Context, uri string) (EthBackend, error) {
		b, ok := byURI[uri]
		if !ok {
			return nil, fmt.Errorf("unknown uri %s", uri)
		}
		return b, nil
	})
	for _, b := range backends {
		_, err := pool.AddEndpoint(b.uri)
		c.Assert(err, qt.IsNil)
	}
	return pool
}

func TestWeb3PoolEndpoints(t *testing.T) {
	c := qt.New(t)
	a := &testBackend{uri: "http://a", chainID: 5}
	b := &testBackend{uri: "http://b", chainID: 5}
	other := &testBackend{uri: "http://other", chainID: 7}
	pool := testPool(c, a, b, other)

	c.Assert(pool.NumberOfEndpoints(5, true), qt.Equals, 2)
	c.Assert(pool.NumberOfEndpoints(7, true), qt.Equals, 1)
	c.Assert(pool.NumberOfEndpoints(9, false), qt.Equals, 0)

	_, err := pool.AddEndpoint("http://missing")
	c.Assert(err, qt.ErrorMatches, "error dialing web3 provider uri 'http://missing'.*")

	// round robin
	e1, err := pool.Endpoint(5)
	c.Assert(err, qt.IsNil)
	e2, err := pool.Endpoint(5)
	c.Assert(err, qt.IsNil)
	c.Assert(e1.URI, qt.Not(qt.Equals), e2.URI)

	pool.DisableEndpoint(5, "http://a")
	c.Assert(pool.NumberOfEndpoints(5, true), qt.Equals, 1)
	c.Assert(pool.NumberOfEndpoints(5, false), qt.Equals, 2)
	for i := 0; i < 3; i++ {
		e, err := pool.Endpoint(5)
		c.Assert(err, qt.IsNil)
		c.Assert(e.URI, qt.Equals, "http://b")
	}

	// when every endpoint is disabled all of them get another chance
	pool.DelEndpoint("http://b")
	c.Assert(pool.NumberOfEndpoints(5, true), qt.Equals, 0)
	_, err = pool.Endpoint(5)
	c.Assert(err, qt.IsNil)
	c.Assert(pool.NumberOfEndpoints(5, true), qt.Equals, 2)

	_, err = pool.Client(9)
	c.Assert(err, qt.ErrorMatches, "error getting endpoint for chainID 9.*")

	pool.Close()
	c.Assert(a.closed.Load(), qt.IsTrue)
	c.Assert(other.closed.Load(), qt.IsTrue)
	c.Assert(pool.NumberOfEndpoints(5, false), qt.Equals, 0)
}

func TestClientFailover(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	bad := &testBackend{uri: "http://bad", chainID: 5, err: errTransport}
	good := &testBackend{uri: "http://good", chainID: 5}
	pool := testPool(c, bad, good)

	cli, err := pool.Client(5)
	c.Assert(err, qt.IsNil)
	c.Assert(cli.ChainID(), qt.Equals, uint64(5))

	for i := 0; i < 4; i++ {
		data, err := cli.CallContract(ctx, ethereum.CallMsg{}, nil)
		c.Assert(err, qt.IsNil)
		c.Assert(string(data), qt.Equals, "http://good")
	}
	// the failing endpoint was disabled after its first failure
	c.Assert(bad.calls.Load(), qt.Equals, int32(1))
	c.Assert(pool.NumberOfEndpoints(5, true), qt.Equals, 1)

	n, err := cli.BlockNumber(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, uint64(100))
}

func TestClientNodeAnswersAreNotRetried(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	a := &testBackend{uri: "http://a", chainID: 5, err: rpcAnswerErr{}}
	b := &testBackend{uri: "http://b", chainID: 5, err: rpcAnswerErr{}}
	pool := testPool(c, a, b)
	cli, err := pool.Client(5)
	c.Assert(err, qt.IsNil)

	_, err = cli.CallContract(ctx, ethereum.CallMsg{}, nil)
	c.Assert(err, qt.ErrorMatches, "execution reverted")
	c.Assert(a.calls.Load()+b.calls.Load(), qt.Equals, int32(1))
	c.Assert(pool.NumberOfEndpoints(5, true), qt.Equals, 2)

	a.err, b.err = ethereum.NotFound, ethereum.NotFound
	_, err = cli.TransactionReceipt(ctx, common.Hash{})
	c.Assert(err, qt.Equals, ethereum.NotFound)
	c.Assert(pool.NumberOfEndpoints(5, true), qt.Equals, 2)
}

func TestClientAllEndpointsFail(t *testing.T) {
	c := qt.New(t)
	a := &testBackend{uri: "http://a", chainID: 5, err: errTransport}
	b := &testBackend{uri: "http://b", chainID: 5, err: errTransport}
	pool := testPool(c, a, b)
	cli, err := pool.Client(5)
	c.Assert(err, qt.IsNil)

	err = cli.SendTransaction(context.Background(), nil)
	c.Assert(err, qt.Equals, errTransport)
	c.Assert(a.calls.Load(), qt.Equals, int32(1))
	c.Assert(b.calls.Load(), qt.Equals, int32(1))
}
