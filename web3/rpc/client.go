package rpc

import (
	"context"
	"errors"
	"math/big"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Client is a pool backed implementation of bind.ContractBackend and
// bind.DeployBackend for a single chainID. Every call is sent to the next
// available endpoint; transport failures disable the endpoint and the call is
// retried on the next one.
type Client struct {
	w3p     *Web3Pool
	chainID uint64
}

// ChainID returns the chain the client is bound to.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// retryable reports whether the error comes from the transport rather than
// from a node answer, so another endpoint may succeed.
func retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ethereum.NotFound) {
		return false
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	var dataErr gethrpc.DataError
	return !errors.As(err, &dataErr)
}

func withEndpoint[T any](ctx context.Context, c *Client, fn func(EthBackend) (T, error)) (T, error) {
	var zero T
	tries := c.w3p.NumberOfEndpoints(c.chainID, false)
	if tries == 0 {
		tries = 1
	}
	var lastErr error
	for i := 0; i < tries; i++ {
		endpoint, err := c.w3p.Endpoint(c.chainID)
		if err != nil {
			return zero, err
		}
		res, err := fn(endpoint.client)
		if !retryable(ctx, err) {
			return res, err
		}
		log.Warnw("web3 endpoint failed, trying next one", "chainId", c.chainID, "uri", endpoint.URI, "error", err)
		c.w3p.DisableEndpoint(c.chainID, endpoint.URI)
		lastErr = err
	}
	return zero, lastErr
}

// CodeAt implements bind.ContractCaller.
func (c *Client) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return withEndpoint(ctx, c, func(b EthBackend) ([]byte, error) {
		return b.CodeAt(ctx, contract, blockNumber)
	})
}

// CallContract implements bind.ContractCaller.
func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return withEndpoint(ctx, c, func(b EthBackend) ([]byte, error) {
		return b.CallContract(ctx, call, blockNumber)
	})
}

// HeaderByNumber implements bind.ContractTransactor.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return withEndpoint(ctx, c, func(b EthBackend) (*types.Header, error) {
		return b.HeaderByNumber(ctx, number)
	})
}

// PendingCodeAt implements bind.ContractTransactor.
func (c *Client) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return withEndpoint(ctx, c, func(b EthBackend) ([]byte, error) {
		return b.PendingCodeAt(ctx, account)
	})
}

// PendingNonceAt implements bind.ContractTransactor.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return withEndpoint(ctx, c, func(b EthBackend) (uint64, error) {
		return b.PendingNonceAt(ctx, account)
	})
}

// SuggestGasPrice implements bind.ContractTransactor.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return withEndpoint(ctx, c, func(b EthBackend) (*big.Int, error) {
		return b.SuggestGasPrice(ctx)
	})
}

// SuggestGasTipCap implements bind.ContractTransactor.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return withEndpoint(ctx, c, func(b EthBackend) (*big.Int, error) {
		return b.SuggestGasTipCap(ctx)
	})
}

// EstimateGas implements bind.ContractTransactor.
func (c *Client) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return withEndpoint(ctx, c, func(b EthBackend) (uint64, error) {
		return b.EstimateGas(ctx, call)
	})
}

// SendTransaction implements bind.ContractTransactor.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := withEndpoint(ctx, c, func(b EthBackend) (struct{}, error) {
		return struct{}{}, b.SendTransaction(ctx, tx)
	})
	return err
}

// FilterLogs implements bind.ContractFilterer.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return withEndpoint(ctx, c, func(b EthBackend) ([]types.Log, error) {
		return b.FilterLogs(ctx, query)
	})
}

// SubscribeFilterLogs implements bind.ContractFilterer.
func (c *Client) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return withEndpoint(ctx, c, func(b EthBackend) (ethereum.Subscription, error) {
		return b.SubscribeFilterLogs(ctx, query, ch)
	})
}

// TransactionReceipt implements bind.DeployBackend.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return withEndpoint(ctx, c, func(b EthBackend) (*types.Receipt, error) {
		return b.TransactionReceipt(ctx, txHash)
	})
}

// BlockNumber returns the latest block number of the chain.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return withEndpoint(ctx, c, func(b EthBackend) (uint64, error) {
		return b.BlockNumber(ctx)
	})
}
