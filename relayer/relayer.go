// Package relayer produces encrypted vote inputs through a remote encryption
// relayer. The relayer returns, for a (ledger, user) pair, the ciphertext
// handles and the input proof the ledger verifies on castVote.
package relayer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// KeyURLEndpoint publishes the network public key material. It is used
	// to check the relayer is available before using it.
	KeyURLEndpoint = "/v1/keyurl"
	// InputProofEndpoint encrypts the input values and returns their handles
	// and proof.
	InputProofEndpoint = "/v1/input-proof"

	typeUint32 = "euint32"
)

// Capability is an initialized encryption capability.
type Capability interface {
	CreateInput(ledger, user common.Address) InputBuilder
}

// InputBuilder accumulates plaintext values bound to a (ledger, user) pair
// and encrypts them all at once.
type InputBuilder interface {
	AddBit(v uint8) InputBuilder
	Add32(v uint32) InputBuilder
	Encrypt(ctx context.Context) (*EncryptionResult, error)
}

// EncryptionResult holds one handle per added value and a single proof
// covering all of them.
type EncryptionResult struct {
	Handles    []common.Hash
	InputProof types.HexBytes
}

type inputValue struct {
	Type  string `json:"type"`
	Value uint64 `json:"value"`
}

type inputProofRequest struct {
	ContractAddress string       `json:"contractAddress"`
	UserAddress     string       `json:"userAddress"`
	Values          []inputValue `json:"values"`
}

type inputProofResponse struct {
	Handles    []string `json:"handles"`
	InputProof string   `json:"inputProof"`
}

// Relayer is the Capability backed by the relayer HTTP API.
type Relayer struct {
	cli *httpClient
}

// Dial checks the relayer at url is available and returns it.
func Dial(ctx context.Context, url string, timeout time.Duration) (*Relayer, error) {
	cli, err := newHTTPClient(url, timeout)
	if err != nil {
		return nil, err
	}
	data, status, err := cli.request(ctx, http.MethodGet, nil, KeyURLEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("relayer not available: %d (%s)", status, data)
	}
	return &Relayer{cli: cli}, nil
}

// CreateInput implements Capability.
func (r *Relayer) CreateInput(ledger, user common.Address) InputBuilder {
	return &input{
		relayer: r,
		req: inputProofRequest{
			ContractAddress: ledger.Hex(),
			UserAddress:     user.Hex(),
		},
	}
}

type input struct {
	relayer *Relayer
	req     inputProofRequest
	err     error
}

// AddBit adds a 0/1 value. The ledger takes its votes as externalEuint32, so
// the bit travels as an euint32.
func (in *input) AddBit(v uint8) InputBuilder {
	if v > 1 {
		in.err = fmt.Errorf("invalid bit value %d", v)
		return in
	}
	in.req.Values = append(in.req.Values, inputValue{Type: typeUint32, Value: uint64(v)})
	return in
}

func (in *input) Add32(v uint32) InputBuilder {
	in.req.Values = append(in.req.Values, inputValue{Type: typeUint32, Value: uint64(v)})
	return in
}

func (in *input) Encrypt(ctx context.Context) (*EncryptionResult, error) {
	if in.err != nil {
		return nil, in.err
	}
	if len(in.req.Values) == 0 {
		return nil, fmt.Errorf("no values to encrypt")
	}
	data, status, err := in.relayer.cli.request(ctx, http.MethodPost, in.req, InputProofEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("input proof request failed: %d (%s)", status, data)
	}
	resp := &inputProofResponse{}
	if err := json.Unmarshal(data, resp); err != nil {
		return nil, fmt.Errorf("cannot decode input proof response: %w", err)
	}
	if len(resp.Handles) != len(in.req.Values) {
		return nil, fmt.Errorf("expected %d handles, got %d", len(in.req.Values), len(resp.Handles))
	}
	res := &EncryptionResult{}
	for _, h := range resp.Handles {
		b, err := hexutil.Decode(h)
		if err != nil || len(b) != common.HashLength {
			return nil, fmt.Errorf("invalid handle %q", h)
		}
		res.Handles = append(res.Handles, common.BytesToHash(b))
	}
	if err := res.InputProof.FromString(resp.InputProof); err != nil {
		return nil, fmt.Errorf("invalid input proof: %w", err)
	}
	return res, nil
}
