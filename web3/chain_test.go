package web3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const testChainID = 11155111

var testLedgerAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// revertError mimics the JSON-RPC error returned by nodes on reverts.
type revertError struct {
	reason string
	data   string
}

func newRevertError(reason string) *revertError {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return &revertError{reason: reason, data: hexutil.Encode(append(selector, packed...))}
}

func (e *revertError) Error() string          { return "execution reverted: " + e.reason }
func (e *revertError) ErrorCode() int         { return 3 }
func (e *revertError) ErrorData() interface{} { return e.data }

type chainProposal struct {
	title, description  string
	forVotes, against   uint8
	active, ended       bool
	proposer            common.Address
	start, end, created int64
}

// testChain is a bind backend simulating the VoteVaultFHE contract at the ABI
// level.
type testChain struct {
	mu        sync.Mutex
	proposals []*chainProposal
	voted     map[uint64]map[common.Address]bool
	votes     uint64
	logs      []gethtypes.Log
	receipts  map[common.Hash]*gethtypes.Receipt
	nonces    map[common.Address]uint64
	block     uint64

	sent          int
	skipEstimate  bool
	failFilterErr error
	filters       []ethereum.FilterQuery
}

// testBlockTime is the timestamp of block n, block 1 being mined at the
// creation time of the proposals created through transactions.
func testBlockTime(n uint64) uint64 {
	return 1700000000 - 12 + 12*n
}

func newTestChain() *testChain {
	return &testChain{
		voted:    make(map[uint64]map[common.Address]bool),
		receipts: make(map[common.Hash]*gethtypes.Receipt),
		nonces:   make(map[common.Address]uint64),
		block:    1,
	}
}

func (tc *testChain) addProposal(p *chainProposal) uint64 {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.proposals = append(tc.proposals, p)
	return uint64(len(tc.proposals) - 1)
}

func (tc *testChain) addLog(event string, topics []common.Hash, data ...interface{}) {
	ev := voteVaultABI.Events[event]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}
	tc.logs = append(tc.logs, gethtypes.Log{
		Address:     testLedgerAddress,
		Topics:      append([]common.Hash{ev.ID}, topics...),
		Data:        packed,
		BlockNumber: tc.block,
	})
}

func (tc *testChain) reveal(id uint64, forVotes, againstVotes uint32) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.addLog(eventResultsDecrypted, []common.Hash{idTopic(id)}, forVotes, againstVotes)
}

func idTopic(id uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(id))
}

func (tc *testChain) proposal(id *big.Int) (*chainProposal, error) {
	if !id.IsUint64() || id.Uint64() >= uint64(len(tc.proposals)) {
		return nil, newRevertError("Proposal does not exist")
	}
	return tc.proposals[id.Uint64()], nil
}

// execute runs a contract call. When apply is false state is left untouched.
func (tc *testChain) execute(from common.Address, data []byte, apply bool) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("short call data")
	}
	method, err := voteVaultABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case methodGetProposalCount:
		return method.Outputs.Pack(big.NewInt(int64(len(tc.proposals))))
	case methodGetVoteCount:
		return method.Outputs.Pack(new(big.Int).SetUint64(tc.votes))
	case methodGetProposalInfo:
		id := args[0].(*big.Int)
		if !id.IsUint64() || id.Uint64() >= uint64(len(tc.proposals)) {
			return method.Outputs.Pack("", "", uint8(0), uint8(0), uint8(0), false, false,
				common.Address{}, new(big.Int), new(big.Int), new(big.Int))
		}
		p := tc.proposals[id.Uint64()]
		return method.Outputs.Pack(p.title, p.description, p.forVotes, p.against, p.forVotes+p.against,
			p.active, p.ended, p.proposer, big.NewInt(p.start), big.NewInt(p.end), big.NewInt(p.created))
	case methodGetEncryptedTallies:
		id := args[0].(*big.Int).Uint64()
		return method.Outputs.Pack(
			[32]byte(crypto.Keccak256Hash([]byte(fmt.Sprint("for", id)))),
			[32]byte(crypto.Keccak256Hash([]byte(fmt.Sprint("against", id)))),
			[32]byte(crypto.Keccak256Hash([]byte(fmt.Sprint("total", id)))),
		)
	case methodHasVoted:
		voter := args[0].(common.Address)
		id := args[1].(*big.Int).Uint64()
		return method.Outputs.Pack(tc.voted[id][voter])
	case methodIsVotingActive, methodCanRevealVotes:
		p, err := tc.proposal(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if method.Name == methodIsVotingActive {
			return method.Outputs.Pack(p.active && !p.ended)
		}
		return method.Outputs.Pack(p.ended)
	case methodCreateProposal:
		if !apply {
			return method.Outputs.Pack(big.NewInt(int64(len(tc.proposals))))
		}
		id := uint64(len(tc.proposals))
		duration := args[2].(*big.Int).Int64()
		tc.proposals = append(tc.proposals, &chainProposal{
			title:       args[0].(string),
			description: args[1].(string),
			active:      true,
			proposer:    from,
			start:       1700000000,
			end:         1700000000 + duration,
			created:     1700000000,
		})
		tc.addLog(eventProposalCreated, []common.Hash{idTopic(id), common.BytesToHash(from.Bytes())}, args[0].(string))
		return method.Outputs.Pack(new(big.Int).SetUint64(id))
	case methodCastVote:
		id := args[0].(*big.Int)
		p, err := tc.proposal(id)
		if err != nil {
			return nil, err
		}
		if !p.active || p.ended {
			return nil, newRevertError("Voting period has ended")
		}
		if tc.voted[id.Uint64()][from] {
			return nil, newRevertError("Already voted on this proposal")
		}
		if !apply {
			return method.Outputs.Pack(new(big.Int).SetUint64(tc.votes))
		}
		if tc.voted[id.Uint64()] == nil {
			tc.voted[id.Uint64()] = make(map[common.Address]bool)
		}
		tc.voted[id.Uint64()][from] = true
		voteID := tc.votes
		tc.votes++
		tc.addLog(eventVoteCast, []common.Hash{idTopic(voteID), idTopic(id.Uint64()), common.BytesToHash(from.Bytes())})
		return method.Outputs.Pack(new(big.Int).SetUint64(voteID))
	case methodEndProposal:
		p, err := tc.proposal(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if p.ended {
			return nil, newRevertError("Proposal already ended")
		}
		if apply {
			p.active, p.ended = false, true
			tc.addLog(eventProposalEnded, []common.Hash{idTopic(args[0].(*big.Int).Uint64())}, true)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("method %s not supported", method.Name)
}

func (tc *testChain) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (tc *testChain) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if call.To == nil || *call.To != testLedgerAddress {
		return nil, nil
	}
	return tc.execute(call.From, call.Data, false)
}

func (tc *testChain) HeaderByNumber(_ context.Context, number *big.Int) (*gethtypes.Header, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	n := tc.block
	if number != nil {
		if number.Uint64() > tc.block {
			return nil, ethereum.NotFound
		}
		n = number.Uint64()
	}
	return &gethtypes.Header{Number: new(big.Int).SetUint64(n), Time: testBlockTime(n), BaseFee: big.NewInt(1)}, nil
}

// setHead moves the chain head to block n.
func (tc *testChain) setHead(n uint64) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.block = n
}

// filterQueries returns the log queries received so far.
func (tc *testChain) filterQueries() []ethereum.FilterQuery {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]ethereum.FilterQuery(nil), tc.filters...)
}

func (tc *testChain) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (tc *testChain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.nonces[account], nil
}

func (tc *testChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2), nil
}

func (tc *testChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (tc *testChain) EstimateGas(_ context.Context, call ethereum.CallMsg) (uint64, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if !tc.skipEstimate {
		if _, err := tc.execute(call.From, call.Data, false); err != nil {
			return 0, err
		}
	}
	return 300000, nil
}

func (tc *testChain) SendTransaction(_ context.Context, tx *gethtypes.Transaction) error {
	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.sent++
	tc.nonces[from]++
	tc.block++
	status := gethtypes.ReceiptStatusSuccessful
	firstLog := len(tc.logs)
	if _, err := tc.execute(from, tx.Data(), true); err != nil {
		status = gethtypes.ReceiptStatusFailed
	}
	logs := make([]*gethtypes.Log, 0, len(tc.logs)-firstLog)
	for i := firstLog; i < len(tc.logs); i++ {
		tc.logs[i].TxHash = tx.Hash()
		logs = append(logs, &tc.logs[i])
	}
	tc.receipts[tx.Hash()] = &gethtypes.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		GasUsed:     21000,
		BlockNumber: new(big.Int).SetUint64(tc.block),
		Logs:        logs,
	}
	return nil
}

func (tc *testChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.filters = append(tc.filters, q)
	if tc.failFilterErr != nil {
		return nil, tc.failFilterErr
	}
	var res []gethtypes.Log
	for _, l := range tc.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if matchTopics(l.Topics, q.Topics) {
			res = append(res, l)
		}
	}
	return res, nil
}

func matchTopics(topics []common.Hash, query [][]common.Hash) bool {
	for i, alternatives := range query {
		if len(alternatives) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		found := false
		for _, t := range alternatives {
			if topics[i] == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (tc *testChain) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- gethtypes.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

func (tc *testChain) TransactionReceipt(_ context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	r, ok := tc.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (tc *testChain) sentTxs() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.sent
}
