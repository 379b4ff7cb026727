package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
)

var (
	testLedger = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testVoter  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	testHandle = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
)

type testRelayer struct {
	keyCalls   atomic.Int32
	proofCalls atomic.Int32
	failKey    bool

	mu   sync.Mutex
	last inputProofRequest
}

func (tr *testRelayer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == KeyURLEndpoint:
		tr.keyCalls.Add(1)
		if tr.failKey {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":{}}`))
	case r.Method == http.MethodPost && r.URL.Path == InputProofEndpoint:
		tr.proofCalls.Add(1)
		req := inputProofRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tr.mu.Lock()
		tr.last = req
		tr.mu.Unlock()
		resp := inputProofResponse{InputProof: "0xdeadbeef"}
		for range req.Values {
			resp.Handles = append(resp.Handles, testHandle.Hex())
		}
		_ = json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

func TestEncryptWithRelayer(t *testing.T) {
	c := qt.New(t)
	tr := &testRelayer{}
	srv := httptest.NewServer(tr)
	defer srv.Close()

	ch := NewRemoteChannel(srv.URL, time.Second, Options{AllowPlaceholder: true})
	in, err := ch.Encrypt(context.Background(), testLedger, testVoter, types.VoteFor)
	c.Assert(err, qt.IsNil)
	c.Assert(in.Placeholder, qt.IsFalse)
	c.Assert(in.Handle, qt.Equals, testHandle)
	c.Assert(in.Proof, qt.DeepEquals, types.HexBytes{0xde, 0xad, 0xbe, 0xef})

	tr.mu.Lock()
	c.Assert(tr.last.ContractAddress, qt.Equals, testLedger.Hex())
	c.Assert(tr.last.UserAddress, qt.Equals, testVoter.Hex())
	c.Assert(tr.last.Values, qt.DeepEquals, []inputValue{{Type: "euint32", Value: 1}})
	tr.mu.Unlock()

	_, err = ch.Encrypt(context.Background(), testLedger, testVoter, types.VoteAgainst)
	c.Assert(err, qt.IsNil)
	tr.mu.Lock()
	c.Assert(tr.last.Values, qt.DeepEquals, []inputValue{{Type: "euint32", Value: 0}})
	tr.mu.Unlock()

	// the relayer is only probed once
	c.Assert(tr.keyCalls.Load(), qt.Equals, int32(1))
	c.Assert(tr.proofCalls.Load(), qt.Equals, int32(2))
}

func TestEncryptInvalidIdentity(t *testing.T) {
	c := qt.New(t)
	var acquired atomic.Int32
	ch := NewChannel(func(context.Context) (Capability, error) {
		acquired.Add(1)
		return nil, errors.New("unused")
	}, Options{AllowPlaceholder: true})

	_, err := ch.Encrypt(context.Background(), testLedger, common.Address{}, types.VoteFor)
	c.Assert(err, qt.ErrorIs, types.ErrInvalidIdentity)
	_, err = ch.Encrypt(context.Background(), common.Address{}, testVoter, types.VoteFor)
	c.Assert(err, qt.ErrorIs, types.ErrInvalidIdentity)
	c.Assert(acquired.Load(), qt.Equals, int32(0))
}

type countingCapability struct {
	encrypts atomic.Int32
	fail     error
}

func (cc *countingCapability) CreateInput(ledger, user common.Address) InputBuilder {
	return &countingInput{cc: cc}
}

type countingInput struct {
	cc   *countingCapability
	bits []uint8
}

func (ci *countingInput) AddBit(v uint8) InputBuilder {
	ci.bits = append(ci.bits, v)
	return ci
}

func (ci *countingInput) Add32(uint32) InputBuilder { return ci }

func (ci *countingInput) Encrypt(ctx context.Context) (*EncryptionResult, error) {
	ci.cc.encrypts.Add(1)
	if ci.cc.fail != nil {
		return nil, ci.cc.fail
	}
	return &EncryptionResult{
		Handles:    []common.Hash{common.BytesToHash([]byte{ci.bits[0] + 1})},
		InputProof: types.HexBytes{0x01},
	}, nil
}

func TestSingleFlightAcquisition(t *testing.T) {
	c := qt.New(t)
	var acquired atomic.Int32
	capability := &countingCapability{}
	ch := NewChannel(func(context.Context) (Capability, error) {
		acquired.Add(1)
		time.Sleep(50 * time.Millisecond)
		return capability, nil
	}, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ch.Encrypt(context.Background(), testLedger, testVoter, types.VoteFor)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		c.Assert(err, qt.IsNil)
	}
	c.Assert(acquired.Load(), qt.Equals, int32(1))
	c.Assert(capability.encrypts.Load(), qt.Equals, int32(10))

	acq, err := ch.Acquire(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(acq.IsPlaceholder(), qt.IsFalse)
}

func TestPlaceholderFallback(t *testing.T) {
	c := qt.New(t)
	var acquired atomic.Int32
	ch := NewChannel(func(context.Context) (Capability, error) {
		acquired.Add(1)
		return nil, errors.New("relayer unreachable")
	}, Options{AllowPlaceholder: true})

	for i := 0; i < 3; i++ {
		in, err := ch.Encrypt(context.Background(), testLedger, testVoter, types.VoteFor)
		c.Assert(err, qt.IsNil)
		c.Assert(in.Placeholder, qt.IsTrue)
		c.Assert(in.Handle, qt.Equals, common.Hash{})
		c.Assert(in.Proof, qt.DeepEquals, make(types.HexBytes, 32))
	}
	c.Assert(acquired.Load(), qt.Equals, int32(1))

	acq, err := ch.Acquire(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(acq.IsPlaceholder(), qt.IsTrue)
	c.Assert(acq.Err, qt.ErrorMatches, "relayer unreachable")
}

func TestPlaceholderFromPanic(t *testing.T) {
	c := qt.New(t)
	ch := NewChannel(func(context.Context) (Capability, error) {
		panic("broken relayer sdk")
	}, Options{AllowPlaceholder: true})
	in, err := ch.Encrypt(context.Background(), testLedger, testVoter, types.VoteAgainst)
	c.Assert(err, qt.IsNil)
	c.Assert(in.Placeholder, qt.IsTrue)
}

func TestPlaceholderNotAllowed(t *testing.T) {
	c := qt.New(t)
	tr := &testRelayer{failKey: true}
	srv := httptest.NewServer(tr)
	defer srv.Close()

	ch := NewRemoteChannel(srv.URL, time.Second, Options{AllowPlaceholder: false})
	_, err := ch.Encrypt(context.Background(), testLedger, testVoter, types.VoteFor)
	c.Assert(err, qt.ErrorIs, types.ErrTransientUnavailable)
	c.Assert(tr.proofCalls.Load(), qt.Equals, int32(0))

	// encryption failures degrade the same way
	ch = NewChannel(func(context.Context) (Capability, error) {
		return &countingCapability{fail: errors.New("bad proof")}, nil
	}, Options{AllowPlaceholder: false})
	_, err = ch.Encrypt(context.Background(), testLedger, testVoter, types.VoteFor)
	c.Assert(err, qt.ErrorIs, types.ErrTransientUnavailable)
}

func TestAcquisitionTimeout(t *testing.T) {
	c := qt.New(t)
	release := make(chan struct{})
	ch := NewChannel(func(context.Context) (Capability, error) {
		<-release
		return &countingCapability{}, nil
	}, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.Encrypt(ctx, testLedger, testVoter, types.VoteFor)
	c.Assert(err, qt.ErrorIs, types.ErrTimeout)

	// the shared attempt survives the caller deadline
	close(release)
	in, err := ch.Encrypt(context.Background(), testLedger, testVoter, types.VoteFor)
	c.Assert(err, qt.IsNil)
	c.Assert(in.Placeholder, qt.IsFalse)
}

func TestInputBuilder(t *testing.T) {
	c := qt.New(t)
	tr := &testRelayer{}
	srv := httptest.NewServer(tr)
	defer srv.Close()

	r, err := Dial(context.Background(), srv.URL, time.Second)
	c.Assert(err, qt.IsNil)

	_, err = r.CreateInput(testLedger, testVoter).AddBit(2).Encrypt(context.Background())
	c.Assert(err, qt.ErrorMatches, "invalid bit value 2")
	_, err = r.CreateInput(testLedger, testVoter).Encrypt(context.Background())
	c.Assert(err, qt.ErrorMatches, "no values to encrypt")

	res, err := r.CreateInput(testLedger, testVoter).AddBit(1).Add32(7).Encrypt(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(res.Handles, qt.HasLen, 2)
	tr.mu.Lock()
	c.Assert(tr.last.Values, qt.DeepEquals, []inputValue{{Type: typeUint32, Value: 1}, {Type: typeUint32, Value: 7}})
	tr.mu.Unlock()
}
