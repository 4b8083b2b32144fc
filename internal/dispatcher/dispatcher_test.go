package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/findoranetwork/feth/internal/feth"
	"github.com/findoranetwork/feth/internal/overflow"
	"github.com/findoranetwork/feth/internal/rpcclient"
)

var chainID = big.NewInt(1)

// fakeNode is a minimal in-memory stand-in for rpcclient.Client: a per-address
// pending nonce and a recorded receipt for every accepted submission. It lets
// dispatcher tests drive specific failure sequences without a live node.
type fakeNode struct {
	mu          sync.Mutex
	nonces      map[common.Address]uint64
	receipts    map[common.Hash]*types.Receipt
	sentNonces  []uint64
	failWithMsg map[int]string // keyed by zero-based call index across the whole test
	calls       int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		nonces:      make(map[common.Address]uint64),
		receipts:    make(map[common.Hash]*types.Receipt),
		failWithMsg: make(map[int]string),
	}
}

func (f *fakeNode) PendingNonce(ctx context.Context, addr common.Address, policy rpcclient.RetryPolicy) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[addr], true
}

func (f *fakeNode) SendRawTransaction(ctx context.Context, signed *types.Transaction) (common.Hash, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	if msg, fail := f.failWithMsg[idx]; fail {
		f.mu.Unlock()
		return common.Hash{}, errors.New(msg)
	}

	sender, err := types.NewEIP155Signer(chainID).Sender(signed)
	if err != nil {
		f.mu.Unlock()
		return common.Hash{}, err
	}
	expected := f.nonces[sender]
	if signed.Nonce() != expected {
		f.mu.Unlock()
		return common.Hash{}, fmt.Errorf("InternalError: InvalidNonce, expected %d got %d", expected, signed.Nonce())
	}
	f.nonces[sender] = expected + 1
	f.sentNonces = append(f.sentNonces, signed.Nonce())
	f.receipts[signed.Hash()] = &types.Receipt{Status: 1}
	f.mu.Unlock()
	return signed.Hash(), nil
}

func (f *fakeNode) TransactionReceipt(ctx context.Context, hash common.Hash) *types.Receipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[hash]
}

// sharedOverflowNode simulates one node-wide mempool shared by several
// dispatchers: every submission fails with SyncTx until enough attempts
// have accumulated across all callers, then it drains and behaves like an
// ordinary fakeNode (still validating per-address nonces).
type sharedOverflowNode struct {
	mu          sync.Mutex
	nonces      map[common.Address]uint64
	receipts    map[common.Hash]*types.Receipt
	attempts    int
	drainsAfter int
}

func newSharedOverflowNode(drainsAfter int) *sharedOverflowNode {
	return &sharedOverflowNode{
		nonces:      make(map[common.Address]uint64),
		receipts:    make(map[common.Hash]*types.Receipt),
		drainsAfter: drainsAfter,
	}
}

func (s *sharedOverflowNode) PendingNonce(ctx context.Context, addr common.Address, policy rpcclient.RetryPolicy) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[addr], true
}

func (s *sharedOverflowNode) SendRawTransaction(ctx context.Context, signed *types.Transaction) (common.Hash, error) {
	s.mu.Lock()
	s.attempts++
	overflowed := s.attempts <= s.drainsAfter
	s.mu.Unlock()

	if overflowed {
		return common.Hash{}, errors.New("broadcast_tx_sync: mempool is full")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sender, err := types.NewEIP155Signer(chainID).Sender(signed)
	if err != nil {
		return common.Hash{}, err
	}
	expected := s.nonces[sender]
	if signed.Nonce() != expected {
		return common.Hash{}, fmt.Errorf("InternalError: InvalidNonce, expected %d got %d", expected, signed.Nonce())
	}
	s.nonces[sender] = expected + 1
	s.receipts[signed.Hash()] = &types.Receipt{Status: 1}
	return signed.Hash(), nil
}

func (s *sharedOverflowNode) TransactionReceipt(ctx context.Context, hash common.Hash) *types.Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receipts[hash]
}

func mustKeyAndAddress(t *testing.T) (string, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return common.Bytes2Hex(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey)
}

func fiveTargets() []feth.Target {
	targets := make([]feth.Target, 5)
	for i := range targets {
		targets[i] = feth.Target{
			Address: common.HexToAddress(fmt.Sprintf("0x%040d", i+1)),
			Amount:  big.NewInt(1),
		}
	}
	return targets
}

// TestNonceMonotonicUnderInjectedSendErr covers spec.md §8 scenario 2: a
// SendErr on the second of five submissions must not desynchronize the
// tracked nonce from the node's — every eventually-accepted submission still
// lands with a strictly increasing, gapless nonce sequence.
func TestNonceMonotonicUnderInjectedSendErr(t *testing.T) {
	node := newFakeNode()
	keyHex, addr := mustKeyAndAddress(t)
	node.nonces[addr] = 10 // pending nonce = 10, per the scenario

	node.failWithMsg[1] = "error sending request: connection reset" // fail the 2nd submission

	d, err := New(context.Background(), node, overflow.New(time.Millisecond), 1, keyHex, addr, Options{
		ChainID:   chainID,
		GasPrice:  big.NewInt(1),
		BlockTime: 0,
		NeedWait:  true,
		NeedRetry: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	metrics := d.Run(context.Background(), addr, fiveTargets())

	if metrics.Total != 5 {
		t.Fatalf("Total = %d, want 5", metrics.Total)
	}
	if len(node.sentNonces) != 5 {
		t.Fatalf("node observed %d accepted submissions, want 5: %v", len(node.sentNonces), node.sentNonces)
	}
	want := []uint64{10, 11, 12, 13, 14}
	for i, n := range node.sentNonces {
		if n != want[i] {
			t.Fatalf("sentNonces = %v, want %v", node.sentNonces, want)
		}
	}
	if metrics.Txs[1].Status != feth.StatusSuccess {
		t.Fatalf("metric[1].Status = %d, want StatusSuccess (%d) once the retried submission's receipt lands", metrics.Txs[1].Status, feth.StatusSuccess)
	}
	if metrics.Txs[1].Hash == nil {
		t.Fatalf("metric[1].Hash should be present once the retry lands")
	}
}

// TestOverflowCoordinationAcrossFourWorkers covers spec.md §8 scenario 3:
// four workers all receive SyncTx on their first submit against a shared
// node. Exactly one becomes the probe and clears the flag; all four still
// reach their second target once it clears.
func TestOverflowCoordinationAcrossFourWorkers(t *testing.T) {
	const workers = 4
	node := newSharedOverflowNode(workers) // first `workers` attempts overflow; the prober's first retry drains it

	coordinator := overflow.New(time.Millisecond)
	targets := []feth.Target{
		{Address: common.HexToAddress("0x0000000000000000000000000000000000000001"), Amount: big.NewInt(1)},
		{Address: common.HexToAddress("0x0000000000000000000000000000000000000002"), Amount: big.NewInt(1)},
	}

	results := make([]feth.TransferMetrics, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		keyHex, addr := mustKeyAndAddress(t)
		d, err := New(context.Background(), node, coordinator, i+1, keyHex, addr, Options{
			ChainID:   chainID,
			GasPrice:  big.NewInt(1),
			BlockTime: 0,
			NeedWait:  true,
			NeedRetry: false,
		})
		if err != nil {
			t.Fatalf("New(worker %d): %v", i+1, err)
		}
		wg.Add(1)
		go func(i int, d *Dispatcher, addr common.Address) {
			defer wg.Done()
			results[i] = d.Run(context.Background(), addr, targets)
		}(i, d, addr)
	}
	wg.Wait()

	if !coordinator.IsClear() {
		t.Fatalf("overflow flag should be clear once every worker has progressed past it")
	}

	succeededTwice := 0
	for i, m := range results {
		if m.Total != 2 {
			t.Fatalf("worker %d Total = %d, want 2: every worker must reach its second target", i+1, m.Total)
		}
		switch m.Succeed {
		case 2:
			succeededTwice++
		case 1:
			// the three non-probe workers: target 1 was abandoned under
			// SyncTx (NeedRetry off), target 2 landed once the flag cleared.
		default:
			t.Fatalf("worker %d Succeed = %d, want 1 or 2", i+1, m.Succeed)
		}
	}
	if succeededTwice != 1 {
		t.Fatalf("expected exactly one probe worker to land both targets, got %d", succeededTwice)
	}
}
