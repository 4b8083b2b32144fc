// Package feth holds the data types shared across the load-generation
// harness: key material, per-transaction metrics, and run-level summaries.
package feth

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Outcome codes for TxMetric.Status. Values other than these are reserved
// for future transport-specific classification.
const (
	StatusSuccess        = 1  // receipt observed with status == 1
	StatusRetried        = 97 // resubmitted after a transport error
	StatusSignFailed     = 98 // local signing failed, never submitted
	StatusNeverAttempted = 99 // skipped before a submit was attempted
)

// KeyPair is a checksummed address paired with its hex-encoded private key.
// Generated once from a fresh BIP-39 mnemonic (see internal/keys) and
// immutable thereafter.
type KeyPair struct {
	Address string `json:"address"`
	Private string `json:"private"`
}

// TxMetric records the outcome of one attempted submission.
type TxMetric struct {
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
	Hash   *common.Hash   `json:"hash,omitempty"`
	Status uint64         `json:"status"`
	Wait   uint64         `json:"wait"` // seconds elapsed waiting for receipt
}

// TransferMetrics is the per-source aggregate of a Dispatcher run.
// Invariant: Succeed <= Total == len(Txs).
type TransferMetrics struct {
	From    common.Address `json:"from"`
	Total   uint64         `json:"total"`
	Succeed uint64         `json:"succeed"`
	Txs     []TxMetric     `json:"txs"`
}

// RunSummary aggregates every source's TransferMetrics for one `test` or
// `fund` invocation.
type RunSummary struct {
	TotalSent      uint64
	TotalSucceeded uint64
	Elapsed        time.Duration
	StartBlock     uint64
	EndBlock       uint64
}

// TPS returns the observed transfers-per-second for the run, 0 if Elapsed
// is not positive.
func (r RunSummary) TPS() float64 {
	secs := r.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.TotalSucceeded) / secs
}

// Target is one (address, amount) pair a source must pay.
type Target struct {
	Address common.Address
	Amount  *big.Int
}

// WorkItem is exclusively owned by one Dispatcher for its lifetime: a
// source key, its address, and the list of targets it must pay.
type WorkItem struct {
	WorkerID      int
	SourceKeyHex  string
	SourceAddress common.Address
	Targets       []Target
}

// BlockInfo is the ETL component's normalized per-height record.
type BlockInfo struct {
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
	TxCount   uint64 `json:"txs"`
	ValidTxs  uint64 `json:"valid_txs"`
	BlockTime int64  `json:"block_time"`
}
