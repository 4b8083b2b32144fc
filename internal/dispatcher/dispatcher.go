// Package dispatcher drives one source's sign→submit→retry loop: the hard
// part of the load-generation harness (spec.md's "THE CORE").
package dispatcher

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/findoranetwork/feth/internal/feth"
	"github.com/findoranetwork/feth/internal/noncetracker"
	"github.com/findoranetwork/feth/internal/overflow"
	"github.com/findoranetwork/feth/internal/rpcclient"
	"github.com/findoranetwork/feth/internal/rpcerr"
	"github.com/findoranetwork/feth/internal/signer"
)

// RPC is the subset of rpcclient.Client's surface the Dispatcher needs to
// track nonces and submit/confirm transactions, narrow enough that tests
// can substitute a fake node without a live RPC endpoint.
type RPC interface {
	noncetracker.RPC
	SendRawTransaction(ctx context.Context, signed *types.Transaction) (common.Hash, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) *types.Receipt
}

// Options controls one Dispatcher run. MaxErrCount == 0 means uncapped,
// matching the source's unbounded linear-backoff behavior; see SPEC_FULL.md
// §9's Open Question 1 for why this is a knob rather than a forced cap.
type Options struct {
	ChainID     *big.Int
	GasPrice    *big.Int
	BlockTime   time.Duration
	NeedWait    bool
	NeedRetry   bool
	MaxErrCount int
}

// Dispatcher runs the per-source submission loop for exactly one WorkItem.
type Dispatcher struct {
	client      RPC
	coordinator *overflow.Coordinator
	nonces      *noncetracker.Tracker
	key         *ecdsa.PrivateKey
	workerID    int
	opts        Options
}

// New constructs a Dispatcher for one source. The Nonce Tracker is created
// here (owned by this Dispatcher, destroyed when Run returns) and
// initialization failure aborts the source with an error — never a silent
// drop.
func New(ctx context.Context, client RPC, coordinator *overflow.Coordinator, workerID int, sourceKeyHex string, sourceAddress common.Address, opts Options) (*Dispatcher, error) {
	key, err := signer.ParseKey(sourceKeyHex)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: parse source key: %w", err)
	}
	nonces, err := noncetracker.New(ctx, client, sourceAddress, rpcclient.Unlimited(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("dispatcher: source %s: %w", sourceAddress.Hex(), err)
	}
	return &Dispatcher{
		client:      client,
		coordinator: coordinator,
		nonces:      nonces,
		key:         key,
		workerID:    workerID,
		opts:        opts,
	}, nil
}

// Run signs, submits, and (if configured) waits on every target in order,
// returning the source's aggregated TransferMetrics.
func (d *Dispatcher) Run(ctx context.Context, source common.Address, targets []feth.Target) feth.TransferMetrics {
	metrics := make([]feth.TxMetric, 0, len(targets))
	lastErrCount := 0

	for idx, target := range targets {
		metric := feth.TxMetric{To: target.Address, Amount: target.Amount, Status: feth.StatusNeverAttempted}

		params := d.params(target)
		signed, err := signer.Sign(params, d.key)
		if err != nil {
			log.Warn("sign failed", "worker", d.workerID, "idx", idx, "err", err)
			metric.Status = feth.StatusSignFailed
			d.nonces.Refresh(ctx)
			metrics = append(metrics, metric)
			continue
		}

		d.coordinator.Park(ctx, d.workerID)

		hash, err := d.client.SendRawTransaction(ctx, signed)
		skip := false
		if err == nil {
			metric.Hash = &hash
			metric.Status = 0 // submitted, outcome pending a receipt wait
			d.nonces.Advance()
			if d.coordinator.Holder() == d.workerID {
				if !d.coordinator.Clear(d.workerID) {
					log.Warn("overflow flag already released by another worker", "worker", d.workerID)
				} else {
					log.Info("overflow flag cleared", "by", d.workerID)
				}
			}
		} else {
			classified := rpcerr.Classify(err)
			switch classified.Kind {
			case rpcerr.SyncTx:
				hash, skip = d.probe(ctx, source, target, &lastErrCount)
				if skip {
					metric.Hash = &hash
					metric.Status = feth.StatusRetried
				}
			default:
				log.Warn("submit failed", "worker", d.workerID, "idx", idx, "kind", classified.Kind, "err", classified.Err)
				d.nonces.Refresh(ctx)
			}
		}

		if d.opts.NeedRetry && !skip && metric.Hash == nil {
			lastErrCount++
			if d.opts.MaxErrCount > 0 && lastErrCount > d.opts.MaxErrCount {
				lastErrCount = d.opts.MaxErrCount
			}
			backoff := time.Duration(2*lastErrCount) * time.Second
			log.Info("retrying submission", "worker", d.workerID, "idx", idx, "backoff", backoff)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			d.nonces.Refresh(ctx)
			params = d.params(target)
			if resigned, err := signer.Sign(params, d.key); err == nil {
				if retryHash, err := d.client.SendRawTransaction(ctx, resigned); err == nil {
					metric.Hash = &retryHash
					metric.Status = feth.StatusRetried
					d.nonces.Advance()
					lastErrCount = 0
				} else {
					lastErrCount++
					d.nonces.Refresh(ctx)
				}
			} else {
				lastErrCount++
			}
		}

		metrics = append(metrics, metric)
		fmt.Printf("%d/%d %s %v\n", idx+1, len(targets), target.Address.Hex(), metric.Hash)
	}

	var succeed uint64
	if d.opts.NeedWait {
		succeed = d.waitForReceipts(ctx, metrics)
	}

	return feth.TransferMetrics{From: source, Total: uint64(len(targets)), Succeed: succeed, Txs: metrics}
}

// probe runs the Overflow Coordinator's probe loop: refresh nonce, re-sign,
// resubmit, until either this worker succeeds (clearing the flag for
// everyone) or another worker clears it first.
func (d *Dispatcher) probe(ctx context.Context, source common.Address, target feth.Target, lastErrCount *int) (common.Hash, bool) {
	if d.coordinator.TryBecomeProbe(d.workerID) {
		log.Info("overflow flag set", "by", d.workerID)
	}

	for {
		if d.coordinator.Holder() != d.workerID {
			// Someone else holds or cleared the flag; fall through to the
			// caller's ordinary retry path.
			return common.Hash{}, false
		}

		d.nonces.Refresh(ctx)
		params := d.params(target)
		signed, err := signer.Sign(params, d.key)
		if err != nil {
			log.Warn("probe sign failed", "worker", d.workerID, "err", err)
			time.Sleep(overflow.DefaultParkInterval)
			continue
		}

		hash, err := d.client.SendRawTransaction(ctx, signed)
		if err == nil {
			d.nonces.Advance()
			if !d.coordinator.Clear(d.workerID) {
				panic("overflow: probe worker lost exclusive ownership of the flag")
			}
			log.Info("overflow flag cleared", "by", d.workerID, "me", d.workerID)
			return hash, true
		}

		*lastErrCount++
		log.Debug("probe submit still failing", "worker", d.workerID, "err", err)
		select {
		case <-ctx.Done():
			return common.Hash{}, false
		case <-time.After(overflow.DefaultParkInterval):
		}
	}
}

func (d *Dispatcher) params(target feth.Target) signer.Parameters {
	return signer.Parameters{
		To:       target.Address,
		Value:    target.Amount,
		ChainID:  d.opts.ChainID,
		GasPrice: d.opts.GasPrice,
		Nonce:    d.nonces.Peek(),
	}
}

// waitForReceipts polls every metric with a hash until it lands (status 1)
// or wait_time = block_time*3+1 seconds elapse, per spec.md §4.5 step 3.
func (d *Dispatcher) waitForReceipts(ctx context.Context, metrics []feth.TxMetric) uint64 {
	waitTime := d.opts.BlockTime*3 + time.Second
	var succeed uint64
	for i := range metrics {
		if metrics[i].Hash == nil {
			continue
		}
		start := time.Now()
		deadline := start.Add(waitTime)
		for {
			receipt := d.client.TransactionReceipt(ctx, *metrics[i].Hash)
			if receipt != nil {
				metrics[i].Wait = uint64(time.Since(start).Seconds())
				if receipt.Status == 1 {
					metrics[i].Status = feth.StatusSuccess
					succeed++
				}
				break
			}
			if time.Now().After(deadline) {
				metrics[i].Wait = uint64(waitTime.Seconds())
				break
			}
			select {
			case <-ctx.Done():
				return succeed
			case <-time.After(time.Second):
			}
		}
	}
	return succeed
}
