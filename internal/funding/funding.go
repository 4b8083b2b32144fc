// Package funding implements the Funding Planner: deriving or loading the
// source account set, filtering by balance, and distributing funds from
// the root account in a single round.
package funding

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/findoranetwork/feth/internal/feth"
	"github.com/findoranetwork/feth/internal/keys"
	"github.com/findoranetwork/feth/internal/noncetracker"
	"github.com/findoranetwork/feth/internal/rpcclient"
	"github.com/findoranetwork/feth/internal/signer"
)

// RPC is the subset of rpcclient.Client's surface the Funding Planner
// needs, narrow enough that tests can substitute a fake without a live
// node.
type RPC interface {
	noncetracker.RPC
	Balance(ctx context.Context, addr common.Address) *big.Int
	SendRawTransaction(ctx context.Context, signed *types.Transaction) (common.Hash, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) *types.Receipt
}

// Plan is the Funding Planner's resolved input: the root account, the
// source accounts it must fund, and the amount each source receives.
type Plan struct {
	RootKeyHex   string
	RootAddress  common.Address
	Sources      []feth.KeyPair
	AmountEach   *big.Int
	ChainID      *big.Int
	GasPrice     *big.Int
	BlockTime    time.Duration // drives the post-send receipt-wait deadline
	Redeposit    bool          // skip sources already above the floor balance
	CheckBalance bool          // gate the Redeposit filter on a live balance check
}

// ResolveSources implements spec.md §4.7's "load or generate" rule, in the
// original's strict sense (`_examples/original_source/findora/src/main.rs`'s
// `panic!` on an unexpected existing file): with load == true it reads path
// and tops it off to n entries if short; with load == false it generates n
// fresh KeyPairs, but refuses to overwrite an existing file rather than
// silently loading it.
func ResolveSources(path string, n int, load bool) ([]feth.KeyPair, error) {
	if load {
		loaded, err := keys.Load(path)
		if err != nil {
			return nil, fmt.Errorf("funding: load sources: %w", err)
		}
		if len(loaded) >= n {
			return loaded[:n], nil
		}
		extra, err := keys.GenerateN(n - len(loaded))
		if err != nil {
			return nil, fmt.Errorf("funding: extend sources: %w", err)
		}
		all := append(loaded, extra...)
		if err := keys.Save(path, all); err != nil {
			return nil, fmt.Errorf("funding: save extended sources: %w", err)
		}
		return all, nil
	}

	if keys.Exists(path) {
		return nil, fmt.Errorf("funding: %q already exists; pass --load to reuse it", path)
	}

	fresh, err := keys.GenerateN(n)
	if err != nil {
		return nil, fmt.Errorf("funding: generate sources: %w", err)
	}
	if err := keys.Save(path, fresh); err != nil {
		return nil, fmt.Errorf("funding: save sources: %w", err)
	}
	return fresh, nil
}

// FilterFunded drops sources whose balance already meets floor, used when
// CheckBalance is set to avoid redundant root->source transfers.
func FilterFunded(ctx context.Context, client RPC, sources []feth.KeyPair, floor *big.Int) []feth.KeyPair {
	out := make([]feth.KeyPair, 0, len(sources))
	for _, kp := range sources {
		addr := common.HexToAddress(kp.Address)
		bal := client.Balance(ctx, addr)
		if bal.Cmp(floor) < 0 {
			out = append(out, kp)
		} else {
			log.Debug("funding: source already funded, skipping", "addr", kp.Address, "balance", bal)
		}
	}
	return out
}

// FilterSufficientBalance drops sources whose balance can't cover the
// load about to be driven through them, used by the `test` subcommand's
// --check-balance gate per spec.md §4.7's "balance(source) > amount*count"
// rule and testable scenario 6.
func FilterSufficientBalance(ctx context.Context, client RPC, sources []feth.KeyPair, floor *big.Int) []feth.KeyPair {
	out := make([]feth.KeyPair, 0, len(sources))
	for _, kp := range sources {
		addr := common.HexToAddress(kp.Address)
		bal := client.Balance(ctx, addr)
		if bal.Cmp(floor) > 0 {
			out = append(out, kp)
		} else {
			log.Debug("test: source balance too low, dropping", "addr", kp.Address, "balance", bal, "floor", floor)
		}
	}
	return out
}

// Distribute runs one round of root -> each source transfers, returning
// the aggregated TransferMetrics. The root's nonce is tracked locally
// since it is the sole signer for the entire round.
func Distribute(ctx context.Context, client RPC, plan Plan) (feth.TransferMetrics, error) {
	key, err := signer.ParseKey(plan.RootKeyHex)
	if err != nil {
		return feth.TransferMetrics{}, fmt.Errorf("funding: parse root key: %w", err)
	}

	nonces, err := noncetracker.New(ctx, client, plan.RootAddress, rpcclient.Unlimited(5*time.Second))
	if err != nil {
		return feth.TransferMetrics{}, fmt.Errorf("funding: root nonce: %w", err)
	}

	sources := plan.Sources
	if plan.CheckBalance && plan.Redeposit {
		sources = FilterFunded(ctx, client, sources, plan.AmountEach)
	}

	metric := feth.TransferMetrics{From: plan.RootAddress, Total: uint64(len(sources))}
	for _, kp := range sources {
		to := common.HexToAddress(kp.Address)
		tx := feth.TxMetric{To: to, Amount: plan.AmountEach, Status: feth.StatusNeverAttempted}

		params := signer.Parameters{
			To:       to,
			Value:    plan.AmountEach,
			ChainID:  plan.ChainID,
			GasPrice: plan.GasPrice,
			Nonce:    nonces.Peek(),
		}
		signed, err := signer.Sign(params, key)
		if err != nil {
			log.Warn("funding: sign failed", "to", to, "err", err)
			tx.Status = feth.StatusSignFailed
			nonces.Refresh(ctx)
			metric.Txs = append(metric.Txs, tx)
			continue
		}

		hash, err := sendOnce(ctx, client, nonces, signed)
		if err != nil {
			log.Warn("funding: send failed", "to", to, "err", err)
			metric.Txs = append(metric.Txs, tx)
			continue
		}
		tx.Hash = &hash
		tx.Status = 0 // submitted, outcome pending a receipt wait
		metric.Txs = append(metric.Txs, tx)
	}

	metric.Succeed = waitForReceipts(ctx, client, plan.BlockTime, metric.Txs)
	return metric, nil
}

// waitForReceipts polls every metric with a hash until it lands (status 1)
// or wait_time = block_time*3+1 seconds elapse, mirroring
// dispatcher.waitForReceipts per spec.md §8 scenario 1 and the original
// TestClient::distribution's receipt-wait loop.
func waitForReceipts(ctx context.Context, client RPC, blockTime time.Duration, metrics []feth.TxMetric) uint64 {
	waitTime := blockTime*3 + time.Second
	var succeed uint64
	for i := range metrics {
		if metrics[i].Hash == nil {
			continue
		}
		start := time.Now()
		deadline := start.Add(waitTime)
		for {
			receipt := client.TransactionReceipt(ctx, *metrics[i].Hash)
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

func sendOnce(ctx context.Context, client RPC, nonces *noncetracker.Tracker, signed *types.Transaction) (common.Hash, error) {
	hash, err := client.SendRawTransaction(ctx, signed)
	if err != nil {
		nonces.Refresh(ctx)
		return common.Hash{}, err
	}
	nonces.Advance()
	return hash, nil
}

// PlanTargets generates, for each source, a list of fresh target KeyPairs
// (one per round) each receiving amountPerTx — the set the Worker Pool
// will pay into during `test`.
func PlanTargets(rounds int, amountPerTx *big.Int) ([]feth.Target, error) {
	targets := make([]feth.Target, 0, rounds)
	for i := 0; i < rounds; i++ {
		kp, err := keys.New()
		if err != nil {
			return nil, fmt.Errorf("funding: generate target: %w", err)
		}
		targets = append(targets, feth.Target{Address: common.HexToAddress(kp.Address), Amount: amountPerTx})
	}
	return targets, nil
}
