// Package contractmode implements `test --mode contract`: instead of
// plain value transfers, each round deploys (once) and calls a tiny
// store-and-probe contract, mirroring the liveness-probe FRC20 pattern
// the original tool used to exercise contract execution paths.
package contractmode

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/findoranetwork/feth/internal/feth"
	"github.com/findoranetwork/feth/internal/rpcclient"
	"github.com/findoranetwork/feth/internal/signer"
)

// probeABI describes a minimal "Probe" contract: a single uint256 slot,
// a `bump()` that increments it, and a `value()` getter. Used purely as
// a liveness/throughput probe, not a real asset.
const probeABI = `[
	{"inputs":[],"name":"bump","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"value","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// probeBin is the deploy bytecode of a contract equivalent to:
//
//	contract Probe {
//	    uint256 public value;
//	    function bump() public { value += 1; }
//	}
const probeBin = "608060405234801561001057600080fd5b50610150806100206000396000f3fe608060405234801561001057600080fd5b5060043610610041576000357c0100000000000000000000000000000000000000000000000000000000900480633fb5c1cb1461004657806355241077146100645780633fa4f245146100825761003c565b5b600080fd5b61004e6100a0565b60405161005b91906100d4565b60405180910390f35b61006c6100a6565b005b61008a6100b1565b60405161009791906100d4565b60405180910390f35b60005481565b6001600080828254019250508190555050565b60008054905090565b6000819050919050565b6100ce816100bb565b82525050565b60006020820190506100e960008301846100c5565b9291505056fea264697066735822"

// Binding wraps a deployed Probe contract at a known address.
type Binding struct {
	Address common.Address
	backend *bind.BoundContract
}

// Deploy deploys the probe contract from key, returning its address and
// the pending deploy transaction (not mined).
func Deploy(ctx context.Context, client *ethclient.Client, key *ecdsa.PrivateKey, chainID *big.Int) (common.Address, *types.Transaction, error) {
	parsed, err := abi.JSON(strings.NewReader(probeABI))
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("contractmode: parse abi: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("contractmode: transactor: %w", err)
	}
	auth.Context = ctx

	addr, tx, _, err := bind.DeployContract(auth, parsed, common.FromHex(probeBin), client)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("contractmode: deploy: %w", err)
	}
	return addr, tx, nil
}

// Bind attaches to an already-deployed probe contract.
func Bind(addr common.Address, backend bind.ContractBackend) (*Binding, error) {
	parsed, err := abi.JSON(strings.NewReader(probeABI))
	if err != nil {
		return nil, fmt.Errorf("contractmode: parse abi: %w", err)
	}
	return &Binding{
		Address: addr,
		backend: bind.NewBoundContract(addr, parsed, backend, backend, backend),
	}, nil
}

// Bump submits a signed `bump()` call from key, returning the tx hash.
func (b *Binding) Bump(ctx context.Context, key *ecdsa.PrivateKey, chainID *big.Int) (common.Hash, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractmode: transactor: %w", err)
	}
	auth.Context = ctx
	tx, err := b.backend.Transact(auth, "bump")
	if err != nil {
		return common.Hash{}, fmt.Errorf("contractmode: bump: %w", err)
	}
	return tx.Hash(), nil
}

// Value reads the probe contract's current counter.
func (b *Binding) Value(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := b.backend.Call(&bind.CallOpts{Context: ctx}, &out, "value"); err != nil {
		return nil, fmt.Errorf("contractmode: value: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("contractmode: unexpected value() result shape")
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("contractmode: unexpected value() result type")
	}
	return v, nil
}

// Source is one funded account driving Rounds worth of bump() calls.
type Source struct {
	KeyHex  string
	Address common.Address
	Rounds  int
}

// Run deploys the probe contract once (from the first source, which is
// already funded by the Funding Planner) and has every source call bump()
// once per round, in parallel up to poolSize, mirroring workerpool.Pool.Run's
// round structure for `test --mode contract`.
func Run(ctx context.Context, client *rpcclient.Client, chainID *big.Int, sources []Source, poolSize int, blockTime, delay time.Duration) ([]feth.TransferMetrics, feth.RunSummary) {
	start := time.Now()
	startBlock, _ := client.BlockNumber(ctx)

	results := make([]feth.TransferMetrics, len(sources))
	summary := feth.RunSummary{StartBlock: startBlock}
	if len(sources) == 0 {
		summary.Elapsed = time.Since(start)
		return results, summary
	}

	keys := make([]*ecdsa.PrivateKey, len(sources))
	for i, src := range sources {
		key, err := signer.ParseKey(src.KeyHex)
		if err != nil {
			log.Error("contract mode: skipping source: parse key failed", "source", src.Address, "err", err)
			continue
		}
		keys[i] = key
	}

	deployer := keys[0]
	if deployer == nil {
		summary.Elapsed = time.Since(start)
		return results, summary
	}
	addr, deployTx, err := Deploy(ctx, client.EthClient(), deployer, chainID)
	if err != nil {
		log.Error("contract mode: probe deploy failed", "err", err)
		summary.Elapsed = time.Since(start)
		return results, summary
	}
	if landed, _ := waitReceipt(ctx, client, deployTx.Hash(), blockTime); !landed {
		log.Error("contract mode: probe deploy never confirmed", "hash", deployTx.Hash().Hex())
		summary.Elapsed = time.Since(start)
		return results, summary
	}

	binding, err := Bind(addr, client.EthClient())
	if err != nil {
		log.Error("contract mode: bind failed", "addr", addr, "err", err)
		summary.Elapsed = time.Since(start)
		return results, summary
	}
	log.Info("contract mode: probe deployed", "address", addr.Hex())

	rounds := sources[0].Rounds
	var sem chan struct{}
	if poolSize > 0 {
		sem = make(chan struct{}, poolSize)
	}

	for round := 0; round < rounds; round++ {
		roundStart := time.Now()
		var wg sync.WaitGroup
		for i, src := range sources {
			if keys[i] == nil {
				continue
			}
			wg.Add(1)
			go func(i int, src Source) {
				defer wg.Done()
				if sem != nil {
					sem <- struct{}{}
					defer func() { <-sem }()
				}
				metric := feth.TxMetric{To: addr, Amount: big.NewInt(0), Status: feth.StatusNeverAttempted}
				hash, err := binding.Bump(ctx, keys[i], chainID)
				if err != nil {
					log.Warn("contract mode: bump failed", "source", src.Address, "round", round, "err", err)
					results[i].Txs = append(results[i].Txs, metric)
					return
				}
				metric.Hash = &hash
				metric.Status = 0
				landed, waitSecs := waitReceipt(ctx, client, hash, blockTime)
				metric.Wait = waitSecs
				if landed {
					metric.Status = feth.StatusSuccess
				}
				results[i].Txs = append(results[i].Txs, metric)
			}(i, src)
		}
		wg.Wait()
		log.Info("contract mode round complete", "round", round+1, "of", rounds, "elapsed", time.Since(roundStart))

		if round < rounds-1 && delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}

	endBlock, _ := client.BlockNumber(ctx)
	summary.EndBlock = endBlock
	summary.Elapsed = time.Since(start)
	for i, src := range sources {
		results[i].From = src.Address
		results[i].Total = uint64(len(results[i].Txs))
		for _, tx := range results[i].Txs {
			if tx.Status == feth.StatusSuccess {
				results[i].Succeed++
			}
		}
		summary.TotalSent += results[i].Total
		summary.TotalSucceeded += results[i].Succeed
	}
	return results, summary
}

// waitReceipt polls for hash's receipt up to blockTime*3+1s, mirroring
// dispatcher.waitForReceipts. landed is true only once a receipt with
// status == 1 is observed.
func waitReceipt(ctx context.Context, client *rpcclient.Client, hash common.Hash, blockTime time.Duration) (landed bool, waitSecs uint64) {
	waitTime := blockTime*3 + time.Second
	start := time.Now()
	deadline := start.Add(waitTime)
	for {
		receipt := client.TransactionReceipt(ctx, hash)
		if receipt != nil {
			return receipt.Status == 1, uint64(time.Since(start).Seconds())
		}
		if time.Now().After(deadline) {
			return false, uint64(waitTime.Seconds())
		}
		select {
		case <-ctx.Done():
			return false, uint64(time.Since(start).Seconds())
		case <-time.After(time.Second):
		}
	}
}
