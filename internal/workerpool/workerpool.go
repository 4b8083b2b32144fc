// Package workerpool schedules exactly one Dispatcher per source, running
// the configured number of rounds with an inter-round drain delay.
package workerpool

import (
	"context"
	"math/big"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/findoranetwork/feth/internal/dispatcher"
	"github.com/findoranetwork/feth/internal/feth"
	"github.com/findoranetwork/feth/internal/overflow"
	"github.com/findoranetwork/feth/internal/rpcclient"
)

// CalcPoolSize implements spec.md §4.6: clamp(num_sources*2, 1, maxParallelism).
func CalcPoolSize(numSources, maxParallelism int) int {
	size := numSources * 2
	if size > maxParallelism {
		size = maxParallelism
	}
	if size < 1 {
		size = 1
	}
	return size
}

// ValidateParallelism rejects configurations spec.md §4.6 disallows.
func ValidateParallelism(maxParallelism int) error {
	cpus := runtime.NumCPU()
	if maxParallelism == 0 {
		return errInvalidParallelism("max-parallelism must be non-zero")
	}
	if maxParallelism > cpus*1000 {
		return errInvalidParallelism("max-parallelism exceeds logical_cpus * 1000")
	}
	return nil
}

type errInvalidParallelism string

func (e errInvalidParallelism) Error() string { return string(e) }

// Pool runs Rounds passes over every source, each pass sending one
// transaction per source to one target, draining Delay between rounds.
type Pool struct {
	Client      *rpcclient.Client
	Coordinator *overflow.Coordinator
	ChainID     *big.Int
	GasPrice    *big.Int
	BlockTime   time.Duration
	NeedWait    bool
	NeedRetry   bool
	Delay       time.Duration
	PoolSize    int // concurrent dispatcher cap; 0 disables the cap
}

// Source is one funded account paired with the pool of targets it pays,
// one per round.
type Source struct {
	KeyHex  string
	Address common.Address
	Targets []feth.Target // len(Targets) == rounds
}

// Run executes len(sources[0].Targets) rounds over all sources, one
// goroutine per source (no per-target parallelism within a source — nonce
// ordering forbids it), and returns the aggregated per-source metrics plus
// a run summary.
func (p *Pool) Run(ctx context.Context, sources []Source) ([]feth.TransferMetrics, feth.RunSummary) {
	rounds := 0
	if len(sources) > 0 {
		rounds = len(sources[0].Targets)
	}

	start := time.Now()
	startBlock, _ := p.Client.BlockNumber(ctx)

	results := make([]feth.TransferMetrics, len(sources))
	dispatchers := make([]*dispatcher.Dispatcher, len(sources))
	for i, src := range sources {
		d, err := dispatcher.New(ctx, p.Client, p.Coordinator, i+1, src.KeyHex, src.Address, dispatcher.Options{
			ChainID:   p.ChainID,
			GasPrice:  p.GasPrice,
			BlockTime: p.BlockTime,
			NeedWait:  p.NeedWait,
			NeedRetry: p.NeedRetry,
		})
		if err != nil {
			log.Error("skipping source: failed to initialize dispatcher", "source", src.Address, "err", err)
			continue
		}
		dispatchers[i] = d
		results[i] = feth.TransferMetrics{From: src.Address}
	}

	var sem chan struct{}
	if p.PoolSize > 0 {
		sem = make(chan struct{}, p.PoolSize)
	}

	for round := 0; round < rounds; round++ {
		roundStart := time.Now()
		var wg sync.WaitGroup
		for i, src := range sources {
			if dispatchers[i] == nil {
				continue
			}
			wg.Add(1)
			go func(i int, src Source) {
				defer wg.Done()
				if sem != nil {
					sem <- struct{}{}
					defer func() { <-sem }()
				}
				target := src.Targets[round : round+1]
				m := dispatchers[i].Run(ctx, src.Address, target)
				accumulate(&results[i], m)
			}(i, src)
		}
		wg.Wait()
		log.Info("round complete", "round", round+1, "of", rounds, "elapsed", time.Since(roundStart))

		if round < rounds-1 && p.Delay > 0 {
			select {
			case <-ctx.Done():
				break
			case <-time.After(p.Delay):
			}
		}
	}

	endBlock, _ := p.Client.BlockNumber(ctx)
	summary := feth.RunSummary{StartBlock: startBlock, EndBlock: endBlock, Elapsed: time.Since(start)}
	for _, m := range results {
		summary.TotalSent += m.Total
		summary.TotalSucceeded += m.Succeed
	}
	return results, summary
}

func accumulate(acc *feth.TransferMetrics, m feth.TransferMetrics) {
	acc.Total += m.Total
	acc.Succeed += m.Succeed
	acc.Txs = append(acc.Txs, m.Txs...)
}
