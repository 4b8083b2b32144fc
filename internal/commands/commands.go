// Package commands implements the Action functions behind every feth
// CLI subcommand, wiring the RPC Client, Signer, Nonce Tracker, Overflow
// Coordinator, Dispatcher, Worker Pool, and Funding Planner together.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/findoranetwork/feth/internal/contractmode"
	"github.com/findoranetwork/feth/internal/etl"
	"github.com/findoranetwork/feth/internal/feth"
	"github.com/findoranetwork/feth/internal/funding"
	"github.com/findoranetwork/feth/internal/keys"
	"github.com/findoranetwork/feth/internal/network"
	"github.com/findoranetwork/feth/internal/overflow"
	"github.com/findoranetwork/feth/internal/profiler"
	"github.com/findoranetwork/feth/internal/rpcclient"
	"github.com/findoranetwork/feth/internal/workerpool"
)

const sourceKeyFile = "source_keys.001"
const secretFile = ".secret"

// dialFirst resolves --network and dials the first endpoint that
// answers, matching the source's "try each URL, use the first that
// works" fallback behavior.
func dialFirst(ctx context.Context, raw string, timeout time.Duration) (*rpcclient.Client, error) {
	urls, err := network.Resolve(raw)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, u := range urls {
		client, err := rpcclient.Dial(ctx, u, timeout)
		if err == nil {
			return client, nil
		}
		lastErr = err
		log.Warn("dial failed, trying next endpoint", "url", u, "err", err)
	}
	return nil, fmt.Errorf("commands: no reachable endpoint in %q: %w", raw, lastErr)
}

// Fund implements the `fund` subcommand: seed (or top off) source
// accounts from the root account held in .secret.
func Fund(c *cli.Context) error {
	ctx := c.Context
	timeout := c.Duration("timeout")

	client, err := dialFirst(ctx, c.String("network"), timeout)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer client.Close()

	root, err := keys.LoadSecret(secretFile)
	if err != nil {
		return cli.Exit(fmt.Errorf("fund: %w", err), 1)
	}

	count := c.Int("count")
	sources, err := funding.ResolveSources(sourceKeyFile, count, c.Bool("load"))
	if err != nil {
		return cli.Exit(fmt.Errorf("fund: %w", err), 1)
	}

	chainID, ok := client.ChainID(ctx)
	if !ok {
		return cli.Exit(fmt.Errorf("fund: could not resolve chain id"), 1)
	}
	gasPrice, ok := client.GasPrice(ctx)
	if !ok {
		return cli.Exit(fmt.Errorf("fund: could not resolve gas price"), 1)
	}

	amount, ok := new(big.Int).SetString(c.String("amount"), 10)
	if !ok {
		return cli.Exit(fmt.Errorf("fund: invalid --amount %q", c.String("amount")), 1)
	}

	plan := funding.Plan{
		RootKeyHex:   root.Private,
		RootAddress:  common.HexToAddress(root.Address),
		Sources:      sources,
		AmountEach:   amount,
		ChainID:      chainID,
		GasPrice:     gasPrice,
		BlockTime:    c.Duration("block-time"),
		Redeposit:    c.Bool("redeposit"),
		CheckBalance: true,
	}

	metric, err := funding.Distribute(ctx, client, plan)
	if err != nil {
		return cli.Exit(fmt.Errorf("fund: %w", err), 1)
	}

	fmt.Printf("funded %d/%d sources from %s\n", metric.Succeed, metric.Total, root.Address)
	return nil
}

// Info implements the `info` subcommand: print (balance, nonce) for an
// address.
func Info(c *cli.Context) error {
	ctx := c.Context
	client, err := dialFirst(ctx, c.String("network"), c.Duration("timeout"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer client.Close()

	addr := common.HexToAddress(c.String("account"))
	balance := client.Balance(ctx, addr)
	nonce, _ := client.PendingNonce(ctx, addr, rpcclient.RetryPolicy{MaxTries: 1})

	fmt.Printf("address=%s balance=%s nonce=%d\n", addr.Hex(), balance.String(), nonce)
	return nil
}

// Transaction implements the `transaction` subcommand: print a
// transaction by hash.
func Transaction(c *cli.Context) error {
	ctx := c.Context
	client, err := dialFirst(ctx, c.String("network"), c.Duration("timeout"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer client.Close()

	hash := common.HexToHash(c.String("hash"))
	tx, pending, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		return cli.Exit(fmt.Errorf("transaction: %w", err), 1)
	}
	fmt.Printf("hash=%s pending=%v to=%v nonce=%d value=%s\n", hash.Hex(), pending, tx.To(), tx.Nonce(), tx.Value().String())
	return nil
}

// Block implements the `block` subcommand. A negative --count means the
// preceding window ending at --start.
func Block(c *cli.Context) error {
	ctx := c.Context
	client, err := dialFirst(ctx, c.String("network"), c.Duration("timeout"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer client.Close()

	start := c.Int64("start")
	count := c.Int("count")
	heights := blockHeights(start, int64(count))

	policy := rpcclient.RetryPolicy{MaxTries: 3, Interval: time.Second}
	var prevTimestamp int64
	havePrev := false
	for _, h := range heights {
		blk, ok := client.BlockByNumber(ctx, big.NewInt(h), policy)
		if !ok {
			log.Warn("block unavailable", "height", h)
			continue
		}
		timestamp := int64(blk.Time())
		var blockTime int64
		if havePrev {
			blockTime = timestamp - prevTimestamp
		}
		fmt.Printf("%d,%d,%d,%d\n", blk.NumberU64(), timestamp, len(blk.Transactions()), blockTime)
		prevTimestamp = timestamp
		havePrev = true
	}
	return nil
}

// blockHeights computes the window of heights a `block` invocation should
// fetch. A non-negative count walks forward from start; a negative count
// walks backward, yielding the inclusive |count|+1 block window ending at
// start (spec.md §8 scenario 5: start=100, count=-3 -> {97,98,99,100}).
func blockHeights(start, count int64) []int64 {
	var heights []int64
	if count < 0 {
		for h := start + count; h <= start; h++ {
			if h >= 0 {
				heights = append(heights, h)
			}
		}
	} else {
		for h := start; h < start+count; h++ {
			heights = append(heights, h)
		}
	}
	if len(heights) == 0 {
		heights = []int64{start}
	}
	return heights
}

// Test implements the `test` subcommand: the parallel dispatch load
// test, in either plain value-transfer ("basic") or contract-call
// ("contract") mode.
func Test(c *cli.Context) error {
	ctx := c.Context
	timeout := c.Duration("timeout")

	client, err := dialFirst(ctx, c.String("network"), timeout)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer client.Close()

	maxParallelism := c.Int("max-parallelism")
	if err := workerpool.ValidateParallelism(maxParallelism); err != nil {
		return cli.Exit(fmt.Errorf("test: %w", err), 1)
	}

	sources, err := keys.Load(sourceKeyFile)
	if err != nil {
		return cli.Exit(fmt.Errorf("test: load sources: %w (run fund first)", err), 1)
	}
	if n := c.Int("source"); n > 0 && n < len(sources) {
		sources = sources[:n]
	}

	chainID, ok := client.ChainID(ctx)
	if !ok {
		return cli.Exit(fmt.Errorf("test: could not resolve chain id"), 1)
	}
	gasPrice, ok := client.GasPrice(ctx)
	if !ok {
		return cli.Exit(fmt.Errorf("test: could not resolve gas price"), 1)
	}

	rounds := c.Int("count")
	amountPerTx := big.NewInt(1)

	if c.Bool("check-balance") {
		floor := new(big.Int).Mul(amountPerTx, big.NewInt(int64(rounds)))
		sources = funding.FilterSufficientBalance(ctx, client, sources, floor)
	}

	poolSize := workerpool.CalcPoolSize(len(sources), maxParallelism)

	var results []feth.TransferMetrics
	var summary feth.RunSummary

	if c.String("mode") == "contract" {
		contractSources := make([]contractmode.Source, 0, len(sources))
		for _, kp := range sources {
			contractSources = append(contractSources, contractmode.Source{
				KeyHex:  kp.Private,
				Address: common.HexToAddress(kp.Address),
				Rounds:  rounds,
			})
		}
		results, summary = contractmode.Run(ctx, client, chainID, contractSources, poolSize, c.Duration("block-time"), c.Duration("delay"))
	} else {
		poolSources := make([]workerpool.Source, 0, len(sources))
		for i, kp := range sources {
			targets, err := funding.PlanTargets(rounds, amountPerTx)
			if err != nil {
				return cli.Exit(fmt.Errorf("test: plan targets for source %d: %w", i, err), 1)
			}
			poolSources = append(poolSources, workerpool.Source{
				KeyHex:  kp.Private,
				Address: common.HexToAddress(kp.Address),
				Targets: targets,
			})
		}

		pool := &workerpool.Pool{
			Client:      client,
			Coordinator: overflow.New(overflow.DefaultParkInterval),
			ChainID:     chainID,
			GasPrice:    gasPrice,
			BlockTime:   c.Duration("block-time"),
			NeedWait:    true,
			NeedRetry:   c.Bool("need-retry"),
			Delay:       c.Duration("delay"),
			PoolSize:    poolSize,
		}
		results, summary = pool.Run(ctx, poolSources)
	}

	if c.Bool("keep-metric") {
		for i, m := range results {
			dumpMetric(i, m)
		}
	}

	fmt.Printf("sent=%d succeeded=%d tps=%.2f start_block=%d end_block=%d elapsed=%s\n",
		summary.TotalSent, summary.TotalSucceeded, summary.TPS(), summary.StartBlock, summary.EndBlock, summary.Elapsed)
	return nil
}

func dumpMetric(worker int, m feth.TransferMetrics) {
	path := fmt.Sprintf("metrics.target.0.%d", worker)
	data, err := json.Marshal(m)
	if err != nil {
		log.Warn("keep-metric: encode failed", "worker", worker, "err", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn("keep-metric: write failed", "worker", worker, "err", err)
	}
}

// ETL implements the `etl` subcommand: scrape logs into the Redis-backed
// BlockInfo store, and optionally replay a TPS time series.
func ETL(c *cli.Context) error {
	store := etl.Open(c.String("redis"))
	defer store.Close()

	var minHeight, maxHeight uint64
	if tm := c.String("tendermint"); tm != "" {
		var err error
		minHeight, maxHeight, err = etl.ParseTendermint(tm, store)
		if err != nil {
			return cli.Exit(fmt.Errorf("etl: %w", err), 1)
		}
	}
	if abci := c.String("abcid"); abci != "" {
		if err := etl.ParseABCI(abci, store); err != nil {
			return cli.Exit(fmt.Errorf("etl: %w", err), 1)
		}
	}

	if c.Bool("load") {
		for _, row := range etl.Replay(store, minHeight, maxHeight) {
			fmt.Printf("%d,%d,%d,%d,%.3f\n", row.Height, row.TxCount, row.ValidTxs, row.BlockTime, row.TPS)
		}
	}
	return nil
}

// Profiler implements the `profiler` subcommand.
func Profiler(c *cli.Context) error {
	urls, err := network.Resolve(c.String("network"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	if err := profiler.Set(c.Context, urls[0], c.Bool("enable")); err != nil {
		return cli.Exit(fmt.Errorf("profiler: %w", err), 1)
	}
	fmt.Printf("profiler enable=%v set on %s\n", c.Bool("enable"), urls[0])
	return nil
}
