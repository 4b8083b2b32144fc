// Command feth funds a pool of source accounts from a root account and
// drives parallel transaction submission against target accounts,
// measuring throughput.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/findoranetwork/feth/internal/commands"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	app := &cli.App{
		Name:  "feth",
		Usage: "EVM JSON-RPC load-generation and measurement harness",
		Commands: []*cli.Command{
			fundCommand(),
			infoCommand(),
			transactionCommand(),
			blockCommand(),
			testCommand(),
			etlCommand(),
			profilerCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "feth:", err)
		os.Exit(1)
	}
}

func networkFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "network", Usage: "named preset (local, anvil, main, test, qa,NN[,MM]) or comma-separated URL list", Value: "local"}
}

func timeoutFlag() *cli.DurationFlag {
	return &cli.DurationFlag{Name: "timeout", Value: 3 * time.Second}
}

func fundCommand() *cli.Command {
	return &cli.Command{
		Name:   "fund",
		Usage:  "seed source accounts from the root account",
		Action: commands.Fund,
		Flags: []cli.Flag{
			networkFlag(),
			&cli.IntFlag{Name: "count", Value: 8, Usage: "number of source accounts"},
			&cli.StringFlag{Name: "amount", Value: "1000000000000000000", Usage: "wei credited to each source"},
			&cli.BoolFlag{Name: "load", Usage: "load existing source_keys.001 instead of generating"},
			&cli.BoolFlag{Name: "redeposit", Usage: "skip sources whose balance already meets the per-source amount"},
			&cli.DurationFlag{Name: "block-time", Value: 3 * time.Second},
			timeoutFlag(),
		},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:   "info",
		Usage:  "print (balance, nonce) for an address",
		Action: commands.Info,
		Flags: []cli.Flag{
			networkFlag(),
			&cli.StringFlag{Name: "account", Required: true},
			timeoutFlag(),
		},
	}
}

func transactionCommand() *cli.Command {
	return &cli.Command{
		Name:   "transaction",
		Usage:  "print a transaction by hash",
		Action: commands.Transaction,
		Flags: []cli.Flag{
			networkFlag(),
			&cli.StringFlag{Name: "hash", Required: true},
			timeoutFlag(),
		},
	}
}

func blockCommand() *cli.Command {
	return &cli.Command{
		Name:   "block",
		Usage:  "print block(s); negative --count is a preceding window",
		Action: commands.Block,
		Flags: []cli.Flag{
			networkFlag(),
			&cli.Int64Flag{Name: "start", Required: true},
			&cli.IntFlag{Name: "count", Value: 1},
			timeoutFlag(),
		},
	}
}

func testCommand() *cli.Command {
	return &cli.Command{
		Name:   "test",
		Usage:  "run the dispatcher load test",
		Action: commands.Test,
		Flags: []cli.Flag{
			networkFlag(),
			&cli.StringFlag{Name: "mode", Value: "basic", Usage: "basic or contract"},
			&cli.DurationFlag{Name: "delay", Value: time.Second, Usage: "inter-round delay"},
			&cli.IntFlag{Name: "max-parallelism", Value: 16},
			&cli.IntFlag{Name: "count", Value: 10, Usage: "number of rounds"},
			&cli.IntFlag{Name: "source", Value: 0, Usage: "cap on number of sources used, 0 = all"},
			&cli.DurationFlag{Name: "block-time", Value: 3 * time.Second},
			timeoutFlag(),
			&cli.BoolFlag{Name: "check-balance", Value: true, Usage: "drop sources whose balance can't cover amount*count"},
			&cli.BoolFlag{Name: "need-retry", Usage: "retry failed submissions with linear backoff"},
			&cli.BoolFlag{Name: "keep-metric", Usage: "dump each source's metrics, accumulated over all rounds, to metrics.target.0.<worker>; no per-round files are written"},
		},
	}
}

func etlCommand() *cli.Command {
	return &cli.Command{
		Name:   "etl",
		Usage:  "scrape tendermint/abci logs into a redis-backed block-info store",
		Action: commands.ETL,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "abcid", Usage: "path to an abci log"},
			&cli.StringFlag{Name: "tendermint", Usage: "path to a tendermint consensus log"},
			&cli.StringFlag{Name: "redis", Value: "127.0.0.1:6379"},
			&cli.BoolFlag{Name: "load", Usage: "replay and print the per-block tps time series"},
		},
	}
}

func profilerCommand() *cli.Command {
	return &cli.Command{
		Name:   "profiler",
		Usage:  "toggle pprof on a node via POST /configuration",
		Action: commands.Profiler,
		Flags: []cli.Flag{
			networkFlag(),
			&cli.BoolFlag{Name: "enable"},
		},
	}
}
