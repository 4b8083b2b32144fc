// Package etl scrapes tendermint/ABCI log lines into a Redis-backed
// BlockInfo store and replays a per-block TPS time series.
package etl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis"

	"github.com/findoranetwork/feth/internal/feth"
)

// blockStore is the keyspace ParseTendermint/ParseABCI/Replay operate
// against. *Store is the Redis-backed implementation; tests use an
// in-memory fake.
type blockStore interface {
	Get(height uint64) (feth.BlockInfo, bool)
	Put(bi feth.BlockInfo) error
}

// Store is a Redis-backed keyspace of BlockInfo records, one key per
// block height.
type Store struct {
	rdb *redis.Client
}

// Open connects to a Redis endpoint. addr may be a "host:port" TCP
// address; unix socket addresses are expressed via redis.Options
// elsewhere if ever needed.
func Open(addr string) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.rdb.Close() }

func key(height uint64) string {
	return fmt.Sprintf("feth:block:%d", height)
}

// Get fetches the BlockInfo for height, ok=false if absent.
func (s *Store) Get(height uint64) (feth.BlockInfo, bool) {
	raw, err := s.rdb.Get(key(height)).Result()
	if err != nil {
		return feth.BlockInfo{}, false
	}
	var bi feth.BlockInfo
	if err := json.Unmarshal([]byte(raw), &bi); err != nil {
		return feth.BlockInfo{}, false
	}
	return bi, true
}

// Put upserts a BlockInfo record.
func (s *Store) Put(bi feth.BlockInfo) error {
	raw, err := json.Marshal(bi)
	if err != nil {
		return fmt.Errorf("etl: encode block %d: %w", bi.Height, err)
	}
	return s.rdb.Set(key(bi.Height), raw, 0).Err()
}

// ParseTendermint scans a tendermint consensus log for "Executed block"
// lines (format: "I[2022-04-07|02:17:07.759] Executed block module=state
// height=191 validTxs=3368 invalidTxs=666"), inserting one BlockInfo per
// line found, and returns the observed [minHeight, maxHeight] range.
func ParseTendermint(path string, store blockStore) (minHeight, maxHeight uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("etl: open tendermint log: %w", err)
	}
	defer f.Close()

	minHeight = ^uint64(0)
	maxHeight = 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "Executed block") {
			continue
		}
		bi, ok := parseExecutedBlockLine(line)
		if !ok {
			continue
		}
		if bi.Height < minHeight {
			minHeight = bi.Height
		}
		if bi.Height > maxHeight {
			maxHeight = bi.Height
		}
		if err := store.Put(bi); err != nil {
			return minHeight, maxHeight, fmt.Errorf("etl: store block %d: %w", bi.Height, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return minHeight, maxHeight, fmt.Errorf("etl: scan tendermint log: %w", err)
	}
	if maxHeight == 0 && minHeight == ^uint64(0) {
		minHeight, maxHeight = 0, 0
	}
	return minHeight, maxHeight, nil
}

// parseExecutedBlockLine parses one "Executed block" line into a
// BlockInfo. The leading timestamp occupies the line's first bracketed
// field, e.g. "I[2022-04-07|02:17:07.759]".
func parseExecutedBlockLine(line string) (feth.BlockInfo, bool) {
	var height, validTxs, invalidTxs uint64
	var haveHeight, haveValid, haveInvalid bool

	for _, word := range strings.Fields(line) {
		kv := strings.SplitN(word, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "height":
			if v, err := strconv.ParseUint(kv[1], 10, 64); err == nil {
				height, haveHeight = v, true
			}
		case "validTxs":
			if v, err := strconv.ParseUint(kv[1], 10, 64); err == nil {
				validTxs, haveValid = v, true
			}
		case "invalidTxs":
			if v, err := strconv.ParseUint(kv[1], 10, 64); err == nil {
				invalidTxs, haveInvalid = v, true
			}
		}
	}
	if !haveHeight || !haveValid || !haveInvalid {
		return feth.BlockInfo{}, false
	}

	ts := parseLogTimestamp(line)

	return feth.BlockInfo{
		Height:    height,
		Timestamp: ts,
		TxCount:   validTxs + invalidTxs,
		ValidTxs:  validTxs,
	}, true
}

// parseLogTimestamp extracts the "2022-04-07|02:17:07.759"-shaped
// timestamp bracketed at the start of a tendermint log line. Returns 0
// if it can't be parsed, which only affects block_time/tps derivation.
func parseLogTimestamp(line string) int64 {
	open := strings.IndexByte(line, '[')
	close := strings.IndexByte(line, ']')
	if open < 0 || close < 0 || close <= open {
		return 0
	}
	raw := line[open+1 : close]
	t, err := time.Parse("2006-01-02|15:04:05.000", raw)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// ParseABCI scans an ABCI log for "tps," lines and confirms each line's
// height is already present in store from a prior ParseTendermint pass.
// It does not derive or write anything: abci lines carry begin/end-block
// snapshot bookkeeping with no stable, cross-node field layout to ground
// a BlockInfo update on, so this pass is read-only validation, not
// enrichment.
func ParseABCI(path string, store blockStore) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("etl: open abci log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "tps,") {
			continue
		}
		if len(line) < 52 {
			continue
		}
		fields := strings.Split(line[52:], ",")
		if len(fields) < 3 {
			continue
		}
		heightField := strings.TrimSpace(fields[len(fields)-2])
		parts := strings.Fields(heightField)
		if len(parts) != 2 {
			continue
		}
		height, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			continue
		}
		if _, ok := store.Get(height); !ok {
			continue
		}
		// The record already exists from ParseTendermint; abci lines carry
		// snapshot/begin-block bookkeeping the spec doesn't surface, so
		// this pass only checks presence and records nothing for Replay.
	}
	return scanner.Err()
}

// Series is one printable row of the --load replay: a block's raw
// counters plus the derived inter-block time and TPS.
type Series struct {
	Height    uint64
	TxCount   uint64
	ValidTxs  uint64
	BlockTime int64
	TPS       float64
}

// Replay walks [minHeight, maxHeight] and derives block_time/tps from
// each consecutive pair of stored BlockInfo records.
func Replay(store blockStore, minHeight, maxHeight uint64) []Series {
	var out []Series
	var last *feth.BlockInfo
	for h := minHeight; h <= maxHeight; h++ {
		bi, ok := store.Get(h)
		if !ok {
			continue
		}
		row := Series{Height: bi.Height, TxCount: bi.TxCount, ValidTxs: bi.ValidTxs}
		if last != nil && bi.Timestamp > last.Timestamp {
			row.BlockTime = bi.Timestamp - last.Timestamp
			row.TPS = float64(bi.TxCount) / float64(row.BlockTime)
		}
		out = append(out, row)
		cp := bi
		last = &cp
	}
	return out
}
