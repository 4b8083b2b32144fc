package etl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/findoranetwork/feth/internal/feth"
)

type fakeStore struct {
	records map[uint64]feth.BlockInfo
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[uint64]feth.BlockInfo)}
}

func (f *fakeStore) Get(height uint64) (feth.BlockInfo, bool) {
	bi, ok := f.records[height]
	return bi, ok
}

func (f *fakeStore) Put(bi feth.BlockInfo) error {
	f.records[bi.Height] = bi
	return nil
}

func TestParseExecutedBlockLine(t *testing.T) {
	line := "I[2022-04-07|02:17:07.759] Executed block module=state height=191 validTxs=3368 invalidTxs=666"
	bi, ok := parseExecutedBlockLine(line)
	if !ok {
		t.Fatalf("expected line to parse")
	}
	if bi.Height != 191 {
		t.Fatalf("Height = %d, want 191", bi.Height)
	}
	if bi.ValidTxs != 3368 {
		t.Fatalf("ValidTxs = %d, want 3368", bi.ValidTxs)
	}
	if bi.TxCount != 3368+666 {
		t.Fatalf("TxCount = %d, want %d", bi.TxCount, 3368+666)
	}
	if bi.Timestamp == 0 {
		t.Fatalf("Timestamp should be parsed from the bracketed prefix")
	}
}

func TestParseExecutedBlockLineMissingFields(t *testing.T) {
	line := "I[2022-04-07|02:17:07.759] Executed block module=state height=191"
	if _, ok := parseExecutedBlockLine(line); ok {
		t.Fatalf("line missing validTxs/invalidTxs should not parse")
	}
}

func TestParseLogTimestamp(t *testing.T) {
	line := "I[2022-04-07|02:17:07.759] Executed block module=state height=1"
	ts := parseLogTimestamp(line)
	if ts == 0 {
		t.Fatalf("expected a non-zero timestamp")
	}
}

func TestParseLogTimestampMalformed(t *testing.T) {
	if ts := parseLogTimestamp("no brackets here"); ts != 0 {
		t.Fatalf("malformed line should yield timestamp 0, got %d", ts)
	}
}

func TestParseTendermintAndReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tendermint.log")
	contents := "" +
		"I[2022-04-07|02:17:05.000] Executed block module=state height=10 validTxs=2 invalidTxs=0\n" +
		"some unrelated log line\n" +
		"I[2022-04-07|02:17:08.000] Executed block module=state height=11 validTxs=4 invalidTxs=1\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := newFakeStore()
	min, max, err := ParseTendermint(path, store)
	if err != nil {
		t.Fatalf("ParseTendermint: %v", err)
	}
	if min != 10 || max != 11 {
		t.Fatalf("range = [%d, %d], want [10, 11]", min, max)
	}

	series := Replay(store, min, max)
	if len(series) != 2 {
		t.Fatalf("Replay returned %d rows, want 2", len(series))
	}
	if series[0].BlockTime != 0 {
		t.Fatalf("first row has no predecessor, BlockTime should be 0, got %d", series[0].BlockTime)
	}
	if series[1].BlockTime != 3 {
		t.Fatalf("BlockTime = %d, want 3", series[1].BlockTime)
	}
	wantTPS := float64(5) / float64(3)
	if series[1].TPS != wantTPS {
		t.Fatalf("TPS = %f, want %f", series[1].TPS, wantTPS)
	}
}

func TestParseTendermintMissingFile(t *testing.T) {
	store := newFakeStore()
	if _, _, err := ParseTendermint(filepath.Join(t.TempDir(), "missing.log"), store); err == nil {
		t.Fatalf("expected an error for a missing log file")
	}
}
