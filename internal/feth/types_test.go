package feth

import (
	"testing"
	"time"
)

func TestRunSummaryTPS(t *testing.T) {
	s := RunSummary{TotalSucceeded: 100, Elapsed: 10 * time.Second}
	if got, want := s.TPS(), 10.0; got != want {
		t.Fatalf("TPS() = %f, want %f", got, want)
	}
}

func TestRunSummaryTPSZeroElapsed(t *testing.T) {
	s := RunSummary{TotalSucceeded: 100, Elapsed: 0}
	if got := s.TPS(); got != 0 {
		t.Fatalf("TPS() with zero elapsed = %f, want 0", got)
	}
}
