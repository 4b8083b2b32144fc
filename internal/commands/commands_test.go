package commands

import (
	"reflect"
	"testing"
)

// TestBlockHeightsNegativeCount covers spec.md §8 scenario 5: a negative
// --count gives the inclusive window of |count|+1 blocks ending at start.
func TestBlockHeightsNegativeCount(t *testing.T) {
	got := blockHeights(100, -3)
	want := []int64{97, 98, 99, 100}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("blockHeights(100, -3) = %v, want %v", got, want)
	}
}

func TestBlockHeightsNegativeCountClampsAtZero(t *testing.T) {
	got := blockHeights(1, -5)
	want := []int64{0, 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("blockHeights(1, -5) = %v, want %v (heights below 0 are dropped)", got, want)
	}
}

func TestBlockHeightsPositiveCount(t *testing.T) {
	got := blockHeights(100, 3)
	want := []int64{100, 101, 102}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("blockHeights(100, 3) = %v, want %v", got, want)
	}
}

func TestBlockHeightsZeroCountIsJustStart(t *testing.T) {
	got := blockHeights(42, 0)
	want := []int64{42}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("blockHeights(42, 0) = %v, want %v", got, want)
	}
}
