package workerpool

import (
	"runtime"
	"testing"
)

func TestCalcPoolSize(t *testing.T) {
	cases := []struct {
		sources, max, want int
	}{
		{0, 16, 1},
		{1, 16, 2},
		{4, 16, 8},
		{10, 16, 16},
		{100, 16, 16},
	}
	for _, c := range cases {
		got := CalcPoolSize(c.sources, c.max)
		if got != c.want {
			t.Errorf("CalcPoolSize(%d, %d) = %d, want %d", c.sources, c.max, got, c.want)
		}
	}
}

func TestValidateParallelism(t *testing.T) {
	if err := ValidateParallelism(0); err == nil {
		t.Fatalf("max-parallelism == 0 should be rejected")
	}

	cpus := runtime.NumCPU()
	if err := ValidateParallelism(cpus * 1000); err != nil {
		t.Fatalf("max-parallelism == cpus*1000 should be accepted, got %v", err)
	}
	if err := ValidateParallelism(cpus*1000 + 1); err == nil {
		t.Fatalf("max-parallelism > cpus*1000 should be rejected")
	}
	if err := ValidateParallelism(1); err != nil {
		t.Fatalf("max-parallelism == 1 should be accepted, got %v", err)
	}
}
