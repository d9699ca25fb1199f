package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParallelMapKeepsOrderAndLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	got, err := ParallelMap(context.Background(), items, 3, func(_ context.Context, n int) (int, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return n * n, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, n := range items {
		if got[i] != n*n {
			t.Fatalf("got[%d] = %d", i, got[i])
		}
	}
	if peak.Load() > 3 {
		t.Fatalf("peak concurrency %d exceeds limit", peak.Load())
	}
}

func TestParallelMapReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ParallelMap(context.Background(), []int{1, 2, 3}, 1, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
}

func TestSettleCollectsEveryOutcome(t *testing.T) {
	res, errs := Settle(context.Background(), []string{"ok", "bad", "ok"}, 2, func(_ context.Context, s string) (int, error) {
		if s == "bad" {
			return 0, errors.New("bad input")
		}
		return len(s), nil
	})
	if res[0] != 2 || res[2] != 2 || errs[1] == nil || errs[0] != nil {
		t.Fatalf("res=%v errs=%v", res, errs)
	}
}
