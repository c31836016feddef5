package cache

import (
	"context"
	"testing"
	"time"
)

// newTestStockCache connects to a local Redis instance, skipping the test
// when none is reachable.
func newTestStockCache(t *testing.T) (*StockCache, *RedisCache) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping Redis test in short mode")
	}

	rc, err := NewRedisCache("localhost:6379", "", 1) // 使用DB 1避免冲突
	if err != nil {
		t.Skipf("Skipping Redis test, cannot connect: %v", err)
	}
	t.Cleanup(func() { rc.Close() })

	if err := rc.FlushDB(context.Background()); err != nil {
		t.Fatalf("FlushDB failed: %v", err)
	}

	return NewStockCache(rc.Client()), rc
}

func TestStockCache_TryAcquire(t *testing.T) {
	sc, _ := newTestStockCache(t)
	ctx := context.Background()

	const itemID = int64(42)

	if err := sc.SyncAvailable(ctx, itemID, 10, time.Minute); err != nil {
		t.Fatalf("SyncAvailable failed: %v", err)
	}

	t.Run("acquire within availability", func(t *testing.T) {
		res, err := sc.TryAcquire(ctx, itemID, 4, time.Minute)
		if err != nil {
			t.Fatalf("TryAcquire failed: %v", err)
		}
		if !res.Acquired {
			t.Fatalf("expected acquire to succeed, got %+v", res)
		}
		if res.Remaining != 6 {
			t.Errorf("remaining = %d, want 6", res.Remaining)
		}
	})

	t.Run("insufficient availability sets depleted flag", func(t *testing.T) {
		res, err := sc.TryAcquire(ctx, itemID, 100, time.Minute)
		if err != nil {
			t.Fatalf("TryAcquire failed: %v", err)
		}
		if res.Acquired || res.Unknown {
			t.Fatalf("expected rejection, got %+v", res)
		}

		depleted, err := sc.IsDepleted(ctx, itemID)
		if err != nil {
			t.Fatalf("IsDepleted failed: %v", err)
		}
		if !depleted {
			t.Error("expected depleted flag after insufficient acquire")
		}

		// Depleted items fail fast without touching the counter.
		res, err = sc.TryAcquire(ctx, itemID, 1, time.Minute)
		if err != nil {
			t.Fatalf("TryAcquire failed: %v", err)
		}
		if res.Acquired {
			t.Error("expected fast-fail on depleted item")
		}

		available, err := sc.GetAvailable(ctx, itemID)
		if err != nil {
			t.Fatalf("GetAvailable failed: %v", err)
		}
		if available != 6 {
			t.Errorf("available = %d, want 6 (untouched)", available)
		}
	})

	t.Run("restore clears depleted flag", func(t *testing.T) {
		remaining, err := sc.Restore(ctx, itemID, 4)
		if err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
		if remaining != 10 {
			t.Errorf("remaining = %d, want 10", remaining)
		}

		depleted, err := sc.IsDepleted(ctx, itemID)
		if err != nil {
			t.Fatalf("IsDepleted failed: %v", err)
		}
		if depleted {
			t.Error("expected depleted flag cleared after restore")
		}
	})

	t.Run("uncached item reports unknown", func(t *testing.T) {
		res, err := sc.TryAcquire(ctx, int64(999), 1, time.Minute)
		if err != nil {
			t.Fatalf("TryAcquire failed: %v", err)
		}
		if !res.Unknown {
			t.Fatalf("expected unknown result for uncached item, got %+v", res)
		}
	})
}

func TestStockCache_BatchGetAvailable(t *testing.T) {
	sc, _ := newTestStockCache(t)
	ctx := context.Background()

	if err := sc.SyncAvailable(ctx, 1, 5, time.Minute); err != nil {
		t.Fatalf("SyncAvailable failed: %v", err)
	}
	if err := sc.SyncAvailable(ctx, 2, 0, time.Minute); err != nil {
		t.Fatalf("SyncAvailable failed: %v", err)
	}

	got, err := sc.BatchGetAvailable(ctx, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("BatchGetAvailable failed: %v", err)
	}

	want := map[int64]int64{1: 5, 2: 0, 3: -1}
	for itemID, expected := range want {
		if got[itemID] != expected {
			t.Errorf("item %d available = %d, want %d", itemID, got[itemID], expected)
		}
	}
}

func TestStockCache_MarkProcessed(t *testing.T) {
	sc, _ := newTestStockCache(t)
	ctx := context.Background()

	first, err := sc.MarkProcessed(ctx, "msg-123", time.Minute)
	if err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if !first {
		t.Error("first MarkProcessed should return true")
	}

	second, err := sc.MarkProcessed(ctx, "msg-123", time.Minute)
	if err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if second {
		t.Error("second MarkProcessed should return false")
	}

	if err := sc.ClearProcessed(ctx, "msg-123"); err != nil {
		t.Fatalf("ClearProcessed failed: %v", err)
	}

	again, err := sc.MarkProcessed(ctx, "msg-123", time.Minute)
	if err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if !again {
		t.Error("MarkProcessed after clear should return true")
	}
}

func TestStockCache_InvalidateItem(t *testing.T) {
	sc, _ := newTestStockCache(t)
	ctx := context.Background()

	if err := sc.SyncAvailable(ctx, 7, 3, time.Minute); err != nil {
		t.Fatalf("SyncAvailable failed: %v", err)
	}
	if err := sc.InvalidateItem(ctx, 7); err != nil {
		t.Fatalf("InvalidateItem failed: %v", err)
	}

	available, err := sc.GetAvailable(ctx, 7)
	if err != nil {
		t.Fatalf("GetAvailable failed: %v", err)
	}
	if available != -1 {
		t.Errorf("available = %d, want -1 after invalidation", available)
	}
}
