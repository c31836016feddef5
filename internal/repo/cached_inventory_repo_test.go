package repo

import (
	"testing"
	"time"

	"github.com/MorseWayne/stock_ledger/internal/cache"
	"github.com/MorseWayne/stock_ledger/internal/domain"
)

func newCachedFixture(t *testing.T) (InventoryItemRepository, *MemoryInventoryItemRepository) {
	t.Helper()
	base := NewMemoryInventoryItemRepository()
	cached := NewCachedInventoryItemRepository(base, cache.NewMemoryCache(), time.Minute)
	return cached, base
}

func TestCachedRepo_ReadThrough(t *testing.T) {
	cached, base := newCachedFixture(t)

	item := mustItem(t, 1, 100, 10)
	if err := cached.Create(item); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// first read populates the cache, second read is served from it
	first, err := cached.GetByID(item.ID)
	if err != nil || first == nil {
		t.Fatalf("GetByID: (%v, %v)", first, err)
	}
	second, err := cached.GetByID(item.ID)
	if err != nil || second == nil || second.QuantityOnHand != 10 {
		t.Fatalf("cached GetByID: (%+v, %v)", second, err)
	}

	byVariant, err := cached.GetByVariant(1, 100)
	if err != nil || byVariant == nil || byVariant.ID != item.ID {
		t.Fatalf("GetByVariant: (%+v, %v)", byVariant, err)
	}

	// base assigns IDs, cached decorator must expose them unchanged
	stored, _ := base.GetByID(item.ID)
	if stored == nil {
		t.Fatal("item missing from underlying repository")
	}
}

// 版本冲突后缓存里的过期快照必须被失效，否则写循环的每次重读
// 都会拿到同一个旧版本，重试预算耗尽仍然失败。
func TestCachedRepo_SaveConflictInvalidatesStaleSnapshot(t *testing.T) {
	cached, base := newCachedFixture(t)

	item := mustItem(t, 1, 100, 10)
	if err := cached.Create(item); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// warm the cache with the current version
	stale, err := cached.GetByID(item.ID)
	if err != nil || stale == nil {
		t.Fatalf("GetByID: (%v, %v)", stale, err)
	}

	// a competing writer commits through the underlying repository
	winner, _ := base.GetByID(item.ID)
	if err := winner.Receive(5, "po-competing"); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := base.Save(winner); err != nil {
		t.Fatalf("Save competing write: %v", err)
	}

	// saving the stale snapshot conflicts
	if err := stale.Receive(3, "po-stale"); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := cached.Save(stale); !domain.IsConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	// the next read must see the competing write, so a reload-and-retry succeeds
	fresh, err := cached.GetByID(item.ID)
	if err != nil || fresh == nil {
		t.Fatalf("GetByID after conflict: (%v, %v)", fresh, err)
	}
	if fresh.QuantityOnHand != 15 {
		t.Fatalf("expected reload to observe on-hand 15, got %d", fresh.QuantityOnHand)
	}
	if fresh.Version == stale.Version {
		t.Fatal("reload after conflict returned the stale version")
	}

	if err := fresh.Receive(3, "po-retry"); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := cached.Save(fresh); err != nil {
		t.Fatalf("retry Save: %v", err)
	}
	final, _ := base.GetByID(item.ID)
	if final.QuantityOnHand != 18 {
		t.Fatalf("expected on-hand 18 after retry, got %d", final.QuantityOnHand)
	}
}

func TestCachedRepo_SuccessfulSaveInvalidatesCache(t *testing.T) {
	cached, _ := newCachedFixture(t)

	item := mustItem(t, 1, 100, 10)
	if err := cached.Create(item); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := cached.GetByID(item.ID); err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	current, _ := cached.GetByID(item.ID)
	if err := current.Receive(2, "po-1"); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := cached.Save(current); err != nil {
		t.Fatalf("Save: %v", err)
	}

	after, _ := cached.GetByID(item.ID)
	if after.QuantityOnHand != 12 {
		t.Fatalf("expected on-hand 12 after save, got %d", after.QuantityOnHand)
	}
}
