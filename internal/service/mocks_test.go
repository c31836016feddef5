package service

import (
	"context"
	"sync"

	"github.com/MorseWayne/stock_ledger/internal/domain"
	"github.com/MorseWayne/stock_ledger/internal/repo"
)

// mockPublisher captures published domain events.
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.DomainEvent
	err    error
}

func (p *mockPublisher) Publish(ctx context.Context, events []domain.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *mockPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.EventName())
	}
	return out
}

// mockCatalog resolves SKUs from a fixed table.
type mockCatalog struct {
	products map[string]*CatalogProduct
	err      error
}

func (c *mockCatalog) ResolveBySku(ctx context.Context, sku string) (*CatalogProduct, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.products[sku], nil
}

// flakyItemRepo wraps the in-memory repository and fails Save with a version
// conflict for the first conflictCount calls.
type flakyItemRepo struct {
	repo.InventoryItemRepository
	mu            sync.Mutex
	conflictCount int
	saveCalls     int
}

func (r *flakyItemRepo) Save(item *domain.InventoryItem) error {
	r.mu.Lock()
	r.saveCalls++
	fail := r.conflictCount > 0
	if fail {
		r.conflictCount--
	}
	r.mu.Unlock()

	if fail {
		return domain.NewConflict("simulated version conflict")
	}
	return r.InventoryItemRepository.Save(item)
}

// failingSaveRepo fails Save with an infrastructure error for one item ID.
type failingSaveRepo struct {
	repo.InventoryItemRepository
	failItemID int64
}

func (r *failingSaveRepo) Save(item *domain.InventoryItem) error {
	if item.ID == r.failItemID {
		return domain.NewInfrastructure("simulated storage failure", nil)
	}
	return r.InventoryItemRepository.Save(item)
}
