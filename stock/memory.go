package stock

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryInventory is an Inventory kept in a map. It is meant for embedding the ledger
// in tests and single-process tools.
type MemoryInventory struct {
	mu     sync.RWMutex
	levels map[string]Level
}

func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{levels: make(map[string]Level)}
}

// Put sets the stock of itemID, creating the level if needed.
func (m *MemoryInventory) Put(itemID string, qty decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lvl := m.levels[itemID]
	m.levels[itemID] = Level{Quantity: qty, Version: lvl.Version + 1}
}

func (m *MemoryInventory) StockLevel(_ context.Context, itemID string) (Level, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lvl, ok := m.levels[itemID]
	if !ok {
		return Level{}, fmt.Errorf("%w: %s", ErrNotTracked, itemID)
	}
	return lvl, nil
}

func (m *MemoryInventory) SetStockQuantity(_ context.Context, itemID string, qty decimal.Decimal, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lvl, ok := m.levels[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, itemID)
	}
	if lvl.Version != version {
		return ErrConcurrentModification
	}
	m.levels[itemID] = Level{Quantity: qty, Version: version + 1}
	return nil
}

// MemoryOrders is an Orders kept in memory.
type MemoryOrders struct {
	mu    sync.Mutex
	lines []Reservation
	// OnRemove, when set, is called after a reservation has been removed, outside the
	// lock. Hosts use it to return the quantity to stock.
	OnRemove func(ctx context.Context, r Reservation) error
}

func NewMemoryOrders() *MemoryOrders { return &MemoryOrders{} }

// Add stores a reservation, replacing the line of the same order and item.
func (m *MemoryOrders) Add(r Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.lines {
		if l.OrderID == r.OrderID && l.ItemID == r.ItemID {
			m.lines[i] = r
			return
		}
	}
	m.lines = append(m.lines, r)
}

// Lines returns a copy of every stored reservation.
func (m *MemoryOrders) Lines() []Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.lines)
}

func (m *MemoryOrders) ListActiveReservations(_ context.Context, itemID string, exclude []string) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reservation
	for _, l := range m.lines {
		if l.ItemID == itemID && !slices.Contains(exclude, l.OrderID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MemoryOrders) RemoveReservation(ctx context.Context, orderID, itemID string) error {
	m.mu.Lock()
	idx := slices.IndexFunc(m.lines, func(l Reservation) bool {
		return l.OrderID == orderID && l.ItemID == itemID
	})
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("reservation %s/%s not found", orderID, itemID)
	}
	removed := m.lines[idx]
	m.lines = slices.Delete(m.lines, idx, idx+1)
	m.mu.Unlock()

	if m.OnRemove != nil {
		return m.OnRemove(ctx, removed)
	}
	return nil
}

// Variation is a plain stock-tracked item.
type Variation struct {
	ID       string
	Settings Settings
}

func (v Variation) ItemID() string          { return v.ID }
func (v Variation) StockSettings() Settings { return v.Settings }

// Product is an item without stock tracking.
type Product struct {
	ID string
}

func (p Product) ItemID() string { return p.ID }
