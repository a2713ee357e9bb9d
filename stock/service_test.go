package stock

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shop struct {
	inv    *MemoryInventory
	orders *MemoryOrders
	items  map[string]Item
	svc    *Service
}

// newShop returns a service whose cart line removals flow back into stock the
// way a cart host would wire them.
func newShop(items ...Item) *shop {
	s := &shop{
		inv:    NewMemoryInventory(),
		orders: NewMemoryOrders(),
		items:  make(map[string]Item),
	}
	for _, item := range items {
		s.items[item.ItemID()] = item
	}
	s.svc = NewService(s.inv, s.orders, Config{
		Policies: []AvailabilityPolicy{MinimumQuantity},
		Now:      func() time.Time { return noon },
	})
	s.orders.OnRemove = func(ctx context.Context, r Reservation) error {
		return s.svc.Subscriber().ItemDeleted(ctx, orderState{}, s.items[r.ItemID], r.Quantity)
	}
	return s
}

func rotating(id string, threshold time.Duration) Variation {
	v := units(id)
	v.Settings.RotationThreshold = threshold
	return v
}

func TestReserveReclaimsFromIdleCarts(t *testing.T) {
	item := rotating("a", time.Hour)
	s := newShop(item)
	s.inv.Put("a", dec("1"))
	s.orders.Add(cartLine("c1", "a", "2", 3*time.Hour))
	s.orders.Add(cartLine("c2", "a", "3", 2*time.Hour))
	s.orders.Add(cartLine("c3", "a", "4", 10*time.Minute))

	res, err := s.svc.Reserve(context.Background(), item, dec("4"), decimal.NullDecimal{}, "mine")
	require.NoError(t, err)
	assert.Equal(t, Available, res)
	assert.Equal(t, []string{"c3"}, remaining(s.orders))
	assertStock(t, s.inv, "a", "2")
}

func TestReserveCountsOnlyTheIncrement(t *testing.T) {
	item := rotating("a", time.Hour)
	s := newShop(item)
	s.inv.Put("a", dec("1"))
	s.orders.Add(cartLine("c1", "a", "2", 3*time.Hour))
	s.orders.Add(cartLine("c2", "a", "3", 2*time.Hour))

	// the line already holds 2, so 3 more are needed and 2 of those come from carts
	res, err := s.svc.Reserve(context.Background(), item, dec("5"), prior("2"), "mine")
	require.NoError(t, err)
	assert.Equal(t, Available, res)
	assert.Equal(t, []string{"c2"}, remaining(s.orders))
	assertStock(t, s.inv, "a", "0")
}

func TestReserveNeverTouchesOwnCart(t *testing.T) {
	item := rotating("a", time.Hour)
	s := newShop(item)
	s.inv.Put("a", dec("0"))
	s.orders.Add(cartLine("mine", "a", "5", 3*time.Hour))

	res, err := s.svc.Reserve(context.Background(), item, dec("1"), decimal.NullDecimal{}, "mine")
	require.NoError(t, err)
	assert.Equal(t, Unavailable, res)
	assert.Equal(t, []string{"mine"}, remaining(s.orders))
}

func TestReserveWithoutRotation(t *testing.T) {
	item := units("a")
	s := newShop(item)
	s.inv.Put("a", dec("0"))
	s.orders.Add(cartLine("c1", "a", "5", 3*time.Hour))

	res, err := s.svc.Reserve(context.Background(), item, dec("1"), decimal.NullDecimal{}, "mine")
	require.NoError(t, err)
	assert.Equal(t, Unavailable, res)
	assert.Len(t, s.orders.Lines(), 1)
}

func TestReserveDoesNotReclaimForPolicyVeto(t *testing.T) {
	item := rotating("a", time.Hour)
	item.Settings.Min = dec("3")
	s := newShop(item)
	s.inv.Put("a", dec("10"))
	s.orders.Add(cartLine("c1", "a", "5", 3*time.Hour))

	res, err := s.svc.Reserve(context.Background(), item, dec("1"), decimal.NullDecimal{}, "mine")
	require.NoError(t, err)
	assert.Equal(t, Unavailable, res)
	assert.Len(t, s.orders.Lines(), 1)
	assertStock(t, s.inv, "a", "10")
}

func TestReserveDoesNotReclaimWhenShortAndVetoed(t *testing.T) {
	item := rotating("a", time.Hour)
	item.Settings.Min = dec("3")
	s := newShop(item)
	s.inv.Put("a", dec("0"))
	s.orders.Add(cartLine("c1", "a", "5", 3*time.Hour))

	res, err := s.svc.Reserve(context.Background(), item, dec("1"), decimal.NullDecimal{}, "mine")
	require.NoError(t, err)
	assert.Equal(t, Unavailable, res)
	// the idle cart keeps its line since the minimum refuses the request regardless
	assert.Len(t, s.orders.Lines(), 1)
	assertStock(t, s.inv, "a", "0")

	res, err = s.svc.Reserve(context.Background(), item, dec("3"), decimal.NullDecimal{}, "mine")
	require.NoError(t, err)
	assert.Equal(t, Available, res)
	assert.Empty(t, s.orders.Lines())
	assertStock(t, s.inv, "a", "2")
}

func TestReclaimIdleStock(t *testing.T) {
	item := rotating("a", time.Hour)
	s := newShop(item)
	s.inv.Put("a", dec("0"))
	s.orders.Add(cartLine("c1", "a", "2", 3*time.Hour))

	ok, err := s.svc.ReclaimIdleStock(context.Background(), item, dec("2"), nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assertStock(t, s.inv, "a", "2")

	ok, err = s.svc.ReclaimIdleStock(context.Background(), Product{ID: "gift-card"}, dec("1"), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyBulkAdjustmentSkipsUntracked(t *testing.T) {
	s := newShop()
	s.inv.Put("a", dec("3"))

	out, err := s.svc.ApplyBulkAdjustment(context.Background(), []Item{units("a"), Product{ID: "gift-card"}}, OpAdd, FixedAmount, dec("2"))
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assertStock(t, s.inv, "a", "5")
}

func TestRotateStock(t *testing.T) {
	a, b := units("a"), units("b")
	s := newShop(a, b)
	s.inv.Put("a", dec("0"))
	s.inv.Put("b", dec("1"))
	s.orders.Add(cartLine("c1", "a", "2", 3*time.Hour))
	s.orders.Add(cartLine("c1", "b", "1", 3*time.Hour))
	s.orders.Add(cartLine("c2", "a", "3", 2*time.Hour))
	s.orders.Add(cartLine("c3", "a", "4", 10*time.Minute))

	out, err := s.svc.RotateStock(context.Background(), []Item{a, b, Product{ID: "gift-card"}}, time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, "5", out["a"].String())
	assert.Equal(t, "1", out["b"].String())
	assertStock(t, s.inv, "a", "5")
	assertStock(t, s.inv, "b", "2")
	assert.Equal(t, []string{"c3"}, remaining(s.orders))
}
