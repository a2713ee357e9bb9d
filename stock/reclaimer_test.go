package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noon = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func cartLine(order, item, qty string, idle time.Duration) Reservation {
	return Reservation{
		OrderID:        order,
		ItemID:         item,
		Quantity:       dec(qty),
		LastModifiedAt: noon.Add(-idle),
		IsCart:         true,
	}
}

func remaining(orders *MemoryOrders) []string {
	var out []string
	for _, l := range orders.Lines() {
		out = append(out, l.OrderID)
	}
	return out
}

func newTestReclaimer(orders Orders) *Reclaimer {
	return NewReclaimer(orders, WithClock(func() time.Time { return noon }))
}

func TestReclaimOldestFirstUntilNeedMet(t *testing.T) {
	orders := NewMemoryOrders()
	orders.Add(cartLine("c3", "a", "4", 90*time.Minute))
	orders.Add(cartLine("c1", "a", "2", 3*time.Hour))
	orders.Add(cartLine("c2", "a", "3", 2*time.Hour))

	ok, err := newTestReclaimer(orders).Reclaim(context.Background(), units("a"), dec("5"), time.Hour, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"c3"}, remaining(orders))
}

func TestReclaimExhaustsCandidates(t *testing.T) {
	orders := NewMemoryOrders()
	orders.Add(cartLine("c1", "a", "2", 3*time.Hour))
	orders.Add(cartLine("c2", "a", "3", 2*time.Hour))
	orders.Add(cartLine("c3", "a", "4", 90*time.Minute))

	ok, err := newTestReclaimer(orders).Reclaim(context.Background(), units("a"), dec("10"), time.Hour, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, remaining(orders))
}

func TestReclaimSkipsIneligibleLines(t *testing.T) {
	orders := NewMemoryOrders()
	orders.Add(cartLine("mine", "a", "5", 5*time.Hour))
	locked := cartLine("locked", "a", "5", 5*time.Hour)
	locked.Locked = true
	orders.Add(locked)
	placed := cartLine("placed", "a", "5", 5*time.Hour)
	placed.IsCart = false
	orders.Add(placed)
	orders.Add(cartLine("fresh", "a", "5", 30*time.Minute))
	orders.Add(cartLine("other-item", "b", "5", 5*time.Hour))
	orders.Add(cartLine("stale", "a", "1", 2*time.Hour))

	ok, err := newTestReclaimer(orders).Reclaim(context.Background(), units("a"), dec("3"), time.Hour, []string{"mine"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"mine", "locked", "placed", "fresh", "other-item"}, remaining(orders))
}

func TestReclaimKeepsInsertionOrderOnTies(t *testing.T) {
	orders := NewMemoryOrders()
	orders.Add(cartLine("first", "a", "1", 2*time.Hour))
	orders.Add(cartLine("second", "a", "1", 2*time.Hour))

	ok, err := newTestReclaimer(orders).Reclaim(context.Background(), units("a"), dec("1"), time.Hour, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"second"}, remaining(orders))
}

func TestReclaimEdgeCases(t *testing.T) {
	orders := NewMemoryOrders()
	orders.Add(cartLine("c1", "a", "2", 3*time.Hour))
	r := newTestReclaimer(orders)

	ok, err := r.Reclaim(context.Background(), units("a"), dec("1"), 0, nil)
	require.NoError(t, err)
	assert.False(t, ok, "rotation disabled")

	ok, err = r.Reclaim(context.Background(), units("a"), dec("0"), time.Hour, nil)
	require.NoError(t, err)
	assert.True(t, ok, "nothing needed")
	assert.Len(t, orders.Lines(), 1)
}

func TestReclaimPropagatesRemovalErrors(t *testing.T) {
	orders := NewMemoryOrders()
	orders.Add(cartLine("c1", "a", "2", 3*time.Hour))
	broken := errors.New("order storage down")
	orders.OnRemove = func(context.Context, Reservation) error { return broken }

	_, err := newTestReclaimer(orders).Reclaim(context.Background(), units("a"), dec("1"), time.Hour, nil)
	require.ErrorIs(t, err, broken)
}

func TestReleaseAll(t *testing.T) {
	orders := NewMemoryOrders()
	orders.Add(cartLine("c1", "a", "2", 3*time.Hour))
	orders.Add(cartLine("c2", "a", "3.5", 2*time.Hour))
	orders.Add(cartLine("fresh", "a", "4", time.Minute))
	item := Variation{ID: "a", Settings: Settings{Step: dec("0.5"), Scale: -1}}

	total, err := newTestReclaimer(orders).ReleaseAll(context.Background(), item, time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, "5.5", total.String())
	assert.Equal(t, []string{"fresh"}, remaining(orders))
}
