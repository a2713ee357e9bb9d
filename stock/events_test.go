package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderState struct {
	canceled, completed, locked bool
}

func (o orderState) IsCanceled() bool  { return o.canceled }
func (o orderState) IsCompleted() bool { return o.completed }
func (o orderState) IsLocked() bool    { return o.locked }

func newSubscriber(inv Inventory) *OrderSubscriber {
	return NewOrderSubscriber(NewChecker(NewLedger(inv)), zerolog.Nop())
}

func TestItemUpdated(t *testing.T) {
	inv := NewMemoryInventory()
	inv.Put("a", dec("5"))
	s := newSubscriber(inv)

	require.NoError(t, s.ItemUpdated(context.Background(), orderState{}, units("a"), dec("0"), dec("3")))
	assertStock(t, inv, "a", "2")

	require.NoError(t, s.ItemUpdated(context.Background(), orderState{}, units("a"), dec("3"), dec("1")))
	assertStock(t, inv, "a", "4")
}

func TestItemUpdatedOverStock(t *testing.T) {
	inv := NewMemoryInventory()
	inv.Put("a", dec("2"))

	err := newSubscriber(inv).ItemUpdated(context.Background(), orderState{}, units("a"), dec("1"), dec("6"))
	require.ErrorIs(t, err, ErrUnavailable)
	var unavailable *UnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "a", unavailable.ItemID)
	assert.Equal(t, "6", unavailable.Quantity.String())
	assertStock(t, inv, "a", "2")
}

func TestItemDeleted(t *testing.T) {
	inv := NewMemoryInventory()
	inv.Put("a", dec("2"))

	require.NoError(t, newSubscriber(inv).ItemDeleted(context.Background(), orderState{}, units("a"), dec("4")))
	assertStock(t, inv, "a", "6")
}

func TestFrozenOrdersAreIgnored(t *testing.T) {
	for name, state := range map[string]orderState{
		"canceled":  {canceled: true},
		"completed": {completed: true},
		"locked":    {locked: true},
	} {
		t.Run(name, func(t *testing.T) {
			inv := NewMemoryInventory()
			inv.Put("a", dec("5"))
			s := newSubscriber(inv)
			ctx := context.Background()

			require.NoError(t, s.ItemUpdated(ctx, state, units("a"), dec("0"), dec("9")))
			require.NoError(t, s.ItemDeleted(ctx, state, units("a"), dec("3")))
			require.NoError(t, s.OrderCanceled(ctx, state, []Line{{Item: units("a"), Quantity: dec("3")}}))
			require.NoError(t, s.OrderDeleted(ctx, state, []Line{{Item: units("a"), Quantity: dec("3")}}))
			assertStock(t, inv, "a", "5")
		})
	}
}

func TestOrderCanceledReturnsEveryLine(t *testing.T) {
	inv := NewMemoryInventory()
	inv.Put("a", dec("1"))
	inv.Put("b", dec("0"))
	lines := []Line{
		{Item: units("a"), Quantity: dec("2")},
		{Item: units("b"), Quantity: dec("3")},
		{Item: Product{ID: "gift-card"}, Quantity: dec("1")},
	}

	require.NoError(t, newSubscriber(inv).OrderCanceled(context.Background(), orderState{}, lines))
	assertStock(t, inv, "a", "3")
	assertStock(t, inv, "b", "3")
}

func TestOrderDeletedCollectsErrors(t *testing.T) {
	inv := NewMemoryInventory()
	inv.Put("a", dec("1"))
	lines := []Line{
		{Item: units("missing"), Quantity: dec("2")},
		{Item: units("a"), Quantity: dec("2")},
	}

	err := newSubscriber(inv).OrderDeleted(context.Background(), orderState{}, lines)
	require.ErrorIs(t, err, ErrNotTracked)
	assertStock(t, inv, "a", "3")
}
