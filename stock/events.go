package stock

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// Line is one order line as seen by the subscriber.
type Line struct {
	Item     Item
	Quantity decimal.Decimal
}

// OrderSubscriber keeps stock in step with order and cart mutations. Orders that are
// canceled, completed or locked are left alone.
type OrderSubscriber struct {
	checker *Checker
	log     zerolog.Logger
}

func NewOrderSubscriber(checker *Checker, log zerolog.Logger) *OrderSubscriber {
	return &OrderSubscriber{checker: checker, log: log}
}

// ItemUpdated moves stock for a line going from old to updated.
func (s *OrderSubscriber) ItemUpdated(ctx context.Context, order OrderStatus, item Item, old, updated decimal.Decimal) error {
	if frozen(order) {
		return nil
	}
	return s.update(ctx, item, updated, old)
}

// ItemDeleted returns the whole line quantity.
func (s *OrderSubscriber) ItemDeleted(ctx context.Context, order OrderStatus, item Item, qty decimal.Decimal) error {
	if frozen(order) {
		return nil
	}
	return s.update(ctx, item, decimal.Zero, qty)
}

// OrderCanceled returns every line of an order that is about to be canceled. order is
// the state before the transition.
func (s *OrderSubscriber) OrderCanceled(ctx context.Context, order OrderStatus, lines []Line) error {
	return s.returnLines(ctx, order, lines)
}

// OrderDeleted returns every line of an order that is about to be deleted.
func (s *OrderSubscriber) OrderDeleted(ctx context.Context, order OrderStatus, lines []Line) error {
	return s.returnLines(ctx, order, lines)
}

func (s *OrderSubscriber) returnLines(ctx context.Context, order OrderStatus, lines []Line) error {
	if frozen(order) {
		return nil
	}
	var errs error
	for _, l := range lines {
		errs = multierr.Append(errs, s.update(ctx, l.Item, decimal.Zero, l.Quantity))
	}
	return errs
}

func (s *OrderSubscriber) update(ctx context.Context, item Item, qty, old decimal.Decimal) error {
	res, err := s.checker.Check(ctx, Request{
		Item:     item,
		Quantity: qty,
		Prior:    decimal.NewNullDecimal(old),
	})
	if err != nil {
		return err
	}
	if res == Unavailable {
		s.log.Warn().Str("item", item.ItemID()).Str("quantity", qty.String()).Msg("order line quantity not available")
		return &UnavailableError{ItemID: item.ItemID(), Quantity: qty}
	}
	return nil
}

func frozen(order OrderStatus) bool {
	return order.IsCanceled() || order.IsCompleted() || order.IsLocked()
}
