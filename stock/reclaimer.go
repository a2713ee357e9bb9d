package stock

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ahinestrog/xstock/numeric"
)

// Reclaimer frees stock held by carts nobody has touched for a while.
type Reclaimer struct {
	orders Orders
	now    func() time.Time
	log    zerolog.Logger
}

// ReclaimerOption configures a Reclaimer.
type ReclaimerOption func(*Reclaimer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ReclaimerOption {
	return func(r *Reclaimer) { r.now = now }
}

// WithReclaimerLogger sets the logger.
func WithReclaimerLogger(log zerolog.Logger) ReclaimerOption {
	return func(r *Reclaimer) { r.log = log }
}

func NewReclaimer(orders Orders, opts ...ReclaimerOption) *Reclaimer {
	r := &Reclaimer{orders: orders, now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reclaim removes idle cart reservations of item, oldest first, until at least needed
// has been released. It reports whether that amount was reached. Removal goes through
// Orders; the stock itself comes back through whatever the order collaborator does
// on line removal, so callers re-run the check after a true result.
func (r *Reclaimer) Reclaim(ctx context.Context, item HasStockTracking, needed decimal.Decimal, idle time.Duration, exclude []string) (bool, error) {
	if idle <= 0 {
		return false, nil
	}
	scale := item.StockSettings().EffectiveScale()
	if numeric.CmpAt(needed, decimal.Zero, scale) <= 0 {
		return true, nil
	}
	candidates, err := r.idle(ctx, item, idle, exclude)
	if err != nil {
		return false, err
	}

	reclaimed := decimal.Zero
	for _, res := range candidates {
		if err := r.release(ctx, res); err != nil {
			return false, err
		}
		reclaimed = numeric.AddAt(reclaimed, res.Quantity, scale)
		if numeric.CmpAt(reclaimed, needed, scale) >= 0 {
			r.log.Info().
				Str("item", item.ItemID()).
				Str("needed", numeric.Format(needed, scale)).
				Str("reclaimed", numeric.Format(reclaimed, scale)).
				Msg("idle stock reclaimed")
			return true, nil
		}
	}
	r.log.Info().
		Str("item", item.ItemID()).
		Str("needed", numeric.Format(needed, scale)).
		Str("reclaimed", numeric.Format(reclaimed, scale)).
		Int("carts", len(candidates)).
		Msg("idle stock exhausted before reaching need")
	return false, nil
}

// ReleaseAll removes every idle cart reservation of item and returns the total
// quantity released.
func (r *Reclaimer) ReleaseAll(ctx context.Context, item HasStockTracking, idle time.Duration, exclude []string) (decimal.Decimal, error) {
	if idle <= 0 {
		return decimal.Zero, nil
	}
	scale := item.StockSettings().EffectiveScale()
	candidates, err := r.idle(ctx, item, idle, exclude)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, res := range candidates {
		if err := r.release(ctx, res); err != nil {
			return total, err
		}
		total = numeric.AddAt(total, res.Quantity, scale)
	}
	return total, nil
}

// idle lists reservations of carts that are unlocked, not excluded and unchanged for
// longer than idle, ordered by last modification, oldest first.
func (r *Reclaimer) idle(ctx context.Context, item HasStockTracking, idle time.Duration, exclude []string) ([]Reservation, error) {
	all, err := r.orders.ListActiveReservations(ctx, item.ItemID(), exclude)
	if err != nil {
		return nil, fmt.Errorf("list reservations of %s: %w", item.ItemID(), err)
	}
	cutoff := r.now().Add(-idle)
	out := make([]Reservation, 0, len(all))
	for _, res := range all {
		if !res.IsCart || res.Locked || slices.Contains(exclude, res.OrderID) {
			continue
		}
		if !res.LastModifiedAt.Before(cutoff) {
			continue
		}
		out = append(out, res)
	}
	slices.SortStableFunc(out, func(a, b Reservation) int {
		return a.LastModifiedAt.Compare(b.LastModifiedAt)
	})
	return out, nil
}

func (r *Reclaimer) release(ctx context.Context, res Reservation) error {
	if err := r.orders.RemoveReservation(ctx, res.OrderID, res.ItemID); err != nil {
		return fmt.Errorf("remove reservation %s/%s: %w", res.OrderID, res.ItemID, err)
	}
	r.log.Debug().
		Str("order", res.OrderID).
		Str("item", res.ItemID).
		Str("quantity", res.Quantity.String()).
		Str("idle", humanize.RelTime(res.LastModifiedAt, r.now(), "ago", "from now")).
		Msg("cart reservation released")
	return nil
}
