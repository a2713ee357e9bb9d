package stock

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ahinestrog/xstock/numeric"
)

// Request asks whether an order line may hold Quantity of Item.
type Request struct {
	Item Item
	// Quantity is the new total of the line. Zero with a Prior means the line is
	// being deleted.
	Quantity decimal.Decimal
	// Prior is the quantity the same line already holds, if any.
	Prior decimal.NullDecimal
}

// Checker decides availability and applies the matching ledger mutation.
type Checker struct {
	ledger   *Ledger
	policies []AvailabilityPolicy
	log      zerolog.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithPolicies appends policies, run in the given order after the stock verdict.
func WithPolicies(p ...AvailabilityPolicy) CheckerOption {
	return func(c *Checker) { c.policies = append(c.policies, p...) }
}

// WithCheckerLogger sets the logger.
func WithCheckerLogger(log zerolog.Logger) CheckerOption {
	return func(c *Checker) { c.log = log }
}

func NewChecker(ledger *Ledger, opts ...CheckerOption) *Checker {
	c := &Checker{ledger: ledger, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check answers NoOpinion for items without stock tracking. For tracked items it
// returns Available after persisting the new stock, or Unavailable leaving the stock
// untouched. Errors are never used for the unavailable case.
func (c *Checker) Check(ctx context.Context, req Request) (Availability, error) {
	if req.Quantity.IsNegative() || (req.Prior.Valid && req.Prior.Decimal.IsNegative()) {
		return NoOpinion, fmt.Errorf("%w: requested %s, prior %s", ErrNegativeQuantity, req.Quantity, req.Prior.Decimal)
	}

	tracked, ok := Tracked(req.Item)
	if !ok {
		return applyPolicies(ctx, c.policies, Decision{
			Item:      req.Item,
			Requested: req.Quantity,
			Prior:     req.Prior,
			Result:    NoOpinion,
		})
	}

	scale := tracked.StockSettings().EffectiveScale()
	requested := numeric.Truncate(req.Quantity, scale)

	var result Availability
	_, _, err := c.ledger.Update(ctx, tracked.ItemID(), func(current decimal.Decimal) (decimal.Decimal, bool, error) {
		next, ok := plan(current, requested, req.Prior, scale)
		verdict := Unavailable
		if ok {
			verdict = Available
		}
		res, err := applyPolicies(ctx, c.policies, Decision{
			Item:      req.Item,
			Requested: requested,
			Prior:     req.Prior,
			Current:   current,
			Next:      next,
			Result:    verdict,
		})
		if err != nil {
			return decimal.Zero, false, err
		}
		result = res
		return next, res == Available, nil
	})
	if err != nil {
		return NoOpinion, err
	}

	c.log.Debug().
		Str("item", tracked.ItemID()).
		Str("requested", numeric.Format(requested, scale)).
		Bool("prior", req.Prior.Valid).
		Stringer("result", result).
		Msg("availability checked")
	return result, nil
}

// plan returns the stock after serving requested on top of prior, and whether that
// is admissible. A prior covering the request releases the difference; otherwise only
// the increment over prior is taken from current.
func plan(current, requested decimal.Decimal, prior decimal.NullDecimal, scale int32) (decimal.Decimal, bool) {
	remaining := requested
	if prior.Valid && numeric.CmpAt(prior.Decimal, decimal.Zero, scale) > 0 {
		if numeric.CmpAt(prior.Decimal, requested, scale) >= 0 {
			diff := numeric.SubAt(prior.Decimal, requested, scale)
			return numeric.AddAt(current, diff, scale), true
		}
		remaining = numeric.SubAt(requested, prior.Decimal, scale)
	}
	candidate := numeric.SubAt(current, remaining, scale)
	return candidate, numeric.CmpAt(candidate, decimal.Zero, scale) >= 0
}

// admitsAt reports whether the policies would let req through if the item held available.
// Nothing is read from or written to the ledger.
func (c *Checker) admitsAt(ctx context.Context, item HasStockTracking, req Request, available decimal.Decimal) (bool, error) {
	scale := item.StockSettings().EffectiveScale()
	requested := numeric.Truncate(req.Quantity, scale)
	next, ok := plan(available, requested, req.Prior, scale)
	if !ok {
		return false, nil
	}
	res, err := applyPolicies(ctx, c.policies, Decision{
		Item:      req.Item,
		Requested: requested,
		Prior:     req.Prior,
		Current:   available,
		Next:      next,
		Result:    Available,
	})
	return res == Available, err
}
