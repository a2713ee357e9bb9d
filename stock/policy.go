package stock

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ahinestrog/xstock/numeric"
)

// Decision is what a policy sees: the request and the verdict reached so far.
type Decision struct {
	Item      Item
	Requested decimal.Decimal
	Prior     decimal.NullDecimal
	// Current is the stock before the check and Next the stock that will be written
	// if the verdict stays Available. Both are zero for untracked items.
	Current decimal.Decimal
	Next    decimal.Decimal
	Result  Availability
}

// AvailabilityPolicy may confirm, veto or replace a verdict. Policies run in order and
// each one receives the verdict of the previous.
type AvailabilityPolicy interface {
	Apply(ctx context.Context, d Decision) (Availability, error)
}

// PolicyFunc adapts a function to AvailabilityPolicy.
type PolicyFunc func(ctx context.Context, d Decision) (Availability, error)

func (f PolicyFunc) Apply(ctx context.Context, d Decision) (Availability, error) { return f(ctx, d) }

// MinimumQuantity rejects positive requests below the item's Min setting.
var MinimumQuantity AvailabilityPolicy = PolicyFunc(func(_ context.Context, d Decision) (Availability, error) {
	t, ok := Tracked(d.Item)
	if !ok || d.Result != Available {
		return d.Result, nil
	}
	s := t.StockSettings()
	if !s.Min.IsPositive() || !d.Requested.IsPositive() {
		return d.Result, nil
	}
	if numeric.CmpAt(d.Requested, s.Min, s.EffectiveScale()) < 0 {
		return Unavailable, nil
	}
	return d.Result, nil
})

func applyPolicies(ctx context.Context, policies []AvailabilityPolicy, d Decision) (Availability, error) {
	for _, p := range policies {
		res, err := p.Apply(ctx, d)
		if err != nil {
			return NoOpinion, err
		}
		d.Result = res
	}
	return d.Result, nil
}
