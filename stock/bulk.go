package stock

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/ahinestrog/xstock/numeric"
)

// Op is a bulk stock operation.
type Op string

const (
	OpAdd      Op = "add"
	OpSubtract Op = "subtract"
	OpSet      Op = "set"
)

// Mode says how the bulk value is read.
type Mode string

const (
	// FixedAmount applies the value as is.
	FixedAmount Mode = "fixed_number"
	// StepMultiple applies the item's step times the integer part of the value.
	StepMultiple Mode = "steps_number"
)

// BulkAdjuster applies administrative stock changes independent of any order.
type BulkAdjuster struct {
	ledger *Ledger
	log    zerolog.Logger
}

func NewBulkAdjuster(ledger *Ledger, log zerolog.Logger) *BulkAdjuster {
	return &BulkAdjuster{ledger: ledger, log: log}
}

// Apply runs op on every item and returns the quantity each one ended with. A result
// below zero is stored as zero. Items that fail are left out of the map and their
// errors are combined.
func (b *BulkAdjuster) Apply(ctx context.Context, items []HasStockTracking, op Op, mode Mode, value decimal.Decimal) (map[string]decimal.Decimal, error) {
	switch op {
	case OpAdd, OpSubtract, OpSet:
	default:
		return nil, fmt.Errorf("%w: op %q", ErrUnknownOperation, op)
	}
	switch mode {
	case FixedAmount, StepMultiple:
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrUnknownOperation, mode)
	}

	out := make(map[string]decimal.Decimal, len(items))
	var errs error
	for _, item := range items {
		settings := item.StockSettings()
		scale := settings.EffectiveScale()
		amount := numeric.Truncate(value, scale)
		if mode == StepMultiple {
			amount = numeric.MulAt(settings.StepOrUnit(), decimal.NewFromInt(value.IntPart()), scale)
		}

		var next decimal.Decimal
		var err error
		if op == OpSet {
			next, err = b.ledger.Set(ctx, item, clamp(amount, scale))
		} else {
			next, _, err = b.ledger.Update(ctx, item.ItemID(), func(current decimal.Decimal) (decimal.Decimal, bool, error) {
				if op == OpAdd {
					return clamp(numeric.AddAt(current, amount, scale), scale), true, nil
				}
				return clamp(numeric.SubAt(current, amount, scale), scale), true, nil
			})
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("adjust %s: %w", item.ItemID(), err))
			continue
		}
		out[item.ItemID()] = next
	}

	b.log.Info().
		Str("op", string(op)).
		Str("mode", string(mode)).
		Str("value", value.String()).
		Int("items", len(items)).
		Int("applied", len(out)).
		Msg("bulk stock adjustment")
	return out, errs
}

func clamp(q decimal.Decimal, scale int32) decimal.Decimal {
	if numeric.CmpAt(q, decimal.Zero, scale) < 0 {
		return decimal.Zero
	}
	return q
}
