package stock

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/ahinestrog/xstock/numeric"
)

// Config wires a Service. The zero value is usable.
type Config struct {
	Logger      zerolog.Logger
	Policies    []AvailabilityPolicy
	MaxAttempts int
	Now         func() time.Time
}

// Service is the entry point used by cart forms, admin actions and order handlers.
type Service struct {
	ledger     *Ledger
	checker    *Checker
	reclaimer  *Reclaimer
	bulk       *BulkAdjuster
	subscriber *OrderSubscriber
	log        zerolog.Logger
}

func NewService(inv Inventory, orders Orders, cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ledger := NewLedger(inv, WithMaxAttempts(cfg.MaxAttempts), WithLedgerLogger(cfg.Logger))
	checker := NewChecker(ledger, WithPolicies(cfg.Policies...), WithCheckerLogger(cfg.Logger))
	return &Service{
		ledger:     ledger,
		checker:    checker,
		reclaimer:  NewReclaimer(orders, WithClock(now), WithReclaimerLogger(cfg.Logger)),
		bulk:       NewBulkAdjuster(ledger, cfg.Logger),
		subscriber: NewOrderSubscriber(checker, cfg.Logger),
		log:        cfg.Logger,
	}
}

func (s *Service) Ledger() *Ledger              { return s.ledger }
func (s *Service) Subscriber() *OrderSubscriber { return s.subscriber }

// CheckAvailability decides whether a line may go to requested given what it already
// holds, and moves the stock when it may.
func (s *Service) CheckAvailability(ctx context.Context, item Item, requested decimal.Decimal, prior decimal.NullDecimal) (Availability, error) {
	return s.checker.Check(ctx, Request{Item: item, Quantity: requested, Prior: prior})
}

// ReclaimIdleStock frees at least needed from carts idle longer than the item's
// rotation threshold. Items without tracking or without a threshold reclaim nothing.
func (s *Service) ReclaimIdleStock(ctx context.Context, item Item, needed decimal.Decimal, exclude []string) (bool, error) {
	tracked, ok := Tracked(item)
	if !ok {
		return false, nil
	}
	return s.reclaimer.Reclaim(ctx, tracked, needed, tracked.StockSettings().RotationThreshold, exclude)
}

// ApplyBulkAdjustment runs an administrative op over items. Untracked items are skipped.
func (s *Service) ApplyBulkAdjustment(ctx context.Context, items []Item, op Op, mode Mode, value decimal.Decimal) (map[string]decimal.Decimal, error) {
	return s.bulk.Apply(ctx, s.tracked(items), op, mode, value)
}

// Reserve is the add-to-cart flow: a check that, when stock is short and the item
// rotates, frees the shortfall from other idle carts and checks once more.
func (s *Service) Reserve(ctx context.Context, item Item, requested decimal.Decimal, prior decimal.NullDecimal, cartOrderID string) (Availability, error) {
	res, err := s.CheckAvailability(ctx, item, requested, prior)
	if err != nil || res != Unavailable {
		return res, err
	}
	tracked, ok := Tracked(item)
	if !ok {
		return res, nil
	}
	settings := tracked.StockSettings()
	if settings.RotationThreshold <= 0 {
		return res, nil
	}

	scale := settings.EffectiveScale()
	current, err := s.ledger.Quantity(ctx, tracked)
	if err != nil {
		return NoOpinion, err
	}
	increment := requested
	if prior.Valid && numeric.CmpAt(prior.Decimal, requested, scale) < 0 {
		increment = numeric.SubAt(requested, prior.Decimal, scale)
	}
	needed := numeric.SubAt(increment, current, scale)
	if !needed.IsPositive() {
		return res, nil
	}
	// a request the policies refuse anyway must not cost other carts their lines
	admitted, err := s.checker.admitsAt(ctx, tracked, Request{Item: item, Quantity: requested, Prior: prior}, numeric.AddAt(current, needed, scale))
	if err != nil || !admitted {
		return res, err
	}

	var exclude []string
	if cartOrderID != "" {
		exclude = []string{cartOrderID}
	}
	freed, err := s.reclaimer.Reclaim(ctx, tracked, needed, settings.RotationThreshold, exclude)
	if err != nil || !freed {
		return res, err
	}
	return s.CheckAvailability(ctx, item, requested, prior)
}

// RotateStock releases every cart reservation of items idle longer than idle and
// returns the quantity released per item.
func (s *Service) RotateStock(ctx context.Context, items []Item, idle time.Duration, exclude []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	var errs error
	for _, t := range s.tracked(items) {
		total, err := s.reclaimer.ReleaseAll(ctx, t, idle, exclude)
		errs = multierr.Append(errs, err)
		out[t.ItemID()] = total
	}
	return out, errs
}

func (s *Service) tracked(items []Item) []HasStockTracking {
	out := make([]HasStockTracking, 0, len(items))
	for _, item := range items {
		t, ok := Tracked(item)
		if !ok {
			s.log.Debug().Str("item", item.ItemID()).Msg("item has no stock tracking, skipped")
			continue
		}
		out = append(out, t)
	}
	return out
}
