package stock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ahinestrog/xstock/numeric"
)

// DefaultMaxAttempts bounds the read-compute-write retries on version conflicts.
const DefaultMaxAttempts = 3

// MutateFunc computes the next quantity from the current one. The ledger persists next
// only when commit is true. It may be called more than once per update and must not
// have side effects.
type MutateFunc func(current decimal.Decimal) (next decimal.Decimal, commit bool, err error)

// Ledger is the only writer of stock levels.
type Ledger struct {
	inv         Inventory
	maxAttempts int
	locks       *keyedMutex
	log         zerolog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithMaxAttempts sets how many times a conflicting write is retried in total.
func WithMaxAttempts(n int) LedgerOption {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithLedgerLogger sets the logger.
func WithLedgerLogger(log zerolog.Logger) LedgerOption {
	return func(l *Ledger) { l.log = log }
}

func NewLedger(inv Inventory, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		inv:         inv,
		maxAttempts: DefaultMaxAttempts,
		locks:       newKeyedMutex(),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Quantity returns the current stock of item.
func (l *Ledger) Quantity(ctx context.Context, item HasStockTracking) (decimal.Decimal, error) {
	lvl, err := l.level(ctx, item.ItemID())
	if err != nil {
		return decimal.Zero, err
	}
	return lvl.Quantity, nil
}

// Adjust computes current-delta at the item's scale. A positive delta consumes stock,
// a negative one returns it. For unsigned items the result is persisted only when it
// is not negative. The would-be quantity is returned either way.
func (l *Ledger) Adjust(ctx context.Context, item HasStockTracking, delta decimal.Decimal) (decimal.Decimal, bool, error) {
	settings := item.StockSettings()
	scale := settings.EffectiveScale()
	return l.Update(ctx, item.ItemID(), func(current decimal.Decimal) (decimal.Decimal, bool, error) {
		next := numeric.SubAt(current, delta, scale)
		if settings.Unsigned && next.IsNegative() {
			return next, false, nil
		}
		return next, true, nil
	})
}

// Set overwrites the stock of item.
func (l *Ledger) Set(ctx context.Context, item HasStockTracking, qty decimal.Decimal) (decimal.Decimal, error) {
	scale := item.StockSettings().EffectiveScale()
	next, _, err := l.Update(ctx, item.ItemID(), func(decimal.Decimal) (decimal.Decimal, bool, error) {
		return numeric.Truncate(qty, scale), true, nil
	})
	return next, err
}

// Update runs fn against the stored quantity of itemID and persists its result. Updates
// of the same item never interleave inside this process; writers in other processes
// are detected through the level version and the whole update is retried.
func (l *Ledger) Update(ctx context.Context, itemID string, fn MutateFunc) (decimal.Decimal, bool, error) {
	unlock := l.locks.Lock(itemID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return decimal.Zero, false, err
		}
		lvl, err := l.level(ctx, itemID)
		if err != nil {
			return decimal.Zero, false, err
		}
		next, commit, err := fn(lvl.Quantity)
		if err != nil {
			return decimal.Zero, false, err
		}
		if !commit || next.Equal(lvl.Quantity) {
			return next, commit, nil
		}

		err = l.inv.SetStockQuantity(ctx, itemID, next, lvl.Version)
		if errors.Is(err, ErrConcurrentModification) && attempt < l.maxAttempts {
			l.log.Debug().Str("item", itemID).Int("attempt", attempt).Msg("stock write conflict, retrying")
			continue
		}
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("set stock of %s: %w", itemID, err)
		}
		l.log.Debug().
			Str("item", itemID).
			Str("from", lvl.Quantity.String()).
			Str("to", next.String()).
			Msg("stock updated")
		return next, true, nil
	}
}

func (l *Ledger) level(ctx context.Context, itemID string) (Level, error) {
	lvl, err := l.inv.StockLevel(ctx, itemID)
	if err != nil {
		return Level{}, fmt.Errorf("stock level of %s: %w", itemID, err)
	}
	return lvl, nil
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	kl, ok := k.locks[key]
	if !ok {
		kl = &keyLock{}
		k.locks[key] = kl
	}
	kl.refs++
	k.mu.Unlock()

	kl.Lock()
	return func() {
		kl.Unlock()
		k.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
