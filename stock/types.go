// Package stock keeps decimal stock levels for purchasable items and decides whether
// cart and order quantity changes can be served from them.
//
// The package owns the arithmetic and the serialization of stock writes. Persistence of
// levels and of cart reservations belongs to collaborators reached through the
// Inventory and Orders interfaces.
package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ahinestrog/xstock/numeric"
)

// Item is anything that can be put in a cart.
type Item interface {
	ItemID() string
}

// HasStockTracking is implemented by items whose quantity is governed by the ledger.
// Items without it get NoOpinion from the checker.
type HasStockTracking interface {
	Item
	StockSettings() Settings
}

// Settings describe how an item's stock is counted.
type Settings struct {
	// Step is the quantity increment the item is sold in.
	Step decimal.Decimal
	// Scale is the number of decimal digits used for arithmetic. A negative value
	// means it is taken from the digits of Step.
	Scale int32
	// Unsigned items never store a negative quantity.
	Unsigned bool
	// Min is the smallest positive quantity that can be requested. Zero disables it.
	Min decimal.Decimal
	// RotationThreshold is how long a cart must be idle before its reservations may
	// be reclaimed. Zero disables rotation.
	RotationThreshold time.Duration
}

// EffectiveScale is the scale every operation on the item uses.
func (s Settings) EffectiveScale() int32 {
	if s.Scale >= 0 {
		return s.Scale
	}
	if s.Step.IsZero() {
		return 0
	}
	return numeric.Digits(s.Step)
}

// StepOrUnit returns Step, or one unit of the last decimal digit when Step is unset.
func (s Settings) StepOrUnit() decimal.Decimal {
	if s.Step.IsPositive() {
		return s.Step
	}
	return decimal.New(1, -s.EffectiveScale())
}

// Level is the persisted stock of one item.
type Level struct {
	Quantity decimal.Decimal
	// Version changes on every write and guards SetStockQuantity.
	Version int64
}

// Reservation is quantity held against an item by an order line.
type Reservation struct {
	OrderID        string
	ItemID         string
	Quantity       decimal.Decimal
	LastModifiedAt time.Time
	Locked         bool
	IsCart         bool
}

// OrderStatus is the part of an order the stock rules look at.
type OrderStatus interface {
	IsCanceled() bool
	IsCompleted() bool
	IsLocked() bool
}

// Inventory stores stock levels.
type Inventory interface {
	StockLevel(ctx context.Context, itemID string) (Level, error)
	// SetStockQuantity writes qty only if the stored version still equals version,
	// otherwise it returns ErrConcurrentModification.
	SetStockQuantity(ctx context.Context, itemID string, qty decimal.Decimal, version int64) error
}

// Orders gives access to cart lines that hold stock.
type Orders interface {
	ListActiveReservations(ctx context.Context, itemID string, excludeOrderIDs []string) ([]Reservation, error)
	RemoveReservation(ctx context.Context, orderID, itemID string) error
}

// Availability is the tri-state answer of a check.
type Availability int

const (
	NoOpinion Availability = iota
	Available
	Unavailable
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "no_opinion"
	}
}

// Tracked resolves the stock capability of item.
func Tracked(item Item) (HasStockTracking, bool) {
	t, ok := item.(HasStockTracking)
	return t, ok
}
