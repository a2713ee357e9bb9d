package sqlitestore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ahinestrog/xstock/stock"
)

// Order states.
const (
	StateCart      = "cart"
	StatePlaced    = "placed"
	StateCompleted = "completed"
	StateCanceled  = "canceled"
)

// ItemRecord is one row of the variations table.
type ItemRecord struct {
	ID       string
	Tracked  bool
	Settings stock.Settings
	Quantity decimal.Decimal
}

// Order is the stock-relevant state of an order or cart.
type Order struct {
	ID      string
	State   string
	Locked  bool
	Changed time.Time
}

func (o *Order) IsCanceled() bool  { return o.State == StateCanceled }
func (o *Order) IsCompleted() bool { return o.State == StateCompleted }
func (o *Order) IsLocked() bool    { return o.Locked }
func (o *Order) IsCart() bool      { return o.State == StateCart }

// Line is an order line.
type Line struct {
	ItemID   string
	Quantity decimal.Decimal
}
