package main

import "github.com/shopspring/decimal"

// Routing keys consumed by stockd.
const (
	RKCartItemSet    = "cart.item.set"
	RKCartItemRemove = "cart.item.remove"
	RKOrderPlaced    = "order.placed"
	RKOrderCompleted = "order.completed"
	RKOrderCanceled  = "order.canceled"
	RKOrderDeleted   = "order.deleted"
	RKStockAdjust    = "stock.adjust"
	RKStockRotate    = "stock.rotate"
)

// Routing keys published by stockd.
const (
	RKStockAvailability = "stock.availability"
	RKStockAdjusted     = "stock.adjusted"
	RKStockRotated      = "stock.rotated"
)

var Bindings = []string{
	RKCartItemSet, RKCartItemRemove,
	RKOrderPlaced, RKOrderCompleted, RKOrderCanceled, RKOrderDeleted,
	RKStockAdjust, RKStockRotate,
}

// Quantities travel as plain decimal strings, e.g. "2.5", and are parsed by the
// handler so that a malformed one is reported as an invalid number.
type CartItemSetPayload struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	OrderID       string `json:"order_id"`
	ItemID        string `json:"item_id"`
	Quantity      string `json:"quantity"`
}

type CartItemRemovePayload struct {
	OrderID string `json:"order_id"`
	ItemID  string `json:"item_id"`
}

type OrderPayload struct {
	OrderID string `json:"order_id"`
}

type StockAdjustPayload struct {
	CorrelationID string   `json:"correlation_id,omitempty"`
	ItemIDs       []string `json:"item_ids"`
	Op            string   `json:"op"`
	Mode          string   `json:"mode"`
	Value         string   `json:"value"`
}

type StockRotatePayload struct {
	CorrelationID    string   `json:"correlation_id,omitempty"`
	ItemIDs          []string `json:"item_ids"`
	ThresholdSeconds int64    `json:"threshold_seconds"`
}

// AvailabilityResult answers cart.item.set.
type AvailabilityResult struct {
	CorrelationID string `json:"correlation_id"`
	OrderID       string `json:"order_id"`
	ItemID        string `json:"item_id"`
	Quantity      string `json:"quantity"`
	Result        string `json:"result"`
	Reason        string `json:"reason,omitempty"`
}

// QuantitiesResult answers stock.adjust and stock.rotate with one quantity per item.
type QuantitiesResult struct {
	CorrelationID string                     `json:"correlation_id"`
	Quantities    map[string]decimal.Decimal `json:"quantities"`
	Error         string                     `json:"error,omitempty"`
}
