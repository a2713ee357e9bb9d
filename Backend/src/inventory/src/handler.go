package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ahinestrog/xstock/numeric"
	"github.com/ahinestrog/xstock/stock"
	"github.com/ahinestrog/xstock/stock/sqlitestore"
)

type Publisher interface {
	PublishJSON(ctx context.Context, routingKey, correlationID string, v any) error
}

// Handler turns cart, order and admin messages into stock operations.
type Handler struct {
	store *sqlitestore.Store
	svc   *stock.Service
	pub   Publisher
	log   zerolog.Logger
}

// NewHandler also installs the store's remove hook, so that every line the store
// drops, including those reclaimed from idle carts, gives its quantity back.
func NewHandler(store *sqlitestore.Store, svc *stock.Service, pub Publisher, log zerolog.Logger) *Handler {
	h := &Handler{store: store, svc: svc, pub: pub, log: log}
	store.SetRemoveHook(h.returnLine)
	return h
}

func (h *Handler) Handle(ctx context.Context, rk string, body []byte) error {
	switch rk {
	case RKCartItemSet:
		var p CartItemSetPayload
		if err := decode(body, &p); err != nil {
			return err
		}
		return h.cartItemSet(ctx, p)
	case RKCartItemRemove:
		var p CartItemRemovePayload
		if err := decode(body, &p); err != nil {
			return err
		}
		return h.cartItemRemove(ctx, p)
	case RKOrderPlaced, RKOrderCompleted, RKOrderCanceled, RKOrderDeleted:
		var p OrderPayload
		if err := decode(body, &p); err != nil {
			return err
		}
		return h.orderTransition(ctx, rk, p.OrderID)
	case RKStockAdjust:
		var p StockAdjustPayload
		if err := decode(body, &p); err != nil {
			return err
		}
		return h.stockAdjust(ctx, p)
	case RKStockRotate:
		var p StockRotatePayload
		if err := decode(body, &p); err != nil {
			return err
		}
		return h.stockRotate(ctx, p)
	default:
		return fmt.Errorf("unknown routing key %q", rk)
	}
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func correlation(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func (h *Handler) cartItemSet(ctx context.Context, p CartItemSetPayload) error {
	res := AvailabilityResult{
		CorrelationID: correlation(p.CorrelationID),
		OrderID:       p.OrderID,
		ItemID:        p.ItemID,
		Quantity:      p.Quantity,
	}
	verdict := stock.Unavailable
	qty, err := numeric.Parse(p.Quantity)
	if err == nil {
		verdict, err = h.setLine(ctx, p, qty)
	}
	res.Result = verdict.String()
	if err != nil {
		res.Reason = err.Error()
	}
	if perr := h.pub.PublishJSON(ctx, RKStockAvailability, res.CorrelationID, res); perr != nil {
		h.log.Error().Err(perr).Str("order", p.OrderID).Msg("publish availability failed")
	}
	return err
}

func (h *Handler) setLine(ctx context.Context, p CartItemSetPayload, qty decimal.Decimal) (stock.Availability, error) {
	item, err := h.store.Item(ctx, p.ItemID)
	if err != nil {
		return stock.NoOpinion, err
	}
	order, err := h.store.Order(ctx, p.OrderID)
	switch {
	case errors.Is(err, sqlitestore.ErrNotFound):
	case err != nil:
		return stock.NoOpinion, err
	case order.IsCanceled() || order.IsCompleted() || order.IsLocked():
		return stock.Unavailable, fmt.Errorf("order %s can no longer change", p.OrderID)
	}

	if tracked, ok := stock.Tracked(item); ok {
		qty = numeric.Truncate(qty, tracked.StockSettings().EffectiveScale())
	}
	held, ok, err := h.store.Line(ctx, p.OrderID, p.ItemID)
	if err != nil {
		return stock.NoOpinion, err
	}
	prior := decimal.NullDecimal{Decimal: held, Valid: ok}

	verdict, err := h.svc.Reserve(ctx, item, qty, prior, p.OrderID)
	if err != nil || verdict == stock.Unavailable {
		return verdict, err
	}
	if err := h.store.SetLine(ctx, p.OrderID, p.ItemID, qty); err != nil {
		h.log.Error().Err(err).Str("order", p.OrderID).Str("item", p.ItemID).Msg("stock moved but line not saved")
		return stock.NoOpinion, err
	}
	h.log.Info().
		Str("order", p.OrderID).
		Str("item", p.ItemID).
		Str("quantity", qty.String()).
		Stringer("result", verdict).
		Msg("cart line set")
	return verdict, nil
}

func (h *Handler) cartItemRemove(ctx context.Context, p CartItemRemovePayload) error {
	err := h.store.RemoveReservation(ctx, p.OrderID, p.ItemID)
	if errors.Is(err, sqlitestore.ErrNotFound) {
		h.log.Warn().Str("order", p.OrderID).Str("item", p.ItemID).Msg("remove: no such line")
		return nil
	}
	return err
}

// returnLine is the store's remove hook.
func (h *Handler) returnLine(ctx context.Context, r stock.Reservation) error {
	order, err := h.store.Order(ctx, r.OrderID)
	if err != nil {
		return err
	}
	item, err := h.store.Item(ctx, r.ItemID)
	if err != nil {
		return err
	}
	return h.svc.Subscriber().ItemDeleted(ctx, order, item, r.Quantity)
}

func (h *Handler) orderTransition(ctx context.Context, rk, orderID string) error {
	switch rk {
	case RKOrderPlaced:
		return h.store.SetState(ctx, orderID, sqlitestore.StatePlaced)
	case RKOrderCompleted:
		return h.store.SetState(ctx, orderID, sqlitestore.StateCompleted)
	}

	order, err := h.store.Order(ctx, orderID)
	if err != nil {
		return err
	}
	lines, err := h.lines(ctx, orderID)
	if err != nil {
		return err
	}
	if rk == RKOrderCanceled {
		if err := h.svc.Subscriber().OrderCanceled(ctx, order, lines); err != nil {
			return err
		}
		h.log.Info().Str("order", orderID).Int("lines", len(lines)).Msg("order canceled, stock returned")
		return h.store.SetState(ctx, orderID, sqlitestore.StateCanceled)
	}
	if err := h.svc.Subscriber().OrderDeleted(ctx, order, lines); err != nil {
		return err
	}
	h.log.Info().Str("order", orderID).Int("lines", len(lines)).Msg("order deleted, stock returned")
	return h.store.DeleteOrder(ctx, orderID)
}

func (h *Handler) lines(ctx context.Context, orderID string) ([]stock.Line, error) {
	rows, err := h.store.Lines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]stock.Line, 0, len(rows))
	for _, l := range rows {
		item, err := h.store.Item(ctx, l.ItemID)
		if errors.Is(err, sqlitestore.ErrNotFound) {
			h.log.Warn().Str("order", orderID).Str("item", l.ItemID).Msg("line of unknown item ignored")
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, stock.Line{Item: item, Quantity: l.Quantity})
	}
	return out, nil
}

func (h *Handler) stockAdjust(ctx context.Context, p StockAdjustPayload) error {
	value, err := numeric.Parse(p.Value)
	if err != nil {
		h.reply(ctx, RKStockAdjusted, p.CorrelationID, nil, err)
		return err
	}
	items, err := h.store.Items(ctx, p.ItemIDs)
	if err != nil {
		return err
	}
	out, err := h.svc.ApplyBulkAdjustment(ctx, items, stock.Op(p.Op), stock.Mode(p.Mode), value)
	h.reply(ctx, RKStockAdjusted, p.CorrelationID, out, err)
	return err
}

func (h *Handler) stockRotate(ctx context.Context, p StockRotatePayload) error {
	items, err := h.store.Items(ctx, p.ItemIDs)
	if err != nil {
		return err
	}
	idle := time.Duration(p.ThresholdSeconds) * time.Second
	out, err := h.svc.RotateStock(ctx, items, idle, nil)
	h.reply(ctx, RKStockRotated, p.CorrelationID, out, err)
	return err
}

func (h *Handler) reply(ctx context.Context, rk, correlationID string, out map[string]decimal.Decimal, err error) {
	res := QuantitiesResult{CorrelationID: correlation(correlationID), Quantities: out}
	if res.Quantities == nil {
		res.Quantities = map[string]decimal.Decimal{}
	}
	if err != nil {
		res.Error = err.Error()
	}
	if perr := h.pub.PublishJSON(ctx, rk, res.CorrelationID, res); perr != nil {
		h.log.Error().Err(perr).Str("rk", rk).Msg("publish reply failed")
	}
}
