package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ahinestrog/xstock/stock"
)

// SetLine stores qty for the line of itemID in orderID, creating the cart if needed,
// and marks the order as changed. A non-positive qty deletes the line without calling
// the remove hook; the caller has already settled its stock.
func (s *Store) SetLine(ctx context.Context, orderID, itemID string, qty decimal.Decimal) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().Unix()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO orders(order_id,state,changed) VALUES(?,?,?)
ON CONFLICT(order_id) DO UPDATE SET changed=excluded.changed`, orderID, StateCart, now); err != nil {
		return err
	}
	if qty.IsPositive() {
		_, err = tx.ExecContext(ctx, `
INSERT INTO order_items(order_id,item_id,quantity) VALUES(?,?,?)
ON CONFLICT(order_id,item_id) DO UPDATE SET quantity=excluded.quantity`, orderID, itemID, qty)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id=? AND item_id=?`, orderID, itemID)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Line returns the quantity of itemID held by orderID.
func (s *Store) Line(ctx context.Context, orderID, itemID string) (decimal.Decimal, bool, error) {
	var qty decimal.Decimal
	err := s.DB.QueryRowContext(ctx,
		`SELECT quantity FROM order_items WHERE order_id=? AND item_id=?`, orderID, itemID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return qty, true, nil
}

// Lines lists every line of orderID.
func (s *Store) Lines(ctx context.Context, orderID string) ([]Line, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT item_id,quantity FROM order_items WHERE order_id=? ORDER BY item_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ItemID, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) Order(ctx context.Context, orderID string) (*Order, error) {
	o := Order{ID: orderID}
	var changed int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT state,locked,changed FROM orders WHERE order_id=?`, orderID).
		Scan(&o.State, &o.Locked, &changed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	o.Changed = time.Unix(changed, 0).UTC()
	return &o, nil
}

// SetState moves orderID to state.
func (s *Store) SetState(ctx context.Context, orderID, state string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE orders SET state=?, changed=? WHERE order_id=?`, state, s.now().Unix(), orderID)
	if err != nil {
		return err
	}
	return mustAffect(res, orderID)
}

// SetLocked flags orderID as being processed by checkout.
func (s *Store) SetLocked(ctx context.Context, orderID string, locked bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE orders SET locked=? WHERE order_id=?`, locked, orderID)
	if err != nil {
		return err
	}
	return mustAffect(res, orderID)
}

// DeleteOrder removes orderID and its lines.
func (s *Store) DeleteOrder(ctx context.Context, orderID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM orders WHERE order_id=?`, orderID)
	if err != nil {
		return err
	}
	return mustAffect(res, orderID)
}

// ListActiveReservations lists lines of itemID in orders that are neither canceled nor
// completed, leaving out exclude.
func (s *Store) ListActiveReservations(ctx context.Context, itemID string, exclude []string) ([]stock.Reservation, error) {
	q := `
SELECT oi.order_id, oi.quantity, o.state, o.locked, o.changed
FROM order_items oi JOIN orders o ON o.order_id = oi.order_id
WHERE oi.item_id=? AND o.state NOT IN (?,?)`
	args := []any{itemID, StateCanceled, StateCompleted}
	if len(exclude) > 0 {
		q += ` AND oi.order_id NOT IN (` + placeholders(len(exclude)) + `)`
		args = append(args, toAny(exclude)...)
	}
	q += ` ORDER BY o.changed, oi.order_id`

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stock.Reservation
	for rows.Next() {
		r := stock.Reservation{ItemID: itemID}
		var state string
		var changed int64
		if err := rows.Scan(&r.OrderID, &r.Quantity, &state, &r.Locked, &changed); err != nil {
			return nil, err
		}
		r.IsCart = state == StateCart
		r.LastModifiedAt = time.Unix(changed, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// RemoveReservation deletes the line of itemID from orderID. The remove hook runs after
// the delete has been committed.
func (s *Store) RemoveReservation(ctx context.Context, orderID, itemID string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	r := stock.Reservation{OrderID: orderID, ItemID: itemID}
	var state string
	var changed int64
	err = tx.QueryRowContext(ctx, `
SELECT oi.quantity, o.state, o.locked, o.changed
FROM order_items oi JOIN orders o ON o.order_id = oi.order_id
WHERE oi.order_id=? AND oi.item_id=?`, orderID, itemID).
		Scan(&r.Quantity, &state, &r.Locked, &changed)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("line %s/%s: %w", orderID, itemID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM order_items WHERE order_id=? AND item_id=?`, orderID, itemID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.IsCart = state == StateCart
	r.LastModifiedAt = time.Unix(changed, 0).UTC()

	s.log.Debug().Str("order", orderID).Str("item", itemID).Str("quantity", r.Quantity.String()).Msg("line removed")
	if s.onRemove != nil {
		return s.onRemove(ctx, r)
	}
	return nil
}

func mustAffect(res sql.Result, orderID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return nil
}
