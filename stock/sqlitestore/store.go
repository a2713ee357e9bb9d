// Package sqlitestore keeps stock levels, item settings and cart lines in SQLite.
//
// Store implements stock.Inventory and stock.Orders over the same database.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/ahinestrog/xstock/stock"
)

var ErrNotFound = errors.New("not found")

// DefaultCacheSize is the number of item definitions kept in memory.
const DefaultCacheSize = 512

// RemoveHook runs after a reservation has been deleted and committed.
type RemoveHook func(ctx context.Context, r stock.Reservation) error

type Store struct {
	DB       *sql.DB
	items    *lru.Cache[string, stock.Item]
	now      func() time.Time
	log      zerolog.Logger
	onRemove RemoveHook
	size     int
}

type Option func(*Store)

func WithCacheSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.size = n
		}
	}
}

// WithClock sets the clock used to stamp order changes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// Open opens or creates the database at dbPath and migrates it.
func Open(dbPath string, opts ...Option) (*Store, error) {
	// busy_timeout avoids "database is locked" while another process holds the writer
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout=5000&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(2 * time.Minute)
	db.SetMaxOpenConns(1)

	s := &Store{DB: db, now: time.Now, log: zerolog.Nop(), size: DefaultCacheSize}
	for _, opt := range opts {
		opt(s)
	}
	if s.items, err = lru.New[string, stock.Item](s.size); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS variations(
  item_id          TEXT PRIMARY KEY,
  tracked          INTEGER NOT NULL DEFAULT 1,
  step             TEXT NOT NULL DEFAULT '1',
  scale            INTEGER NOT NULL DEFAULT -1,
  min_qty          TEXT NOT NULL DEFAULT '0',
  unsigned         INTEGER NOT NULL DEFAULT 0,
  rotation_seconds INTEGER NOT NULL DEFAULT 0,
  quantity         TEXT NOT NULL DEFAULT '0',
  version          INTEGER NOT NULL DEFAULT 1,
  updated_at       INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
CREATE TABLE IF NOT EXISTS orders(
  order_id TEXT PRIMARY KEY,
  state    TEXT NOT NULL DEFAULT 'cart',
  locked   INTEGER NOT NULL DEFAULT 0,
  changed  INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
CREATE TABLE IF NOT EXISTS order_items(
  order_id TEXT NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
  item_id  TEXT NOT NULL,
  quantity TEXT NOT NULL,
  PRIMARY KEY(order_id, item_id)
);
CREATE INDEX IF NOT EXISTS idx_order_items_item ON order_items(item_id);
CREATE INDEX IF NOT EXISTS idx_orders_changed ON orders(changed);
`
	_, err := s.DB.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close() error { return s.DB.Close() }

// SetRemoveHook installs the function called after RemoveReservation commits. Hosts use
// it to give the removed quantity back to stock.
func (s *Store) SetRemoveHook(fn RemoveHook) { s.onRemove = fn }

// Seed inserts a few demo variations, leaving existing ones alone.
func (s *Store) Seed(ctx context.Context) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt := `
INSERT INTO variations(item_id,tracked,step,scale,min_qty,unsigned,rotation_seconds,quantity)
VALUES(?,?,?,?,?,?,?,?)
ON CONFLICT(item_id) DO NOTHING;
`
	inserts := [][]any{
		{"SKU-1001", 1, "1", -1, "0", 1, 3600, "10"},
		{"SKU-1002", 1, "1", -1, "2", 1, 0, "5"},
		{"SKU-2001", 1, "0.25", -1, "0", 0, 1800, "12.5"},
		{"SKU-2002", 1, "0.001", -1, "0", 1, 0, "3.5"},
		{"GIFT-50", 0, "1", -1, "0", 0, 0, "0"},
	}
	for _, v := range inserts {
		if _, err := tx.ExecContext(ctx, stmt, v...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveItem creates or replaces an item definition together with its stock.
func (s *Store) SaveItem(ctx context.Context, rec ItemRecord) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO variations(item_id,tracked,step,scale,min_qty,unsigned,rotation_seconds,quantity,updated_at)
VALUES(?,?,?,?,?,?,?,?,?)
ON CONFLICT(item_id) DO UPDATE SET
  tracked=excluded.tracked,
  step=excluded.step,
  scale=excluded.scale,
  min_qty=excluded.min_qty,
  unsigned=excluded.unsigned,
  rotation_seconds=excluded.rotation_seconds,
  quantity=excluded.quantity,
  version=version+1,
  updated_at=excluded.updated_at`,
		rec.ID, rec.Tracked, rec.Settings.Step, rec.Settings.Scale, rec.Settings.Min,
		rec.Settings.Unsigned, int64(rec.Settings.RotationThreshold/time.Second),
		rec.Quantity, s.now().Unix())
	if err != nil {
		return err
	}
	s.items.Remove(rec.ID)
	return nil
}

// Item returns the item definition of id: a stock.Variation when it is tracked, a
// stock.Product otherwise.
func (s *Store) Item(ctx context.Context, id string) (stock.Item, error) {
	if item, ok := s.items.Get(id); ok {
		return item, nil
	}
	var (
		tracked  bool
		settings stock.Settings
		rotation int64
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT tracked,step,scale,min_qty,unsigned,rotation_seconds FROM variations WHERE item_id=?`, id).
		Scan(&tracked, &settings.Step, &settings.Scale, &settings.Min, &settings.Unsigned, &rotation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	settings.RotationThreshold = time.Duration(rotation) * time.Second

	var item stock.Item = stock.Product{ID: id}
	if tracked {
		item = stock.Variation{ID: id, Settings: settings}
	}
	s.items.Add(id, item)
	return item, nil
}

// Items resolves several ids at once. Unknown ids are skipped.
func (s *Store) Items(ctx context.Context, ids []string) ([]stock.Item, error) {
	out := make([]stock.Item, 0, len(ids))
	for _, id := range ids {
		item, err := s.Item(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.log.Warn().Str("item", id).Msg("unknown item skipped")
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) StockLevel(ctx context.Context, itemID string) (stock.Level, error) {
	var lvl stock.Level
	err := s.DB.QueryRowContext(ctx,
		`SELECT quantity,version FROM variations WHERE item_id=? AND tracked=1`, itemID).
		Scan(&lvl.Quantity, &lvl.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return stock.Level{}, fmt.Errorf("%w: %s", stock.ErrNotTracked, itemID)
	}
	if err != nil {
		return stock.Level{}, err
	}
	return lvl, nil
}

// SetStockQuantity writes qty if the stored version still equals version.
func (s *Store) SetStockQuantity(ctx context.Context, itemID string, qty decimal.Decimal, version int64) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE variations SET quantity=?, version=version+1, updated_at=?
WHERE item_id=? AND tracked=1 AND version=?`, qty, s.now().Unix(), itemID, version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.StockLevel(ctx, itemID); err != nil {
		return err
	}
	return stock.ErrConcurrentModification
}

// helpers
func placeholders(n int) string {
	s := "?"
	for i := 1; i < n; i++ {
		s += ",?"
	}
	return s
}

func toAny[T any](xs []T) []any {
	out := make([]any, len(xs))
	for i, v := range xs {
		out[i] = v
	}
	return out
}
