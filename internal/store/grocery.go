package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/grocerylist/internal/database"
	"github.com/dukerupert/grocerylist/internal/model"
)

var (
	// ErrStorageUnavailable means the store could not be opened.
	ErrStorageUnavailable = database.ErrStorageUnavailable

	// ErrWriteFailed wraps any failed insert, update or delete.
	ErrWriteFailed = errors.New("write failed")

	// ErrNameRequired is returned by Add when the trimmed name is empty.
	ErrNameRequired = errors.New("name is required")
)

type GroceryStore struct {
	conn   *database.Conn
	logger *slog.Logger

	initMu sync.Mutex
	ready  atomic.Bool
}

func NewGroceryStore(conn *database.Conn, logger *slog.Logger) *GroceryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroceryStore{conn: conn, logger: logger}
}

// Initialize opens the connection and creates the schema. Concurrent and
// repeated calls are safe; only the first successful call does any work.
func (s *GroceryStore) Initialize(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.ready.Load() {
		return nil
	}

	if err := s.conn.Open(ctx); err != nil {
		s.logger.Error("open database", "name", s.conn.Name(), "error", err)
		return err
	}
	if err := s.conn.Migrate(ctx); err != nil {
		s.logger.Error("create schema", "error", err)
		return fmt.Errorf("initialize schema: %w", err)
	}

	s.ready.Store(true)
	s.logger.Info("database initialized", "name", s.conn.Name())
	return nil
}

const itemCols = `id, name, quantity, notes, completed, created_at`

// List returns every item, newest first. Failures are logged and reported
// as an empty list; use ListItems to observe the error.
func (s *GroceryStore) List(ctx context.Context) []model.GroceryItem {
	items, err := s.ListItems(ctx)
	if err != nil {
		s.logger.Error("list items", "error", err)
		return []model.GroceryItem{}
	}
	return items
}

// ListItems is List without the degrade-to-empty policy.
func (s *GroceryStore) ListItems(ctx context.Context) ([]model.GroceryItem, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, `SELECT `+itemCols+` FROM grocery_items ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	items := make([]model.GroceryItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, itemFromRow(row))
	}
	return items, nil
}

// Get returns the item with the given id, or nil if there is none.
func (s *GroceryStore) Get(ctx context.Context, id string) (*model.GroceryItem, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	rowID, ok := parseID(id)
	if !ok {
		return nil, nil
	}
	return s.getByID(ctx, rowID)
}

func (s *GroceryStore) getByID(ctx context.Context, id int64) (*model.GroceryItem, error) {
	row, found, err := s.conn.QueryOne(ctx, `SELECT `+itemCols+` FROM grocery_items WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if !found {
		return nil, nil
	}
	item := itemFromRow(row)
	return &item, nil
}

// Add inserts a new, uncompleted item. A zero quantity means the default.
func (s *GroceryStore) Add(ctx context.Context, name string, quantity int, notes string) (*model.GroceryItem, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	notes = strings.TrimSpace(notes)
	if name == "" {
		return nil, ErrNameRequired
	}
	if quantity == 0 {
		quantity = model.DefaultQuantity
	}

	res, err := s.conn.Run(ctx,
		`INSERT INTO grocery_items (name, quantity, notes, completed) VALUES (?, ?, ?, ?)`,
		name, quantity, notes, 0,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert item: %w", ErrWriteFailed, err)
	}

	item, err := s.getByID(ctx, res.InsertedID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: inserted item %d not found", ErrWriteFailed, res.InsertedID)
	}
	return item, nil
}

// ToggleCompletion flips the completed flag and returns the item's current
// state, or nil if no item has that id.
func (s *GroceryStore) ToggleCompletion(ctx context.Context, id string) (*model.GroceryItem, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	rowID, ok := parseID(id)
	if !ok {
		return nil, nil
	}

	if _, err := s.conn.Run(ctx, `UPDATE grocery_items SET completed = NOT completed WHERE id = ?`, rowID); err != nil {
		return nil, fmt.Errorf("%w: toggle item: %w", ErrWriteFailed, err)
	}
	return s.getByID(ctx, rowID)
}

// Update overwrites quantity and notes, leaving name and completed alone.
// It returns nil if no item has that id. Quantity is stored as given.
func (s *GroceryStore) Update(ctx context.Context, id string, quantity int, notes string) (*model.GroceryItem, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	rowID, ok := parseID(id)
	if !ok {
		return nil, nil
	}

	_, err := s.conn.Run(ctx,
		`UPDATE grocery_items SET quantity = ?, notes = ? WHERE id = ?`,
		quantity, strings.TrimSpace(notes), rowID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: update item: %w", ErrWriteFailed, err)
	}
	return s.getByID(ctx, rowID)
}

// Delete removes the item. It reports true whenever the statement completes,
// whether or not a row matched.
func (s *GroceryStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.Initialize(ctx); err != nil {
		return false, err
	}

	rowID, ok := parseID(id)
	if !ok {
		return true, nil
	}

	if _, err := s.conn.Run(ctx, `DELETE FROM grocery_items WHERE id = ?`, rowID); err != nil {
		return false, fmt.Errorf("%w: delete item: %w", ErrWriteFailed, err)
	}
	return true, nil
}

// ClearAll removes every item.
func (s *GroceryStore) ClearAll(ctx context.Context) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	res, err := s.conn.Run(ctx, `DELETE FROM grocery_items`)
	if err != nil {
		return fmt.Errorf("%w: clear items: %w", ErrWriteFailed, err)
	}
	s.logger.Info("cleared items", "count", res.RowsAffected)
	return nil
}

// CanonicalID returns the form of id that items carry, so "007" and " 7"
// both become "7". It reports false when id cannot match any row.
func CanonicalID(id string) (string, bool) {
	rowID, ok := parseID(id)
	if !ok {
		return "", false
	}
	return strconv.FormatInt(rowID, 10), true
}

// parseID converts a boundary id to a row id. Anything that is not a base-10
// integer matches no row.
func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func itemFromRow(row database.Row) model.GroceryItem {
	id, _ := asInt64(row["id"])
	qty, ok := asInt64(row["quantity"])
	if !ok {
		qty = model.DefaultQuantity
	}
	completed, _ := asInt64(row["completed"])

	return model.GroceryItem{
		ID:        strconv.FormatInt(id, 10),
		Name:      asString(row["name"]),
		Quantity:  int(qty),
		Notes:     asString(row["notes"]),
		Completed: completed != 0,
		CreatedAt: asTime(row["created_at"]),
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}
