package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dukerupert/grocerylist/internal/database"
	"github.com/dukerupert/grocerylist/internal/model"
)

func setupGroceryTestDB(t *testing.T) (*GroceryStore, *database.Conn) {
	t.Helper()
	conn := database.New(":memory:", nil)
	gs := NewGroceryStore(conn, nil)
	if err := gs.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return gs, conn
}

func findItem(items []model.GroceryItem, id string) *model.GroceryItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}

func TestInitializeTwice(t *testing.T) {
	ctx := context.Background()
	gs, conn := setupGroceryTestDB(t)

	if _, err := gs.Add(ctx, "Milk", 2, "2%"); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := gs.Initialize(ctx); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	// A fresh store on the same connection runs the schema again.
	if err := NewGroceryStore(conn, nil).Initialize(ctx); err != nil {
		t.Fatalf("initialize on open conn: %v", err)
	}

	items := gs.List(ctx)
	if len(items) != 1 {
		t.Fatalf("expected 1 item after re-initialize, got %d", len(items))
	}
}

func TestInitializeConcurrent(t *testing.T) {
	conn := database.New(filepath.Join(t.TempDir(), "grocery_list.db"), nil)
	t.Cleanup(func() { conn.Close() })
	gs := NewGroceryStore(conn, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = gs.Initialize(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("initialize[%d]: %v", i, err)
		}
	}
}

func TestInitializeStorageUnavailable(t *testing.T) {
	conn := database.New(filepath.Join(t.TempDir(), "nope", "grocery_list.db"), nil)
	gs := NewGroceryStore(conn, nil)

	err := gs.Initialize(context.Background())
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}

	if _, err := gs.Add(context.Background(), "Milk", 1, ""); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("add: expected ErrStorageUnavailable, got %v", err)
	}
}

func TestLazyInitialize(t *testing.T) {
	conn := database.New(":memory:", nil)
	t.Cleanup(func() { conn.Close() })
	gs := NewGroceryStore(conn, nil)

	item, err := gs.Add(context.Background(), "Bread", 1, "")
	if err != nil {
		t.Fatalf("add without initialize: %v", err)
	}
	if item.Name != "Bread" {
		t.Errorf("name = %q, want %q", item.Name, "Bread")
	}
}

func TestAddRoundTrip(t *testing.T) {
	ctx := context.Background()
	gs, _ := setupGroceryTestDB(t)

	item, err := gs.Add(ctx, "Milk", 2, "2%")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if item.ID == "" {
		t.Fatal("expected engine-assigned id")
	}

	got := findItem(gs.List(ctx), item.ID)
	if got == nil {
		t.Fatalf("item %s missing from list", item.ID)
	}
	if got.Name != "Milk" {
		t.Errorf("name = %q, want %q", got.Name, "Milk")
	}
	if got.Quantity != 2 {
		t.Errorf("quantity = %d, want 2", got.Quantity)
	}
	if got.Notes != "2%" {
		t.Errorf("notes = %q, want %q", got.Notes, "2%")
	}
	if got.Completed {
		t.Error("expected completed = false")
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestAddTrimsAndDefaults(t *testing.T) {
	ctx := context.Background()
	gs, _ := setupGroceryTestDB(t)

	item, err := gs.Add(ctx, "  Apples \t", 0, "  green ones  ")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if item.Name != "Apples" {
		t.Errorf("name = %q, want %q", item.Name, "Apples")
	}
	if item.Notes != "green ones" {
		t.Errorf("notes = %q, want %q", item.Notes, "green ones")
	}
	if item.Quantity != 1 {
		t.Errorf("quantity = %d, want default 1", item.Quantity)
	}
}

func TestAddBlankName(t *testing.T) {
	gs, _ := setupGroceryTestDB(t)

	if _, err := gs.Add(context.Background(), "   ", 1, ""); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	if n := len(gs.List(context.Background())); n != 0 {
		t.Errorf("expected no rows, got %d", n)
	}
}

func TestToggleInvolution(t *testing.T) {
	ctx := context.Background()
	gs, _ := setupGroceryTestDB(t)

	item, _ := gs.Add(ctx, "Eggs", 12, "")

	first, err := gs.ToggleCompletion(ctx, item.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !first.Completed {
		t.Error("expected completed = true after first toggle")
	}

	second, err := gs.ToggleCompletion(ctx, item.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if second.Completed != item.Completed {
		t.Errorf("completed = %v after two toggles, want %v", second.Completed, item.Completed)
	}
	if second.Name != "Eggs" || second.Quantity != 12 {
		t.Errorf("toggle changed other fields: %+v", second)
	}
}

func TestUpdateIsolation(t *testing.T) {
	ctx := context.Background()
	gs, _ := setupGroceryTestDB(t)

	item, _ := gs.Add(ctx, "Butter", 1, "salted")
	if _, err := gs.ToggleCompletion(ctx, item.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	updated, err := gs.Update(ctx, item.ID, 5, "  new note ")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated == nil {
		t.Fatal("expected updated item")
	}
	if updated.Quantity != 5 {
		t.Errorf("quantity = %d, want 5", updated.Quantity)
	}
	if updated.Notes != "new note" {
		t.Errorf("notes = %q, want %q", updated.Notes, "new note")
	}
	if updated.Name != "Butter" {
		t.Errorf("name = %q, want %q", updated.Name, "Butter")
	}
	if !updated.Completed {
		t.Error("update must not reset completed")
	}
}

func TestUpdateStoresQuantityAsGiven(t *testing.T) {
	ctx := context.Background()
	gs, _ := setupGroceryTestDB(t)

	item, _ := gs.Add(ctx, "Limes", 3, "")
	updated, err := gs.Update(ctx, item.ID, 0, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Quantity != 0 {
		t.Errorf("quantity = %d, want 0 (store does not coerce)", updated.Quantity)
	}
}

func TestDeleteThenList(t *testing.T) {
	ctx := context.Background()
	gs, _ := setupGroceryTestDB(t)

	item, _ := gs.Add(ctx, "Cheese", 1, "")

	ok, err := gs.Delete(ctx, item.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !ok {
		t.Error("expected delete to report true")
	}
	if findItem(gs.List(ctx), item.ID) != nil {
		t.Error("deleted item still listed")
	}

	ok, err = gs.Delete(ctx, item.ID)
	if err != nil {
		t.Fatalf("delete again: %v", err)
	}
	if !ok {
		t.Error("expected delete of missing id to report true")
	}
}

func TestListOrdering(t *testing.T) {
	ctx := context.Background()
	gs, _ := setupGroceryTestDB(t)

	for _, name := range []string{"A", "B", "C"} {
		if _, err := gs.Add(ctx, name, 1, ""); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}

	items := gs.List(ctx)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	want := []string{"C", "B", "A"}
	for i, name := range want {
		if items[i].Name != name {
			t.Errorf("items[%d].Name = %q, want %q", i, items[i].Name, name)
		}
	}
}

func TestListOrderingByTimestamp(t *testing.T) {
	ctx := context.Background()
	gs, conn := setupGroceryTestDB(t)

	older, _ := gs.Add(ctx, "Older", 1, "")
	newer, _ := gs.Add(ctx, "Newer", 1, "")

	// Push the second row into the past; created_at wins over id.
	if _, err := conn.Run(ctx, `UPDATE grocery_items SET created_at = '2000-01-01 00:00:00' WHERE id = ?`, newer.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	items := gs.List(ctx)
	if len(items) != 2 || items[0].ID != older.ID {
		t.Fatalf("expected %s first, got %+v", older.ID, items)
	}
}

func TestUnknownID(t *testing.T) {
	ctx := context.Background()
	gs, _ := setupGroceryTestDB(t)

	toggled, err := gs.ToggleCompletion(ctx, "999999")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if toggled != nil {
		t.Error("expected nil for unknown id")
	}

	updated, err := gs.Update(ctx, "999999", 1, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated != nil {
		t.Error("expected nil for unknown id")
	}
}

func TestNonNumericID(t *testing.T) {
	ctx := context.Background()
	gs, _ := setupGroceryTestDB(t)
	gs.Add(ctx, "Rice", 1, "")

	for _, id := range []string{"abc", "", "1.5", "NaN"} {
		toggled, err := gs.ToggleCompletion(ctx, id)
		if err != nil || toggled != nil {
			t.Errorf("toggle(%q) = %v, %v; want nil, nil", id, toggled, err)
		}
		updated, err := gs.Update(ctx, id, 2, "x")
		if err != nil || updated != nil {
			t.Errorf("update(%q) = %v, %v; want nil, nil", id, updated, err)
		}
		ok, err := gs.Delete(ctx, id)
		if err != nil || !ok {
			t.Errorf("delete(%q) = %v, %v; want true, nil", id, ok, err)
		}
		got, err := gs.Get(ctx, id)
		if err != nil || got != nil {
			t.Errorf("get(%q) = %v, %v; want nil, nil", id, got, err)
		}
	}

	if n := len(gs.List(ctx)); n != 1 {
		t.Errorf("expected 1 item untouched, got %d", n)
	}
}

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"7", "7", true},
		{"007", "7", true},
		{" 12 ", "12", true},
		{"+3", "3", true},
		{"abc", "", false},
		{"", "", false},
		{"1.5", "", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CanonicalID(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	gs, _ := setupGroceryTestDB(t)

	gs.Add(ctx, "One", 1, "")
	gs.Add(ctx, "Two", 1, "")

	if err := gs.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if n := len(gs.List(ctx)); n != 0 {
		t.Errorf("expected empty list, got %d", n)
	}
}

func TestListDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	gs, conn := setupGroceryTestDB(t)
	gs.Add(ctx, "Milk", 1, "")

	conn.Close()

	items := gs.List(ctx)
	if items == nil {
		t.Fatal("expected empty, non-nil slice")
	}
	if len(items) != 0 {
		t.Errorf("expected 0 items, got %d", len(items))
	}

	if _, err := gs.ListItems(ctx); err == nil {
		t.Error("ListItems should surface the failure")
	}
}

func TestWriteFailedPropagates(t *testing.T) {
	ctx := context.Background()
	gs, conn := setupGroceryTestDB(t)
	item, _ := gs.Add(ctx, "Milk", 1, "")

	conn.Close()

	if _, err := gs.Add(ctx, "Bread", 1, ""); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("add: expected ErrWriteFailed, got %v", err)
	}
	if _, err := gs.ToggleCompletion(ctx, item.ID); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("toggle: expected ErrWriteFailed, got %v", err)
	}
	if _, err := gs.Update(ctx, item.ID, 2, ""); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("update: expected ErrWriteFailed, got %v", err)
	}
	if ok, err := gs.Delete(ctx, item.ID); !errors.Is(err, ErrWriteFailed) || ok {
		t.Errorf("delete: expected false, ErrWriteFailed; got %v, %v", ok, err)
	}
	if err := gs.ClearAll(ctx); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("clear all: expected ErrWriteFailed, got %v", err)
	}
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	gs, _ := setupGroceryTestDB(t)

	item, _ := gs.Add(ctx, "Tea", 1, "")
	got, err := gs.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != "Tea" {
		t.Errorf("got %+v, want Tea", got)
	}

	missing, err := gs.Get(ctx, "424242")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing id")
	}
}
