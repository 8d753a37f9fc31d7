package viewstate

import (
	"sync"
	"testing"

	"github.com/dukerupert/grocerylist/internal/model"
	"github.com/dukerupert/grocerylist/internal/websocket"
	"github.com/stretchr/testify/require"
)

func ids(items []model.GroceryItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestApplyNewGoesToFront(t *testing.T) {
	m := NewMirror([]model.GroceryItem{{ID: "2", Name: "B"}, {ID: "1", Name: "A"}})

	m.Apply(model.GroceryItem{ID: "3", Name: "C"})

	require.Equal(t, []string{"3", "2", "1"}, ids(m.Items()))
}

func TestApplyReplacesInPlace(t *testing.T) {
	m := NewMirror([]model.GroceryItem{{ID: "2", Name: "B"}, {ID: "1", Name: "A", Quantity: 1}})

	m.Apply(model.GroceryItem{ID: "1", Name: "A", Quantity: 4, Completed: true})

	items := m.Items()
	require.Equal(t, []string{"2", "1"}, ids(items))
	require.Equal(t, 4, items[1].Quantity)
	require.True(t, items[1].Completed)
}

func TestRemove(t *testing.T) {
	m := NewMirror([]model.GroceryItem{{ID: "3"}, {ID: "2"}, {ID: "1"}})

	m.Remove("2")
	require.Equal(t, []string{"3", "1"}, ids(m.Items()))

	m.Remove("missing")
	require.Equal(t, 2, m.Len())
}

func TestReplaceCopiesInput(t *testing.T) {
	in := []model.GroceryItem{{ID: "1", Name: "A"}}
	m := NewMirror(in)

	in[0].Name = "changed"
	require.Equal(t, "A", m.Items()[0].Name)

	out := m.Items()
	out[0].Name = "changed"
	require.Equal(t, "A", m.Items()[0].Name)
}

func TestPendingCompletedRemaining(t *testing.T) {
	m := NewMirror([]model.GroceryItem{
		{ID: "3", Completed: true},
		{ID: "2"},
		{ID: "1"},
	})

	require.Equal(t, []string{"2", "1"}, ids(m.Pending()))
	require.Equal(t, []string{"3"}, ids(m.Completed()))
	require.Equal(t, 2, m.Remaining())
}

func TestSummary(t *testing.T) {
	m := NewMirror(nil)
	require.Equal(t, "Add your first item below", m.Summary())

	m.Apply(model.GroceryItem{ID: "1"})
	m.Apply(model.GroceryItem{ID: "2", Completed: true})
	require.Equal(t, "1 items remaining", m.Summary())
}

func TestFooter(t *testing.T) {
	m := NewMirror(nil)
	require.Empty(t, m.Footer())

	m.Apply(model.GroceryItem{ID: "1"})
	m.Apply(model.GroceryItem{ID: "2", Completed: true})
	m.Apply(model.GroceryItem{ID: "3", Completed: true})
	require.Equal(t, "Total: 3 items • Completed: 2", m.Footer())
}

func TestApplyEvent(t *testing.T) {
	m := NewMirror(nil)

	m.ApplyEvent(websocket.NewSnapshot([]model.GroceryItem{{ID: "2", Name: "B"}, {ID: "1", Name: "A"}}))
	require.Equal(t, []string{"2", "1"}, ids(m.Items()))

	c := &model.GroceryItem{ID: "3", Name: "C"}
	m.ApplyEvent(websocket.NewMessage(websocket.ActionCreated, c.ID, c))
	require.Equal(t, []string{"3", "2", "1"}, ids(m.Items()))

	toggled := &model.GroceryItem{ID: "1", Name: "A", Completed: true}
	m.ApplyEvent(websocket.NewMessage(websocket.ActionToggled, toggled.ID, toggled))
	require.Equal(t, 1, len(m.Completed()))

	m.ApplyEvent(websocket.NewMessage(websocket.ActionDeleted, "2", nil))
	require.Equal(t, []string{"3", "1"}, ids(m.Items()))

	// A mutation without a record is ignored.
	m.ApplyEvent(websocket.NewMessage(websocket.ActionUpdated, "3", nil))
	require.Equal(t, 2, m.Len())

	m.ApplyEvent(websocket.NewMessage(websocket.ActionCleared, "", nil))
	require.Equal(t, 0, m.Len())
}

func TestSections(t *testing.T) {
	m := NewMirror([]model.GroceryItem{
		{ID: "4", Name: "Cheddar cheese"},
		{ID: "3", Name: "Widget"},
		{ID: "2", Name: "Bananas"},
		{ID: "1", Name: "Milk"},
	})

	sections := m.Sections()
	require.Len(t, sections, 3)
	require.Equal(t, "Produce", sections[0].Name)
	require.Equal(t, "Dairy", sections[1].Name)
	require.Equal(t, []string{"4", "1"}, ids(sections[1].Items))
	require.Equal(t, "Other", sections[2].Name)
}

func TestConcurrentApply(t *testing.T) {
	m := NewMirror(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			m.Apply(model.GroceryItem{ID: id})
			_ = m.Summary()
			m.Remove(id)
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, m.Len(), 26)
}
