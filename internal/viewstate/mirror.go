// Package viewstate holds the presentation layer's in-memory copy of the
// grocery list. The copy is kept in step with storage by reapplying the
// record returned from every mutation, never by re-querying.
package viewstate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dukerupert/grocerylist/internal/grocery"
	"github.com/dukerupert/grocerylist/internal/model"
	"github.com/dukerupert/grocerylist/internal/websocket"
)

// Mirror is a newest-first copy of the item set. It is safe for concurrent
// use.
type Mirror struct {
	mu    sync.RWMutex
	items []model.GroceryItem
}

// Section is a group of items that share a store section.
type Section struct {
	Name  string              `json:"name"`
	Items []model.GroceryItem `json:"items"`
}

func NewMirror(items []model.GroceryItem) *Mirror {
	m := &Mirror{}
	m.Replace(items)
	return m
}

// Replace discards the current contents and takes a copy of items, which
// must already be newest first.
func (m *Mirror) Replace(items []model.GroceryItem) {
	cp := make([]model.GroceryItem, len(items))
	copy(cp, items)

	m.mu.Lock()
	m.items = cp
	m.mu.Unlock()
}

// Apply upserts a returned record. A known id is replaced in place; an
// unknown id is a new item and goes to the front.
func (m *Mirror) Apply(item model.GroceryItem) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.items {
		if m.items[i].ID == item.ID {
			m.items[i] = item
			return
		}
	}
	m.items = append([]model.GroceryItem{item}, m.items...)
}

// Remove drops the item with the given id, if present.
func (m *Mirror) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.items {
		if m.items[i].ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return
		}
	}
}

// Clear empties the mirror.
func (m *Mirror) Clear() {
	m.Replace(nil)
}

// ApplyEvent reapplies a change feed message.
func (m *Mirror) ApplyEvent(msg websocket.Message) {
	switch msg.Action {
	case websocket.ActionSnapshot:
		m.Replace(msg.Items)
	case websocket.ActionCreated, websocket.ActionUpdated, websocket.ActionToggled:
		if msg.Item != nil {
			m.Apply(*msg.Item)
		}
	case websocket.ActionDeleted:
		m.Remove(msg.ID)
	case websocket.ActionCleared:
		m.Clear()
	}
}

// Items returns a copy of every item, newest first.
func (m *Mirror) Items() []model.GroceryItem {
	return m.filter(func(model.GroceryItem) bool { return true })
}

// Pending returns items not yet completed.
func (m *Mirror) Pending() []model.GroceryItem {
	return m.filter(func(it model.GroceryItem) bool { return !it.Completed })
}

// Completed returns items marked completed.
func (m *Mirror) Completed() []model.GroceryItem {
	return m.filter(func(it model.GroceryItem) bool { return it.Completed })
}

func (m *Mirror) filter(keep func(model.GroceryItem) bool) []model.GroceryItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.GroceryItem, 0, len(m.items))
	for _, it := range m.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// Len returns the number of items.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Remaining returns the number of items not yet completed.
func (m *Mirror) Remaining() int {
	return len(m.Pending())
}

// Summary is the one-line status shown above the list.
func (m *Mirror) Summary() string {
	if m.Len() == 0 {
		return "Add your first item below"
	}
	return fmt.Sprintf("%d items remaining", m.Remaining())
}

// Footer is the totals line shown below a non-empty list.
func (m *Mirror) Footer() string {
	total := m.Len()
	if total == 0 {
		return ""
	}
	return fmt.Sprintf("Total: %d items • Completed: %d", total, len(m.Completed()))
}

// Sections groups items by store section in walking order. Within a section
// items keep their newest-first order. Empty sections are omitted.
func (m *Mirror) Sections() []Section {
	groups := make(map[string][]model.GroceryItem)
	for _, it := range m.Items() {
		name := grocery.Section(it.Name)
		groups[name] = append(groups[name], it)
	}

	out := make([]Section, 0, len(groups))
	for name, items := range groups {
		out = append(out, Section{Name: name, Items: items})
	}
	sort.Slice(out, func(i, j int) bool {
		return grocery.Rank(out[i].Name) < grocery.Rank(out[j].Name)
	})
	return out
}
