package inventory

import (
	"fmt"
	"slices"
	"sync"

	"github.com/mmynk/pharmasupps/internal/models"
)

// CartLine is one supplement in the cart.
type CartLine struct {
	Supplement models.Supplement
	Quantity   int64
}

// Subtotal is price times quantity.
func (l CartLine) Subtotal() int64 {
	return l.Supplement.Price * l.Quantity
}

// Cart collects supplements for checkout. Quantities are capped at the
// stock currently in the catalog.
type Cart struct {
	catalog *Controller

	mu    sync.Mutex
	order []string
	qty   map[string]int64
}

// NewCart creates an empty cart reading stock from catalog.
func NewCart(catalog *Controller) *Cart {
	return &Cart{catalog: catalog, qty: make(map[string]int64)}
}

// Add puts one more unit of the supplement in the cart.
func (c *Cart) Add(id string) error {
	s, ok := c.catalog.Supplement(id)
	if !ok {
		return fmt.Errorf("supplement %s: %w", id, ErrNotFound)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.qty[id]+1 > s.Quantity {
		return fmt.Errorf("%s: %w", s.Name, ErrOutOfStock)
	}
	if _, ok := c.qty[id]; !ok {
		c.order = append(c.order, id)
	}
	c.qty[id]++
	return nil
}

// SetQuantity sets the units of a supplement already in the cart, clamped to
// stock. Zero or less removes the line.
func (c *Cart) SetQuantity(id string, n int64) error {
	s, ok := c.catalog.Supplement(id)
	if !ok {
		c.Remove(id)
		return fmt.Errorf("supplement %s: %w", id, ErrNotFound)
	}
	if n > s.Quantity {
		n = s.Quantity
	}
	if n <= 0 {
		c.Remove(id)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.qty[id]; !ok {
		return fmt.Errorf("supplement %s not in cart: %w", id, ErrNotFound)
	}
	c.qty[id] = n
	return nil
}

// Remove drops the line for id.
func (c *Cart) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.qty, id)
	c.order = slices.DeleteFunc(c.order, func(existing string) bool { return existing == id })
}

// Lines returns the cart against the current catalog. Lines whose supplement
// was deleted are dropped and quantities are clamped to current stock.
func (c *Cart) Lines() []CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]CartLine, 0, len(c.order))
	for _, id := range c.order {
		s, ok := c.catalog.Supplement(id)
		if !ok || s.Quantity == 0 {
			continue
		}
		lines = append(lines, CartLine{Supplement: s, Quantity: min(c.qty[id], s.Quantity)})
	}
	return lines
}

// Total sums the line subtotals.
func (c *Cart) Total() int64 {
	var total int64
	for _, line := range c.Lines() {
		total += line.Subtotal()
	}
	return total
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.qty = make(map[string]int64)
}
