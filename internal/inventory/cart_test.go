package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/mmynk/pharmasupps/internal/storage"
)

func TestCart(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(supplementsDB, "a", storage.Fields{"name": "Zinc", "barcode": "1", "price": int64(1500), "quantity": int64(2)})
	f.store.Seed(supplementsDB, "b", storage.Fields{"name": "Iron", "barcode": "2", "price": int64(4000), "quantity": int64(0)})
	f.store.Seed(supplementsDB, "c", storage.Fields{"name": "Omega", "barcode": "3", "price": int64(9000), "quantity": int64(10)})
	if err := f.ctrl.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	cart := NewCart(f.ctrl)

	t.Run("out of stock cannot be added", func(t *testing.T) {
		if err := cart.Add("b"); !errors.Is(err, ErrOutOfStock) {
			t.Errorf("expected ErrOutOfStock, got %v", err)
		}
		if err := cart.Add("zzz"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("quantity is capped at stock", func(t *testing.T) {
		cart.Add("a")
		cart.Add("a")
		if err := cart.Add("a"); !errors.Is(err, ErrOutOfStock) {
			t.Errorf("expected ErrOutOfStock, got %v", err)
		}
		cart.Add("c")
		if err := cart.SetQuantity("c", 50); err != nil {
			t.Fatal(err)
		}

		lines := cart.Lines()
		if len(lines) != 2 || lines[0].Quantity != 2 || lines[1].Quantity != 10 {
			t.Errorf("unexpected lines %+v", lines)
		}
		if got := cart.Total(); got != 2*1500+10*9000 {
			t.Errorf("unexpected total %d", got)
		}
	})

	t.Run("zero quantity removes the line", func(t *testing.T) {
		cart.SetQuantity("c", 0)
		if len(cart.Lines()) != 1 {
			t.Errorf("expected 1 line, got %d", len(cart.Lines()))
		}
		cart.Remove("a")
		if cart.Total() != 0 {
			t.Error("expected empty cart")
		}
	})
}
