package models

const (
	// DefaultCategory is assigned when a category is unset or deleted.
	DefaultCategory = "General"

	// AllCategories is the filter-only sentinel. It is never stored on a record.
	AllCategories = "All"
)

// Supplement represents a persisted catalog item.
type Supplement struct {
	// ID is assigned by the backend on create.
	ID string

	// Name is the display name (required).
	Name string

	// Description is optional free text.
	Description string

	// Price is the whole-unit price in IQD.
	Price int64

	// Quantity is the number of units in stock.
	// Zero means out of stock; the item stays listed and editable.
	Quantity int64

	// Barcode is unique across all supplements.
	Barcode string

	// Category is the category label, DefaultCategory when unset.
	Category string

	// Image is an inline data URI, or nil when the item has no image.
	Image *string

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// InStock reports whether at least one unit is available.
func (s Supplement) InStock() bool {
	return s.Quantity > 0
}

// Clone returns a copy that shares no pointers with s.
func (s Supplement) Clone() Supplement {
	if s.Image != nil {
		img := *s.Image
		s.Image = &img
	}
	return s
}
