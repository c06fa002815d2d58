package inventory

import (
	"strings"

	"github.com/mmynk/pharmasupps/internal/models"
	"github.com/mmynk/pharmasupps/internal/storage"
)

// Document field names for supplements and categories.
const (
	fieldName        = "name"
	fieldDescription = "description"
	fieldPrice       = "price"
	fieldQuantity    = "quantity"
	fieldBarcode     = "barcode"
	fieldCategory    = "category"
	fieldImage       = "image"
	fieldCreatedAt   = "createdAt"
	fieldUpdatedAt   = "updatedAt"
)

func supplementFromDoc(doc storage.Document) models.Supplement {
	f := doc.Fields
	return models.Supplement{
		ID:          doc.ID,
		Name:        f.String(fieldName),
		Description: f.String(fieldDescription),
		Price:       f.Int(fieldPrice),
		Quantity:    f.Int(fieldQuantity),
		Barcode:     f.String(fieldBarcode),
		Category:    f.String(fieldCategory),
		Image:       f.OptionalString(fieldImage),
		CreatedAt:   f.Int(fieldCreatedAt),
		UpdatedAt:   f.Int(fieldUpdatedAt),
	}
}

// supplementFields returns the full field set written on create and update.
func supplementFields(s models.Supplement) storage.Fields {
	fields := storage.Fields{
		fieldName:        s.Name,
		fieldDescription: s.Description,
		fieldPrice:       s.Price,
		fieldQuantity:    s.Quantity,
		fieldBarcode:     s.Barcode,
		fieldCategory:    s.Category,
		fieldImage:       nil,
		fieldUpdatedAt:   s.UpdatedAt,
	}
	if s.Image != nil {
		fields[fieldImage] = *s.Image
	}
	if s.CreatedAt != 0 {
		fields[fieldCreatedAt] = s.CreatedAt
	}
	return fields
}

func categoryFromDoc(doc storage.Document) models.Category {
	return models.Category{ID: doc.ID, Name: doc.Fields.String(fieldName)}
}

// matches is the catalog filter predicate: the term matches the name
// case-insensitively or the barcode as-is, and category must be equal unless
// it is the "All" sentinel.
func matches(s models.Supplement, term, category string) bool {
	if category != models.AllCategories && s.Category != category {
		return false
	}
	return strings.Contains(strings.ToLower(s.Name), strings.ToLower(term)) ||
		strings.Contains(s.Barcode, term)
}

// derivedCategories lists distinct non-empty categories in order of first appearance.
func derivedCategories(items []models.Supplement) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range items {
		if s.Category == "" || seen[s.Category] {
			continue
		}
		seen[s.Category] = true
		out = append(out, s.Category)
	}
	return out
}

func cloneSupplements(items []models.Supplement) []models.Supplement {
	out := make([]models.Supplement, len(items))
	for i, s := range items {
		out[i] = s.Clone()
	}
	return out
}
