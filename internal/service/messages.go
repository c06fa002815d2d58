package service

import (
	"time"

	"github.com/mmynk/pharmasupps/internal/inventory"
	"github.com/mmynk/pharmasupps/internal/models"
	"github.com/mmynk/pharmasupps/internal/notify"
)

// Supplement is the wire form of a catalog item.
type Supplement struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       int64   `json:"price"`
	PriceText   string  `json:"priceText"`
	Quantity    int64   `json:"quantity"`
	InStock     bool    `json:"inStock"`
	Barcode     string  `json:"barcode"`
	Category    string  `json:"category"`
	Image       *string `json:"image"`
	CreatedAt   int64   `json:"createdAt"`
	UpdatedAt   int64   `json:"updatedAt"`
}

// Category is the wire form of a managed category record.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Notification is the wire form of an operator message.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ImageUpload carries a selected file. Data is base64 in JSON.
type ImageUpload struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data []byte `json:"data"`
}

// SupplementDraft is the form input for create and update. Price and
// Quantity are raw text.
type SupplementDraft struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Price       string       `json:"price"`
	Quantity    string       `json:"quantity"`
	Barcode     string       `json:"barcode"`
	Category    string       `json:"category"`
	Image       *ImageUpload `json:"image,omitempty"`

	// KeepImage preserves the stored image on update when Image is nil.
	// Otherwise the stored image is cleared.
	KeepImage bool `json:"keepImage"`
}

type SnapshotRequest struct{}

type SnapshotResponse struct {
	Supplements   []Supplement   `json:"supplements"`
	Visible       []Supplement   `json:"visible"`
	Categories    []string       `json:"categories"`
	SearchTerm    string         `json:"searchTerm"`
	Category      string         `json:"category"`
	State         string         `json:"state"`
	Email         string         `json:"email,omitempty"`
	Notifications []Notification `json:"notifications"`
	Loaded        bool           `json:"loaded"`
}

type ListSupplementsRequest struct{}

type ListSupplementsResponse struct {
	Supplements []Supplement `json:"supplements"`
}

type FilterRequest struct {
	SearchTerm string `json:"searchTerm"`
	Category   string `json:"category"`
}

type FilterResponse struct {
	Supplements []Supplement `json:"supplements"`
}

type CreateSupplementRequest struct {
	Draft SupplementDraft `json:"draft"`
}

type CreateSupplementResponse struct {
	Supplement Supplement `json:"supplement"`
}

type UpdateSupplementRequest struct {
	ID    string          `json:"id"`
	Draft SupplementDraft `json:"draft"`
}

type UpdateSupplementResponse struct {
	Supplement Supplement `json:"supplement"`
}

type DeleteSupplementRequest struct {
	ID        string `json:"id"`
	Confirmed bool   `json:"confirmed"`
}

type DeleteSupplementResponse struct{}

type ListCategoriesRequest struct{}

type ListCategoriesResponse struct {
	Categories []string   `json:"categories"`
	Records    []Category `json:"records"`
	Mode       string     `json:"mode"`
}

type AddCategoryRequest struct {
	Name string `json:"name"`
}

type AddCategoryResponse struct {
	Category Category `json:"category"`
}

type DeleteCategoryRequest struct {
	Name      string `json:"name"`
	Confirmed bool   `json:"confirmed"`
}

type DeleteCategoryResponse struct{}

type ReloadRequest struct{}

type ReloadResponse struct {
	Count int `json:"count"`
}

type CartLine struct {
	Supplement   Supplement `json:"supplement"`
	Quantity     int64      `json:"quantity"`
	Subtotal     int64      `json:"subtotal"`
	SubtotalText string     `json:"subtotalText"`
}

type GetCartRequest struct{}

type AddToCartRequest struct {
	ID string `json:"id"`
}

type SetCartQuantityRequest struct {
	ID       string `json:"id"`
	Quantity int64  `json:"quantity"`
}

type RemoveFromCartRequest struct {
	ID string `json:"id"`
}

type CartResponse struct {
	Lines     []CartLine `json:"lines"`
	Total     int64      `json:"total"`
	TotalText string     `json:"totalText"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Email     string    `json:"email"`
	State     string    `json:"state"`
}

type LogoutRequest struct{}

type LogoutResponse struct{}

type SessionRequest struct{}

type SessionResponse struct {
	State     string     `json:"state"`
	Email     string     `json:"email,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func toSupplement(s models.Supplement) Supplement {
	return Supplement{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Price:       s.Price,
		PriceText:   inventory.FormatPrice(s.Price),
		Quantity:    s.Quantity,
		InStock:     s.InStock(),
		Barcode:     s.Barcode,
		Category:    s.Category,
		Image:       s.Image,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func toSupplements(items []models.Supplement) []Supplement {
	out := make([]Supplement, len(items))
	for i, s := range items {
		out[i] = toSupplement(s)
	}
	return out
}

func toNotifications(items []notify.Notification) []Notification {
	out := make([]Notification, len(items))
	for i, n := range items {
		out[i] = Notification{ID: n.ID, Message: n.Message, Kind: string(n.Kind), ExpiresAt: n.Expiry}
	}
	return out
}
