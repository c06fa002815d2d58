package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mmynk/pharmasupps/internal/imaging"
	"github.com/mmynk/pharmasupps/internal/models"
	"github.com/mmynk/pharmasupps/internal/notify"
)

// ImageKind tags the state of a draft's image.
type ImageKind int

const (
	NoImage ImageKind = iota
	ExistingPayload
	PendingFile
)

// ImageField is the image of a draft. It is resolved to a final payload
// exactly once, when the draft is submitted.
type ImageField struct {
	Kind ImageKind

	// Payload is the stored data URI when Kind is ExistingPayload.
	Payload string

	// File is the selected upload when Kind is PendingFile.
	File imaging.File

	// Preview is a display source for the selection. It is not what gets stored.
	Preview string
}

// KeepImage stages an already stored payload.
func KeepImage(payload string) ImageField {
	return ImageField{Kind: ExistingPayload, Payload: payload, Preview: payload}
}

// AttachFile stages a newly selected file.
func AttachFile(f imaging.File) ImageField {
	return ImageField{Kind: PendingFile, File: f, Preview: imaging.Preview(f)}
}

// Draft is the unvalidated staging copy of a supplement. Price and Quantity
// hold raw user input.
type Draft struct {
	Name        string
	Description string
	Price       string
	Quantity    string
	Barcode     string
	Category    string
	Image       ImageField
}

// DraftFrom pre-fills a draft for editing s.
func DraftFrom(s models.Supplement) Draft {
	d := Draft{
		Name:        s.Name,
		Description: s.Description,
		Price:       strconv.FormatInt(s.Price, 10),
		Quantity:    strconv.FormatInt(s.Quantity, 10),
		Barcode:     s.Barcode,
		Category:    s.Category,
	}
	if s.Image != nil {
		d.Image = KeepImage(*s.Image)
	}
	return d
}

// missing returns the required fields left blank, in form order. A price
// without digits counts as blank.
func (d Draft) missing() []string {
	var fields []string
	if strings.TrimSpace(d.Name) == "" {
		fields = append(fields, fieldName)
	}
	if digitsOnly(d.Price) == "" {
		fields = append(fields, fieldPrice)
	}
	if strings.TrimSpace(d.Barcode) == "" {
		fields = append(fields, fieldBarcode)
	}
	return fields
}

// checkAmounts rejects a price or quantity too large to store.
func (d Draft) checkAmounts() error {
	for _, f := range []struct{ name, raw string }{{fieldPrice, d.Price}, {fieldQuantity, d.Quantity}} {
		if _, ok := parseAmount(f.raw); !ok {
			return fmt.Errorf("%s: %w", f.name, ErrAmountTooLarge)
		}
	}
	return nil
}

// ErrFormClosed is returned by Form operations when no draft is open.
var ErrFormClosed = errors.New("form is not open")

// Form stages one create or edit draft at a time.
type Form struct {
	c *Controller

	mu      sync.Mutex
	open    bool
	editing string
	draft   Draft
}

// NewForm returns a closed form bound to c.
func NewForm(c *Controller) *Form {
	return &Form{c: c}
}

// OpenCreate starts an empty draft with the registry's default category.
func (f *Form) OpenCreate() error {
	if err := f.c.gate.RequireAdmin(); err != nil {
		return f.c.refuse("form.open", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	f.editing = ""
	f.draft = Draft{Category: f.c.defaultCategory()}
	return nil
}

// OpenEdit starts a draft pre-filled from the supplement with the given ID.
func (f *Form) OpenEdit(id string) error {
	if err := f.c.gate.RequireAdmin(); err != nil {
		return f.c.refuse("form.open", err)
	}
	s, ok := f.c.Supplement(id)
	if !ok {
		return ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	f.editing = id
	f.draft = DraftFrom(s)
	return nil
}

// Change applies fn to the open draft. Price and quantity keep digits only.
func (f *Form) Change(fn func(d *Draft)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return ErrFormClosed
	}
	fn(&f.draft)
	f.draft.Price = digitsOnly(f.draft.Price)
	f.draft.Quantity = digitsOnly(f.draft.Quantity)
	return nil
}

// AttachImage checks the selection immediately. A rejected file leaves the
// current image untouched.
func (f *Form) AttachImage(file imaging.File) error {
	if err := imaging.Check(file); err != nil {
		switch {
		case errors.Is(err, imaging.ErrUnsupportedMedia):
			f.c.notifier.Notify(notify.Error, "Please upload an image file")
		case errors.Is(err, imaging.ErrPayloadTooLarge):
			f.c.notifier.Notify(notify.Error, "Image must be smaller than 5MB")
		}
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return ErrFormClosed
	}
	f.draft.Image = AttachFile(file)
	return nil
}

// ClearImage removes the draft's image. Submitting clears the stored image too.
func (f *Form) ClearImage() error {
	return f.Change(func(d *Draft) { d.Image = ImageField{} })
}

// Cancel discards the draft.
func (f *Form) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
}

// Draft returns a copy of the open draft.
func (f *Form) Draft() (Draft, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft, f.open
}

// Editing returns the ID of the supplement being edited, "" for a create.
func (f *Form) Editing() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.editing
}

// Submit creates or updates depending on how the form was opened. The form
// closes on success and keeps the draft on failure.
func (f *Form) Submit(ctx context.Context) (models.Supplement, error) {
	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return models.Supplement{}, ErrFormClosed
	}
	draft, editing := f.draft, f.editing
	f.mu.Unlock()

	var (
		saved models.Supplement
		err   error
	)
	if editing == "" {
		saved, err = f.c.Create(ctx, draft)
	} else {
		saved, err = f.c.Update(ctx, editing, draft)
	}
	if err != nil {
		return models.Supplement{}, err
	}

	f.mu.Lock()
	f.reset()
	f.mu.Unlock()
	return saved, nil
}

func (f *Form) reset() {
	f.open = false
	f.editing = ""
	f.draft = Draft{}
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
