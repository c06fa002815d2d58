// Package inventory owns the catalog, category registry and auth gate of the
// shop and exposes every mutation of that state. Writes go to the backend
// first; in-memory state changes only after the backend acknowledges.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmynk/pharmasupps/internal/auth"
	"github.com/mmynk/pharmasupps/internal/imaging"
	"github.com/mmynk/pharmasupps/internal/models"
	"github.com/mmynk/pharmasupps/internal/notify"
	"github.com/mmynk/pharmasupps/internal/storage"
)

// DefaultTimeout bounds every backend call and image compression.
const DefaultTimeout = 15 * time.Second

// CategoryMode selects where the category registry comes from.
type CategoryMode string

const (
	// Managed categories are persisted records edited by admins.
	Managed CategoryMode = "managed"
	// Derived categories are the distinct categories found on supplements.
	Derived CategoryMode = "derived"
)

// ImageProcessor turns a selected file into a storable payload.
type ImageProcessor interface {
	Process(ctx context.Context, f imaging.File) (string, error)
}

// Observer receives the outcome of every operation: "ok", "rejected" or "error".
type Observer interface {
	Observe(operation, outcome string, elapsed time.Duration)
}

// Confirmer answers the yes/no prompt shown before destructive operations.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool {
	return f(prompt)
}

// Confirmed returns a Confirmer that always answers ok.
func Confirmed(ok bool) Confirmer {
	return ConfirmFunc(func(string) bool { return ok })
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	Supplements   []models.Supplement
	Visible       []models.Supplement
	Categories    []string
	SearchTerm    string
	Category      string
	State         State
	Identity      *auth.Identity
	Notifications []notify.Notification
	Loaded        bool
}

// Controller is the single owner of inventory state.
type Controller struct {
	store    storage.DocumentStore
	images   ImageProcessor
	gate     *Gate
	notifier notify.Notifier
	logger   *slog.Logger
	observer Observer
	timeout  time.Duration
	mode     CategoryMode
	admins   auth.AdminList
	now      func() time.Time

	mu         sync.RWMutex
	items      []models.Supplement
	categories []models.Category
	searchTerm string
	category   string
	loaded     bool
	pending    map[string]struct{}
	// writers counts in-flight creates and updates per category key.
	writers map[string]int
}

// Option customises a Controller.
type Option func(*Controller)

// WithNotifier sets where outcome messages are sent.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics reports operation outcomes to o.
func WithMetrics(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithTimeout bounds each external call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithCategoryMode selects managed or derived categories.
func WithCategoryMode(mode CategoryMode) Option {
	return func(c *Controller) { c.mode = mode }
}

// WithAdmins sets the admin allow-list.
func WithAdmins(admins auth.AdminList) Option {
	return func(c *Controller) { c.admins = admins }
}

// New creates a Controller. A nil images uses the default imaging pipeline.
// The catalog is empty until Load is called.
func New(store storage.DocumentStore, images ImageProcessor, identity auth.IdentityProvider, opts ...Option) *Controller {
	if images == nil {
		images = imaging.NewPipeline(nil, imaging.DefaultOptions())
	}
	c := &Controller{
		store:    store,
		images:   images,
		notifier: notify.New(),
		logger:   slog.Default(),
		timeout:  DefaultTimeout,
		mode:     Managed,
		now:      time.Now,
		category: models.AllCategories,
		pending:  make(map[string]struct{}),
		writers:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.gate = NewGate(identity, c.admins, c.notifier, c.logger)
	return c
}

// Close detaches the controller from the identity provider.
func (c *Controller) Close() {
	c.gate.Close()
}

// Gate returns the auth gate.
func (c *Controller) Gate() *Gate {
	return c.gate
}

// Mode returns the category mode.
func (c *Controller) Mode() CategoryMode {
	return c.mode
}

// SignIn verifies the credentials through the gate.
func (c *Controller) SignIn(ctx context.Context, email, password string) (_ *auth.Identity, err error) {
	defer func(start time.Time) { c.observe("sign_in", start, err) }(time.Now())
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.gate.SignIn(ctx, email, password)
}

// SignOut ends the session through the gate.
func (c *Controller) SignOut(ctx context.Context) (err error) {
	defer func(start time.Time) { c.observe("sign_out", start, err) }(time.Now())
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.gate.SignOut(ctx)
}

// Load replaces the catalog (and, when managed, the categories) with the
// backend contents. On failure the previous state is kept.
func (c *Controller) Load(ctx context.Context) (err error) {
	defer func(start time.Time) { c.observe("load", start, err) }(time.Now())
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var supplementDocs, categoryDocs []storage.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, listErr := c.store.List(gctx, storage.SupplementsCollection)
		supplementDocs = docs
		return listErr
	})
	if c.mode == Managed {
		g.Go(func() error {
			docs, listErr := c.store.List(gctx, storage.CategoriesCollection)
			categoryDocs = docs
			return listErr
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Error("Failed to load supplements", "error", err)
		c.notifier.Notify(notify.Error, "Failed to load supplements")
		return fmt.Errorf("%w: %w", ErrBackendRead, err)
	}

	items := make([]models.Supplement, 0, len(supplementDocs))
	for _, doc := range supplementDocs {
		items = append(items, supplementFromDoc(doc))
	}
	categories := make([]models.Category, 0, len(categoryDocs))
	for _, doc := range categoryDocs {
		categories = append(categories, categoryFromDoc(doc))
	}

	c.mu.Lock()
	c.items = items
	c.categories = categories
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info("Catalog loaded", "supplements", len(items), "categories", len(categories))
	return nil
}

// Create validates the draft and persists it as a new supplement.
func (c *Controller) Create(ctx context.Context, d Draft) (_ models.Supplement, err error) {
	defer func(start time.Time) { c.observe("create", start, err) }(time.Now())
	if err := c.gate.RequireAdmin(); err != nil {
		return models.Supplement{}, c.refuse("create", err)
	}
	if missing := d.missing(); len(missing) > 0 {
		return models.Supplement{}, c.refuse("create", &ValidationError{Fields: missing})
	}
	if err := d.checkAmounts(); err != nil {
		return models.Supplement{}, c.refuse("create", err)
	}

	s := normalizeDraft(d)
	s.Category = ResolveCategory(d.Category, "", c.defaultCategory())
	release, err := c.acquire(barcodeKey(s.Barcode))
	if err != nil {
		return models.Supplement{}, c.refuse("create", err)
	}
	defer release()
	leave, err := c.enterCategory(s.Category)
	if err != nil {
		return models.Supplement{}, c.refuse("create", err)
	}
	defer leave()
	if c.barcodeTaken(s.Barcode, "") {
		return models.Supplement{}, c.refuse("create", ErrDuplicateBarcode)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if s.Image, err = c.resolveImage(ctx, d.Image); err != nil {
		return models.Supplement{}, err
	}
	s.CreatedAt = c.now().Unix()
	s.UpdatedAt = s.CreatedAt

	id, err := c.store.Create(ctx, storage.SupplementsCollection, supplementFields(s))
	if err != nil {
		return models.Supplement{}, c.fail("create", "Failed to add supplement", fmt.Errorf("%w: %w", ErrBackendWrite, err))
	}
	s.ID = id

	c.mu.Lock()
	c.items = append(slices.Clone(c.items), s)
	c.mu.Unlock()

	c.logger.Info("Supplement created", "id", id, "barcode", s.Barcode, "category", s.Category)
	c.notifier.Notify(notify.Success, "Supplement added successfully")
	return s.Clone(), nil
}

// Update validates the draft and replaces the supplement with the given ID.
func (c *Controller) Update(ctx context.Context, id string, d Draft) (_ models.Supplement, err error) {
	defer func(start time.Time) { c.observe("update", start, err) }(time.Now())
	if err := c.gate.RequireAdmin(); err != nil {
		return models.Supplement{}, c.refuse("update", err)
	}
	if missing := d.missing(); len(missing) > 0 {
		return models.Supplement{}, c.refuse("update", &ValidationError{Fields: missing})
	}
	if err := d.checkAmounts(); err != nil {
		return models.Supplement{}, c.refuse("update", err)
	}

	next := normalizeDraft(d)
	release, err := c.acquire(recordKey(id), barcodeKey(next.Barcode))
	if err != nil {
		return models.Supplement{}, c.refuse("update", err)
	}
	defer release()

	existing, ok := c.Supplement(id)
	if !ok {
		return models.Supplement{}, c.refuse("update", fmt.Errorf("supplement %s: %w", id, ErrNotFound))
	}
	if c.barcodeTaken(next.Barcode, id) {
		return models.Supplement{}, c.refuse("update", ErrDuplicateBarcode)
	}
	next.Category = ResolveCategory(d.Category, existing.Category, c.defaultCategory())
	leave, err := c.enterCategory(next.Category)
	if err != nil {
		return models.Supplement{}, c.refuse("update", err)
	}
	defer leave()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if next.Image, err = c.resolveImage(ctx, d.Image); err != nil {
		return models.Supplement{}, err
	}
	next.ID = id
	next.CreatedAt = existing.CreatedAt
	next.UpdatedAt = c.now().Unix()

	if err := c.store.Update(ctx, storage.SupplementsCollection, id, supplementFields(next)); err != nil {
		return models.Supplement{}, c.fail("update", "Failed to update supplement", fmt.Errorf("%w: %w", ErrBackendWrite, err))
	}

	c.mu.Lock()
	items := slices.Clone(c.items)
	if i := slices.IndexFunc(items, func(s models.Supplement) bool { return s.ID == id }); i >= 0 {
		items[i] = next
	}
	c.items = items
	c.mu.Unlock()

	c.logger.Info("Supplement updated", "id", id, "barcode", next.Barcode)
	c.notifier.Notify(notify.Success, "Supplement updated successfully")
	return next.Clone(), nil
}

// Remove deletes the supplement after confirm agrees. A declined prompt
// returns ErrDeclined without touching the backend.
func (c *Controller) Remove(ctx context.Context, id string, confirm Confirmer) (err error) {
	defer func(start time.Time) { c.observe("remove", start, err) }(time.Now())
	if err := c.gate.RequireAdmin(); err != nil {
		return c.refuse("remove", err)
	}
	if _, ok := c.Supplement(id); !ok {
		return c.refuse("remove", fmt.Errorf("supplement %s: %w", id, ErrNotFound))
	}
	if confirm == nil || !confirm.Confirm("Are you sure you want to delete this supplement?") {
		c.logger.Info("Delete declined", "id", id)
		return ErrDeclined
	}

	release, err := c.acquire(recordKey(id))
	if err != nil {
		return c.refuse("remove", err)
	}
	defer release()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.store.Delete(ctx, storage.SupplementsCollection, id); err != nil {
		return c.fail("remove", "Failed to delete supplement", fmt.Errorf("%w: %w", ErrBackendWrite, err))
	}

	c.mu.Lock()
	c.items = slices.DeleteFunc(slices.Clone(c.items), func(s models.Supplement) bool { return s.ID == id })
	c.mu.Unlock()

	c.logger.Info("Supplement deleted", "id", id)
	c.notifier.Notify(notify.Success, "Supplement deleted successfully")
	return nil
}

// Filter returns the supplements matching term and category, computed from
// the current catalog. An empty category means "All".
func (c *Controller) Filter(term, category string) []models.Supplement {
	if category == "" {
		category = models.AllCategories
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filterItems(c.items, term, category)
}

// SetFilter stores the active search term and category shown in snapshots.
func (c *Controller) SetFilter(term, category string) {
	if category == "" {
		category = models.AllCategories
	}
	c.mu.Lock()
	c.searchTerm = term
	c.category = category
	c.mu.Unlock()
}

// SetSearch changes the active search term and keeps the category.
func (c *Controller) SetSearch(term string) {
	c.mu.Lock()
	c.searchTerm = term
	c.mu.Unlock()
}

// LookupBarcode returns the supplement whose barcode is exactly code.
func (c *Controller) LookupBarcode(code string) (models.Supplement, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.items {
		if s.Barcode == code {
			return s.Clone(), true
		}
	}
	return models.Supplement{}, false
}

// Supplement returns the supplement with the given ID.
func (c *Controller) Supplement(id string) (models.Supplement, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.items {
		if s.ID == id {
			return s.Clone(), true
		}
	}
	return models.Supplement{}, false
}

// Supplements returns the catalog in display order.
func (c *Controller) Supplements() []models.Supplement {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneSupplements(c.items)
}

// Snapshot copies the state a view renders from.
func (c *Controller) Snapshot() Snapshot {
	snap := Snapshot{
		Categories: c.Categories(),
		State:      c.gate.State(),
		Identity:   c.gate.Identity(),
	}
	if lister, ok := c.notifier.(interface{ List() []notify.Notification }); ok {
		snap.Notifications = lister.List()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	snap.Supplements = cloneSupplements(c.items)
	snap.Visible = filterItems(c.items, c.searchTerm, c.category)
	snap.SearchTerm = c.searchTerm
	snap.Category = c.category
	snap.Loaded = c.loaded
	return snap
}

func filterItems(items []models.Supplement, term, category string) []models.Supplement {
	out := []models.Supplement{}
	for _, s := range items {
		if matches(s, term, category) {
			out = append(out, s.Clone())
		}
	}
	return out
}

func normalizeDraft(d Draft) models.Supplement {
	return models.Supplement{
		Name:        d.Name,
		Description: d.Description,
		Price:       NormalizeAmount(d.Price),
		Quantity:    NormalizeAmount(d.Quantity),
		Barcode:     d.Barcode,
	}
}

func (c *Controller) barcodeTaken(barcode, exceptID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.items {
		if s.Barcode == barcode && s.ID != exceptID {
			return true
		}
	}
	return false
}

// resolveImage turns the draft image into the payload to store. Failures are
// reported here and stop the enclosing write.
func (c *Controller) resolveImage(ctx context.Context, field ImageField) (*string, error) {
	switch field.Kind {
	case ExistingPayload:
		if field.Payload == "" {
			return nil, nil
		}
		payload := field.Payload
		return &payload, nil
	case PendingFile:
		payload, err := c.images.Process(ctx, field.File)
		if err != nil {
			c.logger.Error("Image processing failed", "file", field.File.Name, "error", err)
			c.notifier.Notify(notify.Error, "Image processing failed")
			return nil, err
		}
		c.notifier.Notify(notify.Success, "Image processed successfully")
		return &payload, nil
	default:
		return nil, nil
	}
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// acquire marks keys as in flight. It fails with ErrPending if any key is
// already held, or a category key has writers in flight, and marks nothing
// in that case.
func (c *Controller) acquire(keys ...string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if _, busy := c.pending[k]; busy || c.writers[k] > 0 {
			return nil, fmt.Errorf("%s: %w", k, ErrPending)
		}
	}
	for _, k := range keys {
		c.pending[k] = struct{}{}
	}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, k := range keys {
			delete(c.pending, k)
		}
	}, nil
}

// enterCategory registers a write into the named category. Writes into the
// same category share it; a category being deleted refuses them.
func (c *Controller) enterCategory(name string) (func(), error) {
	key := categoryKey(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.pending[key]; busy {
		return nil, fmt.Errorf("%s: %w", key, ErrPending)
	}
	c.writers[key]++
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.writers[key]--; c.writers[key] <= 0 {
			delete(c.writers, key)
		}
	}, nil
}

func recordKey(id string) string { return "supplement/" + id }
func barcodeKey(barcode string) string { return "barcode/" + barcode }
func categoryKey(name string) string { return "category/" + name }

// refuse reports an operation rejected before any backend write.
func (c *Controller) refuse(op string, err error) error {
	c.logger.Warn("Operation rejected", "operation", op, "error", err)
	c.notifier.Notify(notify.Error, refusalMessage(err))
	return err
}

// fail reports a collaborator failure.
func (c *Controller) fail(op, message string, err error) error {
	c.logger.Error(message, "operation", op, "error", err)
	c.notifier.Notify(notify.Error, message)
	return err
}

func refusalMessage(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "Please fill in all required fields"
	case errors.Is(err, ErrAmountTooLarge):
		return "Price or quantity is too large"
	case errors.Is(err, ErrDuplicateBarcode):
		return "A supplement with this barcode already exists"
	case errors.Is(err, ErrForbidden):
		return "Admin access required"
	case errors.Is(err, ErrPending):
		return "Please wait for the current operation to finish"
	case errors.Is(err, ErrNotFound):
		return "Item no longer exists"
	case errors.Is(err, ErrCategoryExists):
		return "Category already exists"
	case errors.Is(err, ErrReservedCategory):
		return "This category cannot be changed"
	case errors.Is(err, ErrRegistryReadOnly):
		return "Categories are taken from the catalog"
	default:
		return err.Error()
	}
}

func (c *Controller) observe(op string, start time.Time, err error) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case rejected(err):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	c.observer.Observe(op, outcome, time.Since(start))
}
