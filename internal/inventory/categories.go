package inventory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mmynk/pharmasupps/internal/models"
	"github.com/mmynk/pharmasupps/internal/notify"
	"github.com/mmynk/pharmasupps/internal/storage"
)

// Categories returns the filter choices: the "All" sentinel followed by the
// registry labels.
func (c *Controller) Categories() []string {
	return append([]string{models.AllCategories}, c.categoryNames()...)
}

// CategoryRecords returns the persisted categories. Derived mode has none.
func (c *Controller) CategoryRecords() []models.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.categories)
}

func (c *Controller) categoryNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mode == Derived {
		return derivedCategories(c.items)
	}
	names := make([]string, 0, len(c.categories))
	for _, cat := range c.categories {
		names = append(names, cat.Name)
	}
	return names
}

// defaultCategory is the first registry label, or "General" when there is none.
func (c *Controller) defaultCategory() string {
	if names := c.categoryNames(); len(names) > 0 {
		return names[0]
	}
	return models.DefaultCategory
}

func (c *Controller) findCategory(name string) (models.Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cat := range c.categories {
		if cat.Name == name {
			return cat, true
		}
	}
	return models.Category{}, false
}

// AddCategory persists a new category. Names are matched case-sensitively.
func (c *Controller) AddCategory(ctx context.Context, name string) (_ models.Category, err error) {
	defer func(start time.Time) { c.observe("add_category", start, err) }(time.Now())
	if err := c.gate.RequireAdmin(); err != nil {
		return models.Category{}, c.refuse("add_category", err)
	}
	if c.mode == Derived {
		return models.Category{}, c.refuse("add_category", ErrRegistryReadOnly)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Category{}, c.refuse("add_category", &ValidationError{Fields: []string{fieldName}})
	}
	if name == models.AllCategories {
		return models.Category{}, c.refuse("add_category", fmt.Errorf("%q: %w", name, ErrReservedCategory))
	}

	release, err := c.acquire(categoryKey(name))
	if err != nil {
		return models.Category{}, c.refuse("add_category", err)
	}
	defer release()
	if _, exists := c.findCategory(name); exists {
		return models.Category{}, c.refuse("add_category", fmt.Errorf("%q: %w", name, ErrCategoryExists))
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	id, err := c.store.Create(ctx, storage.CategoriesCollection, storage.Fields{fieldName: name})
	if err != nil {
		return models.Category{}, c.fail("add_category", "Failed to add category", fmt.Errorf("%w: %w", ErrBackendWrite, err))
	}
	cat := models.Category{ID: id, Name: name}

	c.mu.Lock()
	c.categories = append(slices.Clone(c.categories), cat)
	c.mu.Unlock()

	c.logger.Info("Category added", "id", id, "name", name)
	c.notifier.Notify(notify.Success, "Category added successfully")
	return cat, nil
}

// RemoveCategory deletes a category and moves its supplements to "General"
// in one atomic batch. If the batch fails neither the categories nor the
// supplements change.
func (c *Controller) RemoveCategory(ctx context.Context, name string, confirm Confirmer) (err error) {
	defer func(start time.Time) { c.observe("remove_category", start, err) }(time.Now())
	if err := c.gate.RequireAdmin(); err != nil {
		return c.refuse("remove_category", err)
	}
	if c.mode == Derived {
		return c.refuse("remove_category", ErrRegistryReadOnly)
	}
	if name == models.AllCategories {
		return c.refuse("remove_category", fmt.Errorf("%q: %w", name, ErrReservedCategory))
	}
	cat, ok := c.findCategory(name)
	if !ok {
		return c.refuse("remove_category", fmt.Errorf("category %q: %w", name, ErrNotFound))
	}
	prompt := fmt.Sprintf("Delete category %q? Its supplements will move to %s.", name, models.DefaultCategory)
	if confirm == nil || !confirm.Confirm(prompt) {
		c.logger.Info("Category delete declined", "name", name)
		return ErrDeclined
	}

	release, err := c.acquire(categoryKey(name))
	if err != nil {
		return c.refuse("remove_category", err)
	}
	defer release()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// Supplements already in "General" need no reassignment.
	var affected []string
	if name != models.DefaultCategory {
		docs, err := c.store.Query(ctx, storage.SupplementsCollection, fieldCategory, name)
		if err != nil {
			return c.fail("remove_category", "Failed to delete category", fmt.Errorf("%w: %w", ErrCascade, err))
		}
		for _, doc := range docs {
			affected = append(affected, doc.ID)
		}
	}

	keys := make([]string, 0, len(affected))
	for _, id := range affected {
		keys = append(keys, recordKey(id))
	}
	releaseItems, err := c.acquire(keys...)
	if err != nil {
		return c.refuse("remove_category", err)
	}
	defer releaseItems()

	now := c.now().Unix()
	ops := make([]storage.Op, 0, len(affected)+1)
	for _, id := range affected {
		ops = append(ops, storage.Op{
			Kind:       storage.OpUpdate,
			Collection: storage.SupplementsCollection,
			ID:         id,
			Fields:     storage.Fields{fieldCategory: models.DefaultCategory, fieldUpdatedAt: now},
		})
	}
	ops = append(ops, storage.Op{Kind: storage.OpDelete, Collection: storage.CategoriesCollection, ID: cat.ID})

	if err := c.store.Batch(ctx, ops); err != nil {
		return c.fail("remove_category", "Failed to delete category", fmt.Errorf("%w: %w", ErrCascade, err))
	}

	c.mu.Lock()
	items := slices.Clone(c.items)
	for i := range items {
		if slices.Contains(affected, items[i].ID) {
			items[i].Category = models.DefaultCategory
			items[i].UpdatedAt = now
		}
	}
	c.items = items
	c.categories = slices.DeleteFunc(slices.Clone(c.categories), func(existing models.Category) bool {
		return existing.ID == cat.ID
	})
	c.mu.Unlock()

	c.logger.Info("Category deleted", "name", name, "reassigned", len(affected))
	c.notifier.Notify(notify.Success, "Category deleted successfully")
	return nil
}
