package models

// Category is an admin-managed category record.
type Category struct {
	// ID is the backend document ID.
	ID string

	// Name is the label stored on supplements (case-sensitive).
	Name string
}
