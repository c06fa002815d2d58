package inventory

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrDuplicateBarcode = errors.New("a supplement with this barcode already exists")
	ErrBackendRead      = errors.New("backend read failed")
	ErrBackendWrite     = errors.New("backend write failed")
	ErrAuth             = errors.New("authentication failed")
	ErrCascade          = errors.New("category cascade failed")
	ErrNotFound         = errors.New("not found")
	ErrPending          = errors.New("operation already in progress")
	ErrDeclined         = errors.New("operation declined")
	ErrRegistryReadOnly = errors.New("categories are derived from the catalog")
	ErrReservedCategory = errors.New("category is reserved")
	ErrCategoryExists   = errors.New("category already exists")
	ErrOutOfStock       = errors.New("not enough stock")

	// ErrAmountTooLarge is returned when a price or quantity does not fit int64.
	ErrAmountTooLarge = fmt.Errorf("%w: amount too large", ErrValidation)

	// ErrForbidden is returned when a mutation is attempted without an admin session.
	ErrForbidden = fmt.Errorf("%w: admin access required", ErrAuth)
)

// ValidationError lists the required draft fields that were left empty.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// rejected reports whether err was a refusal rather than a failure of a collaborator.
func rejected(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateBarcode) ||
		errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrPending) ||
		errors.Is(err, ErrDeclined) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrRegistryReadOnly) ||
		errors.Is(err, ErrReservedCategory) ||
		errors.Is(err, ErrCategoryExists) ||
		errors.Is(err, ErrOutOfStock)
}
