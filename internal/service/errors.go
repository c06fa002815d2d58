package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/pharmasupps/internal/imaging"
	"github.com/mmynk/pharmasupps/internal/inventory"
)

// connectError maps inventory errors onto connect codes.
func connectError(err error) *connect.Error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}
	var procErr *imaging.ProcessingError
	code := connect.CodeInternal
	switch {
	case errors.Is(err, inventory.ErrForbidden):
		code = connect.CodePermissionDenied
	case errors.Is(err, inventory.ErrAuth):
		code = connect.CodeUnauthenticated
	case errors.Is(err, inventory.ErrValidation),
		errors.Is(err, inventory.ErrDuplicateBarcode),
		errors.Is(err, inventory.ErrCategoryExists),
		errors.Is(err, inventory.ErrReservedCategory),
		errors.Is(err, inventory.ErrOutOfStock),
		errors.Is(err, imaging.ErrUnsupportedMedia),
		errors.Is(err, imaging.ErrPayloadTooLarge),
		errors.As(err, &procErr):
		code = connect.CodeInvalidArgument
	case errors.Is(err, inventory.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, inventory.ErrPending):
		code = connect.CodeAborted
	case errors.Is(err, inventory.ErrDeclined):
		code = connect.CodeCanceled
	case errors.Is(err, inventory.ErrRegistryReadOnly), errors.Is(err, inventory.ErrFormClosed):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, inventory.ErrBackendRead),
		errors.Is(err, inventory.ErrBackendWrite),
		errors.Is(err, inventory.ErrCascade):
		code = connect.CodeUnavailable
	}
	return connect.NewError(code, err)
}
