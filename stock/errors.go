package stock

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrConcurrentModification is returned when a stock write lost a race with
	// another writer more times than the ledger retries.
	ErrConcurrentModification = errors.New("stock: concurrent modification")
	// ErrNotTracked is returned when an item declares stock tracking but the
	// inventory holds no level for it.
	ErrNotTracked = errors.New("stock: item has no stock level")
	// ErrUnavailable matches every *UnavailableError.
	ErrUnavailable = errors.New("stock: quantity not available")
	// ErrUnknownOperation is returned for bulk operations or modes outside the enums.
	ErrUnknownOperation = errors.New("stock: unknown operation")
	// ErrNegativeQuantity is returned when a check is asked for a negative quantity.
	ErrNegativeQuantity = errors.New("stock: negative quantity")
)

// UnavailableError is raised by order event handling when a line cannot be served.
type UnavailableError struct {
	ItemID   string
	Quantity decimal.Decimal
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("stock: quantity %s of item %s is not available", e.Quantity, e.ItemID)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }
