package checkout

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/product"
)

// Error kinds returned by CompleteOrder. Match with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrCommitFailed      = errors.New("commit failed")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ErrLocked is returned by a Locker when another checkout for the same user
// holds the lock.
var ErrLocked = errors.New("checkout lock held")

// NotFoundError reports a missing user or product.
type NotFoundError struct {
	Entity string
	ID     key.Key
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidStateError reports a request that cannot proceed in the current
// state, such as an empty cart.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return "invalid state: " + e.Reason
}

// Is reports whether target is ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// CommitFailedError reports an aborted transaction. Nothing was applied.
type CommitFailedError struct {
	Err error
}

func (e *CommitFailedError) Error() string {
	return "commit failed: " + e.Err.Error()
}

func (e *CommitFailedError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCommitFailed.
func (e *CommitFailedError) Is(target error) bool { return target == ErrCommitFailed }

// InsufficientStockError reports a product whose stock cannot cover the
// decrement. The whole commit is rolled back.
type InsufficientStockError struct {
	ProductID key.Key
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Is reports whether target is ErrInsufficientStock or ErrCommitFailed.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock || target == ErrCommitFailed
}

// missingProduct extracts the product key from a store error, if present.
func missingProduct(err error) key.Key {
	var mp *MissingProductError
	if errors.As(err, &mp) {
		return mp.ProductID
	}
	return key.Key{}
}

// MissingProductError is returned by stores when a decrement targets a
// product absent from the catalog. It wraps product.ErrNotFound.
type MissingProductError struct {
	ProductID key.Key
}

func (e *MissingProductError) Error() string {
	return "product " + e.ProductID.String() + " not found"
}

func (e *MissingProductError) Unwrap() error { return product.ErrNotFound }
