package domain

import "fmt"

// ValidationError reports malformed or out-of-range input. It is always
// detected before any write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NotFoundError reports a referenced product that does not exist. When several
// requested ids are unknown, ProductID is the smallest of them.
type NotFoundError struct {
	ProductID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product with id %d not found", e.ProductID)
}

// InsufficientStockError reports a requested quantity exceeding available
// stock. Requested is the combined quantity for the product across all line
// items of the request up to and including the failing one.
type InsufficientStockError struct {
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product %q: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

// InternalError wraps a store-level failure. The transaction it occurred in
// has been rolled back.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Err.Error()
}

func (e *InternalError) Unwrap() error {
	return e.Err
}
