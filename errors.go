// Package rooms provides a Go client for a Dutch-auction room marketplace:
// a typed HTTP client plus the grid reconciliation, basket purchase, and
// allocation-search orchestration built on top of it.
package rooms

import (
	"errors"
	"fmt"
)

// Error represents an error from the marketplace API with the HTTP status
// code and the server's detail message, passed through verbatim.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rooms: server rejected request (%d): %s", e.StatusCode, e.Message)
}

// Local validation failures, reported before any network call is made.
var (
	// ErrEmptyBasket means Execute was called with no items.
	ErrEmptyBasket = errors.New("rooms: basket is empty")

	// ErrNothingPriceable means no item in the basket has an active auction.
	ErrNothingPriceable = errors.New("rooms: no item in the basket is priceable")

	// ErrNoParameters means a grid search was submitted with an empty
	// token amount or token frequency list.
	ErrNoParameters = errors.New("rooms: grid search parameter lists must be non-empty")
)

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsBadRequest returns true if the error is a 400 (for purchases: the
// auction is not active, the price moved, or the balance is insufficient).
func IsBadRequest(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 400
	}
	return false
}

// IsConflict returns true if the error is a 409.
func IsConflict(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 409
	}
	return false
}

// IsUnprocessable returns true if the error is a 422 (request shape
// rejected by server-side validation).
func IsUnprocessable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 422
	}
	return false
}
