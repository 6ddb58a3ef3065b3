package domain

import "errors"

var (
	// ErrSourceFailure is returned when the price record source cannot be read
	ErrSourceFailure = errors.New("price record source failed")

	// ErrNotLoaded is returned when no dataset has been loaded yet
	ErrNotLoaded = errors.New("price dataset not loaded")

	// ErrInvalidWeekKey is returned when a week key is not of the form YYYY-Wnn
	ErrInvalidWeekKey = errors.New("invalid week key")

	// ErrWeekNotFound is returned when a week has no records
	ErrWeekNotFound = errors.New("week not found")

	// ErrProductNotFound is returned when a SKU has no price history
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrDuplicateCartItem is returned when the same product from the same store is already listed
	ErrDuplicateCartItem = errors.New("item already in shopping list")

	// ErrCartItemNotFound is returned when a shopping list entry does not exist
	ErrCartItemNotFound = errors.New("shopping list entry not found")

	// ErrExportFailure is returned when an export cannot be written
	ErrExportFailure = errors.New("export failed")

	// ErrPublishFailure is returned when a deal alert cannot be delivered
	ErrPublishFailure = errors.New("deal alert publish failed")
)
