package services

import "errors"

// Kegagalan precondition dijawab langsung ke pemanggil dan tidak pernah
// di-retry. ErrRemoteWrite hanya muncul lewat notice setelah retry habis.
var (
	ErrTableNotFound        = errors.New("table not found")
	ErrTableNotAvailable    = errors.New("table is not available")
	ErrTableNotOccupied     = errors.New("table is not occupied")
	ErrTableHasOrders       = errors.New("table still has open orders")
	ErrInvalidCustomerCount = errors.New("customer count must be positive")
	ErrInvalidTableNumber   = errors.New("table number is required")
	ErrInvalidSeats         = errors.New("seat count must be positive")

	ErrMenuItemNotFound = errors.New("menu item not found")
	ErrMenuItemInactive = errors.New("menu item is not active")
	ErrInvalidName      = errors.New("name is required")
	ErrInvalidPrice     = errors.New("price must not be negative")

	ErrOrderNotFound   = errors.New("order not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")

	ErrNoOpenOrders         = errors.New("table has no orders to pay")
	ErrInvalidPaymentMethod = errors.New("unknown payment method")

	ErrHistoryNotFound = errors.New("history entry not found")

	ErrRemoteWrite = errors.New("remote write failed")
)
