package orders

import "errors"

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidQuantity     = errors.New("quantity must be greater than zero")
	ErrAmbiguousPurchaser  = errors.New("purchaser must be exactly one of user or guest email")
	ErrInvalidEmail        = errors.New("guest email is not a valid address")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrLineNotFound        = errors.New("cart line not found")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrConcurrencyConflict = errors.New("concurrent update conflict, retry the transaction")

	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrForbidden       = errors.New("forbidden")
)
