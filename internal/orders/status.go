package orders

import "fmt"

type Status string

const (
	StatusPending        Status = "pending"
	StatusProcessing     Status = "processing"
	StatusReadyToShip    Status = "ready_to_ship"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// forward chain; cancellation is handled separately and only from pending.
var validNext = map[Status]Status{
	StatusPending:        StatusProcessing,
	StatusProcessing:     StatusReadyToShip,
	StatusReadyToShip:    StatusOutForDelivery,
	StatusOutForDelivery: StatusDelivered,
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReadyToShip,
		StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return from == StatusPending
	}
	next, ok := validNext[from]
	return ok && next == to
}

// Next returns the immediate successor in the forward chain.
func Next(from Status) (Status, bool) {
	next, ok := validNext[from]
	return next, ok
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
