package broker

import (
	"errors"
	"fmt"
)

var (
	ErrVenueUnavailable     = errors.New("venue unavailable")
	ErrOrderRejected        = errors.New("order rejected")
	ErrNoTick               = errors.New("no tick")
	ErrUnknownDealDirection = errors.New("unknown deal direction")
)

// RejectError is a venue-reported order failure. It matches ErrOrderRejected.
type RejectError struct {
	Code   string
	Detail string
}

func (e *RejectError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("order rejected: %s", e.Detail)
	}
	return fmt.Sprintf("order rejected (%s): %s", e.Code, e.Detail)
}

func (e *RejectError) Is(target error) bool {
	return target == ErrOrderRejected
}

// Unavailable wraps err as a retryable venue failure.
func Unavailable(op string, err error) error {
	if err == nil || errors.Is(err, ErrVenueUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrVenueUnavailable, err)
}
