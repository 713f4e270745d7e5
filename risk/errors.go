package risk

import "errors"

var (
	ErrInvalidStopDistance = errors.New("invalid stop distance")
	ErrInvalidPipValue     = errors.New("invalid pip value")
	ErrInvalidPolicy       = errors.New("invalid risk policy")
	ErrInvalidBalance      = errors.New("invalid balance")
)
