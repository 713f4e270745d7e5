// Package indicators computes technical indicators over a window of closing
// prices, oldest first.
package indicators

import (
	"errors"
	"fmt"
)

var ErrNotEnoughData = errors.New("not enough data")

func need(closes []float64, n, period int) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	if len(closes) < n {
		return fmt.Errorf("%w: need %d closes, got %d", ErrNotEnoughData, n, len(closes))
	}
	return nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
