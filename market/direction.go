package market

import (
	"fmt"
	"strings"
)

// Direction is the side of a trade. The zero value means no trade.
type Direction int

const (
	NoDirection Direction = 0
	Long        Direction = 1
	Short       Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "none"
	}
}

// Sign is +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	return float64(d)
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	case "none":
		return NoDirection, nil
	default:
		return NoDirection, fmt.Errorf("unknown direction %q", s)
	}
}
