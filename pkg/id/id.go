// Package id issues ULIDs for trade-log rows and order tags. They sort by
// creation time, which keeps the journal's primary key in insertion order.
package id

import (
	cryptoRand "crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(cryptoRand.Reader, 0)
)

// New returns a ULID for the current time.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID stamped with t. Ids issued within the same
// millisecond still increase.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String()
}

// Tag shortens an id to the last 12 characters for venue order comments,
// which have tight length limits.
func Tag(full string) string {
	if len(full) <= 12 {
		return full
	}
	return full[len(full)-12:]
}
