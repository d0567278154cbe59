package cache

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so merge timestamps are deterministic in
// tests. Grounded verbatim on bt-go/internal/bt/clock.go.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation for deterministic tests.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
