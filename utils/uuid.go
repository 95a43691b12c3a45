package utils

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// NewReference returns a sortable reference for gateway and ledger records, e.g. "FND-01J...".
func NewReference(prefix string) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return prefix + "-" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
