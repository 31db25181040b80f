package ids

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

// New returns a lexicographically sortable identifier. Used for payment ids
// and request correlation ids.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Prefixed returns prefix followed by a random UUID, e.g. "urn:bank:" + uuid.
// Consent and enrollment identifiers use this form.
func Prefixed(prefix string) string {
	return prefix + uuid.NewString()
}

// JTI returns a fresh token identifier.
func JTI() string {
	return uuid.NewString()
}
