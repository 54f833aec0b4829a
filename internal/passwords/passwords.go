package passwords

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher produces and checks bcrypt digests with a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher. Costs outside bcrypt's range fall back to
// bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt digest of plain. bcrypt only looks at the first
// 72 bytes; longer inputs are rejected instead of silently truncated.
func (h *Hasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrTooLong
		}
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches digest. An empty or malformed digest
// (OAuth-only accounts) never matches.
func (h *Hasher) Verify(plain, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

var ErrTooLong = errors.New("password longer than 72 bytes")
