package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// dummyPassword feeds Equalize so that failed lookups pay for one bcrypt
// comparison just like a wrong password does.
const dummyPassword = "cafeteria-procurement-timing-equalizer"

// Hasher wraps bcrypt with a configurable work factor.
type Hasher struct {
	cost  int
	dummy []byte
}

// NewHasher clamps cost into bcrypt's accepted range and precomputes the
// digest used by Equalize.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		panic("bcrypt: cannot hash equalizer password: " + err.Error())
	}
	return &Hasher{cost: cost, dummy: dummy}
}

// Cost returns the effective bcrypt cost.
func (h *Hasher) Cost() int { return h.cost }

// Hash returns the bcrypt digest of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify safely compares a bcrypt hash and a plain password.
func (h *Hasher) Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Equalize performs a throwaway comparison against a fixed digest.
func (h *Hasher) Equalize(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}
