package identity

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// Password length bounds.  bcrypt silently ignores input past 72 bytes, so
// longer passwords are refused rather than truncated.
const (
	MinPasswordRunes = 8
	MaxPasswordBytes = 72
)

// ErrWeakPassword is returned by Hash when the plaintext violates the policy.
var ErrWeakPassword = errors.New("password must be 8 to 72 bytes long")

// PasswordHasher hashes and verifies local passwords with bcrypt.
type PasswordHasher struct {
	cost  int
	dummy []byte // compared against when no hash exists, so misses cost the same as hits
}

// NewPasswordHasher returns a hasher using the given bcrypt cost.
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
	if err != nil {
		return nil, fmt.Errorf("identity: bcrypt cost %d: %w", cost, err)
	}
	return &PasswordHasher{cost: cost, dummy: dummy}, nil
}

// CheckPolicy reports ErrWeakPassword for passwords outside the length bounds.
func CheckPolicy(plain string) error {
	if utf8.RuneCountInString(plain) < MinPasswordRunes || len(plain) > MaxPasswordBytes {
		return ErrWeakPassword
	}
	return nil
}

// Hash returns a salted bcrypt hash of plain.
func (h *PasswordHasher) Hash(plain string) (string, error) {
	if err := CheckPolicy(plain); err != nil {
		return "", err
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify compares plain against hash in constant time with respect to the
// secret.  An empty hash (unknown user, external-only account) still runs a
// full comparison against a dummy hash and reports false.
func (h *PasswordHasher) Verify(plain, hash string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
