// Package token mints and verifies the signed tokens handed to clients:
// access/refresh session pairs and short-lived single-purpose tokens such as
// password reset.  It never touches storage; validity is a function of the
// signing keys, the clock and the claims alone.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/session-auth/internal/model"
)

// Type separates the token families so one can never stand in for another.
type Type string

const (
	TypeAccess        Type = "access"
	TypeRefresh       Type = "refresh"
	TypeSinglePurpose Type = "single_purpose"
)

// Purposes of single-purpose tokens.
const (
	PurposePasswordReset = "password_reset"
	PurposeOAuthState    = "oauth_state"
)

var (
	// ErrInvalidSignature covers malformed tokens, unknown keys and bad signatures.
	ErrInvalidSignature = errors.New("token: invalid signature")
	// ErrExpired is returned once exp has passed.
	ErrExpired = errors.New("token: expired")
	// ErrWrongType is returned when a valid token of another family is presented.
	ErrWrongType = errors.New("token: wrong type")
	// ErrPurposeMismatch is returned when a single-purpose token carries a different purpose.
	ErrPurposeMismatch = errors.New("token: purpose mismatch")
)

// Claims is the payload carried by every token this package signs.  The
// subject (sub) holds the decimal user id; jti makes every token unique even
// when two are minted in the same second.
type Claims struct {
	UserID  uint64     `json:"uid"`
	Role    model.Role `json:"role,omitempty"`
	Type    Type       `json:"typ"`
	Purpose string     `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Key is an HMAC secret addressed by the `kid` header.
type Key struct {
	ID     string
	Secret string
}

// Options configures a Minter.
type Options struct {
	Current    Key   // signs new tokens
	Previous   []Key // still verify, during a key rotation grace window
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Now        func() time.Time // defaults to time.Now
}

// Signed is a serialized token and its expiry.
type Signed struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires"`
}

// Pair is what every successful authentication hands back.
type Pair struct {
	Access  Signed `json:"access"`
	Refresh Signed `json:"refresh"`
}

// Minter signs with the current key and verifies with current plus previous
// keys.  It is safe for concurrent use.
type Minter struct {
	current    Key
	keys       map[string][]byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// New validates opts and returns a Minter.
func New(opts Options) (*Minter, error) {
	if opts.Current.ID == "" || opts.Current.Secret == "" {
		return nil, errors.New("token: current signing key requires id and secret")
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 {
		return nil, errors.New("token: invalid TTL configuration")
	}
	keys := map[string][]byte{opts.Current.ID: []byte(opts.Current.Secret)}
	for _, k := range opts.Previous {
		if k.ID == "" || k.Secret == "" {
			return nil, errors.New("token: previous key requires id and secret")
		}
		if _, dup := keys[k.ID]; dup {
			return nil, fmt.Errorf("token: duplicate kid %q", k.ID)
		}
		keys[k.ID] = []byte(k.Secret)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Minter{
		current:    opts.Current,
		keys:       keys,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		issuer:     opts.Issuer,
		now:        now,
	}, nil
}

// RefreshTTL is the lifetime the caller must persist refresh rows with.
func (m *Minter) RefreshTTL() time.Duration { return m.refreshTTL }

// MintSessionPair issues an access token and a refresh token for a user.
// Both carry the user id and role.  Only the refresh token is meant to be
// persisted (hashed) by the caller.
func (m *Minter) MintSessionPair(userID uint64, role model.Role) (Pair, error) {
	access, err := m.sign(Claims{UserID: userID, Role: role, Type: TypeAccess}, m.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.sign(Claims{UserID: userID, Role: role, Type: TypeRefresh}, m.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// MintSinglePurpose issues an unpersisted token bound to one purpose.
func (m *Minter) MintSinglePurpose(userID uint64, purpose string, ttl time.Duration) (Signed, error) {
	if purpose == "" {
		return Signed{}, errors.New("token: purpose required")
	}
	if ttl <= 0 {
		return Signed{}, errors.New("token: invalid TTL")
	}
	return m.sign(Claims{UserID: userID, Type: TypeSinglePurpose, Purpose: purpose}, ttl)
}

func (m *Minter) sign(c Claims, ttl time.Duration) (Signed, error) {
	now := m.now().UTC()
	exp := now.Add(ttl)
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatUint(c.UserID, 10),
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	t.Header["kid"] = m.current.ID
	signed, err := t.SignedString([]byte(m.current.Secret))
	if err != nil {
		return Signed{}, fmt.Errorf("token: sign: %w", err)
	}
	// NumericDate truncates to seconds; report what the token actually says.
	return Signed{Token: signed, ExpiresAt: c.ExpiresAt.Time}, nil
}

// Verify checks signature and expiry and returns the claims.  Failures are
// reduced to ErrExpired or ErrInvalidSignature.
func (m *Minter) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	claims := &Claims{}
	tok, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := m.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidSignature
	}
	if !tok.Valid || claims.Subject != strconv.FormatUint(claims.UserID, 10) {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// VerifyType is Verify plus a token family check.
func (m *Minter) VerifyType(raw string, want Type) (*Claims, error) {
	c, err := m.Verify(raw)
	if err != nil {
		return nil, err
	}
	if c.Type != want {
		return nil, ErrWrongType
	}
	return c, nil
}

// VerifyPurpose accepts only single-purpose tokens whose purpose matches
// exactly.
func (m *Minter) VerifyPurpose(raw, purpose string) (*Claims, error) {
	c, err := m.VerifyType(raw, TypeSinglePurpose)
	if err != nil {
		return nil, err
	}
	if c.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}
	return c, nil
}

// Hash returns the SHA‑256 hex digest stored in place of a refresh token.
// A stolen database row therefore cannot be replayed as a token.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
