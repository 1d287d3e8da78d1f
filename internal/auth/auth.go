// Package auth implements the password gate and the signed role tokens that
// carry a caller's capabilities between requests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Role is a caller capability level.
type Role string

const (
	RoleNone    Role = ""
	RoleLimited Role = "limited" // may create and score games and add players
	RoleAdmin   Role = "admin"   // may additionally delete, import and recalculate
)

// CanWrite reports whether the role may mutate games and players.
func (r Role) CanWrite() bool { return r == RoleLimited || r == RoleAdmin }

// CanAdminister reports whether the role may delete records, import data or
// rebuild ratings.
func (r Role) CanAdminister() bool { return r == RoleAdmin }

var (
	ErrBadPassword  = errors.New("incorrect password")
	ErrInvalidToken = errors.New("invalid token")
)

// HashPassword returns the bcrypt hash stored in ADMIN_PASSWORD_HASH or
// LIMITED_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Gate maps a shared password to a role.
type Gate struct {
	adminHash   []byte
	limitedHash []byte
}

// NewGate creates a gate from bcrypt hashes. An empty hash disables that role.
func NewGate(adminHash, limitedHash string) *Gate {
	return &Gate{adminHash: []byte(adminHash), limitedHash: []byte(limitedHash)}
}

// Login returns the role unlocked by password. Admin is checked first.
func (g *Gate) Login(password string) (Role, error) {
	if len(g.adminHash) > 0 && bcrypt.CompareHashAndPassword(g.adminHash, []byte(password)) == nil {
		return RoleAdmin, nil
	}
	if len(g.limitedHash) > 0 && bcrypt.CompareHashAndPassword(g.limitedHash, []byte(password)) == nil {
		return RoleLimited, nil
	}
	return RoleNone, ErrBadPassword
}

// Claims is the JWT payload.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 role tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. The secret must not be empty.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("auth: empty token secret")
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for role and its expiry.
func (i *Issuer) Issue(role Role) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ohhell",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies a token and returns the role it carries.
func (i *Issuer) Parse(token string) (Role, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return RoleNone, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	switch claims.Role {
	case RoleAdmin, RoleLimited:
		return claims.Role, nil
	}
	return RoleNone, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
}
