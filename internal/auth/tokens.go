// Package auth mints and verifies session tokens and hashes passwords.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vidtube/apiserver/types"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySecret  = errors.New("token secret is required")
)

// TokenPair is the access/refresh pair handed to clients.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AccessClaims are embedded in access tokens.
type AccessClaims struct {
	Type     string `json:"typ"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	jwt.RegisteredClaims
}

// RefreshClaims are embedded in refresh tokens. They carry only the identity.
type RefreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Tokens signs access and refresh tokens with independent secrets and TTLs.
type Tokens struct {
	accessSecret  []byte
	accessTTL     time.Duration
	refreshSecret []byte
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokens(accessSecret string, accessTTL time.Duration, refreshSecret string, refreshTTL time.Duration) (*Tokens, error) {
	if strings.TrimSpace(accessSecret) == "" || strings.TrimSpace(refreshSecret) == "" {
		return nil, ErrEmptySecret
	}
	return &Tokens{
		accessSecret:  []byte(accessSecret),
		accessTTL:     accessTTL,
		refreshSecret: []byte(refreshSecret),
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}, nil
}

// MintAccess signs a short-lived access token for user.
func (t *Tokens) MintAccess(user types.User) (string, error) {
	claims := AccessClaims{
		Type:             tokenTypeAccess,
		Username:         user.Username,
		Email:            user.Email,
		FullName:         user.FullName,
		RegisteredClaims: t.registered(user.ID, t.accessTTL),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.accessSecret)
}

// MintRefresh signs a long-lived refresh token for user. Each call yields a
// distinct token because of the random token ID.
func (t *Tokens) MintRefresh(user types.User) (string, error) {
	claims := RefreshClaims{
		Type:             tokenTypeRefresh,
		RegisteredClaims: t.registered(user.ID, t.refreshTTL),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.refreshSecret)
}

// ParseAccess verifies an access token and returns the user ID it names.
func (t *Tokens) ParseAccess(tokenString string) (int, error) {
	claims := AccessClaims{}
	if err := t.parse(tokenString, &claims, t.accessSecret); err != nil {
		return 0, err
	}
	if claims.Type != tokenTypeAccess {
		return 0, ErrInvalidToken
	}
	return subjectID(claims.Subject)
}

// ParseRefresh verifies a refresh token and returns the user ID it names.
func (t *Tokens) ParseRefresh(tokenString string) (int, error) {
	claims := RefreshClaims{}
	if err := t.parse(tokenString, &claims, t.refreshSecret); err != nil {
		return 0, err
	}
	if claims.Type != tokenTypeRefresh {
		return 0, ErrInvalidToken
	}
	return subjectID(claims.Subject)
}

func (t *Tokens) registered(userID int, ttl time.Duration) jwt.RegisteredClaims {
	now := t.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (t *Tokens) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return err
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

func subjectID(subject string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(subject))
	if err != nil || id < 1 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// HashToken returns the hex SHA-256 digest stored in place of a refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
