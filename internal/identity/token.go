package identity

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 24 * time.Hour

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrNoTokenSecret = errors.New("auth token secret not configured")
)

type accountClaims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies account bearer tokens.
type TokenManager struct {
	secret []byte
}

func NewTokenManager(cfg config.Config) *TokenManager {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return &TokenManager{}
	}
	return &TokenManager{secret: []byte(secret)}
}

func (m *TokenManager) Issue(accountID snowflake.ID, admin bool, now time.Time) (string, error) {
	if len(m.secret) == 0 {
		return "", ErrNoTokenSecret
	}
	claims := accountClaims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(int64(accountID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse validates a bearer token and returns the account identity it names.
func (m *TokenManager) Parse(tokenString string) (Identity, error) {
	if len(m.secret) == 0 {
		return Identity{}, ErrNoTokenSecret
	}

	claims := &accountClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	accountID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || accountID <= 0 {
		return Identity{}, ErrInvalidToken
	}
	return ForAccount(snowflake.ID(accountID), claims.Admin), nil
}
