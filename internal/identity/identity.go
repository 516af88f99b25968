// Package identity resolves inbound requests to a single validated identity:
// either an authenticated account or an anonymous cookie session. Both kinds
// are equally valid keys for payment records.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Kind string

const (
	KindAccount Kind = "account"
	KindSession Kind = "session"
)

var ErrInvalidKey = errors.New("invalid identity key")

// Identity is a discriminated identity value. Exactly one of AccountID or
// SessionID is set, according to Kind.
type Identity struct {
	Kind      Kind
	AccountID snowflake.ID
	SessionID string
	Admin     bool
}

func ForAccount(id snowflake.ID, admin bool) Identity {
	return Identity{Kind: KindAccount, AccountID: id, Admin: admin}
}

func ForSession(sessionID string) Identity {
	return Identity{Kind: KindSession, SessionID: strings.TrimSpace(sessionID)}
}

func (i Identity) IsAccount() bool {
	return i.Kind == KindAccount
}

func (i Identity) IsZero() bool {
	return i.Kind == ""
}

// Key returns the stable string key under which payment and free-usage rows
// are stored for this identity.
func (i Identity) Key() string {
	switch i.Kind {
	case KindAccount:
		return fmt.Sprintf("account:%d", i.AccountID)
	case KindSession:
		return "session:" + i.SessionID
	default:
		return ""
	}
}

// ParseKey reverses Key. It is used when decoding external payment
// references back into an identity without a database lookup.
func ParseKey(key string) (Identity, error) {
	kind, value, ok := strings.Cut(key, ":")
	if !ok || strings.TrimSpace(value) == "" {
		return Identity{}, ErrInvalidKey
	}
	switch Kind(kind) {
	case KindAccount:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id <= 0 {
			return Identity{}, ErrInvalidKey
		}
		return ForAccount(snowflake.ID(id), false), nil
	case KindSession:
		return ForSession(value), nil
	default:
		return Identity{}, ErrInvalidKey
	}
}
