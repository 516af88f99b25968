package domain

import (
	"strings"

	"github.com/cvforge/cvforge/internal/identity"
)

const referenceSeparator = "|"

// FormatReference deterministically encodes (identity, product) into the
// external reference sent to the processor. It lets a webhook notification be
// mapped back to an identity and product without a database lookup when the
// processor's payment id is not yet known locally.
func FormatReference(ident identity.Identity, product string) string {
	return ident.Key() + referenceSeparator + strings.TrimSpace(product)
}

// ParseReference reverses FormatReference.
func ParseReference(reference string) (identity.Identity, string, error) {
	key, product, ok := strings.Cut(reference, referenceSeparator)
	if !ok || strings.TrimSpace(product) == "" {
		return identity.Identity{}, "", ErrInvalidReference
	}
	ident, err := identity.ParseKey(key)
	if err != nil {
		return identity.Identity{}, "", ErrInvalidReference
	}
	return ident, strings.TrimSpace(product), nil
}
