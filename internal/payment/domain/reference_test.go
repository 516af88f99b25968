package domain_test

import (
	"testing"

	"github.com/cvforge/cvforge/internal/identity"
	"github.com/cvforge/cvforge/internal/payment/domain"
)

func TestReferenceRoundTrip(t *testing.T) {
	session := identity.ForSession("3f1b8a34-6f68-4f5e-9f5a-1c2d3e4f5a6b")
	ref := domain.FormatReference(session, "professional")

	ident, product, err := domain.ParseReference(ref)
	if err != nil {
		t.Fatalf("parse reference: %v", err)
	}
	if ident.Key() != session.Key() {
		t.Fatalf("identity key %q, want %q", ident.Key(), session.Key())
	}
	if product != "professional" {
		t.Fatalf("product %q, want professional", product)
	}
}

func TestReferenceAccountIdentity(t *testing.T) {
	account := identity.ForAccount(1234567890, false)
	ref := domain.FormatReference(account, "interview-pack")

	ident, product, err := domain.ParseReference(ref)
	if err != nil {
		t.Fatalf("parse reference: %v", err)
	}
	if !ident.IsAccount() || ident.AccountID != account.AccountID {
		t.Fatalf("parsed identity %+v, want account %d", ident, account.AccountID)
	}
	if product != "interview-pack" {
		t.Fatalf("product %q, want interview-pack", product)
	}
}

func TestReferenceRejectsGarbage(t *testing.T) {
	for _, ref := range []string{"", "no-separator", "bogus:zzz|product", "session:abc|"} {
		if _, _, err := domain.ParseReference(ref); err == nil {
			t.Fatalf("expected error for %q", ref)
		}
	}
}
