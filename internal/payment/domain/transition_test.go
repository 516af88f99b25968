package domain_test

import (
	"testing"

	"github.com/cvforge/cvforge/internal/payment/domain"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		name    string
		current domain.Status
		next    domain.Status
		want    domain.TransitionResult
	}{
		{"pending to approved", domain.StatusPending, domain.StatusApproved, domain.TransitionApplied},
		{"pending to rejected", domain.StatusPending, domain.StatusRejected, domain.TransitionApplied},
		{"approved to refunded", domain.StatusApproved, domain.StatusRefunded, domain.TransitionApplied},
		{"approved replay", domain.StatusApproved, domain.StatusApproved, domain.TransitionNoop},
		{"rejected replay", domain.StatusRejected, domain.StatusRejected, domain.TransitionNoop},
		{"approved back to pending", domain.StatusApproved, domain.StatusPending, domain.TransitionIllegal},
		{"rejected to approved", domain.StatusRejected, domain.StatusApproved, domain.TransitionIllegal},
		{"pending to refunded", domain.StatusPending, domain.StatusRefunded, domain.TransitionIllegal},
		{"refunded to approved", domain.StatusRefunded, domain.StatusApproved, domain.TransitionIllegal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := domain.Transition(tc.current, tc.next); got != tc.want {
				t.Fatalf("Transition(%s, %s) = %s, want %s", tc.current, tc.next, got, tc.want)
			}
		})
	}
}

func TestTransitionSources(t *testing.T) {
	if got := domain.TransitionSources(domain.StatusApproved); len(got) != 1 || got[0] != domain.StatusPending {
		t.Fatalf("sources for approved = %v", got)
	}
	if got := domain.TransitionSources(domain.StatusRefunded); len(got) != 1 || got[0] != domain.StatusApproved {
		t.Fatalf("sources for refunded = %v", got)
	}
	if got := domain.TransitionSources(domain.StatusPending); got != nil {
		t.Fatalf("sources for pending = %v, want none", got)
	}
}
