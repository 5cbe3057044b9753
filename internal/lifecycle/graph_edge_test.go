package lifecycle_test

// Boundary cases for status parsing and the shape of the graphs.

import (
	"strings"
	"testing"

	"jobmate/fulfillment-service/internal/lifecycle"
)

// ParseStatus must be case-sensitive.
func TestParseStatus_CaseSensitive(t *testing.T) {
	for _, s := range lifecycle.RequestGraph.Statuses() {
		upper := strings.ToUpper(string(s))
		if _, err := lifecycle.RequestGraph.ParseStatus(upper); err == nil {
			t.Errorf("ParseStatus(%q) should reject uppercase value, got nil error", upper)
		}
	}
}

// ParseStatus must reject whitespace-padded strings.
func TestParseStatus_WithWhitespace(t *testing.T) {
	for _, s := range []string{" new", "new ", " under_review "} {
		if _, err := lifecycle.ApplicationGraph.ParseStatus(s); err == nil {
			t.Errorf("ParseStatus(%q) should reject padded value, got nil error", s)
		}
	}
}

// Self-transitions are never edges; Transition treats them as no-ops instead.
func TestIsTransitionAllowed_Self(t *testing.T) {
	for _, g := range []*lifecycle.Graph{lifecycle.RequestGraph, lifecycle.ApplicationGraph} {
		for _, s := range g.Statuses() {
			if g.IsSystemTransitionAllowed(s, s) {
				t.Errorf("%s: %s → %s should not be an edge", g.Entity(), s, s)
			}
		}
	}
}

// A rejected request stays rejected.
func TestRejectedRequestCannotReenter(t *testing.T) {
	for _, to := range lifecycle.RequestGraph.Statuses() {
		if lifecycle.RequestGraph.IsSystemTransitionAllowed(lifecycle.RequestRejected, to) {
			t.Errorf("rejected → %s should not be allowed", to)
		}
	}
}

// Approval can be skipped neither forwards nor backwards.
func TestApplication_NoSkipOrBackwards(t *testing.T) {
	g := lifecycle.ApplicationGraph
	cases := []struct{ from, to lifecycle.Status }{
		{lifecycle.ApplicationPending, lifecycle.ApplicationApproved},
		{lifecycle.ApplicationUnderReview, lifecycle.ApplicationOnboarding},
		{lifecycle.ApplicationApproved, lifecycle.ApplicationActive},
		{lifecycle.ApplicationApproved, lifecycle.ApplicationRejected},
		{lifecycle.ApplicationOnboarding, lifecycle.ApplicationApproved},
		{lifecycle.ApplicationUnderReview, lifecycle.ApplicationPending},
	}
	for _, c := range cases {
		if g.IsTransitionAllowed(c.from, c.to) {
			t.Errorf("IsTransitionAllowed(%s → %s) should be false", c.from, c.to)
		}
	}
}

func TestInitial(t *testing.T) {
	if got := lifecycle.RequestGraph.Initial(); got != lifecycle.RequestNew {
		t.Errorf("RequestGraph.Initial() = %s, want new", got)
	}
	if got := lifecycle.ApplicationGraph.Initial(); got != lifecycle.ApplicationPending {
		t.Errorf("ApplicationGraph.Initial() = %s, want pending", got)
	}
}
