package lifecycle_test

import (
	"slices"
	"testing"

	"jobmate/fulfillment-service/internal/lifecycle"
	"jobmate/fulfillment-service/internal/model"
)

type pair struct{ from, to lifecycle.Status }

var requestEdges = []pair{
	{lifecycle.RequestNew, lifecycle.RequestProcessing},
	{lifecycle.RequestNew, lifecycle.RequestRejected},
	{lifecycle.RequestProcessing, lifecycle.RequestAssigned},
	{lifecycle.RequestProcessing, lifecycle.RequestOnHold},
	{lifecycle.RequestProcessing, lifecycle.RequestRejected},
	{lifecycle.RequestAssigned, lifecycle.RequestCancelled},
	{lifecycle.RequestOnHold, lifecycle.RequestProcessing},
	{lifecycle.RequestOnHold, lifecycle.RequestRejected},
}

var applicationEdges = []pair{
	{lifecycle.ApplicationPending, lifecycle.ApplicationUnderReview},
	{lifecycle.ApplicationPending, lifecycle.ApplicationRejected},
	{lifecycle.ApplicationUnderReview, lifecycle.ApplicationInterviewScheduled},
	{lifecycle.ApplicationUnderReview, lifecycle.ApplicationApproved},
	{lifecycle.ApplicationUnderReview, lifecycle.ApplicationRejected},
	{lifecycle.ApplicationInterviewScheduled, lifecycle.ApplicationApproved},
	{lifecycle.ApplicationInterviewScheduled, lifecycle.ApplicationRejected},
	{lifecycle.ApplicationApproved, lifecycle.ApplicationOnboarding},
	{lifecycle.ApplicationOnboarding, lifecycle.ApplicationActive},
}

// ── ParseStatus ────────────────────────────────────────────────────────────

func TestParseStatus_ValidValues(t *testing.T) {
	for _, g := range []*lifecycle.Graph{lifecycle.RequestGraph, lifecycle.ApplicationGraph} {
		for _, s := range g.Statuses() {
			got, err := g.ParseStatus(string(s))
			if err != nil {
				t.Errorf("%s.ParseStatus(%q) returned unexpected error: %v", g.Entity(), s, err)
			}
			if got != s {
				t.Errorf("%s.ParseStatus(%q) = %q, want %q", g.Entity(), s, got, s)
			}
		}
	}
}

func TestParseStatus_InvalidValue(t *testing.T) {
	if _, err := lifecycle.RequestGraph.ParseStatus("UNKNOWN"); err == nil {
		t.Error("ParseStatus(\"UNKNOWN\") expected error, got nil")
	}
	if _, err := lifecycle.RequestGraph.ParseStatus(""); err == nil {
		t.Error("ParseStatus(\"\") expected error, got nil")
	}
}

// A status of one graph is not a status of the other.
func TestParseStatus_ForeignGraph(t *testing.T) {
	if _, err := lifecycle.RequestGraph.ParseStatus("pending"); err == nil {
		t.Error("request graph accepted application status pending")
	}
	if _, err := lifecycle.ApplicationGraph.ParseStatus("converted"); err == nil {
		t.Error("application graph accepted request status converted")
	}
}

// ── IsTransitionAllowed: full matrix ─────────────────────────────────────

func TestIsTransitionAllowed_Matrix(t *testing.T) {
	cases := []struct {
		g     *lifecycle.Graph
		edges []pair
	}{
		{lifecycle.RequestGraph, requestEdges},
		{lifecycle.ApplicationGraph, applicationEdges},
	}
	for _, c := range cases {
		for _, from := range c.g.Statuses() {
			for _, to := range c.g.Statuses() {
				want := slices.Contains(c.edges, pair{from, to})
				if got := c.g.IsTransitionAllowed(from, to); got != want {
					t.Errorf("%s: IsTransitionAllowed(%s → %s) = %v, want %v", c.g.Entity(), from, to, got, want)
				}
			}
		}
	}
}

// ── system-only edge ───────────────────────────────────────────────────────

func TestConvertedIsSystemOnly(t *testing.T) {
	g := lifecycle.RequestGraph
	if g.IsTransitionAllowed(lifecycle.RequestAssigned, lifecycle.RequestConverted) {
		t.Error("actors must not move assigned → converted")
	}
	if !g.IsSystemTransitionAllowed(lifecycle.RequestAssigned, lifecycle.RequestConverted) {
		t.Error("the system must be able to move assigned → converted")
	}
	if slices.Contains(g.Next(lifecycle.RequestAssigned), lifecycle.RequestConverted) {
		t.Error("Next(assigned) must not offer converted")
	}
}

// ── terminal states ────────────────────────────────────────────────────────

func TestIsTerminal(t *testing.T) {
	cases := []struct {
		g         *lifecycle.Graph
		terminals []lifecycle.Status
	}{
		{lifecycle.RequestGraph, []lifecycle.Status{lifecycle.RequestConverted, lifecycle.RequestCancelled, lifecycle.RequestRejected}},
		{lifecycle.ApplicationGraph, []lifecycle.Status{lifecycle.ApplicationActive, lifecycle.ApplicationRejected}},
	}
	for _, c := range cases {
		for _, s := range c.g.Statuses() {
			want := slices.Contains(c.terminals, s)
			if got := c.g.IsTerminal(s); got != want {
				t.Errorf("%s: IsTerminal(%s) = %v, want %v", c.g.Entity(), s, got, want)
			}
		}
	}
}

// ── Path ───────────────────────────────────────────────────────────────────

func TestPath(t *testing.T) {
	g := lifecycle.RequestGraph
	cases := []struct {
		from, to lifecycle.Status
		want     []lifecycle.Status
		ok       bool
	}{
		{lifecycle.RequestNew, lifecycle.RequestConverted,
			[]lifecycle.Status{lifecycle.RequestProcessing, lifecycle.RequestAssigned, lifecycle.RequestConverted}, true},
		{lifecycle.RequestOnHold, lifecycle.RequestConverted,
			[]lifecycle.Status{lifecycle.RequestProcessing, lifecycle.RequestAssigned, lifecycle.RequestConverted}, true},
		{lifecycle.RequestAssigned, lifecycle.RequestConverted, []lifecycle.Status{lifecycle.RequestConverted}, true},
		{lifecycle.RequestConverted, lifecycle.RequestConverted, nil, true},
		{lifecycle.RequestRejected, lifecycle.RequestConverted, nil, false},
		{lifecycle.RequestCancelled, lifecycle.RequestProcessing, nil, false},
	}
	for _, c := range cases {
		got, ok := g.Path(c.from, c.to)
		if ok != c.ok || !slices.Equal(got, c.want) {
			t.Errorf("Path(%s, %s) = %v, %v; want %v, %v", c.from, c.to, got, ok, c.want, c.ok)
		}
	}
}

func TestGraphFor(t *testing.T) {
	if g, err := lifecycle.GraphFor(model.EntityRequest); err != nil || g != lifecycle.RequestGraph {
		t.Errorf("GraphFor(request) = %v, %v", g, err)
	}
	if g, err := lifecycle.GraphFor(model.EntityApplication); err != nil || g != lifecycle.ApplicationGraph {
		t.Errorf("GraphFor(application) = %v, %v", g, err)
	}
	if _, err := lifecycle.GraphFor("invoice"); err == nil {
		t.Error("GraphFor(invoice) expected error, got nil")
	}
}
