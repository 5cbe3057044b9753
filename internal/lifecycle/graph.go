// Package lifecycle defines the status state machines for service requests
// and job applications, and the service that applies transitions.
//
// Service request graph:
//
//	new ──► processing ──► assigned ══► converted
//	 │          │   ▲          │
//	 │          ▼   │          └──► cancelled
//	 │        on_hold
//	 │          │
//	 └──────────┴──► rejected
//
// (══► is a system-only edge: only conversion may take it.)
//
// Job application graph:
//
//	pending ──► under_review ──► interview_scheduled ──► approved ──► onboarding ──► active
//	   │            │  │                 │                 ▲
//	   │            │  └─────────────────┼─────────────────┘
//	   └────────────┴────────────────────┴──► rejected
//
// converted, cancelled, rejected and active are terminal.
package lifecycle

import (
	"fmt"

	"jobmate/fulfillment-service/internal/model"
)

// Status is a value of either graph; the graph it belongs to decides validity.
type Status string

// Service request statuses.
const (
	RequestNew        Status = "new"
	RequestProcessing Status = "processing"
	RequestAssigned   Status = "assigned"
	RequestOnHold     Status = "on_hold"
	RequestConverted  Status = "converted"
	RequestCancelled  Status = "cancelled"
	RequestRejected   Status = "rejected"
)

// Job application statuses.
const (
	ApplicationPending            Status = "pending"
	ApplicationUnderReview        Status = "under_review"
	ApplicationInterviewScheduled Status = "interview_scheduled"
	ApplicationApproved           Status = "approved"
	ApplicationOnboarding         Status = "onboarding"
	ApplicationActive             Status = "active"
	ApplicationRejected           Status = "rejected"
)

// edge is one allowed move; systemOnly edges are refused on the actor path.
type edge struct {
	to         Status
	systemOnly bool
}

// Graph is one parameterised instance of the state machine.
type Graph struct {
	entity   model.EntityType
	initial  Status
	statuses []Status
	edges    map[Status][]edge
}

// RequestGraph governs service requests.
var RequestGraph = &Graph{
	entity:  model.EntityRequest,
	initial: RequestNew,
	statuses: []Status{
		RequestNew, RequestProcessing, RequestAssigned, RequestOnHold,
		RequestConverted, RequestCancelled, RequestRejected,
	},
	edges: map[Status][]edge{
		RequestNew:        {{to: RequestProcessing}, {to: RequestRejected}},
		RequestProcessing: {{to: RequestAssigned}, {to: RequestOnHold}, {to: RequestRejected}},
		RequestAssigned:   {{to: RequestConverted, systemOnly: true}, {to: RequestCancelled}},
		RequestOnHold:     {{to: RequestProcessing}, {to: RequestRejected}},
		// converted, cancelled and rejected are terminal
	},
}

// ApplicationGraph governs job applications.
var ApplicationGraph = &Graph{
	entity:  model.EntityApplication,
	initial: ApplicationPending,
	statuses: []Status{
		ApplicationPending, ApplicationUnderReview, ApplicationInterviewScheduled,
		ApplicationApproved, ApplicationOnboarding, ApplicationActive, ApplicationRejected,
	},
	edges: map[Status][]edge{
		ApplicationPending:            {{to: ApplicationUnderReview}, {to: ApplicationRejected}},
		ApplicationUnderReview:        {{to: ApplicationInterviewScheduled}, {to: ApplicationApproved}, {to: ApplicationRejected}},
		ApplicationInterviewScheduled: {{to: ApplicationApproved}, {to: ApplicationRejected}},
		ApplicationApproved:           {{to: ApplicationOnboarding}},
		ApplicationOnboarding:         {{to: ApplicationActive}},
		// active and rejected are terminal
	},
}

// GraphFor returns the graph of an entity type.
func GraphFor(entity model.EntityType) (*Graph, error) {
	switch entity {
	case model.EntityRequest:
		return RequestGraph, nil
	case model.EntityApplication:
		return ApplicationGraph, nil
	}
	return nil, fmt.Errorf("unknown entity type %q", entity)
}

// Entity returns the entity type this graph governs.
func (g *Graph) Entity() model.EntityType { return g.entity }

// Initial returns the status new entities start in.
func (g *Graph) Initial() Status { return g.initial }

// Statuses returns every status of the graph in declaration order.
func (g *Graph) Statuses() []Status {
	return append([]Status(nil), g.statuses...)
}

// ParseStatus converts a raw string to a Status of this graph, returning an
// error for unknown values. Matching is exact: case and whitespace matter.
func (g *Graph) ParseStatus(s string) (Status, error) {
	for _, st := range g.statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown %s status %q", g.entity, s)
}

// IsTerminal reports whether s has no outgoing transitions.
func (g *Graph) IsTerminal(s Status) bool { return len(g.edges[s]) == 0 }

// IsTransitionAllowed returns true when an actor may move from → to.
// System-only edges are excluded.
func (g *Graph) IsTransitionAllowed(from, to Status) bool {
	e, ok := g.find(from, to)
	return ok && !e.systemOnly
}

// IsSystemTransitionAllowed returns true when the platform itself may move
// from → to, which includes system-only edges.
func (g *Graph) IsSystemTransitionAllowed(from, to Status) bool {
	_, ok := g.find(from, to)
	return ok
}

// Next lists the statuses an actor may move to from s.
func (g *Graph) Next(s Status) []Status {
	next := make([]Status, 0, len(g.edges[s]))
	for _, e := range g.edges[s] {
		if !e.systemOnly {
			next = append(next, e.to)
		}
	}
	return next
}

// Path returns the shortest sequence of statuses leading from → to over all
// edges (system-only included), excluding from itself. ok is false when to
// is unreachable; an empty path means from == to.
func (g *Graph) Path(from, to Status) (path []Status, ok bool) {
	if from == to {
		return nil, true
	}
	prev := map[Status]Status{from: from}
	queue := []Status{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.edges[cur] {
			if _, seen := prev[e.to]; seen {
				continue
			}
			prev[e.to] = cur
			if e.to == to {
				for s := to; s != from; s = prev[s] {
					path = append([]Status{s}, path...)
				}
				return path, true
			}
			queue = append(queue, e.to)
		}
	}
	return nil, false
}

func (g *Graph) find(from, to Status) (edge, bool) {
	for _, e := range g.edges[from] {
		if e.to == to {
			return e, true
		}
	}
	return edge{}, false
}
