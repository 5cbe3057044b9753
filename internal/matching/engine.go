// Package matching scores and ranks candidate providers for a service request.
//
// Scoring is a pure function of the criteria and the candidate set: the same
// inputs always produce the same ranking, ties broken by ascending provider id.
package matching

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/textnorm"
)

// ─── Types ───────────────────────────────────────────────────────────────────

// Criteria describes what a request needs.
type Criteria struct {
	ServiceType    string          `json:"serviceType"`
	Location       model.Location  `json:"location"`
	Urgency        model.Urgency   `json:"urgencyLevel"`
	MinRating      float64         `json:"minRating"`
	MaxPrice       decimal.Decimal `json:"maxPrice"`
	UseGeolocation bool            `json:"useGeolocation"`
	// Limit caps the returned candidates; 0 returns all.
	Limit int `json:"limit,omitempty"`
	// RecommendCount overrides the tuning's top-N; 0 keeps it.
	RecommendCount int `json:"recommendCount,omitempty"`
}

// Candidate is one provider that passed the hard filters. It is a value:
// nothing downstream mutates it.
type Candidate struct {
	ProviderID      string          `json:"providerId"`
	BusinessName    string          `json:"businessName"`
	ServiceID       string          `json:"serviceId"`
	HourlyRate      decimal.Decimal `json:"hourlyRate"`
	Rating          float64         `json:"rating"`
	DistanceKm      *float64        `json:"distanceKm"`
	RatingScore     float64         `json:"ratingScore"`
	DistanceScore   float64         `json:"distanceScore"`
	PriceScore      float64         `json:"priceScore"`
	UrgencyFitScore float64         `json:"urgencyFitScore"`
	CompositeScore  int             `json:"compositeScore"`
	Recommended     bool            `json:"recommended"`
}

// Competition levels.
const (
	CompetitionLow    = "low"
	CompetitionMedium = "medium"
	CompetitionHigh   = "high"
)

// Quality summarises a search.
type Quality struct {
	Score          float64
	ProvidersFound int
	// AvgDistanceKm is nil when no candidate has a known distance.
	AvgDistanceKm    *float64
	CompetitionLevel string
}

// MarshalJSON renders a missing average distance as "unknown".
func (q Quality) MarshalJSON() ([]byte, error) {
	var avg any = "unknown"
	if q.AvgDistanceKm != nil {
		avg = *q.AvgDistanceKm
	}
	return json.Marshal(struct {
		Score            float64 `json:"score"`
		ProvidersFound   int     `json:"providersFound"`
		AvgDistance      any     `json:"avgDistance"`
		CompetitionLevel string  `json:"competitionLevel"`
	}{q.Score, q.ProvidersFound, avg, q.CompetitionLevel})
}

// Result is the outcome of a search.
type Result struct {
	Candidates  []Candidate `json:"candidates"`
	Recommended []Candidate `json:"recommended"`
	Quality     Quality     `json:"quality"`
}

// ProviderSource is the read-only provider directory.
type ProviderSource interface {
	QueryProviders(ctx context.Context, serviceType string, area model.Location, activeOnly bool) ([]model.Provider, error)
}

// ─── Engine ──────────────────────────────────────────────────────────────────

// Engine runs searches against a provider directory.
type Engine struct {
	dir      ProviderSource
	tuning   Tuning
	distance DistanceFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithTuning replaces the default tuning. It must already be validated.
func WithTuning(t Tuning) Option { return func(e *Engine) { e.tuning = t } }

// WithDistance replaces the haversine distance.
func WithDistance(f DistanceFunc) Option { return func(e *Engine) { e.distance = f } }

// NewEngine returns an engine reading candidates from dir.
func NewEngine(dir ProviderSource, opts ...Option) *Engine {
	e := &Engine{dir: dir, tuning: DefaultTuning(), distance: Haversine}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tuning returns the tuning in use.
func (e *Engine) Tuning() Tuning { return e.tuning }

// Search validates c, fetches active providers for the service type and area
// and ranks them. Zero eligible providers is an empty result, not an error.
func (e *Engine) Search(ctx context.Context, c Criteria) (*Result, error) {
	c, err := normalise(c)
	if err != nil {
		return nil, err
	}
	providers, err := e.dir.QueryProviders(ctx, c.ServiceType, c.Location, true)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "provider directory")
	}
	return e.Rank(c, providers), nil
}

// Rank applies the hard filters, scores and orders providers. It performs no
// I/O; c is assumed valid.
func (e *Engine) Rank(c Criteria, providers []model.Provider) *Result {
	offers := textnorm.Matcher(c.ServiceType)

	candidates := make([]Candidate, 0, len(providers))
	for _, p := range providers {
		svc, ok := p.ActiveService(offers)
		if !ok || p.RatingAverage < c.MinRating || svc.HourlyRate.GreaterThan(c.MaxPrice) {
			continue
		}
		candidates = append(candidates, e.score(c, p, svc))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CompositeScore != b.CompositeScore {
			return a.CompositeScore > b.CompositeScore
		}
		return a.ProviderID < b.ProviderID
	})
	quality := summarise(candidates)

	n := e.tuning.RecommendCount
	if c.RecommendCount > 0 {
		n = c.RecommendCount
	}
	recommended := e.recommend(candidates, n)
	for i := range candidates {
		for _, r := range recommended {
			if r.ProviderID == candidates[i].ProviderID {
				candidates[i].Recommended = true
			}
		}
	}
	for i := range recommended {
		recommended[i].Recommended = true
	}

	// Limit pages the list only; quality and recommendations see the whole pool.
	if c.Limit > 0 && len(candidates) > c.Limit {
		candidates = candidates[:c.Limit]
	}
	return &Result{Candidates: candidates, Recommended: recommended, Quality: quality}
}

func (e *Engine) score(c Criteria, p model.Provider, svc model.ProviderService) Candidate {
	t := e.tuning
	cand := Candidate{
		ProviderID:   p.ID,
		BusinessName: p.BusinessName,
		ServiceID:    svc.ID,
		HourlyRate:   svc.HourlyRate,
		Rating:       p.RatingAverage,
	}

	cand.RatingScore = clamp(p.RatingAverage / 5 * 100)

	cand.DistanceScore = t.NeutralDistanceScore
	if c.Location.Geo != nil && p.Location.Geo != nil {
		d := e.distance(*c.Location.Geo, *p.Location.Geo)
		cand.DistanceKm = &d
		if c.UseGeolocation {
			cand.DistanceScore = clamp(100 - d*t.DistanceDecayPerKm)
		}
	}

	maxPrice := c.MaxPrice.InexactFloat64()
	cand.PriceScore = clamp(100 * (maxPrice - svc.HourlyRate.InexactFloat64()) / maxPrice)

	cand.UrgencyFitScore = t.UrgencyDefaultScore
	if c.Urgency.IsPressing() && p.Available {
		cand.UrgencyFitScore = t.UrgencyAvailableScore
	}

	w := t.Weights
	composite := w.Rating*cand.RatingScore + w.Distance*cand.DistanceScore +
		w.Price*cand.PriceScore + w.Urgency*cand.UrgencyFitScore
	cand.CompositeScore = int(clamp(math.Round(composite)))
	return cand
}

// recommend picks the top n qualifying candidates by score, then shorter
// distance (unknown last), then provider id.
func (e *Engine) recommend(candidates []Candidate, n int) []Candidate {
	var eligible []Candidate
	for _, c := range candidates {
		if c.CompositeScore >= e.tuning.RecommendThreshold && c.Rating >= e.tuning.RecommendMinRating {
			eligible = append(eligible, c)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.CompositeScore != b.CompositeScore {
			return a.CompositeScore > b.CompositeScore
		}
		switch {
		case a.DistanceKm != nil && b.DistanceKm != nil && *a.DistanceKm != *b.DistanceKm:
			return *a.DistanceKm < *b.DistanceKm
		case a.DistanceKm != nil && b.DistanceKm == nil:
			return true
		case a.DistanceKm == nil && b.DistanceKm != nil:
			return false
		}
		return a.ProviderID < b.ProviderID
	})
	if len(eligible) > n {
		eligible = eligible[:n]
	}
	if eligible == nil {
		eligible = []Candidate{}
	}
	return eligible
}

func summarise(candidates []Candidate) Quality {
	q := Quality{ProvidersFound: len(candidates)}
	switch {
	case len(candidates) < 3:
		q.CompetitionLevel = CompetitionLow
	case len(candidates) <= 8:
		q.CompetitionLevel = CompetitionMedium
	default:
		q.CompetitionLevel = CompetitionHigh
	}
	if len(candidates) == 0 {
		return q
	}

	var total, dist float64
	var withGeo int
	for _, c := range candidates {
		total += float64(c.CompositeScore)
		if c.DistanceKm != nil {
			dist += *c.DistanceKm
			withGeo++
		}
	}
	q.Score = round1(total / float64(len(candidates)))
	if withGeo > 0 {
		avg := round1(dist / float64(withGeo))
		q.AvgDistanceKm = &avg
	}
	return q
}

func normalise(c Criteria) (Criteria, error) {
	if textnorm.Fold(c.ServiceType) == "" {
		return c, apperr.Validation("serviceType is required")
	}
	u, ok := model.ParseUrgency(string(c.Urgency))
	if !ok {
		return c, apperr.Validation("unknown urgency level %q", c.Urgency)
	}
	c.Urgency = u
	if c.MinRating < 0 || c.MinRating > 5 {
		return c, apperr.Validation("minRating must be within [0,5], got %v", c.MinRating)
	}
	if !c.MaxPrice.IsPositive() {
		return c, apperr.Validation("maxPrice must be positive, got %s", c.MaxPrice)
	}
	if c.Limit < 0 || c.RecommendCount < 0 {
		return c, apperr.Validation("limit and recommendCount must not be negative")
	}
	if g := c.Location.Geo; g != nil && (math.Abs(g.Lat) > 90 || math.Abs(g.Lng) > 180) {
		return c, apperr.Validation("coordinates out of range: %v", *g)
	}
	return c, nil
}

func clamp(v float64) float64 { return math.Max(0, math.Min(100, v)) }

func round1(v float64) float64 { return math.Round(v*10) / 10 }
