// Package directory reads service providers. The core never writes to it.
package directory

import (
	"context"

	"jobmate/fulfillment-service/internal/matching"
	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/textnorm"
)

// Directory is the provider directory reader.
type Directory interface {
	// QueryProviders returns providers offering serviceType in area. With
	// activeOnly, only active services count.
	QueryProviders(ctx context.Context, serviceType string, area model.Location, activeOnly bool) ([]model.Provider, error)
	// GetProvider returns one provider or an apperr NotFound.
	GetProvider(ctx context.Context, id string) (*model.Provider, error)
}

// DefaultRadiusKm is how far from the area's coordinates a provider may be.
const DefaultRadiusKm = 50.0

// Offers reports whether p sells serviceType (folded comparison).
func Offers(p model.Provider, serviceType string, activeOnly bool) bool {
	match := textnorm.Matcher(serviceType)
	for _, s := range p.Services {
		if (s.Active || !activeOnly) && match(s.ServiceType) {
			return true
		}
	}
	return false
}

// InArea reports whether p serves area. With coordinates on both sides the
// provider must be within radiusKm; otherwise the area texts must overlap.
// An empty area matches everyone.
func InArea(p model.Provider, area model.Location, radiusKm float64) bool {
	if area.Geo != nil && p.Location.Geo != nil {
		return matching.Haversine(*area.Geo, *p.Location.Geo) <= radiusKm
	}
	if textnorm.Fold(area.Text) == "" {
		return true
	}
	return textnorm.ContainsAny(p.Location.Text, area.Text) || textnorm.ContainsAny(area.Text, p.Location.Text)
}

func filter(providers []model.Provider, serviceType string, area model.Location, activeOnly bool, radiusKm float64) []model.Provider {
	out := make([]model.Provider, 0, len(providers))
	for _, p := range providers {
		if Offers(p, serviceType, activeOnly) && InArea(p, area, radiusKm) {
			out = append(out, p)
		}
	}
	return out
}
