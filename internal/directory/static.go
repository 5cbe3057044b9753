package directory

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"jobmate/fulfillment-service/internal/apperr"
	"jobmate/fulfillment-service/internal/model"
)

// Static serves a fixed provider list, typically loaded from a YAML fixture.
type Static struct {
	providers []model.Provider
	radiusKm  float64
}

// NewStatic returns a directory over providers, ordered by id.
func NewStatic(providers []model.Provider) *Static {
	ps := append([]model.Provider(nil), providers...)
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	return &Static{providers: ps, radiusKm: DefaultRadiusKm}
}

// LoadStatic reads a YAML file of the form `providers: [...]`.
func LoadStatic(path string) (*Static, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var doc struct {
		Providers []model.Provider `yaml:"providers"`
	}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for i, p := range doc.Providers {
		if p.ID == "" {
			return nil, fmt.Errorf("%s: provider #%d has no id", path, i)
		}
	}
	return NewStatic(doc.Providers), nil
}

func (s *Static) QueryProviders(_ context.Context, serviceType string, area model.Location, activeOnly bool) ([]model.Provider, error) {
	return filter(s.providers, serviceType, area, activeOnly, s.radiusKm), nil
}

func (s *Static) GetProvider(_ context.Context, id string) (*model.Provider, error) {
	for _, p := range s.providers {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, apperr.NotFound("provider %s not found", id)
}
