package matching

import (
	"errors"
	"fmt"
	"math"
)

// Weights of the four sub-scores in the composite score. They must sum to 1.
type Weights struct {
	Rating   float64 `yaml:"rating" json:"rating"`
	Distance float64 `yaml:"distance" json:"distance"`
	Price    float64 `yaml:"price" json:"price"`
	Urgency  float64 `yaml:"urgency" json:"urgency"`
}

// Tuning holds every numeric knob of the engine.
type Tuning struct {
	Weights Weights `yaml:"weights" json:"weights"`

	// Score lost per kilometre; 2 means 50 km or more scores 0.
	DistanceDecayPerKm float64 `yaml:"distanceDecayPerKm" json:"distanceDecayPerKm"`
	// Distance score used when either side has no coordinates.
	NeutralDistanceScore float64 `yaml:"neutralDistanceScore" json:"neutralDistanceScore"`

	UrgencyAvailableScore float64 `yaml:"urgencyAvailableScore" json:"urgencyAvailableScore"`
	UrgencyDefaultScore   float64 `yaml:"urgencyDefaultScore" json:"urgencyDefaultScore"`

	RecommendThreshold int     `yaml:"recommendThreshold" json:"recommendThreshold"`
	RecommendMinRating float64 `yaml:"recommendMinRating" json:"recommendMinRating"`
	RecommendCount     int     `yaml:"recommendCount" json:"recommendCount"`
}

// DefaultTuning returns the stock configuration.
func DefaultTuning() Tuning {
	return Tuning{
		Weights:               Weights{Rating: 0.40, Distance: 0.25, Price: 0.20, Urgency: 0.15},
		DistanceDecayPerKm:    2,
		NeutralDistanceScore:  50,
		UrgencyAvailableScore: 100,
		UrgencyDefaultScore:   60,
		RecommendThreshold:    75,
		RecommendMinRating:    4.0,
		RecommendCount:        3,
	}
}

const weightTolerance = 0.001

// Validate checks the invariants that keep composite scores within [0,100].
func (t Tuning) Validate() error {
	var errs []error
	w := t.Weights
	for name, v := range map[string]float64{"rating": w.Rating, "distance": w.Distance, "price": w.Price, "urgency": w.Urgency} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("weight %s = %v, want [0,1]", name, v))
		}
	}
	if sum := w.Rating + w.Distance + w.Price + w.Urgency; math.Abs(sum-1) > weightTolerance {
		errs = append(errs, fmt.Errorf("weights sum to %v, want 1", sum))
	}
	if t.DistanceDecayPerKm <= 0 {
		errs = append(errs, errors.New("distanceDecayPerKm must be positive"))
	}
	for name, v := range map[string]float64{
		"neutralDistanceScore":  t.NeutralDistanceScore,
		"urgencyAvailableScore": t.UrgencyAvailableScore,
		"urgencyDefaultScore":   t.UrgencyDefaultScore,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("%s = %v, want [0,100]", name, v))
		}
	}
	if t.RecommendThreshold < 0 || t.RecommendThreshold > 100 {
		errs = append(errs, fmt.Errorf("recommendThreshold = %d, want [0,100]", t.RecommendThreshold))
	}
	if t.RecommendCount < 1 {
		errs = append(errs, errors.New("recommendCount must be at least 1"))
	}
	return errors.Join(errs...)
}
