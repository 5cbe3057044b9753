package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"jobmate/fulfillment-service/internal/matching"
)

// tuningSchema bounds every knob of the matching engine. The weight sum is
// checked separately by matching.Tuning.Validate.
const tuningSchema = `
#Score: >=0 & <=100

#Tuning: {
	weights: {
		rating:   >=0 & <=1
		distance: >=0 & <=1
		price:    >=0 & <=1
		urgency:  >=0 & <=1
	}
	distanceDecayPerKm:    >0
	neutralDistanceScore:  #Score
	urgencyAvailableScore: #Score
	urgencyDefaultScore:   #Score
	recommendThreshold:    int & #Score
	recommendMinRating:    >=0 & <=5
	recommendCount:        int & >=1
}
`

// LoadTuning reads a YAML weights file. Keys absent from the file keep their
// default; unknown keys are rejected.
func LoadTuning(path string) (matching.Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return matching.Tuning{}, fmt.Errorf("reading %s: %w", path, err)
	}
	t, err := ParseTuning(data)
	if err != nil {
		return matching.Tuning{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseTuning decodes YAML over the default tuning and validates the result.
func ParseTuning(data []byte) (matching.Tuning, error) {
	t := matching.DefaultTuning()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return matching.Tuning{}, fmt.Errorf("decode weights: %w", err)
	}
	if err := checkSchema(t); err != nil {
		return matching.Tuning{}, err
	}
	if err := t.Validate(); err != nil {
		return matching.Tuning{}, err
	}
	return t, nil
}

func checkSchema(t matching.Tuning) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(tuningSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("weights schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Tuning")).Unify(ctx.Encode(t))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("weights out of range: %w", err)
	}
	return nil
}
