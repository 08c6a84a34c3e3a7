package landmarks

import (
	"context"
	"maps"
)

var placeholderMeasurements = map[string]float64{
	"jaw_width":       120,
	"face_height":     180,
	"nose_length":     45,
	"cheekbone_width": 130,
}

// Placeholder returns a fixed set of measurements for any pair of photos. It is
// the default analyzer when no vision model is configured.
type Placeholder struct{}

func (Placeholder) Name() string {
	return NamePlaceholder
}

func (Placeholder) Analyze(ctx context.Context, front, side []byte) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return maps.Clone(placeholderMeasurements), nil
}
