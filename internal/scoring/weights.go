package scoring

import (
	"fmt"
	"math"
)

// basisPoints is the fixed-point scale weights are converted to.
const basisPoints = 10000

// MaxWeight bounds a single weight so the fixed-point sums stay within int64.
const MaxWeight = 1e6

// Weights are the relative contributions of each component to the overall score.
type Weights struct {
	Skill      float64 `mapstructure:"skill" json:"skill"`
	Experience float64 `mapstructure:"experience" json:"experience"`
	Education  float64 `mapstructure:"education" json:"education"`
	Location   float64 `mapstructure:"location" json:"location"`
	JobType    float64 `mapstructure:"job_type" json:"jobType"`
}

// DefaultWeights returns the default component weighting.
func DefaultWeights() Weights {
	return Weights{
		Skill:      0.4,
		Experience: 0.2,
		Education:  0.15,
		Location:   0.15,
		JobType:    0.1,
	}
}

// WeightsError reports an unusable weight configuration.
type WeightsError struct {
	Component string
	Message   string
}

func (e *WeightsError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("invalid scoring weights: %s", e.Message)
	}
	return fmt.Sprintf("invalid scoring weight %s: %s", e.Component, e.Message)
}

func (w Weights) named() [5]struct {
	name  string
	value float64
} {
	return [5]struct {
		name  string
		value float64
	}{
		{"skill", w.Skill},
		{"experience", w.Experience},
		{"education", w.Education},
		{"location", w.Location},
		{"job_type", w.JobType},
	}
}

// Validate rejects negative, non-finite or oversized weights and weightings
// that sum to zero.
func (w Weights) Validate() error {
	for _, c := range w.named() {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &WeightsError{Component: c.name, Message: "must be finite"}
		}
		if c.value < 0 {
			return &WeightsError{Component: c.name, Message: "must not be negative"}
		}
		if c.value > MaxWeight {
			return &WeightsError{Component: c.name, Message: fmt.Sprintf("must not exceed %g", MaxWeight)}
		}
	}
	bp := w.basisPoints()
	if bp[0]+bp[1]+bp[2]+bp[3]+bp[4] == 0 {
		return &WeightsError{Message: "weights must not sum to zero"}
	}
	return nil
}

// basisPoints converts weights to integers so scoring never touches floating point.
func (w Weights) basisPoints() [5]int64 {
	var out [5]int64
	for i, c := range w.named() {
		out[i] = int64(math.Round(c.value * basisPoints))
	}
	return out
}
