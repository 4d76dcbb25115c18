package optimizer

import (
	"math"

	"remanflow/domain"
)

// Weights are the objective coefficients of one priority. They sum to 1.
type Weights struct {
	Cost      float64
	Time      float64
	Quality   float64
	Emissions float64
}

func (w Weights) Sum() float64 { return w.Cost + w.Time + w.Quality + w.Emissions }

func WeightsFor(p domain.Priority) Weights {
	switch p {
	case domain.PriorityLowestCost:
		return Weights{Cost: 0.8, Time: 0.1, Quality: 0.05, Emissions: 0.05}
	case domain.PriorityFastestDelivery:
		return Weights{Cost: 0.1, Time: 0.8, Quality: 0.05, Emissions: 0.05}
	case domain.PriorityHighestQuality:
		return Weights{Cost: 0.2, Time: 0.2, Quality: 0.5, Emissions: 0.1}
	case domain.PriorityLowestEmissions:
		return Weights{Cost: 0.1, Time: 0.1, Quality: 0.2, Emissions: 0.6}
	default:
		return Weights{Cost: 0.25, Time: 0.25, Quality: 0.25, Emissions: 0.25}
	}
}

// Range is the min/max of one metric across the candidate set.
type Range struct {
	Min float64
	Max float64
}

func newRange() Range { return Range{Min: math.Inf(1), Max: math.Inf(-1)} }

func (r *Range) add(v float64) {
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

// Normalize maps v into [0,1] by min-max scaling. A degenerate range maps to 0.
func (r Range) Normalize(v float64) float64 {
	span := r.Max - r.Min
	if math.IsInf(span, 0) || math.IsNaN(span) || span < 1e-12 {
		return 0
	}
	return clamp01((v - r.Min) / span)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
