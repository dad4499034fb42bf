// Package truck plans how many trucks a move needs.
package truck

import (
	"math"

	"github.com/owoblo/quote2move/internal/model"
)

// DefaultCapacity is the usable volume of one moving truck in cubic feet.
const DefaultCapacity = 1700.0

// Planner sizes the truck fleet from total volume. Its advice never blocks a
// quote.
type Planner struct {
	Capacity float64
}

// NewPlanner returns a Planner. A non-positive capacity uses DefaultCapacity.
func NewPlanner(capacity float64) *Planner {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Planner{Capacity: capacity}
}

// Plan returns the truck plan for totalCubicFeet. Negative or non-finite
// totals are treated as an empty move.
func (p *Planner) Plan(totalCubicFeet float64) model.TruckPlan {
	capacity := p.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if math.IsNaN(totalCubicFeet) || math.IsInf(totalCubicFeet, 0) || totalCubicFeet < 0 {
		totalCubicFeet = 0
	}

	needed := int(math.Ceil(totalCubicFeet / capacity))
	return model.TruckPlan{
		TotalCubicFeet:     totalCubicFeet,
		CapacityPerTruck:   capacity,
		TrucksNeeded:       needed,
		ExceedsSingleTruck: totalCubicFeet > capacity,
	}
}

// Plan is shorthand for a default-capacity planner.
func Plan(totalCubicFeet float64) model.TruckPlan {
	return NewPlanner(DefaultCapacity).Plan(totalCubicFeet)
}
