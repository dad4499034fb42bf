package estimate

import (
	"math"

	"github.com/owoblo/quote2move/internal/model"
)

// Request is the input to the move-time estimator. Trip fields are inlined
// in JSON: distance, travelTime, origin and destination.
type Request struct {
	Detections []model.Detection `json:"detections"`
	model.Trip

	// OriginAddress and DestinationAddress are resolved to distance and
	// travel time when both of those are zero.
	OriginAddress      string `json:"originAddress,omitempty"`
	DestinationAddress string `json:"destinationAddress,omitempty"`
}

// Validate checks numeric fields and enum values.
func (r Request) Validate() error {
	if !finiteNonNeg(r.DistanceMiles) {
		return model.NewValidationError("distance", "must be a non-negative number")
	}
	if !finiteNonNeg(r.TravelMinutes) {
		return model.NewValidationError("travelTime", "must be a non-negative number")
	}
	if err := validateEndpoint("origin", r.Origin); err != nil {
		return err
	}
	if err := validateEndpoint("destination", r.Destination); err != nil {
		return err
	}
	for _, d := range r.Detections {
		if d.Qty < 0 {
			return model.NewValidationError("detections.qty", "must not be negative")
		}
	}
	return nil
}

// needsLookup reports whether travel must be resolved from addresses.
func (r Request) needsLookup() bool {
	return r.DistanceMiles == 0 && r.TravelMinutes == 0 &&
		r.OriginAddress != "" && r.DestinationAddress != ""
}

func validateEndpoint(name string, e model.Endpoint) error {
	if e.Building != "" && !e.Building.Valid() {
		return model.NewValidationError(name+".building", "must be house, apartment, condo or business")
	}
	if e.Parking != "" && !e.Parking.Valid() {
		return model.NewValidationError(name+".parking", "must be driveway, street, parking_lot or difficult")
	}
	if e.Floor != nil && *e.Floor < 0 {
		return model.NewValidationError(name+".floor", "must not be negative")
	}
	return nil
}

func finiteNonNeg(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
