package estimate

import (
	"math"

	"github.com/owoblo/quote2move/internal/model"
	"github.com/owoblo/quote2move/internal/truck"
)

// Share of labour hours spent loading; the rest is unloading.
const loadingShare = 0.55

// Multiplier returns the additive complexity multiplier for trip.
func Multiplier(trip model.Trip, elevatorWaits bool, p Policy) float64 {
	stairs := 0.0
	for _, e := range []model.Endpoint{trip.Origin, trip.Destination} {
		if e.Stairs {
			floors := math.Max(float64(e.FloorNumber()-1), 1)
			stairs += p.StairsPerFloor * floors
		}
	}
	stairs = math.Min(stairs, p.StairsCap)

	extra := stairs
	for _, e := range []model.Endpoint{trip.Origin, trip.Destination} {
		if e.Elevator && elevatorWaits {
			extra += p.ElevatorPerEnd
		}
		if e.Parking == model.ParkingDifficult {
			extra += p.DifficultParking
		}
	}
	diff := math.Abs(float64(trip.Origin.FloorNumber() - trip.Destination.FloorNumber()))
	extra += p.FloorMismatch * diff

	return 1 + extra
}

// hoursInput is everything the hour and price arithmetic depends on.
type hoursInput struct {
	labourHours float64
	multiplier  float64
	crew        int
	trip        model.Trip
	plan        model.TruckPlan
	specialties []model.SpecialtyItem
}

// compute builds a MoveEstimate from labour hours. Used by both the primary
// path and the fallback so they share buffers, clamps and pricing.
func compute(in hoursInput, p Policy) *model.MoveEstimate {
	specialtyMins := 0.0
	surcharges := 0.0
	for _, s := range in.specialties {
		specialtyMins += s.ExtraTime
		surcharges += s.Surcharge
	}

	labour := in.labourHours + specialtyMins/60
	trucks := max(in.plan.TrucksNeeded, 1)
	travel := in.trip.TravelMinutes / 60 * 2
	setup := (p.SetupMinsPerTruck*float64(trucks) + p.ExtraTruckSetupMins*float64(trucks-1)) / 60
	raw := labour + travel + setup

	standard := round2(math.Max(raw*(1+p.StandardBuffer), p.MinHours))
	conservative := round2(math.Max(raw*(1+p.ConservativeBuffer), p.MinHours))
	conservative = math.Max(conservative, standard)

	rate, ambiguous := p.Rate(in.crew, trucks)
	base := round2(standard * rate)
	surcharges = round2(surcharges)
	preTax := round2(base + surcharges)
	tax := round2(preTax * p.TaxRate)
	postTax := round2(preTax + tax)

	hasStairs := in.trip.Origin.Stairs || in.trip.Destination.Stairs
	hasElevator := in.trip.Origin.Elevator || in.trip.Destination.Elevator

	return &model.MoveEstimate{
		HoursStandard:     standard,
		HoursConservative: conservative,
		CrewSize:          in.crew,
		Trucks:            trucks,
		CrewRate:          rate,
		RateAmbiguous:     ambiguous,
		SpecialtyItems:    in.specialties,
		BaseTotal:         base,
		SurchargeTotal:    surcharges,
		PreTaxTotal:       preTax,
		TaxRate:           p.TaxRate,
		Tax:               tax,
		PostTaxTotal:      postTax,
		Multiplier:        round2(in.multiplier),
		Breakdown: model.HoursBreakdown{
			Loading:   round2(labour * loadingShare),
			Travel:    round2(travel),
			Unloading: round2(labour * (1 - loadingShare)),
			Setup:     round2(setup),
			Buffer:    round2(standard - raw),
		},
		DetectedUpsells: []model.DetectedUpsell{},
		TruckPlan:       in.plan,
		Summary: model.Estimate{
			Crew:       in.crew,
			Rate:       rate,
			TravelMins: in.trip.TravelMinutes,
			Hours:      standard,
			Total:      postTax,
			Stairs:     hasStairs,
			Elevator:   hasElevator,
			SafetyPct:  p.StandardBuffer * 100,
		},
	}
}

// Compute prices a move from resolved volume totals and a judgment.
func Compute(totals model.VolumeTotals, trip model.Trip, j Judgment, p Policy) *model.MoveEstimate {
	plan := truck.NewPlanner(p.TruckCapacity).Plan(totals.TotalCubicFeet)
	crew := j.RecommendedCrew
	if crew < MinCrew || crew > MaxCrew {
		crew = CrewForVolume(totals.TotalCubicFeet)
	}
	mult := Multiplier(trip, j.ElevatorWaitsExpected, p)
	base := totals.TotalCubicFeet / 100 * p.EfficiencyFactor(crew)

	est := compute(hoursInput{
		labourHours: base * mult,
		multiplier:  mult,
		crew:        crew,
		trip:        trip,
		plan:        plan,
		specialties: Specialties(totals.Detections, j, p),
	}, p)
	est.Rationale = j.Rationale
	if len(j.Upsells) > 0 {
		est.DetectedUpsells = j.Upsells
	}
	return est
}

// Fallback prices a move without the model: fixed crew, fixed labour hours,
// round-trip travel, buffers and the minimum clamp. No specialty items.
func Fallback(totals model.VolumeTotals, trip model.Trip, crew int, labourHours float64, reason string, p Policy) *model.MoveEstimate {
	if crew < MinCrew || crew > MaxCrew {
		crew = MinCrew
	}
	if !finiteNonNeg(labourHours) || labourHours == 0 {
		labourHours = p.MinHours
	}
	est := compute(hoursInput{
		labourHours: labourHours,
		multiplier:  1,
		crew:        crew,
		trip:        trip,
		plan:        truck.NewPlanner(p.TruckCapacity).Plan(totals.TotalCubicFeet),
		specialties: []model.SpecialtyItem{},
	}, p)
	est.Degraded = true
	est.DegradedReason = reason
	est.Rationale = "Estimated from travel time and a standard labour allowance because the detailed estimate was unavailable."
	return est
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
