// Package estimate turns an inventory and trip metadata into a billable move
// estimate. The language model contributes soft judgments only; every number
// on the quote is computed here from the pricing policy.
package estimate

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/owoblo/quote2move/internal/config"
	"github.com/owoblo/quote2move/internal/truck"
)

// Crew size bounds.
const (
	MinCrew = 2
	MaxCrew = 6
)

// Specialty rate keys.
const (
	RatePianoUpright = "piano_upright"
	RatePianoGrand   = "piano_grand"
	RateSafeSmall    = "safe_small"
	RateSafeLarge    = "safe_large"
	RatePoolTable    = "pool_table"
	RateGym          = "gym"
	RateTVLarge      = "tv_large"
	RateAppliance    = "appliance"
	RateHoisting     = "hoisting"
)

// SafeLargePounds is the unit weight from which a safe is priced as large.
const SafeLargePounds = 300.0

// SpecialtyRate is the surcharge and extra minutes for one unit.
type SpecialtyRate struct {
	Surcharge float64 `json:"surcharge"`
	Minutes   float64 `json:"minutes"`
}

// Policy is the resolved pricing policy. It is immutable once built and
// safe to share between goroutines.
type Policy struct {
	TaxRate              float64                  `json:"taxRate"`
	MinHours             float64                  `json:"minHours"`
	CrewRates            map[int]float64          `json:"crewRates"`
	MultiTruckRates      map[string]float64       `json:"multiTruckRates"`
	CoordinationOverhead float64                  `json:"coordinationOverhead"`
	Efficiency           map[int]float64          `json:"efficiency"`
	TruckCapacity        float64                  `json:"truckCapacity"`
	SetupMinsPerTruck    float64                  `json:"setupMinsPerTruck"`
	ExtraTruckSetupMins  float64                  `json:"extraTruckSetupMins"`
	StandardBuffer       float64                  `json:"standardBuffer"`
	ConservativeBuffer   float64                  `json:"conservativeBuffer"`
	StairsPerFloor       float64                  `json:"stairsPerFloor"`
	StairsCap            float64                  `json:"stairsCap"`
	ElevatorPerEnd       float64                  `json:"elevatorPerEnd"`
	DifficultParking     float64                  `json:"difficultParking"`
	FloorMismatch        float64                  `json:"floorMismatch"`
	Specialty            map[string]SpecialtyRate `json:"specialty"`
}

// DefaultPolicy returns the built-in pricing policy.
func DefaultPolicy() Policy {
	return Policy{
		TaxRate:              0.13,
		MinHours:             3,
		CrewRates:            map[int]float64{2: 150, 3: 230, 4: 250, 5: 360, 6: 400},
		MultiTruckRates:      map[string]float64{"4x2": 330},
		CoordinationOverhead: 40,
		Efficiency:           map[int]float64{2: 0.65, 3: 1.0, 4: 1.3, 5: 1.5},
		TruckCapacity:        truck.DefaultCapacity,
		SetupMinsPerTruck:    15,
		ExtraTruckSetupMins:  20,
		StandardBuffer:       0.10,
		ConservativeBuffer:   0.20,
		StairsPerFloor:       0.25,
		StairsCap:            1.0,
		ElevatorPerEnd:       0.15,
		DifficultParking:     0.20,
		FloorMismatch:        0.10,
		Specialty: map[string]SpecialtyRate{
			RatePianoUpright: {Surcharge: 225, Minutes: 75},
			RatePianoGrand:   {Surcharge: 400, Minutes: 105},
			RateSafeSmall:    {Surcharge: 100, Minutes: 30},
			RateSafeLarge:    {Surcharge: 250, Minutes: 60},
			RatePoolTable:    {Surcharge: 300, Minutes: 105},
			RateGym:          {Surcharge: 125, Minutes: 45},
			RateTVLarge:      {Surcharge: 40, Minutes: 0},
			RateAppliance:    {Surcharge: 75, Minutes: 30},
			RateHoisting:     {Surcharge: 100, Minutes: 45},
		},
	}
}

// PolicyFromConfig converts the string-keyed config maps into a Policy.
// Missing entries keep their defaults.
func PolicyFromConfig(cfg config.PricingConfig) (Policy, error) {
	p := DefaultPolicy()

	p.TaxRate = cfg.TaxRate
	if cfg.MinHours > 0 {
		p.MinHours = cfg.MinHours
	}
	if cfg.TruckCapacity > 0 {
		p.TruckCapacity = cfg.TruckCapacity
	}
	p.CoordinationOverhead = cfg.CoordinationOverhead
	p.SetupMinsPerTruck = cfg.SetupMinsPerTruck
	p.ExtraTruckSetupMins = cfg.ExtraTruckSetupMins
	p.StandardBuffer = cfg.StandardBuffer
	p.ConservativeBuffer = cfg.ConservativeBuffer
	p.StairsPerFloor = cfg.StairsPerFloor
	p.StairsCap = cfg.StairsCap
	p.ElevatorPerEnd = cfg.ElevatorPerEnd
	p.DifficultParking = cfg.DifficultParking
	p.FloorMismatch = cfg.FloorMismatch

	for k, v := range cfg.CrewRates {
		crew, err := parseCrewKey(k)
		if err != nil {
			return Policy{}, eris.Wrapf(err, "pricing.crew_rates[%s]", k)
		}
		p.CrewRates[crew] = v
	}
	for k, v := range cfg.Efficiency {
		crew, err := parseCrewKey(k)
		if err != nil {
			return Policy{}, eris.Wrapf(err, "pricing.efficiency[%s]", k)
		}
		p.Efficiency[crew] = v
	}
	for k, v := range cfg.MultiTruckRates {
		crew, trucks, ok := strings.Cut(strings.ToLower(k), "x")
		c, err1 := strconv.Atoi(crew)
		t, err2 := strconv.Atoi(trucks)
		if !ok || err1 != nil || err2 != nil || t < 2 {
			return Policy{}, eris.Errorf("pricing.multi_truck_rates: bad key %q, want <crew>x<trucks>", k)
		}
		p.MultiTruckRates[multiTruckKey(c, t)] = v
	}
	for k, v := range cfg.Specialty {
		p.Specialty[strings.ToLower(k)] = SpecialtyRate{Surcharge: v.Surcharge, Minutes: v.Minutes}
	}

	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func parseCrewKey(k string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(k), "+"))
	if err != nil {
		return 0, eris.Wrap(err, "crew key")
	}
	if n < MinCrew || n > MaxCrew {
		return 0, eris.Errorf("crew %d outside %d..%d", n, MinCrew, MaxCrew)
	}
	return n, nil
}

func multiTruckKey(crew, trucks int) string {
	return fmt.Sprintf("%dx%d", crew, trucks)
}

func (p Policy) validate() error {
	for crew := MinCrew; crew <= MaxCrew; crew++ {
		if _, ok := p.CrewRates[crew]; !ok {
			return eris.Errorf("pricing: no crew rate for crew of %d", crew)
		}
	}
	nums := map[string]float64{
		"tax_rate":            p.TaxRate,
		"standard_buffer":     p.StandardBuffer,
		"conservative_buffer": p.ConservativeBuffer,
		"stairs_per_floor":    p.StairsPerFloor,
		"elevator_per_end":    p.ElevatorPerEnd,
		"difficult_parking":   p.DifficultParking,
		"floor_mismatch":      p.FloorMismatch,
	}
	for name, v := range nums {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return eris.Errorf("pricing: %s must be a non-negative number", name)
		}
	}
	if p.ConservativeBuffer < p.StandardBuffer {
		return eris.New("pricing: conservative_buffer must be >= standard_buffer")
	}
	return nil
}

// Rate returns the hourly rate for crew and trucks. With more than one truck
// an explicit multi-truck entry wins; otherwise the flat crew rate plus the
// coordination overhead per extra truck is used and ambiguous is true.
func (p Policy) Rate(crew, trucks int) (rate float64, ambiguous bool) {
	flat := p.CrewRates[clampCrew(crew)]
	if trucks <= 1 {
		return flat, false
	}
	if r, ok := p.MultiTruckRates[multiTruckKey(crew, trucks)]; ok {
		return r, false
	}
	return flat + p.CoordinationOverhead*float64(trucks-1), true
}

// EfficiencyFactor returns the factor for the largest configured crew size
// not above crew.
func (p Policy) EfficiencyFactor(crew int) float64 {
	keys := make([]int, 0, len(p.Efficiency))
	for k := range p.Efficiency {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	if len(keys) == 0 {
		return 1
	}
	factor := p.Efficiency[keys[0]]
	for _, k := range keys {
		if k <= crew {
			factor = p.Efficiency[k]
		}
	}
	return factor
}

// SpecialtyRate returns the rate for key; unknown keys price at zero.
func (p Policy) SpecialtyRate(key string) SpecialtyRate {
	return p.Specialty[key]
}

func clampCrew(crew int) int {
	switch {
	case crew < MinCrew:
		return MinCrew
	case crew > MaxCrew:
		return MaxCrew
	}
	return crew
}
