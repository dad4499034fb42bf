package model

// SpecialtyCategory is a fixed class of items needing surcharge and extra time.
type SpecialtyCategory string

const (
	SpecialtyPiano     SpecialtyCategory = "piano"
	SpecialtySafe      SpecialtyCategory = "safe"
	SpecialtyPoolTable SpecialtyCategory = "pool_table"
	SpecialtyGym       SpecialtyCategory = "gym"
	SpecialtyTVLarge   SpecialtyCategory = "tv_large"
	SpecialtyAppliance SpecialtyCategory = "appliance"
	SpecialtyHoisting  SpecialtyCategory = "hoisting"
)

// SpecialtyItem is a surcharge line computed for one specialty category.
type SpecialtyItem struct {
	Item      string            `json:"item"`
	Category  SpecialtyCategory `json:"category"`
	Surcharge float64           `json:"surcharge"`
	ExtraTime float64           `json:"extraTime"` // minutes
	Detected  bool              `json:"detected"`
}

// DetectedUpsell is an add-on suggested by the estimator call.
type DetectedUpsell struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Required    bool    `json:"required"`
}

// HoursBreakdown splits the standard duration into its parts.
type HoursBreakdown struct {
	Loading   float64 `json:"loading"`
	Travel    float64 `json:"travel"`
	Unloading float64 `json:"unloading"`
	Setup     float64 `json:"setup"`
	Buffer    float64 `json:"buffer"`
}

// Estimate is the compact billable summary of a move.
type Estimate struct {
	Crew       int     `json:"crew"`
	Rate       float64 `json:"rate"`
	TravelMins float64 `json:"travelMins"`
	Hours      float64 `json:"hours"`
	Total      float64 `json:"total"`
	Stairs     bool    `json:"stairs"`
	Elevator   bool    `json:"elevator"`
	SafetyPct  float64 `json:"safetyPct"`
}

// MoveEstimate is the full output of the move-time estimator.
type MoveEstimate struct {
	HoursStandard     float64          `json:"hoursStandard"`
	HoursConservative float64          `json:"hoursConservative"`
	CrewSize          int              `json:"crewSize"`
	Trucks            int              `json:"trucks"`
	CrewRate          float64          `json:"crewRate"`
	RateAmbiguous     bool             `json:"rateAmbiguous,omitempty"`
	SpecialtyItems    []SpecialtyItem  `json:"specialtyItems"`
	BaseTotal         float64          `json:"baseTotal"`
	SurchargeTotal    float64          `json:"surchargeTotal"`
	PreTaxTotal       float64          `json:"preTaxTotal"`
	TaxRate           float64          `json:"taxRate"`
	Tax               float64          `json:"tax"`
	PostTaxTotal      float64          `json:"postTaxTotal"`
	Multiplier        float64          `json:"complexityMultiplier"`
	Rationale         string           `json:"rationale"`
	Breakdown         HoursBreakdown   `json:"hoursBreakdown"`
	DetectedUpsells   []DetectedUpsell `json:"detectedUpsells"`
	TruckPlan         TruckPlan        `json:"truckPlan"`
	Summary           Estimate         `json:"estimate"`
	Degraded          bool             `json:"degraded"`
	DegradedReason    string           `json:"degradedReason,omitempty"`
	Fingerprint       string           `json:"fingerprint"`
}

// TruckPlan is the advisory truck-capacity result.
type TruckPlan struct {
	TotalCubicFeet     float64 `json:"totalCubicFeet"`
	CapacityPerTruck   float64 `json:"capacityPerTruck"`
	TrucksNeeded       int     `json:"trucksNeeded"`
	ExceedsSingleTruck bool    `json:"exceedsSingleTruck"`
}
