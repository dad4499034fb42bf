package model

// Source records where a resolved numeric value on a Detection came from.
type Source string

const (
	// SourceVision means the value was reported by the vision model.
	SourceVision Source = "vision"
	// SourceHeuristic means the value was derived from another field
	// (weight from cubic feet at the household-goods density).
	SourceHeuristic Source = "heuristic"
	// SourceLookup means the value came from the label-keyed volume table.
	SourceLookup Source = "lookup"
	// SourceFallback means nothing was known and the value defaulted to 0.
	SourceFallback Source = "fallback"
)

// Detection is one inferred inventory entry. CubicFeet and Weight are the
// raw figures reported by the detector; the Resolved* fields are filled in by
// the volume aggregator together with their provenance.
type Detection struct {
	Label     string   `json:"label"`
	Qty       int      `json:"qty"`
	CubicFeet *float64 `json:"cubicFeet,omitempty"`
	Weight    *float64 `json:"weight,omitempty"`
	Size      string   `json:"size,omitempty"`
	Room      string   `json:"room,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	Category  string   `json:"category,omitempty"`

	ResolvedCubicFeet float64 `json:"resolvedCubicFeet,omitempty"`
	ResolvedWeight    float64 `json:"resolvedWeight,omitempty"`
	CubicFeetSource   Source  `json:"cubicFeetSource,omitempty"`
	WeightSource      Source  `json:"weightSource,omitempty"`
}

// HasCubicFeet reports whether a positive cubic-feet figure was detected.
func (d Detection) HasCubicFeet() bool {
	return d.CubicFeet != nil && *d.CubicFeet > 0
}

// HasWeight reports whether a positive weight was detected.
func (d Detection) HasWeight() bool {
	return d.Weight != nil && *d.Weight > 0
}

// Float returns a pointer to v. Handy for building detections in code and tests.
func Float(v float64) *float64 {
	return &v
}

// CloneDetections returns a deep copy of ds, including the optional numeric
// pointers, so callers can hand inventory to code that must not share it.
func CloneDetections(ds []Detection) []Detection {
	if ds == nil {
		return nil
	}
	out := make([]Detection, len(ds))
	for i, d := range ds {
		if d.CubicFeet != nil {
			d.CubicFeet = Float(*d.CubicFeet)
		}
		if d.Weight != nil {
			d.Weight = Float(*d.Weight)
		}
		out[i] = d
	}
	return out
}

// ValidationResult carries advisory anomalies. It never blocks or edits the
// inventory it was computed from.
type ValidationResult struct {
	Anomalies []string `json:"anomalies"`
}

// VolumeTotals is the aggregated inventory volume and weight. It is the single
// source of truth for every stage that needs total cubic feet.
type VolumeTotals struct {
	TotalCubicFeet float64     `json:"totalCubicFeet"`
	TotalWeight    float64     `json:"totalWeight"`
	ItemCount      int         `json:"itemCount"`
	Warnings       []string    `json:"warnings,omitempty"`
	Detections     []Detection `json:"detections,omitempty"`
}
