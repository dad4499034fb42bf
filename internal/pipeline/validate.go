package pipeline

import (
	"fmt"
	"strings"

	"github.com/owoblo/quote2move/internal/category"
	"github.com/owoblo/quote2move/internal/model"
	"github.com/owoblo/quote2move/internal/volume"
)

// Volume-to-floor-area bounds, in cubic feet of goods per square foot.
const (
	LowDensityRatio  = 0.05
	HighDensityRatio = 2.0
)

// ValidateInventory checks detections against the property context and
// returns advisory anomalies. It never modifies or removes detections.
func ValidateInventory(detections []model.Detection, pc model.PropertyContext) model.ValidationResult {
	anomalies := make([]string, 0)

	beds := 0
	for _, d := range detections {
		if category.Of(d) == category.Bed {
			beds += d.Qty
		}
	}
	bedrooms := pc.BedroomCount()

	if bedrooms > 0 && beds == 0 {
		anomalies = append(anomalies,
			fmt.Sprintf("No beds detected for a %d-bedroom property", bedrooms))
	}
	if bedrooms > 0 && beds > 2*bedrooms {
		anomalies = append(anomalies,
			fmt.Sprintf("%d beds detected for only %d bedrooms", beds, bedrooms))
	}
	if pc.PropertyType == model.PropertyStudio && beds > 1 {
		anomalies = append(anomalies,
			fmt.Sprintf("%d beds detected in a studio", beds))
	}

	if sqft := pc.SquareFeet(); sqft > 0 {
		total := volume.Aggregate(detections).TotalCubicFeet
		ratio := total / float64(sqft)
		switch {
		case ratio < LowDensityRatio:
			anomalies = append(anomalies,
				fmt.Sprintf("Inventory volume looks low: %.0f cu ft for %d sq ft", total, sqft))
		case ratio > HighDensityRatio:
			anomalies = append(anomalies,
				fmt.Sprintf("Inventory volume looks high: %.0f cu ft for %d sq ft", total, sqft))
		}
	}

	seen := make(map[string]bool)
	for _, d := range detections {
		key := strings.ToLower(d.Room) + "\x00" + strings.ToLower(strings.TrimSpace(d.Label))
		if seen[key] {
			anomalies = append(anomalies,
				fmt.Sprintf("Duplicate item %q in %s", d.Label, roomLabel(d.Room)))
			continue
		}
		seen[key] = true
	}

	for _, d := range detections {
		if d.Qty == 0 {
			anomalies = append(anomalies,
				fmt.Sprintf("Item %q in %s has quantity 0, which contradicts its detection", d.Label, roomLabel(d.Room)))
		}
	}

	if pc.BathroomCount() > 0 && bedrooms == 0 && beds > 0 && pc.PropertyType != model.PropertyStudio {
		anomalies = append(anomalies,
			fmt.Sprintf("%d beds detected but bedroom count is missing", beds))
	}

	return model.ValidationResult{Anomalies: anomalies}
}

func roomLabel(room string) string {
	if room == "" {
		return "an unnamed room"
	}
	return room
}
