package estimate

import (
	"fmt"
	"strings"

	"github.com/owoblo/quote2move/internal/category"
	"github.com/owoblo/quote2move/internal/model"
)

// Specialties returns one surcharge line per specialty detection plus a
// hoisting line when the judgment calls for one. detections must already be
// resolved by the volume aggregator so safe weights are known.
func Specialties(detections []model.Detection, j Judgment, p Policy) []model.SpecialtyItem {
	items := make([]model.SpecialtyItem, 0)

	for _, d := range detections {
		if d.Qty <= 0 {
			continue
		}
		note := j.SpecialtyNotes[strings.ToLower(strings.TrimSpace(d.Label))]

		var (
			cat model.SpecialtyCategory
			key string
		)
		switch category.Of(d) {
		case category.Piano:
			cat, key = model.SpecialtyPiano, RatePianoUpright
			if isGrand(d, note) {
				key = RatePianoGrand
			}
		case category.Safe:
			cat, key = model.SpecialtySafe, RateSafeSmall
			if isLargeSafe(d, note) {
				key = RateSafeLarge
			}
		case category.PoolTable:
			cat, key = model.SpecialtyPoolTable, RatePoolTable
		case category.Gym:
			cat, key = model.SpecialtyGym, RateGym
		case category.TV:
			if !category.IsLargeTV(d) {
				continue
			}
			cat, key = model.SpecialtyTVLarge, RateTVLarge
		case category.Appliance:
			cat, key = model.SpecialtyAppliance, RateAppliance
		default:
			continue
		}

		rate := p.SpecialtyRate(key)
		items = append(items, model.SpecialtyItem{
			Item:      itemName(d),
			Category:  cat,
			Surcharge: round2(rate.Surcharge * float64(d.Qty)),
			ExtraTime: rate.Minutes * float64(d.Qty),
			Detected:  true,
		})
	}

	if j.HoistingFloors > 0 {
		rate := p.SpecialtyRate(RateHoisting)
		floors := float64(j.HoistingFloors)
		items = append(items, model.SpecialtyItem{
			Item:      fmt.Sprintf("Hoisting (%d floors)", j.HoistingFloors),
			Category:  model.SpecialtyHoisting,
			Surcharge: round2(rate.Surcharge * floors),
			ExtraTime: rate.Minutes * floors,
		})
	}
	return items
}

func isGrand(d model.Detection, note string) bool {
	if strings.Contains(note, "upright") {
		return false
	}
	return strings.Contains(note, "grand") || category.IsGrandPiano(d)
}

func isLargeSafe(d model.Detection, note string) bool {
	for _, hint := range []string{"large", "heavy", "over 300"} {
		if strings.Contains(note, hint) {
			return true
		}
	}
	return d.ResolvedWeight >= SafeLargePounds
}

func itemName(d model.Detection) string {
	if d.Qty > 1 {
		return fmt.Sprintf("%s x%d", d.Label, d.Qty)
	}
	return d.Label
}
