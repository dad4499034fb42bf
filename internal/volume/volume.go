// Package volume resolves per-item cubic feet and weight and totals them for
// the rest of the quote.
package volume

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/owoblo/quote2move/internal/model"
)

// PoundsPerCubicFoot is the household-goods density used to derive weight
// from volume.
const PoundsPerCubicFoot = 7.0

// lookupTable holds typical cubic feet per item, keyed by lowercase label.
var lookupTable = map[string]float64{
	"sofa":                 35,
	"couch":                35,
	"sectional":            60,
	"loveseat":             25,
	"armchair":             15,
	"recliner":             20,
	"ottoman":              5,
	"coffee table":         10,
	"end table":            5,
	"side table":           5,
	"console table":        10,
	"tv stand":             12,
	"entertainment center": 40,
	"tv":                   10,
	"bookcase":             20,
	"bookshelf":            20,
	"shelving unit":        15,
	"king bed":             70,
	"queen bed":            60,
	"full bed":             50,
	"double bed":           50,
	"twin bed":             40,
	"bunk bed":             70,
	"crib":                 20,
	"bed":                  60,
	"mattress":             30,
	"dresser":              30,
	"chest of drawers":     25,
	"nightstand":           5,
	"wardrobe":             40,
	"armoire":              40,
	"desk":                 25,
	"office chair":         10,
	"filing cabinet":       10,
	"dining table":         30,
	"kitchen table":        20,
	"dining chair":         5,
	"chair":                5,
	"bar stool":            3,
	"buffet":               30,
	"china cabinet":        40,
	"hutch":                40,
	"refrigerator":         45,
	"fridge":               45,
	"freezer":              30,
	"washer":               25,
	"dryer":                25,
	"dishwasher":           20,
	"stove":                30,
	"microwave":            3,
	"piano":                70,
	"upright piano":        70,
	"grand piano":          100,
	"pool table":           100,
	"treadmill":            30,
	"exercise bike":        15,
	"elliptical":           30,
	"safe":                 10,
	"lamp":                 3,
	"floor lamp":           3,
	"rug":                  5,
	"mirror":               5,
	"painting":             3,
	"picture":              2,
	"box":                  3,
	"plant":                3,
	"grill":                15,
	"patio table":          20,
	"patio chair":          5,
	"lawn mower":           10,
	"bicycle":              10,
}

// sortedKeys lists table keys longest first so "grand piano" beats "piano".
var sortedKeys = func() []string {
	keys := make([]string, 0, len(lookupTable))
	for k := range lookupTable {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// Lookup returns the table volume for a label. An exact (case-insensitive)
// match wins; otherwise the longest table key contained in the label is used.
func Lookup(label string) (float64, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return 0, false
	}
	if v, ok := lookupTable[l]; ok {
		return v, true
	}
	padded := " " + l + " "
	for _, k := range sortedKeys {
		if strings.Contains(padded, " "+k+" ") || strings.Contains(padded, " "+k+"s ") {
			return lookupTable[k], true
		}
	}
	return 0, false
}

// Resolve fills the resolved volume and weight of one detection using the
// fixed precedence: detected value, weight derived from volume, lookup table,
// then zero. The returned warning is empty unless the item fell through to
// zero volume.
func Resolve(d model.Detection) (model.Detection, string) {
	var warning string

	switch {
	case d.HasCubicFeet():
		d.ResolvedCubicFeet = *d.CubicFeet
		d.CubicFeetSource = model.SourceVision
	default:
		if v, ok := Lookup(d.Label); ok {
			d.ResolvedCubicFeet = v
			d.CubicFeetSource = model.SourceLookup
		} else {
			d.ResolvedCubicFeet = 0
			d.CubicFeetSource = model.SourceFallback
		}
	}

	switch {
	case d.HasWeight():
		d.ResolvedWeight = *d.Weight
		d.WeightSource = model.SourceVision
	case d.CubicFeetSource == model.SourceVision:
		d.ResolvedWeight = d.ResolvedCubicFeet * PoundsPerCubicFoot
		d.WeightSource = model.SourceHeuristic
	case d.CubicFeetSource == model.SourceLookup:
		d.ResolvedWeight = d.ResolvedCubicFeet * PoundsPerCubicFoot
		d.WeightSource = model.SourceLookup
	default:
		d.ResolvedWeight = 0
		d.WeightSource = model.SourceFallback
	}

	if d.CubicFeetSource == model.SourceFallback {
		warning = fmt.Sprintf("no volume for %q (qty %d): counted as 0 cu ft", d.Label, d.Qty)
	}
	return d, warning
}

// Aggregate resolves every detection and returns the totals. The input slice
// is not modified; resolved copies are returned in VolumeTotals.Detections.
func Aggregate(detections []model.Detection) model.VolumeTotals {
	out := model.VolumeTotals{
		Detections: make([]model.Detection, 0, len(detections)),
	}

	for _, d := range model.CloneDetections(detections) {
		resolved, warning := Resolve(d)
		if warning != "" {
			out.Warnings = append(out.Warnings, warning)
			zap.L().Warn("volume: fallback to zero", zap.String("label", d.Label), zap.Int("qty", d.Qty))
		}
		qty := resolved.Qty
		if qty < 0 {
			qty = 0
		}
		out.TotalCubicFeet += resolved.ResolvedCubicFeet * float64(qty)
		out.TotalWeight += resolved.ResolvedWeight * float64(qty)
		out.ItemCount += qty
		out.Detections = append(out.Detections, resolved)
	}

	out.TotalCubicFeet = round2(out.TotalCubicFeet)
	out.TotalWeight = round2(out.TotalWeight)
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
