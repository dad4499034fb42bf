// Package upsell builds the optional add-on list shown with a quote: the
// insurance tiers, per-item packing services, handling lines derived from
// the inventory, tenant add-ons and whatever the estimator suggested.
package upsell

import (
	"fmt"
	"strings"

	"github.com/owoblo/quote2move/internal/category"
	"github.com/owoblo/quote2move/internal/config"
	"github.com/owoblo/quote2move/internal/model"
)

// Per-unit prices of the inventory-derived handling lines.
const (
	TVBoxPrice          = 35.0
	TVDisassemblyPrice  = 75.0
	FragilePackingPrice = 20.0
	PianoHandlingPrice  = 300.0
	PoolTablePrice      = 400.0
	SafeHandlingPrice   = 250.0
	GymHandlingPrice    = 150.0
)

// Engine derives upsells. It holds no per-request state.
type Engine struct {
	cfg    config.UpsellConfig
	custom []model.Upsell
}

// NewEngine creates an Engine and loads the tenant custom file when one is
// configured.
func NewEngine(cfg config.UpsellConfig) (*Engine, error) {
	e := &Engine{cfg: cfg}
	if cfg.CustomFile != "" {
		custom, err := LoadCustom(cfg.CustomFile)
		if err != nil {
			return nil, err
		}
		e.custom = custom
	}
	return e, nil
}

// WithCustom returns a copy of e using custom as the tenant add-ons.
func (e *Engine) WithCustom(custom []model.Upsell) *Engine {
	cp := *e
	cp.custom = append([]model.Upsell(nil), custom...)
	return &cp
}

// Input is what the upsell list is derived from. Estimate may be nil when
// only the inventory is known.
type Input struct {
	Detections []model.Detection
	Estimate   *model.MoveEstimate
}

// Build returns the upsell list in display order: base catalog, inventory
// lines, tenant add-ons, estimator suggestions, then specialty surcharges.
// At most one insurance tier is selected in the result.
func (e *Engine) Build(in Input) []model.Upsell {
	list := e.catalog(in)
	list = append(list, derive(in.Detections)...)
	for _, c := range e.custom {
		if indexOf(list, c.ID) < 0 {
			list = append(list, c)
		}
	}
	if in.Estimate != nil {
		list = mergeDetected(list, in.Estimate.DetectedUpsells)
		list = mergeSpecialties(list, in.Estimate.SpecialtyItems)
	}
	return Normalize(list)
}

func (e *Engine) catalog(in Input) []model.Upsell {
	preTax := 0.0
	if in.Estimate != nil {
		preTax = in.Estimate.PreTaxTotal
	}
	items := 0
	for _, d := range in.Detections {
		if d.Qty > 0 {
			items += d.Qty
		}
	}
	n := float64(items)
	manyItems := e.cfg.PackingThreshold > 0 && items >= e.cfg.PackingThreshold

	return []model.Upsell{
		{
			ID:          model.InsurancePrefix + "basic",
			Name:        "Basic Coverage",
			Description: "Included liability at $0.60 per pound per item.",
			Price:       0,
			Selected:    true,
		},
		{
			ID:          model.InsurancePrefix + "premium",
			Name:        "Premium Coverage",
			Description: "Replacement coverage up to $2,000.",
			Price:       e.cfg.PremiumPrice,
			Recommended: preTax >= e.cfg.PremiumThreshold && preTax < e.cfg.DeluxeThreshold,
		},
		{
			ID:          model.InsurancePrefix + "deluxe",
			Name:        "Deluxe Coverage",
			Description: "Replacement coverage up to $5,000.",
			Price:       e.cfg.DeluxePrice,
			Recommended: preTax >= e.cfg.DeluxeThreshold,
		},
		{
			ID:          "packing",
			Name:        "Full Packing",
			Description: fmt.Sprintf("Our crew packs all %d items before the move.", items),
			Price:       round2(n * e.cfg.PackingPerItem),
			Recommended: manyItems,
		},
		{
			ID:          "unpacking",
			Name:        "Unpacking",
			Description: "Our crew unpacks and places items at the destination.",
			Price:       round2(n * e.cfg.UnpackingPerItem),
			Recommended: manyItems,
		},
		{
			ID:          "boxes",
			Name:        "Boxes and Materials",
			Description: "Boxes, tape and paper delivered before moving day.",
			Price:       round2(n * e.cfg.BoxesPerItem),
			Recommended: manyItems,
		},
	}
}

type derivedRule struct {
	id, name, description string
	unitPrice             float64
	selected              bool
}

var derivedRules = map[category.Category]derivedRule{
	category.TV: {
		id: "tv-boxes", name: "TV Boxes", unitPrice: TVBoxPrice, selected: true,
		description: "Padded boxes for flat-screen TVs.",
	},
	category.Fragile: {
		id: "fragile-packing", name: "Fragile Packing", unitPrice: FragilePackingPrice,
		description: "Custom packing for art, mirrors and glass.",
	},
	category.Piano: {
		id: "piano-handling", name: "Piano Handling", unitPrice: PianoHandlingPrice, selected: true,
		description: "Piano board, padding and a trained crew.",
	},
	category.PoolTable: {
		id: "pool-table-handling", name: "Pool Table Handling", unitPrice: PoolTablePrice,
		description: "Disassembly, slate crating and reassembly.",
	},
	category.Safe: {
		id: "safe-handling", name: "Safe Handling", unitPrice: SafeHandlingPrice,
		description: "Heavy-item equipment for safes.",
	},
	category.Gym: {
		id: "gym-equipment-handling", name: "Gym Equipment Handling", unitPrice: GymHandlingPrice,
		description: "Disassembly and reassembly of exercise equipment.",
	},
}

var derivedOrder = []category.Category{
	category.TV, category.Fragile, category.Piano, category.PoolTable, category.Safe, category.Gym,
}

// derive returns one line per inventory category present, priced by the
// summed quantity, plus tv-disassembly for wall-mounted TVs.
func derive(detections []model.Detection) []model.Upsell {
	counts := make(map[category.Category]int)
	wallMounted := 0
	for _, d := range detections {
		if d.Qty <= 0 {
			continue
		}
		c := category.Of(d)
		counts[c] += d.Qty
		if c == category.TV && category.IsWallMounted(d) {
			wallMounted += d.Qty
		}
	}

	var out []model.Upsell
	for _, c := range derivedOrder {
		n := counts[c]
		if n == 0 {
			continue
		}
		r := derivedRules[c]
		out = append(out, model.Upsell{
			ID:          r.id,
			Name:        r.name,
			Description: r.description,
			Price:       round2(float64(n) * r.unitPrice),
			Recommended: true,
			Selected:    r.selected,
		})
		if c == category.TV && wallMounted > 0 {
			out = append(out, model.Upsell{
				ID:          "tv-disassembly",
				Name:        "TV Wall-Mount Removal",
				Description: "Remove wall-mounted TVs and patch brackets.",
				Price:       round2(float64(wallMounted) * TVDisassemblyPrice),
				Recommended: true,
			})
		}
	}
	return out
}

// mergeDetected folds the estimator's suggestions into list. An existing id
// takes the new price, description and recommendation and becomes selected
// when the suggestion is required. A required insurance tier deselects the
// other tiers.
func mergeDetected(list []model.Upsell, detected []model.DetectedUpsell) []model.Upsell {
	for _, d := range detected {
		i := indexOf(list, d.ID)
		if i >= 0 {
			list[i].Price = d.Price
			if d.Description != "" {
				list[i].Description = d.Description
			}
			list[i].Recommended = true
			list[i].Selected = list[i].Selected || d.Required
			list[i].Required = list[i].Required || d.Required
		} else {
			name := d.Name
			if name == "" {
				name = d.ID
			}
			list = append(list, model.Upsell{
				ID:          d.ID,
				Name:        name,
				Description: d.Description,
				Price:       d.Price,
				Recommended: true,
				Selected:    d.Required,
				Required:    d.Required,
			})
			i = len(list) - 1
		}
		if d.Required && list[i].IsInsurance() {
			selectOnlyInsurance(list, i)
		}
	}
	return list
}

// mergeSpecialties appends one selected specialty-<category> line per
// specialty category, summing surcharges of items in the same category.
func mergeSpecialties(list []model.Upsell, items []model.SpecialtyItem) []model.Upsell {
	added := make(map[string]int)
	for _, s := range items {
		id := "specialty-" + string(s.Category)
		if i, ok := added[id]; ok {
			list[i].Price = round2(list[i].Price + s.Surcharge)
			list[i].Description += ", " + s.Item
			continue
		}
		if indexOf(list, id) >= 0 {
			continue
		}
		added[id] = len(list)
		list = append(list, model.Upsell{
			ID:          id,
			Name:        specialtyName(s.Category),
			Description: "Specialty surcharge: " + s.Item,
			Price:       s.Surcharge,
			Recommended: true,
			Selected:    true,
		})
	}
	return list
}

func specialtyName(c model.SpecialtyCategory) string {
	words := strings.Split(string(c), "_")
	for i, w := range words {
		switch w {
		case "tv":
			words[i] = "TV"
		default:
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ") + " Surcharge"
}

func indexOf(list []model.Upsell, id string) int {
	for i, u := range list {
		if u.ID == id {
			return i
		}
	}
	return -1
}
