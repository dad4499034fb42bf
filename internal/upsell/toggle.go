package upsell

import (
	"math"

	"github.com/owoblo/quote2move/internal/model"
)

// Toggle flips the selection of id and returns a new list. Selecting an
// insurance tier deselects every other tier; deselecting one leaves the rest
// untouched. Other ids affect only themselves.
func Toggle(list []model.Upsell, id string) ([]model.Upsell, error) {
	i := indexOf(list, id)
	if i < 0 {
		return nil, model.NewValidationError("id", "does not match any upsell")
	}

	out := make([]model.Upsell, len(list))
	copy(out, list)
	out[i].Selected = !out[i].Selected
	if out[i].Selected && out[i].IsInsurance() {
		selectOnlyInsurance(out, i)
	}
	return Normalize(out), nil
}

// selectOnlyInsurance selects the insurance tier at i and deselects the rest.
func selectOnlyInsurance(list []model.Upsell, i int) {
	for j := range list {
		if list[j].IsInsurance() {
			list[j].Selected = j == i
		}
	}
}

// ApplySelections carries the selected flags of a previously shown list over
// to list for every id they share, then normalizes. Required lines stay
// selected, and a required insurance tier is never replaced by an earlier
// choice.
func ApplySelections(list, previous []model.Upsell) []model.Upsell {
	if len(previous) == 0 {
		return list
	}
	state := make(map[string]bool, len(previous))
	for _, p := range previous {
		state[p.ID] = p.Selected
	}

	chosen := requiredInsurance(list)
	if chosen < 0 {
		// An insurance choice in the previous list wins over the default tier.
		for _, p := range previous {
			if p.Selected && p.IsInsurance() {
				if i := indexOf(list, p.ID); i >= 0 {
					chosen = i
					break
				}
			}
		}
	}

	out := make([]model.Upsell, len(list))
	copy(out, list)
	for i := range out {
		if sel, ok := state[out[i].ID]; ok {
			out[i].Selected = sel || out[i].Required
		}
	}
	if chosen >= 0 {
		selectOnlyInsurance(out, chosen)
	}
	return Normalize(out)
}

// Normalize keeps one selected insurance tier and deselects the others: a
// selected required tier if there is one, else the first selected tier. The
// list is modified in place and returned.
func Normalize(list []model.Upsell) []model.Upsell {
	keep := -1
	for i, u := range list {
		if !u.IsInsurance() || !u.Selected {
			continue
		}
		if keep < 0 || (u.Required && !list[keep].Required) {
			keep = i
		}
	}
	if keep >= 0 {
		selectOnlyInsurance(list, keep)
	}
	return list
}

// requiredInsurance returns the index of the first required insurance tier,
// or -1.
func requiredInsurance(list []model.Upsell) int {
	for i, u := range list {
		if u.IsInsurance() && u.Required {
			return i
		}
	}
	return -1
}

// SelectedTotal sums the prices of selected upsells.
func SelectedTotal(list []model.Upsell) float64 {
	total := 0.0
	for _, u := range list {
		if u.Selected {
			total += u.Price
		}
	}
	return round2(total)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
