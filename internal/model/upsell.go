package model

import "strings"

// InsurancePrefix marks mutually exclusive insurance upsells.
const InsurancePrefix = "insurance-"

// Upsell is an optional add-on line item.
type Upsell struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Price       float64 `json:"price" yaml:"price"`
	Recommended bool    `json:"recommended" yaml:"recommended"`
	Selected    bool    `json:"selected" yaml:"selected"`
	// Required lines stay selected when earlier selections are carried
	// over, and a required insurance tier wins over the default one.
	Required bool `json:"required,omitempty" yaml:"required"`
}

// IsInsurance reports whether the upsell is one of the exclusive insurance tiers.
func (u Upsell) IsInsurance() bool {
	return strings.HasPrefix(u.ID, InsurancePrefix)
}
