package upsell

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/owoblo/quote2move/internal/model"
)

// LoadCustom reads tenant-defined upsells from a YAML file of the form
//
//	upsells:
//	  - id: storage-month
//	    name: One month of storage
//	    price: 149
//	    recommended: true
func LoadCustom(path string) ([]model.Upsell, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "upsell: read custom file %s", path)
	}

	var wrapper struct {
		Upsells []model.Upsell `yaml:"upsells"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "upsell: parse custom file")
	}

	seen := make(map[string]bool, len(wrapper.Upsells))
	for i, u := range wrapper.Upsells {
		u.ID = strings.TrimSpace(u.ID)
		if u.ID == "" {
			return nil, eris.Errorf("upsell: custom entry %d has no id", i)
		}
		if seen[u.ID] {
			return nil, eris.Errorf("upsell: duplicate custom id %q", u.ID)
		}
		if u.Price < 0 {
			return nil, eris.Errorf("upsell: custom %q has a negative price", u.ID)
		}
		if u.Name == "" {
			u.Name = u.ID
		}
		seen[u.ID] = true
		wrapper.Upsells[i] = u
	}
	return wrapper.Upsells, nil
}
