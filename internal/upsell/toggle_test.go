package upsell

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owoblo/quote2move/internal/config"
	"github.com/owoblo/quote2move/internal/model"
)

func TestToggle_InsuranceExclusive(t *testing.T) {
	list := newEngine(t).Build(Input{})

	list, err := Toggle(list, "insurance-premium")
	require.NoError(t, err)
	got := byID(list)
	assert.True(t, got["insurance-premium"].Selected)
	assert.False(t, got["insurance-basic"].Selected)
	assert.False(t, got["insurance-deluxe"].Selected)

	list, err = Toggle(list, "insurance-deluxe")
	require.NoError(t, err)
	got = byID(list)
	assert.True(t, got["insurance-deluxe"].Selected)
	assert.False(t, got["insurance-premium"].Selected)

	list, err = Toggle(list, "insurance-deluxe")
	require.NoError(t, err)
	assert.Equal(t, 0, selectedInsurance(list))
}

func TestToggle_OtherIDsAffectOnlyThemselves(t *testing.T) {
	before := newEngine(t).Build(Input{Detections: []model.Detection{{Label: "Piano", Qty: 1}}})

	after, err := Toggle(before, "packing")
	require.NoError(t, err)
	for i := range before {
		if before[i].ID == "packing" {
			assert.NotEqual(t, before[i].Selected, after[i].Selected)
			continue
		}
		assert.Equal(t, before[i], after[i])
	}
}

func TestToggle_UnknownID(t *testing.T) {
	_, err := Toggle(newEngine(t).Build(Input{}), "nope")
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "id", ve.Field)
}

func TestToggle_RandomSequencesKeepOneInsurance(t *testing.T) {
	e := newEngine(t).WithCustom([]model.Upsell{{ID: "insurance-platinum", Price: 400}})
	list := e.Build(Input{Detections: []model.Detection{{Label: "TV", Qty: 2}}})
	ids := make([]string, len(list))
	for i, u := range list {
		ids[i] = u.ID
	}

	r := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		var err error
		list, err = Toggle(list, ids[r.IntN(len(ids))])
		require.NoError(t, err)
		require.LessOrEqual(t, selectedInsurance(list), 1)
	}
}

func TestApplySelections(t *testing.T) {
	e := newEngine(t)
	previous := []model.Upsell{
		{ID: "insurance-basic", Selected: false},
		{ID: "insurance-deluxe", Selected: true},
		{ID: "packing", Selected: true},
		{ID: "gone", Selected: true},
	}

	list := ApplySelections(e.Build(Input{}), previous)
	got := byID(list)
	assert.True(t, got["insurance-deluxe"].Selected)
	assert.False(t, got["insurance-basic"].Selected)
	assert.True(t, got["packing"].Selected)
	assert.NotContains(t, got, "gone")
	assert.Equal(t, 1, selectedInsurance(list))
}

func TestApplySelections_RequiredTierKept(t *testing.T) {
	e := newEngine(t)
	built := e.Build(Input{Estimate: &model.MoveEstimate{
		DetectedUpsells: []model.DetectedUpsell{
			{ID: "insurance-premium", Price: 100, Required: true},
			{ID: "crate-handling", Price: 80, Required: true},
		},
	}})
	previous := []model.Upsell{
		{ID: "insurance-basic", Selected: true},
		{ID: "insurance-premium", Selected: false},
		{ID: "crate-handling", Selected: false},
	}

	list := ApplySelections(built, previous)
	got := byID(list)
	assert.True(t, got["insurance-premium"].Selected)
	assert.False(t, got["insurance-basic"].Selected)
	assert.True(t, got["crate-handling"].Selected)
	assert.Equal(t, 1, selectedInsurance(list))
}

func TestNormalize_PrefersRequiredTier(t *testing.T) {
	list := Normalize([]model.Upsell{
		{ID: "insurance-basic", Selected: true},
		{ID: "insurance-deluxe", Selected: true, Required: true},
	})
	assert.False(t, list[0].Selected)
	assert.True(t, list[1].Selected)
}

func TestNormalize(t *testing.T) {
	list := Normalize([]model.Upsell{
		{ID: "insurance-basic", Selected: true},
		{ID: "packing", Selected: true},
		{ID: "insurance-premium", Selected: true},
	})
	assert.True(t, list[0].Selected)
	assert.True(t, list[1].Selected)
	assert.False(t, list[2].Selected)
}

func TestSelectedTotal(t *testing.T) {
	assert.Equal(t, 110.5, SelectedTotal([]model.Upsell{
		{Price: 100, Selected: true},
		{Price: 10.5, Selected: true},
		{Price: 999},
	}))
}

func TestLoadCustom(t *testing.T) {
	yml := `
upsells:
  - id: storage-month
    name: One month of storage
    description: Climate controlled
    price: 149
    recommended: true
  - id: junk-removal
    price: 80
    selected: true
`
	path := filepath.Join(t.TempDir(), "upsells.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	custom, err := LoadCustom(path)
	require.NoError(t, err)
	require.Len(t, custom, 2)
	assert.Equal(t, "storage-month", custom[0].ID)
	assert.Equal(t, 149.0, custom[0].Price)
	assert.True(t, custom[0].Recommended)
	assert.Equal(t, "junk-removal", custom[1].Name)
	assert.True(t, custom[1].Selected)

	cfg := testConfig()
	cfg.CustomFile = path
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	got := byID(e.Build(Input{}))
	assert.True(t, got["junk-removal"].Selected)
}

func TestLoadCustom_Errors(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		want string
	}{
		{name: "missing id", yml: "upsells:\n  - name: x\n", want: "no id"},
		{name: "duplicate", yml: "upsells:\n  - id: a\n  - id: a\n", want: "duplicate"},
		{name: "negative price", yml: "upsells:\n  - id: a\n    price: -1\n", want: "negative"},
		{name: "bad yaml", yml: "upsells: [", want: "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "upsells.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yml), 0o644))
			_, err := LoadCustom(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := NewEngine(config.UpsellConfig{CustomFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}
