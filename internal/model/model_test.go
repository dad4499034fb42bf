package model

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneDetections_DeepCopy(t *testing.T) {
	t.Parallel()

	in := []Detection{{Label: "Sofa", Qty: 1, CubicFeet: Float(35), Weight: Float(200)}}
	out := CloneDetections(in)

	require.Len(t, out, 1)
	*out[0].CubicFeet = 1
	*out[0].Weight = 2
	out[0].Label = "Chair"

	assert.Equal(t, 35.0, *in[0].CubicFeet)
	assert.Equal(t, 200.0, *in[0].Weight)
	assert.Equal(t, "Sofa", in[0].Label)
	assert.Nil(t, CloneDetections(nil))
}

func TestDetection_HasValues(t *testing.T) {
	t.Parallel()

	assert.False(t, Detection{}.HasCubicFeet())
	assert.False(t, Detection{CubicFeet: Float(0)}.HasCubicFeet())
	assert.True(t, Detection{CubicFeet: Float(0.5)}.HasCubicFeet())
	assert.False(t, Detection{Weight: Float(-3)}.HasWeight())
	assert.True(t, Detection{Weight: Float(3)}.HasWeight())
}

func TestPropertyType_Valid(t *testing.T) {
	t.Parallel()

	for _, pt := range AllPropertyTypes() {
		assert.True(t, pt.Valid(), pt)
	}
	assert.False(t, PropertyType("castle").Valid())
	assert.False(t, PropertyType("").Valid())
}

func TestPropertyContext_Counts(t *testing.T) {
	t.Parallel()

	var empty PropertyContext
	assert.Zero(t, empty.BedroomCount())
	assert.Zero(t, empty.BathroomCount())
	assert.Zero(t, empty.SquareFeet())

	beds, baths, sqft := 3, 2.5, 1800
	pc := PropertyContext{Bedrooms: &beds, Bathrooms: &baths, Sqft: &sqft}
	assert.Equal(t, 3, pc.BedroomCount())
	assert.Equal(t, 2.5, pc.BathroomCount())
	assert.Equal(t, 1800, pc.SquareFeet())
}

func TestRoomClassification(t *testing.T) {
	t.Parallel()

	rc := RoomClassification{
		{Name: "Kitchen", Photos: []string{"a", "b"}},
		{Name: UnclassifiedRoom, Photos: []string{"c"}},
	}
	assert.Equal(t, 3, rc.PhotoCount())
	assert.Equal(t, []string{"Kitchen", "Unclassified"}, rc.Names())
}

func TestEndpoint_FloorNumber(t *testing.T) {
	t.Parallel()

	zero, third := 0, 3
	assert.Equal(t, 1, Endpoint{}.FloorNumber())
	assert.Equal(t, 1, Endpoint{Floor: &zero}.FloorNumber())
	assert.Equal(t, 3, Endpoint{Floor: &third}.FloorNumber())
}

func TestEnumValidity(t *testing.T) {
	t.Parallel()

	assert.True(t, BuildingCondo.Valid())
	assert.False(t, BuildingType("barn").Valid())
	assert.True(t, ParkingLot.Valid())
	assert.False(t, Parking("roof").Valid())
}

func TestUpsell_IsInsurance(t *testing.T) {
	t.Parallel()

	assert.True(t, Upsell{ID: "insurance-basic"}.IsInsurance())
	assert.False(t, Upsell{ID: "packing"}.IsInsurance())
	assert.False(t, Upsell{ID: "premium-insurance"}.IsInsurance())
}

func TestTokenUsage_Add(t *testing.T) {
	t.Parallel()

	u := TokenUsage{InputTokens: 10, OutputTokens: 5, CostUSD: 0.01}
	u.Add(TokenUsage{InputTokens: 1, OutputTokens: 2, CostUSD: 0.02})
	assert.Equal(t, 11, u.InputTokens)
	assert.Equal(t, 7, u.OutputTokens)
	assert.InDelta(t, 0.03, u.CostUSD, 1e-9)
}

func TestModelCallError_Unwrap(t *testing.T) {
	t.Parallel()

	inner := eris.Wrap(ErrMalformedOutput, "parse rooms")
	err := eris.Wrap(NewModelCallError(StageClassify, inner), "detect")

	var mce *ModelCallError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, StageClassify, mce.Stage)
	assert.True(t, errors.Is(err, ErrMalformedOutput))
	assert.Contains(t, mce.Error(), "classify")
}

func TestEstimationFallbackError_Unwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("timeout")
	err := &EstimationFallbackError{Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "fallback")
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationError("photoUrls", "is required")
	assert.Equal(t, "photoUrls is required", err.Error())
}
