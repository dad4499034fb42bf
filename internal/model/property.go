package model

// PropertyType is the kind of dwelling or premises being moved.
type PropertyType string

const (
	PropertyHouse     PropertyType = "house"
	PropertyApartment PropertyType = "apartment"
	PropertyCondo     PropertyType = "condo"
	PropertyTownhouse PropertyType = "townhouse"
	PropertyStudio    PropertyType = "studio"
	PropertyOffice    PropertyType = "office"
	PropertyStorage   PropertyType = "storage"
	PropertyOther     PropertyType = "other"
)

// AllPropertyTypes returns every accepted property type.
func AllPropertyTypes() []PropertyType {
	return []PropertyType{
		PropertyHouse,
		PropertyApartment,
		PropertyCondo,
		PropertyTownhouse,
		PropertyStudio,
		PropertyOffice,
		PropertyStorage,
		PropertyOther,
	}
}

// Valid reports whether t is a known property type.
func (t PropertyType) Valid() bool {
	for _, v := range AllPropertyTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// PropertyContext describes the origin property. It is supplied once per
// request and treated as immutable.
type PropertyContext struct {
	Bedrooms     *int         `json:"bedrooms,omitempty"`
	Bathrooms    *float64     `json:"bathrooms,omitempty"`
	Sqft         *int         `json:"sqft,omitempty"`
	PropertyType PropertyType `json:"propertyType,omitempty"`
}

// BedroomCount returns the bedroom count or 0 when unknown.
func (p PropertyContext) BedroomCount() int {
	if p.Bedrooms == nil {
		return 0
	}
	return *p.Bedrooms
}

// BathroomCount returns the bathroom count or 0 when unknown.
func (p PropertyContext) BathroomCount() float64 {
	if p.Bathrooms == nil {
		return 0
	}
	return *p.Bathrooms
}

// SquareFeet returns the square footage or 0 when unknown.
func (p PropertyContext) SquareFeet() int {
	if p.Sqft == nil {
		return 0
	}
	return *p.Sqft
}

// UnclassifiedRoom is the bucket for photos the classifier could not place.
const UnclassifiedRoom = "Unclassified"

// Room is one named group of photos.
type Room struct {
	Name   string   `json:"name"`
	Photos []string `json:"photos"`
}

// RoomClassification is the ordered room → photos mapping produced by the
// room classifier. Order is significant: detection runs in this order.
type RoomClassification []Room

// PhotoCount returns the number of photos across all rooms.
func (rc RoomClassification) PhotoCount() int {
	n := 0
	for _, r := range rc {
		n += len(r.Photos)
	}
	return n
}

// Names returns room names in classification order.
func (rc RoomClassification) Names() []string {
	names := make([]string, len(rc))
	for i, r := range rc {
		names[i] = r.Name
	}
	return names
}
