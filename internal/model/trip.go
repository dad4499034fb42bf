package model

// BuildingType is the kind of building at one end of the move.
type BuildingType string

const (
	BuildingHouse     BuildingType = "house"
	BuildingApartment BuildingType = "apartment"
	BuildingCondo     BuildingType = "condo"
	BuildingBusiness  BuildingType = "business"
)

// Valid reports whether b is a known building type.
func (b BuildingType) Valid() bool {
	switch b {
	case BuildingHouse, BuildingApartment, BuildingCondo, BuildingBusiness:
		return true
	}
	return false
}

// Parking describes truck access at one end of the move.
type Parking string

const (
	ParkingDriveway  Parking = "driveway"
	ParkingStreet    Parking = "street"
	ParkingLot       Parking = "parking_lot"
	ParkingDifficult Parking = "difficult"
)

// Valid reports whether p is a known parking type.
func (p Parking) Valid() bool {
	switch p {
	case ParkingDriveway, ParkingStreet, ParkingLot, ParkingDifficult:
		return true
	}
	return false
}

// Endpoint is the access profile of one end of the move.
type Endpoint struct {
	Building BuildingType `json:"building"`
	Stairs   bool         `json:"stairs"`
	Elevator bool         `json:"elevator"`
	Floor    *int         `json:"floor,omitempty"`
	Parking  Parking      `json:"parking"`
}

// FloorNumber returns the floor, treating unknown as ground level (1).
func (e Endpoint) FloorNumber() int {
	if e.Floor == nil || *e.Floor < 1 {
		return 1
	}
	return *e.Floor
}

// Trip is the trip metadata consumed by the move-time estimator.
type Trip struct {
	DistanceMiles float64  `json:"distance"`
	TravelMinutes float64  `json:"travelTime"`
	Origin        Endpoint `json:"origin"`
	Destination   Endpoint `json:"destination"`
}
