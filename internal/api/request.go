package api

import (
	"github.com/owoblo/quote2move/internal/estimate"
	"github.com/owoblo/quote2move/internal/model"
)

// EstimateRequest is the wire form of an estimate request. Trip attributes
// are flat, one field per end of the move.
type EstimateRequest struct {
	Detections          []model.Detection  `json:"detections"`
	Distance            float64            `json:"distance"`
	TravelTime          float64            `json:"travelTime"`
	OriginType          model.BuildingType `json:"originType"`
	DestinationType     model.BuildingType `json:"destinationType"`
	StairsOrigin        bool               `json:"stairsOrigin"`
	StairsDestination   bool               `json:"stairsDestination"`
	ElevatorOrigin      bool               `json:"elevatorOrigin"`
	ElevatorDestination bool               `json:"elevatorDestination"`
	FloorOrigin         *int               `json:"floorOrigin,omitempty"`
	FloorDestination    *int               `json:"floorDestination,omitempty"`
	ParkingOrigin       model.Parking      `json:"parkingOrigin"`
	ParkingDestination  model.Parking      `json:"parkingDestination"`
	OriginAddress       string             `json:"originAddress,omitempty"`
	DestinationAddress  string             `json:"destinationAddress,omitempty"`

	// PreviousUpsells is the upsell list the caller last showed, used to
	// carry selections over to the new list. Tenant add-ons come from
	// upsells.custom_file, not from here.
	PreviousUpsells []model.Upsell `json:"previousUpsells,omitempty"`
}

// ToEstimate converts the wire form to an estimator request.
func (r EstimateRequest) ToEstimate() estimate.Request {
	return estimate.Request{
		Detections: r.Detections,
		Trip: model.Trip{
			DistanceMiles: r.Distance,
			TravelMinutes: r.TravelTime,
			Origin: model.Endpoint{
				Building: r.OriginType,
				Stairs:   r.StairsOrigin,
				Elevator: r.ElevatorOrigin,
				Floor:    r.FloorOrigin,
				Parking:  r.ParkingOrigin,
			},
			Destination: model.Endpoint{
				Building: r.DestinationType,
				Stairs:   r.StairsDestination,
				Elevator: r.ElevatorDestination,
				Floor:    r.FloorDestination,
				Parking:  r.ParkingDestination,
			},
		},
		OriginAddress:      r.OriginAddress,
		DestinationAddress: r.DestinationAddress,
	}
}

// EstimateResponse is returned by POST /v1/estimates.
type EstimateResponse struct {
	RunID     string              `json:"runId,omitempty"`
	Volume    model.VolumeTotals  `json:"volume"`
	TruckPlan model.TruckPlan     `json:"truckPlan"`
	Estimate  *model.MoveEstimate `json:"estimate"`
	Trip      model.Trip          `json:"trip"`
	Upsells   []model.Upsell      `json:"upsells"`
	Warnings  []string            `json:"warnings"`
	Cached    bool                `json:"cached"`
}

type toggleRequest struct {
	Upsells []model.Upsell `json:"upsells"`
	ID      string         `json:"id"`
}

type toggleResponse struct {
	Upsells       []model.Upsell `json:"upsells"`
	SelectedTotal float64        `json:"selectedTotal"`
}

type truckPlanRequest struct {
	TotalCubicFeet *float64 `json:"totalCubicFeet"`
}
