package assessment

import (
	"fmt"
	"time"
)

// Step identifies one of the five wizard steps.
type Step int

const (
	StepLocation Step = iota + 1
	StepProperty
	StepClimate
	StepFeasibility
	StepResults
)

var stepNames = map[Step]string{
	StepLocation:    "location",
	StepProperty:    "property",
	StepClimate:     "climate",
	StepFeasibility: "feasibility",
	StepResults:     "results",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is within [StepLocation, StepResults].
func (s Step) Valid() bool {
	return s >= StepLocation && s <= StepResults
}

// HouseType is one of the four property categories offered by the wizard.
type HouseType string

const (
	HouseSingleFamily HouseType = "single-family"
	HouseTownhouse    HouseType = "townhouse"
	HouseMultiFamily  HouseType = "multi-family"
	HouseCommercial   HouseType = "commercial"
)

// HouseTypes lists the known house types in display order.
var HouseTypes = []HouseType{HouseSingleFamily, HouseTownhouse, HouseMultiFamily, HouseCommercial}

func (h HouseType) Valid() bool {
	for _, known := range HouseTypes {
		if h == known {
			return true
		}
	}
	return false
}

// Accepted input ranges for property details. The accumulator does not
// enforce them; callers validate before calling SetProperty.
const (
	MinRoofSizeSqFt = 500
	MaxRoofSizeSqFt = 5000
	MinLotSizeAcres = 0.1
	MaxLotSizeAcres = 2.0
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is the address chosen in step 1.
type Location struct {
	Address     string       `json:"address"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type PropertyDetails struct {
	HouseType    HouseType `json:"houseType"`
	RoofSizeSqFt float64   `json:"roofSizeSqFt"`
	LotSizeAcres float64   `json:"lotSizeAcres"`
}

// Validate checks the details against the ranges the wizard offers.
func (p PropertyDetails) Validate() error {
	if !p.HouseType.Valid() {
		return fmt.Errorf("unknown house type %q", p.HouseType)
	}
	if p.RoofSizeSqFt < MinRoofSizeSqFt || p.RoofSizeSqFt > MaxRoofSizeSqFt {
		return fmt.Errorf("roof size %.0f sq ft outside [%d, %d]", p.RoofSizeSqFt, MinRoofSizeSqFt, MaxRoofSizeSqFt)
	}
	if p.LotSizeAcres < MinLotSizeAcres || p.LotSizeAcres > MaxLotSizeAcres {
		return fmt.Errorf("lot size %.2f acres outside [%.1f, %.1f]", p.LotSizeAcres, MinLotSizeAcres, MaxLotSizeAcres)
	}
	return nil
}

// ClimateMarker records that the climate step has run. No climate data is
// fetched; the marker only gates progress.
type ClimateMarker struct {
	Loaded    bool      `json:"loaded"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the accumulated wizard state persisted after every mutation.
type Record struct {
	Location    *Location          `json:"location"`
	Property    *PropertyDetails   `json:"property"`
	Climate     *ClimateMarker     `json:"climate"`
	Feasibility *FeasibilityReport `json:"feasibility"`
}

func (r Record) clone() Record {
	cp := Record{}
	if r.Location != nil {
		loc := *r.Location
		if r.Location.Coordinates != nil {
			c := *r.Location.Coordinates
			loc.Coordinates = &c
		}
		cp.Location = &loc
	}
	if r.Property != nil {
		p := *r.Property
		cp.Property = &p
	}
	if r.Climate != nil {
		c := *r.Climate
		cp.Climate = &c
	}
	if r.Feasibility != nil {
		f := *r.Feasibility
		cp.Feasibility = &f
	}
	return cp
}

// InferStep derives the furthest step reached from which fields are set.
func InferStep(r Record) Step {
	switch {
	case r.Feasibility != nil:
		return StepResults
	case r.Climate != nil:
		return StepFeasibility
	case r.Property != nil:
		return StepClimate
	case r.Location != nil:
		return StepProperty
	default:
		return StepLocation
	}
}
