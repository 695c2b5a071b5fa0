package assessment

import (
	"fmt"
	"math"
)

const (
	// defaultAnnualRainfallIn is used until real climate data is wired in.
	defaultAnnualRainfallIn = 34.0

	gallonsPerSqFtInch   = 0.623
	collectionEfficiency = 0.85
	waterRatePerKGal     = 12.0 // USD per 1,000 gallons
	rebateRate           = 0.20
	tankCostPerGallon    = 0.75
	minTankGallons       = 250
	maxTankGallons       = 10000
)

var baseSystemCost = map[HouseType]float64{
	HouseSingleFamily: 3500,
	HouseTownhouse:    2800,
	HouseMultiFamily:  8500,
	HouseCommercial:   15000,
}

// annualDemandGal is the non-potable demand a harvesting system can offset.
var annualDemandGal = map[HouseType]float64{
	HouseSingleFamily: 36000,
	HouseTownhouse:    24000,
	HouseMultiFamily:  90000,
	HouseCommercial:   150000,
}

// FeasibilityReport is the fixed-shape result of the step 4 calculation.
type FeasibilityReport struct {
	AnnualRainfallIn     float64 `json:"annualRainfallIn"`
	HarvestGallonsYear   float64 `json:"harvestGallonsYear"`
	RecommendedTankGal   int     `json:"recommendedTankGal"`
	DemandCoveredPercent float64 `json:"demandCoveredPercent"`
	EstimatedCostUSD     float64 `json:"estimatedCostUsd"`
	NetCostUSD           float64 `json:"netCostUsd"`
	AnnualSavingsUSD     float64 `json:"annualSavingsUsd"`
	PaybackYears         float64 `json:"paybackYears"`
	Score                int     `json:"score"`
	Rating               string  `json:"rating"`
}

// Validate checks a report supplied from outside Calculate.
func (f FeasibilityReport) Validate() error {
	if f.Score < 0 || f.Score > 100 {
		return fmt.Errorf("score must be between 0 and 100, got %d", f.Score)
	}
	switch f.Rating {
	case "excellent", "good", "fair", "poor":
	default:
		return fmt.Errorf("unknown rating %q", f.Rating)
	}
	for name, v := range map[string]float64{
		"annualRainfallIn":   f.AnnualRainfallIn,
		"harvestGallonsYear": f.HarvestGallonsYear,
		"estimatedCostUsd":   f.EstimatedCostUSD,
		"annualSavingsUsd":   f.AnnualSavingsUSD,
		"paybackYears":       f.PaybackYears,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if f.RecommendedTankGal < 0 {
		return fmt.Errorf("recommendedTankGal must not be negative")
	}
	return nil
}

// Calculate computes a feasibility report from the record's property
// details. A record without property details yields a zero report rated poor.
func Calculate(r Record) FeasibilityReport {
	report := FeasibilityReport{
		AnnualRainfallIn: defaultAnnualRainfallIn,
		Rating:           "poor",
	}
	if r.Property == nil {
		return report
	}
	p := r.Property

	harvest := p.RoofSizeSqFt * report.AnnualRainfallIn * gallonsPerSqFtInch * collectionEfficiency
	report.HarvestGallonsYear = round2(harvest)

	tank := int(math.Ceil(harvest/12/50) * 50)
	tank = max(minTankGallons, min(maxTankGallons, tank))
	report.RecommendedTankGal = tank

	if demand := annualDemandGal[p.HouseType]; demand > 0 {
		report.DemandCoveredPercent = round2(math.Min(100, harvest/demand*100))
	}

	cost := baseSystemCost[p.HouseType] + float64(tank)*tankCostPerGallon
	report.EstimatedCostUSD = round2(cost)
	report.NetCostUSD = round2(cost * (1 - rebateRate))

	savings := harvest / 1000 * waterRatePerKGal
	report.AnnualSavingsUSD = round2(savings)
	if savings > 0 {
		report.PaybackYears = round2(report.NetCostUSD / savings)
	}

	report.Score = score(harvest, report.PaybackYears)
	report.Rating = rating(report.Score)
	return report
}

func score(harvest, payback float64) int {
	harvestScore := math.Min(harvest/50000, 1) * 50

	var paybackScore float64
	switch {
	case payback <= 0:
		paybackScore = 0
	case payback <= 5:
		paybackScore = 50
	case payback <= 10:
		paybackScore = 35
	case payback <= 20:
		paybackScore = 20
	default:
		paybackScore = 10
	}
	return int(math.Round(harvestScore + paybackScore))
}

func rating(score int) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "fair"
	default:
		return "poor"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
