// Package geo holds great-circle distance and the delivery pricing derived from it.
package geo

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks latitude/longitude ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90,90]", c.Latitude)
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180,180]", c.Longitude)
	}
	return nil
}

// DistanceKm returns the haversine distance between a and b in kilometres.
func DistanceKm(a, b Coordinate) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Latitude))*math.Cos(toRadians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// RoundKm rounds a distance to two decimals for presentation.
func RoundKm(km float64) float64 {
	return math.Round(km*100) / 100
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

type chargeTier struct {
	maxKm  float64
	amount int64
}

var chargeTiers = []chargeTier{
	{maxKm: 2, amount: 20},
	{maxKm: 5, amount: 30},
	{maxKm: 10, amount: 50},
	{maxKm: 15, amount: 70},
}

const perKmBeyondTiers = 5

// DeliveryCharge returns the courier fee for a pharmacy-to-destination distance.
// Beyond the last tier the fee is ceil(distance * 5).
func DeliveryCharge(distanceKm float64) decimal.Decimal {
	if distanceKm < 0 || math.IsNaN(distanceKm) {
		distanceKm = 0
	}
	for _, tier := range chargeTiers {
		if distanceKm <= tier.maxKm {
			return decimal.NewFromInt(tier.amount)
		}
	}
	return decimal.NewFromFloat(math.Ceil(distanceKm * perKmBeyondTiers))
}
