package geo

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medidrop-backend/pkg/enums"
)

// Pricing is the delivery part of an order total.
type Pricing struct {
	DistanceKm      float64
	DeliveryCharges decimal.Decimal
	MedicineTotal   decimal.Decimal
	TotalAmount     decimal.Decimal
}

// Quote is the only place an order total is derived. Order creation, volunteer
// listings and assignment all call it so quoted and charged totals match.
func Quote(medicineTotal decimal.Decimal, deliveryType enums.DeliveryType, pharmacy, destination Coordinate) Pricing {
	if deliveryType == enums.DeliveryTypePickup {
		return Pricing{
			DeliveryCharges: decimal.Zero,
			MedicineTotal:   medicineTotal,
			TotalAmount:     medicineTotal,
		}
	}
	distance := DistanceKm(pharmacy, destination)
	charge := DeliveryCharge(distance)
	return Pricing{
		DistanceKm:      distance,
		DeliveryCharges: charge,
		MedicineTotal:   medicineTotal,
		TotalAmount:     medicineTotal.Add(charge),
	}
}
