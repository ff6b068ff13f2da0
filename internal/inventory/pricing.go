package inventory

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
)

// RequestedLine is one cart entry as sent by the customer.
type RequestedLine struct {
	MedicineName string `json:"medicineName" validate:"required"`
	Quantity     int    `json:"quantity" validate:"required,gt=0"`
}

// PricedLine is a validated cart entry priced from the pharmacy's inventory.
type PricedLine struct {
	MedicineName string
	MedicineKey  string
	Quantity     int
	UnitPrice    decimal.Decimal
	LineTotal    decimal.Decimal
}

// Snapshot is a read-only view of one pharmacy's stock used for pricing.
type Snapshot struct {
	Pharmacy models.Pharmacy
	items    map[string]models.InventoryItem
}

// NewSnapshot indexes the pharmacy's preloaded inventory by medicine key.
func NewSnapshot(pharmacy models.Pharmacy) *Snapshot {
	items := make(map[string]models.InventoryItem, len(pharmacy.Inventory))
	for _, item := range pharmacy.Inventory {
		key := item.MedicineKey
		if key == "" {
			key = MedicineKey(item.MedicineName)
		}
		items[key] = item
	}
	return &Snapshot{Pharmacy: pharmacy, items: items}
}

// Item returns the inventory row for name, if any.
func (s *Snapshot) Item(name string) (models.InventoryItem, bool) {
	item, ok := s.items[MedicineKey(name)]
	return item, ok
}

// PriceAndValidate checks every line against the snapshot and prices it at
// the pharmacy's selling price. Duplicate names are merged first. Nothing is
// mutated; stock is only taken by Reserve.
func PriceAndValidate(snapshot *Snapshot, lines []RequestedLine) ([]PricedLine, decimal.Decimal, error) {
	if snapshot == nil {
		return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "inventory snapshot required")
	}
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, decimal.Zero, err
	}

	priced := make([]PricedLine, 0, len(merged))
	total := decimal.Zero
	for _, line := range merged {
		item, ok := snapshot.Item(line.MedicineName)
		if !ok {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s not available in this pharmacy", line.MedicineName))
		}
		if item.Stock < line.Quantity {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("Insufficient stock for %s. Available: %d", item.MedicineName, item.Stock)).
				WithDetails(map[string]any{
					"medicine":  item.MedicineName,
					"requested": line.Quantity,
					"available": item.Stock,
				})
		}
		lineTotal := item.SellingPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
		priced = append(priced, PricedLine{
			MedicineName: item.MedicineName,
			MedicineKey:  MedicineKey(item.MedicineName),
			Quantity:     line.Quantity,
			UnitPrice:    item.SellingPrice,
			LineTotal:    lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return priced, total, nil
}

// Lines converts priced lines into ledger lines.
func Lines(priced []PricedLine) []Line {
	out := make([]Line, 0, len(priced))
	for _, p := range priced {
		out = append(out, Line{MedicineKey: p.MedicineKey, Quantity: p.Quantity})
	}
	return out
}

// LinesFromOrder converts persisted order line items into ledger lines.
func LinesFromOrder(items []models.OrderLineItem) []Line {
	out := make([]Line, 0, len(items))
	for _, item := range items {
		out = append(out, Line{MedicineKey: MedicineKey(item.MedicineName), Quantity: item.Quantity})
	}
	return out
}

func mergeLines(lines []RequestedLine) ([]RequestedLine, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one medicine is required")
	}
	index := make(map[string]int, len(lines))
	merged := make([]RequestedLine, 0, len(lines))
	for _, line := range lines {
		name := strings.TrimSpace(line.MedicineName)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "medicine name is required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity for %s must be positive", name))
		}
		key := MedicineKey(name)
		if pos, ok := index[key]; ok {
			merged[pos].Quantity += line.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, RequestedLine{MedicineName: name, Quantity: line.Quantity})
	}
	return merged, nil
}
