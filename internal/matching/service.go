package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medidrop-backend/internal/volunteers"
	"github.com/angelmondragon/medidrop-backend/pkg/config"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

const nearestLimit = 10

type volunteerLookup interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Volunteer, error)
	ActiveOrderCount(ctx context.Context, volunteerID uuid.UUID) (int64, error)
}

// PharmacyMatch is a pharmacy that stocks the searched medicine. Stock
// levels are deliberately absent; IsAvailable is always true.
type PharmacyMatch struct {
	PharmacyID    uuid.UUID       `json:"pharmacy_id"`
	Name          string          `json:"name"`
	Address       string          `json:"address"`
	ContactNumber string          `json:"contact_number"`
	MedicineName  string          `json:"medicine_name"`
	Price         decimal.Decimal `json:"price"`
	IsAvailable   bool            `json:"is_available"`
	DistanceKm    float64         `json:"distance_km"`
	Location      geo.Coordinate  `json:"location"`
}

// SearchResult is a pharmacy search outcome.
type SearchResult struct {
	Mode     enums.SearchMode `json:"mode"`
	RadiusKm float64          `json:"radius_km"`
	Origin   geo.Coordinate   `json:"origin"`
	Results  []PharmacyMatch  `json:"results"`
}

// SummaryItem is one medicine line of an available delivery.
type SummaryItem struct {
	MedicineName string `json:"medicine_name"`
	Quantity     int    `json:"quantity"`
}

// OrderSummary is a delivery a volunteer may accept, priced with the
// current quote.
type OrderSummary struct {
	OrderID          uuid.UUID       `json:"order_id"`
	PharmacyID       uuid.UUID       `json:"pharmacy_id"`
	PharmacyName     string          `json:"pharmacy_name"`
	PharmacyAddress  string          `json:"pharmacy_address"`
	PharmacyLocation geo.Coordinate  `json:"pharmacy_location"`
	DeliveryAddress  string          `json:"delivery_address"`
	DeliveryLocation geo.Coordinate  `json:"delivery_location"`
	ContactNumber    string          `json:"contact_number"`
	Items            []SummaryItem   `json:"items"`
	MedicineTotal    decimal.Decimal `json:"medicine_total"`
	DistanceKm       float64         `json:"distance_km"`
	DeliveryCharges  decimal.Decimal `json:"delivery_charges"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PlacedAt         time.Time       `json:"placed_at"`
}

// Service answers proximity questions for customers and volunteers.
type Service interface {
	FindPharmaciesWithMedicine(ctx context.Context, origin geo.Coordinate, medicineName string, radiusKm float64) (*SearchResult, error)
	FindOrdersForVolunteer(ctx context.Context, volunteerUserID uuid.UUID) ([]OrderSummary, error)
}

type service struct {
	repo          Repository
	volunteers    volunteerLookup
	logg          *logger.Logger
	defaultRadius float64
	maxRadius     float64
}

// NewService builds the matching service.
func NewService(repo Repository, volunteerRepo volunteerLookup, cfg config.SearchConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("matching repository required")
	}
	if volunteerRepo == nil {
		return nil, fmt.Errorf("volunteer repository required")
	}
	svc := &service{
		repo:          repo,
		volunteers:    volunteerRepo,
		logg:          logg,
		defaultRadius: cfg.DefaultRadiusKm,
		maxRadius:     cfg.MaxRadiusKm,
	}
	if svc.defaultRadius <= 0 {
		svc.defaultRadius = 3
	}
	if svc.maxRadius <= 0 {
		svc.maxRadius = 50
	}
	return svc, nil
}

func (s *service) FindPharmaciesWithMedicine(ctx context.Context, origin geo.Coordinate, medicineName string, radiusKm float64) (*SearchResult, error) {
	medicineName = strings.TrimSpace(medicineName)
	if medicineName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "medicine name is required")
	}
	if err := origin.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid search location")
	}
	if radiusKm == 0 {
		radiusKm = s.defaultRadius
	}
	if radiusKm <= 0 || radiusKm > s.maxRadius {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("radius must be greater than 0 and at most %g km", s.maxRadius))
	}

	rows, err := s.repo.StockedPharmacies(ctx, medicineName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search pharmacies")
	}

	matches := firstMatchPerPharmacy(rows, origin)
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].DistanceKm < matches[j].DistanceKm })

	within := make([]PharmacyMatch, 0, len(matches))
	for _, m := range matches {
		if m.DistanceKm <= radiusKm {
			within = append(within, m)
		}
	}

	result := &SearchResult{Mode: enums.SearchModeWithinRadius, RadiusKm: radiusKm, Origin: origin, Results: within}
	if len(within) == 0 {
		result.Mode = enums.SearchModeNearestAvailable
		if len(matches) > nearestLimit {
			matches = matches[:nearestLimit]
		}
		result.Results = matches
	}
	for i := range result.Results {
		result.Results[i].DistanceKm = geo.RoundKm(result.Results[i].DistanceKm)
	}
	return result, nil
}

// firstMatchPerPharmacy keeps the first matching inventory row of each
// pharmacy, rows arriving grouped by pharmacy and ordered by medicine name.
func firstMatchPerPharmacy(rows []StockedPharmacy, origin geo.Coordinate) []PharmacyMatch {
	seen := make(map[uuid.UUID]struct{}, len(rows))
	out := make([]PharmacyMatch, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.PharmacyID]; ok {
			continue
		}
		seen[row.PharmacyID] = struct{}{}
		location := geo.Coordinate{Latitude: row.Latitude, Longitude: row.Longitude}
		out = append(out, PharmacyMatch{
			PharmacyID:    row.PharmacyID,
			Name:          row.Name,
			Address:       row.Address,
			ContactNumber: row.ContactNumber,
			MedicineName:  row.MedicineName,
			Price:         row.SellingPrice,
			IsAvailable:   true,
			DistanceKm:    geo.DistanceKm(origin, location),
			Location:      location,
		})
	}
	return out
}

func (s *service) FindOrdersForVolunteer(ctx context.Context, volunteerUserID uuid.UUID) ([]OrderSummary, error) {
	volunteer, err := s.volunteers.FindByUserID(ctx, volunteerUserID)
	if err != nil {
		if pkgerrors.IsCode(volunteers.MapLoadError(err), pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "volunteer profile required")
		}
		return nil, volunteers.MapLoadError(err)
	}
	if !volunteers.Eligible(volunteer) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "volunteer is not approved and available")
	}
	active, err := s.volunteers.ActiveOrderCount(ctx, volunteer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active orders")
	}
	if active > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "finish the active delivery before taking another").
			WithDetails(map[string]any{"active_orders": active})
	}

	rows, err := s.repo.OpenDeliveryOrders(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open orders")
	}

	summaries := make([]OrderSummary, 0, len(rows))
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		pharmacy := geo.Coordinate{Latitude: row.PharmacyLatitude, Longitude: row.PharmacyLongitude}
		destination := geo.Coordinate{Latitude: row.DeliveryLatitude, Longitude: row.DeliveryLongitude}
		pricing := geo.Quote(row.MedicineTotal, enums.DeliveryTypeDelivery, pharmacy, destination)
		if pricing.DistanceKm > volunteer.RadiusKm {
			continue
		}
		summary := OrderSummary{
			OrderID:          row.ID,
			PharmacyID:       row.PharmacyID,
			PharmacyName:     row.PharmacyName,
			PharmacyAddress:  row.PharmacyAddress,
			PharmacyLocation: pharmacy,
			DeliveryLocation: destination,
			ContactNumber:    row.ContactNumber,
			Items:            []SummaryItem{},
			MedicineTotal:    pricing.MedicineTotal,
			DistanceKm:       geo.RoundKm(pricing.DistanceKm),
			DeliveryCharges:  pricing.DeliveryCharges,
			TotalAmount:      pricing.TotalAmount,
			PlacedAt:         row.PlacedAt,
		}
		if row.DeliveryAddress != nil {
			summary.DeliveryAddress = *row.DeliveryAddress
		}
		summaries = append(summaries, summary)
		ids = append(ids, row.ID)
	}

	items, err := s.repo.LineItemsFor(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	byOrder := make(map[uuid.UUID][]SummaryItem, len(ids))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], SummaryItem{MedicineName: item.MedicineName, Quantity: item.Quantity})
	}
	for i := range summaries {
		if lines, ok := byOrder[summaries[i].OrderID]; ok {
			summaries[i].Items = lines
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"volunteer_id": volunteer.ID.String(),
			"candidates":   len(rows),
			"in_radius":    len(summaries),
		})
		s.logg.Debug(logCtx, "volunteer order match")
	}
	return summaries, nil
}
