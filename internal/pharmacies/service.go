package pharmacies

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medidrop-backend/internal/inventory"
	"github.com/angelmondragon/medidrop-backend/internal/notifications"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/geo"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	"github.com/angelmondragon/medidrop-backend/pkg/outbox"
	"github.com/angelmondragon/medidrop-backend/pkg/phone"
)

const topMedicinesLimit = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) bool
}

// InventoryWriter applies a vendor's stock update.
type InventoryWriter interface {
	Upsert(ctx context.Context, pharmacyID uuid.UUID, input inventory.UpsertInput) (*models.InventoryItem, error)
}

// RegisterInput is a vendor's pharmacy registration.
type RegisterInput struct {
	Name          string
	Address       string
	ContactNumber string
	LicenseNumber string
	Location      geo.Coordinate
}

// InventoryItemView is one stocked medicine as seen by its owner.
type InventoryItemView struct {
	ID            uuid.UUID       `json:"id"`
	MedicineName  string          `json:"medicine_name"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Stock         int             `json:"stock"`
}

// PharmacyView is a pharmacy as shown to its owner and to admins.
type PharmacyView struct {
	ID             uuid.UUID            `json:"id"`
	OwnerID        uuid.UUID            `json:"owner_id"`
	Name           string               `json:"name"`
	Address        string               `json:"address"`
	ContactNumber  string               `json:"contact_number"`
	LicenseNumber  string               `json:"license_number"`
	Location       geo.Coordinate       `json:"location"`
	ApprovalStatus enums.ApprovalStatus `json:"approval_status"`
	Inventory      []InventoryItemView  `json:"inventory"`
}

// Dashboard summarizes a pharmacy's sales. Fulfilled means delivered or
// collected at the counter.
type Dashboard struct {
	PharmacyID      uuid.UUID       `json:"pharmacy_id"`
	Name            string          `json:"name"`
	Address         string          `json:"address"`
	TotalOrders     int64           `json:"total_orders"`
	CompletedOrders int64           `json:"completed_orders"`
	PendingOrders   int64           `json:"pending_orders"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	MedicinesSold   int64           `json:"medicines_sold"`
	TopMedicines    []MedicineSales `json:"top_medicines"`
}

// Service manages pharmacies on behalf of vendors and admins.
type Service interface {
	Register(ctx context.Context, vendorID uuid.UUID, input RegisterInput) (*PharmacyView, error)
	ListMine(ctx context.Context, vendorID uuid.UUID) ([]PharmacyView, error)
	UpsertInventory(ctx context.Context, vendorID, pharmacyID uuid.UUID, input inventory.UpsertInput) (*InventoryItemView, error)
	SetApprovalStatus(ctx context.Context, pharmacyID uuid.UUID, status enums.ApprovalStatus, reason string) (*PharmacyView, error)
	Dashboard(ctx context.Context, vendorID, pharmacyID uuid.UUID) (*Dashboard, error)
}

type service struct {
	repo      Repository
	inventory InventoryWriter
	tx        txRunner
	notifier  notifier
	logg      *logger.Logger
}

// NewService wires the pharmacy service.
func NewService(repo Repository, inv InventoryWriter, tx txRunner, notifier notifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("pharmacy repository required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory writer required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, inventory: inv, tx: tx, notifier: notifier, logg: logg}, nil
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "Pharmacy not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pharmacy")
}

func (s *service) Register(ctx context.Context, vendorID uuid.UUID, input RegisterInput) (*PharmacyView, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Address = strings.TrimSpace(input.Address)
	contact, contactOK := phone.Normalize(input.ContactNumber)
	input.LicenseNumber = strings.ToUpper(strings.TrimSpace(input.LicenseNumber))
	switch {
	case input.Name == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pharmacy name is required")
	case input.Address == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pharmacy address is required")
	case input.LicenseNumber == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license number is required")
	case !contactOK:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contact number must be 10 to 15 digits")
	}
	input.ContactNumber = contact
	if err := input.Location.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pharmacy location")
	}

	pharmacy := &models.Pharmacy{
		OwnerID:        vendorID,
		Name:           input.Name,
		Address:        input.Address,
		ContactNumber:  input.ContactNumber,
		LicenseNumber:  input.LicenseNumber,
		Latitude:       input.Location.Latitude,
		Longitude:      input.Location.Longitude,
		ApprovalStatus: enums.ApprovalStatusPending,
	}
	if err := s.repo.Create(ctx, pharmacy); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create pharmacy")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithPharmacyID(ctx, pharmacy.ID.String()), "pharmacy registered")
	}
	view := newPharmacyView(pharmacy)
	return &view, nil
}

func (s *service) ListMine(ctx context.Context, vendorID uuid.UUID) ([]PharmacyView, error) {
	rows, err := s.repo.ListByOwner(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pharmacies")
	}
	out := make([]PharmacyView, 0, len(rows))
	for i := range rows {
		out = append(out, newPharmacyView(&rows[i]))
	}
	return out, nil
}

func (s *service) UpsertInventory(ctx context.Context, vendorID, pharmacyID uuid.UUID, input inventory.UpsertInput) (*InventoryItemView, error) {
	if _, err := s.owned(ctx, vendorID, pharmacyID); err != nil {
		return nil, err
	}
	item, err := s.inventory.Upsert(ctx, pharmacyID, input)
	if err != nil {
		return nil, err
	}
	view := newInventoryItemView(item)
	return &view, nil
}

func (s *service) SetApprovalStatus(ctx context.Context, pharmacyID uuid.UUID, status enums.ApprovalStatus, reason string) (*PharmacyView, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid approval status")
	}
	reason = strings.TrimSpace(reason)
	if status == enums.ApprovalStatusRejected && reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a rejection reason is required")
	}

	var out PharmacyView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.SetApprovalStatus(ctx, pharmacyID, status); err != nil {
			return mapLoadError(err)
		}
		pharmacy, err := repo.FindByID(ctx, pharmacyID)
		if err != nil {
			return mapLoadError(err)
		}
		if s.notifier != nil {
			s.notifier.Notify(ctx, tx, notifications.PharmacyReviewed(pharmacy, reason, notifications.Actor(uuid.Nil, enums.ActorRoleAdmin)))
		}
		out = newPharmacyView(pharmacy)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *service) Dashboard(ctx context.Context, vendorID, pharmacyID uuid.UUID) (*Dashboard, error) {
	pharmacy, err := s.owned(ctx, vendorID, pharmacyID)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.OrderStats(ctx, pharmacyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate orders")
	}
	sold, err := s.repo.MedicinesSold(ctx, pharmacyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate medicines sold")
	}
	top, err := s.repo.TopMedicines(ctx, pharmacyID, topMedicinesLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rank medicines")
	}
	if top == nil {
		top = []MedicineSales{}
	}
	return &Dashboard{
		PharmacyID:      pharmacy.ID,
		Name:            pharmacy.Name,
		Address:         pharmacy.Address,
		TotalOrders:     stats.TotalOrders,
		CompletedOrders: stats.CompletedOrders,
		PendingOrders:   stats.PendingOrders,
		TotalRevenue:    stats.Revenue.Round(2),
		MedicinesSold:   sold,
		TopMedicines:    top,
	}, nil
}

// owned loads the pharmacy and hides it from anyone but its owner.
func (s *service) owned(ctx context.Context, vendorID, pharmacyID uuid.UUID) (*models.Pharmacy, error) {
	pharmacy, err := s.repo.FindByID(ctx, pharmacyID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if pharmacy.OwnerID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Pharmacy not found")
	}
	return pharmacy, nil
}

func newPharmacyView(p *models.Pharmacy) PharmacyView {
	view := PharmacyView{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		Name:           p.Name,
		Address:        p.Address,
		ContactNumber:  p.ContactNumber,
		LicenseNumber:  p.LicenseNumber,
		Location:       geo.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude},
		ApprovalStatus: p.ApprovalStatus,
		Inventory:      make([]InventoryItemView, 0, len(p.Inventory)),
	}
	for i := range p.Inventory {
		view.Inventory = append(view.Inventory, newInventoryItemView(&p.Inventory[i]))
	}
	return view
}

func newInventoryItemView(item *models.InventoryItem) InventoryItemView {
	return InventoryItemView{
		ID:            item.ID,
		MedicineName:  item.MedicineName,
		SellingPrice:  item.SellingPrice,
		PurchasePrice: item.PurchasePrice,
		Stock:         item.Stock,
	}
}
