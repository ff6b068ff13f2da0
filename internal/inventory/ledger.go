package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

// Line is a quantity of one medicine, keyed by its normalized name.
type Line struct {
	MedicineKey string
	Quantity    int
}

// UpsertInput is a vendor's stock and price update for one medicine.
type UpsertInput struct {
	MedicineName  string
	SellingPrice  decimal.Decimal
	PurchasePrice decimal.Decimal
	Stock         int
}

// Ledger reads and mutates pharmacy stock. Reserve and Release run on the
// caller's transaction so stock moves commit or roll back with the order.
type Ledger struct {
	db   *gorm.DB
	logg *logger.Logger
}

// NewLedger builds a ledger bound to db.
func NewLedger(db *gorm.DB, logg *logger.Logger) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("inventory db required")
	}
	return &Ledger{db: db, logg: logg}, nil
}

// MedicineKey normalizes a medicine name for matching.
func MedicineKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Snapshot loads the pharmacy and its full inventory.
func (l *Ledger) Snapshot(ctx context.Context, pharmacyID uuid.UUID) (*Snapshot, error) {
	var pharmacy models.Pharmacy
	err := l.db.WithContext(ctx).
		Preload("Inventory").
		Where("id = ?", pharmacyID).
		First(&pharmacy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pharmacy not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pharmacy inventory")
	}
	return NewSnapshot(pharmacy), nil
}

// Reserve decrements stock for every line. Each line is a conditional update
// that only matches while enough stock remains; the first miss aborts with a
// conflict and the caller's transaction rolls back the earlier lines.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, lines []Line) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory reserve")
	}
	for _, line := range orderedLines(lines) {
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		res := tx.WithContext(ctx).Exec(`
			UPDATE inventory_items
			SET stock = stock - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE pharmacy_id = ? AND medicine_key = ? AND stock >= ?
		`, line.Quantity, pharmacyID, line.MedicineKey, line.Quantity)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
				WithDetails(map[string]any{
					"medicine":  line.MedicineKey,
					"requested": line.Quantity,
				})
		}
	}
	return nil
}

// Release returns stock for every line. Items removed since the order was
// placed are skipped.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, lines []Line) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory release")
	}
	for _, line := range orderedLines(lines) {
		if line.Quantity <= 0 {
			continue
		}
		res := tx.WithContext(ctx).Exec(`
			UPDATE inventory_items
			SET stock = stock + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE pharmacy_id = ? AND medicine_key = ?
		`, line.Quantity, pharmacyID, line.MedicineKey)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
		}
		if res.RowsAffected == 0 && l.logg != nil {
			logCtx := l.logg.WithFields(ctx, map[string]any{
				"pharmacy_id": pharmacyID.String(),
				"medicine":    line.MedicineKey,
				"quantity":    line.Quantity,
			})
			l.logg.Warn(logCtx, "inventory item missing on release; skipped")
		}
	}
	return nil
}

// Upsert creates or updates the pharmacy's row for the medicine. Names match
// case-insensitively, so one medicine maps to exactly one row.
func (l *Ledger) Upsert(ctx context.Context, pharmacyID uuid.UUID, input UpsertInput) (*models.InventoryItem, error) {
	name := strings.TrimSpace(input.MedicineName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "medicine name is required")
	}
	if input.SellingPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "selling price cannot be negative")
	}
	if input.PurchasePrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase price cannot be negative")
	}
	if input.Stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}

	item := &models.InventoryItem{
		PharmacyID:    pharmacyID,
		MedicineName:  name,
		MedicineKey:   MedicineKey(name),
		SellingPrice:  input.SellingPrice.Round(2),
		PurchasePrice: input.PurchasePrice.Round(2),
		Stock:         input.Stock,
	}
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pharmacy_id"}, {Name: "medicine_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"medicine_name", "selling_price", "purchase_price", "stock", "updated_at"}),
		}).
		Create(item).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert inventory item")
	}

	var stored models.InventoryItem
	if err := l.db.WithContext(ctx).
		Where("pharmacy_id = ? AND medicine_key = ?", pharmacyID, item.MedicineKey).
		First(&stored).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload inventory item")
	}
	return &stored, nil
}

// orderedLines sorts by key so concurrent reservations touch rows in the
// same order.
func orderedLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	sort.Slice(out, func(i, j int) bool { return out[i].MedicineKey < out[j].MedicineKey })
	return out
}
