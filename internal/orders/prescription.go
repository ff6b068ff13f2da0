package orders

import (
	"strings"

	"github.com/angelmondragon/medidrop-backend/pkg/config"
	"github.com/angelmondragon/medidrop-backend/pkg/db/models"
	"github.com/angelmondragon/medidrop-backend/pkg/enums"
)

// GateMode decides what happens when a prescription order is paid before the
// vendor has approved the prescription.
type GateMode string

const (
	// GateBlockPayment refuses to create or verify a payment until approval.
	GateBlockPayment GateMode = config.PrescriptionGateBlockPayment
	// GateHoldCapture accepts the payment but keeps the order pending; approval
	// then confirms it.
	GateHoldCapture GateMode = config.PrescriptionGateHoldCapture
)

// ParseGateMode normalizes the configured gate, defaulting to block.
func ParseGateMode(raw string) GateMode {
	if strings.EqualFold(strings.TrimSpace(raw), string(GateHoldCapture)) {
		return GateHoldCapture
	}
	return GateBlockPayment
}

// RequiresPrescription reports whether any medicine name contains one of the
// sensitive keywords, case-insensitively.
func RequiresPrescription(medicineNames []string, keywords []string) bool {
	for _, name := range medicineNames {
		lower := strings.ToLower(name)
		for _, keyword := range keywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword != "" && strings.Contains(lower, keyword) {
				return true
			}
		}
	}
	return false
}

// PrescriptionCleared reports whether the order may advance past pending.
func PrescriptionCleared(order *models.Order) bool {
	if !order.NeedsPrescription {
		return true
	}
	return order.PrescriptionStatus != nil && *order.PrescriptionStatus == enums.PrescriptionStatusApproved
}

// PaymentSecured reports whether funds are captured or held for the order.
func PaymentSecured(order *models.Order) bool {
	return order.PaymentStatus.Settled() || order.PaymentHeldAt != nil
}
