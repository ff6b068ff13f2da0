package square

import (
	"strconv"
	"strings"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
)

const (
	defaultCurrency = "INR"
	defaultLineName = "Medicine order"
)

// OrderCreateParams describes the one-line order a payment intent pays for.
// AmountMinor is in paise for INR.
type OrderCreateParams struct {
	LocationID     string
	ReferenceID    string
	AmountMinor    int64
	Currency       string
	LineItemName   string
	IdempotencyKey string
}

func (p OrderCreateParams) validate() error {
	if p.AmountMinor <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}
	if strings.TrimSpace(p.ReferenceID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order reference id is required")
	}
	return nil
}

func (p OrderCreateParams) currency() sq.Currency {
	code := strings.ToUpper(strings.TrimSpace(p.Currency))
	if code == "" {
		code = defaultCurrency
	}
	return sq.Currency(code)
}

func (p OrderCreateParams) defaultIdempotencyKey() string {
	return IdempotencyKey("order", p.ReferenceID, strconv.FormatInt(p.AmountMinor, 10), string(p.currency()))
}

func (p OrderCreateParams) toSquareRequest(idempotencyKey string) *sq.CreateOrderRequest {
	name := strings.TrimSpace(p.LineItemName)
	if name == "" {
		name = defaultLineName
	}
	amount := p.AmountMinor
	currency := p.currency()
	return &sq.CreateOrderRequest{
		IdempotencyKey: optional(idempotencyKey),
		Order: &sq.Order{
			LocationID:  p.LocationID,
			ReferenceID: optional(p.ReferenceID),
			LineItems: []*sq.OrderLineItem{{
				Name:           optional(name),
				Quantity:       "1",
				BasePriceMoney: &sq.Money{Amount: &amount, Currency: &currency},
			}},
		},
	}
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
