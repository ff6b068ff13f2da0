package payments

import (
	"context"
	"fmt"

	"github.com/angelmondragon/medidrop-backend/pkg/config"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
	"github.com/angelmondragon/medidrop-backend/pkg/razorpay"
	"github.com/angelmondragon/medidrop-backend/pkg/square"
)

// CreateOrderParams is a processor-neutral payment order request.
type CreateOrderParams struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// ProcessorOrder is the processor-side order the client pays against.
type ProcessorOrder struct {
	ID string
}

// Processor opens payment orders with an external processor.
type Processor interface {
	Name() string
	KeyID() string
	CreateOrder(ctx context.Context, params CreateOrderParams) (ProcessorOrder, error)
}

// NewProcessor builds the processor named by cfg.Provider.
func NewProcessor(ctx context.Context, cfg config.PaymentsConfig, logg *logger.Logger) (Processor, error) {
	switch cfg.NormalizedProvider() {
	case config.PaymentProviderRazorpay:
		client, err := razorpay.NewClient(cfg.KeyID, cfg.KeySecret,
			razorpay.WithBaseURL(cfg.BaseURL),
			razorpay.WithTimeout(cfg.ProcessorTimeout),
		)
		if err != nil {
			return nil, err
		}
		return NewRazorpayProcessor(client), nil
	case config.PaymentProviderSquare:
		client, err := square.NewClient(ctx, cfg, logg)
		if err != nil {
			return nil, err
		}
		return NewSquareProcessor(client), nil
	default:
		return nil, fmt.Errorf("unsupported payments provider %q", cfg.Provider)
	}
}

type razorpayOrders interface {
	KeyID() string
	CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error)
}

type razorpayProcessor struct {
	client razorpayOrders
}

// NewRazorpayProcessor adapts the Razorpay REST client.
func NewRazorpayProcessor(client razorpayOrders) Processor {
	return &razorpayProcessor{client: client}
}

func (p *razorpayProcessor) Name() string { return config.PaymentProviderRazorpay }

func (p *razorpayProcessor) KeyID() string { return p.client.KeyID() }

func (p *razorpayProcessor) CreateOrder(ctx context.Context, params CreateOrderParams) (ProcessorOrder, error) {
	order, err := p.client.CreateOrder(ctx, razorpay.OrderRequest{
		Amount:   params.AmountMinor,
		Currency: params.Currency,
		Receipt:  params.Receipt,
		Notes:    params.Notes,
	})
	if err != nil {
		return ProcessorOrder{}, err
	}
	return ProcessorOrder{ID: order.ID}, nil
}

type squareProcessor struct {
	client *square.Client
}

// NewSquareProcessor adapts the Square Orders API client.
func NewSquareProcessor(client *square.Client) Processor {
	return &squareProcessor{client: client}
}

func (p *squareProcessor) Name() string { return config.PaymentProviderSquare }

// KeyID returns the Square location, which the web checkout needs alongside
// the application id.
func (p *squareProcessor) KeyID() string { return p.client.LocationID() }

func (p *squareProcessor) CreateOrder(ctx context.Context, params CreateOrderParams) (ProcessorOrder, error) {
	id, err := p.client.CreateOrder(ctx, square.OrderCreateParams{
		ReferenceID:  params.Receipt,
		AmountMinor:  params.AmountMinor,
		Currency:     params.Currency,
		LineItemName: params.Notes["pharmacy"],
	})
	if err != nil {
		return ProcessorOrder{}, err
	}
	return ProcessorOrder{ID: id}, nil
}
