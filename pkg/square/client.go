// Package square opens Square orders that back a customer payment intent.
package square

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/medidrop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	idempotencyPrefix = "md-"
	idempotencyHexLen = 40
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

type ordersAPI interface {
	Create(ctx context.Context, request *sq.CreateOrderRequest, opts ...sqoption.RequestOption) (*sq.CreateOrderResponse, error)
}

// Client creates orders under one Square location.
type Client struct {
	orders     ordersAPI
	locationID string
	env        string
	logg       *logger.Logger
}

// NewClient validates the Square credentials in cfg and builds the SDK client
// for the configured environment.
func NewClient(ctx context.Context, cfg config.PaymentsConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env, err := normalizeEnv(cfg.SquareEnvironment())
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.SquareAccessToken)
	locationID := strings.TrimSpace(cfg.SquareLocationID)
	var missing []error
	if token == "" {
		missing = append(missing, errors.New("square access token is required"))
	}
	if locationID == "" {
		missing = append(missing, errors.New("square location id is required"))
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURLs[env]),
		sqoption.WithToken(token),
	)
	logg.Info(logg.WithFields(ctx, map[string]any{
		"square_env":  env,
		"location_id": locationID,
	}), "square.connected")
	return &Client{orders: sdk.Orders, locationID: locationID, env: env, logg: logg}, nil
}

// Environment reports the normalized Square environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.env
}

// LocationID returns the Square location orders are created under.
func (c *Client) LocationID() string {
	if c == nil {
		return ""
	}
	return c.locationID
}

// IdempotencyKey derives a stable key from parts, so a retried call for the
// same receipt and amount resolves to the same Square order.
func IdempotencyKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return idempotencyPrefix + hex.EncodeToString(sum[:])[:idempotencyHexLen]
}

// CreateOrder opens a single-line Square order and returns its id.
func (c *Client) CreateOrder(ctx context.Context, params OrderCreateParams) (string, error) {
	if err := params.validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(params.LocationID) == "" {
		params.LocationID = c.locationID
	}
	key := params.IdempotencyKey
	if strings.TrimSpace(key) == "" {
		key = params.defaultIdempotencyKey()
	}

	ctx = c.withCall(ctx, "create_order", map[string]any{
		"location_id":  params.LocationID,
		"reference_id": params.ReferenceID,
		"amount_minor": params.AmountMinor,
	})
	resp, err := c.orders.Create(ctx, params.toSquareRequest(key))
	if err != nil {
		mapped := classify(err, "create order")
		c.logError(ctx, mapped)
		return "", mapped
	}

	order := resp.GetOrder()
	id := ""
	if order != nil && order.GetID() != nil {
		id = *order.GetID()
	}
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "square create order returned no order id")
	}
	if c.logg != nil {
		state := ""
		if order.GetState() != nil {
			state = string(*order.GetState())
		}
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{"square_order_id": id, "state": state}), "square.call.ok")
	}
	return id, nil
}

func (c *Client) withCall(ctx context.Context, op string, fields map[string]any) context.Context {
	if c.logg == nil {
		return ctx
	}
	fields["operation"] = op
	return c.logg.WithFields(ctx, fields)
}

func (c *Client) logError(ctx context.Context, err error) {
	if c.logg != nil {
		c.logg.Error(ctx, "square.call.failed", err)
	}
}

// classify maps an SDK failure onto a domain error. Square's error list
// overrides the HTTP status for reused idempotency keys and bad credentials.
func classify(err error, op string) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square "+op+" failed")
	}

	code := codeForStatus(apiErr.StatusCode)
	detail := map[string]any{"status": apiErr.StatusCode}
	for _, sqErr := range apiErrors(apiErr) {
		switch {
		case sqErr.Code == sq.ErrorCodeIdempotencyKeyReused:
			code = pkgerrors.CodeIdempotency
		case sqErr.Category == sq.ErrorCategoryAuthenticationError:
			code = pkgerrors.CodeUnauthorized
		}
		if _, seen := detail["square_code"]; !seen {
			detail["square_code"] = string(sqErr.Code)
			detail["square_category"] = string(sqErr.Category)
		}
	}
	return pkgerrors.Wrap(code, err, fmt.Sprintf("square %s failed", op)).WithDetails(detail)
}

// apiErrors decodes the {"errors":[...]} body carried inside an APIError.
func apiErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &payload); err != nil {
		return nil
	}
	out := payload.Errors[:0]
	for _, e := range payload.Errors {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case status == http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	case status >= 400 && status < 500:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		return sandboxEnv, nil
	}
	if _, ok := baseURLs[env]; !ok {
		return "", fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	}
	return env, nil
}
