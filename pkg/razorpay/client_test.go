package razorpay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestCreateOrderSuccess(t *testing.T) {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, "https://api.test/v1/orders", req.URL.String())
		user, pass, ok := req.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "rzp_test_key", user)
		require.Equal(t, "secret", pass)

		var body OrderRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		require.Equal(t, int64(13000), body.Amount)
		require.Equal(t, "INR", body.Currency)
		require.Len(t, body.Receipt, maxReceiptLen)
		require.Equal(t, "abc", body.Notes["order_id"])

		return jsonResponse(http.StatusOK, `{"id":"order_IluGWxBm9U8zJ8","entity":"order","amount":13000,"currency":"INR","status":"created"}`), nil
	})

	client, err := NewClient("rzp_test_key", "secret", WithBaseURL("https://api.test"), WithHTTPClient(&http.Client{Transport: transport}))
	require.NoError(t, err)

	order, err := client.CreateOrder(context.Background(), OrderRequest{
		Amount:   13000,
		Currency: "INR",
		Receipt:  strings.Repeat("r", 64),
		Notes:    map[string]string{"order_id": "abc"},
	})
	require.NoError(t, err)
	require.Equal(t, "order_IluGWxBm9U8zJ8", order.ID)
	require.Equal(t, "created", order.Status)
}

func TestCreateOrderMapsAPIErrorToDependency(t *testing.T) {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"error":{"code":"BAD_REQUEST_ERROR","description":"The amount must be atleast INR 1.00"}}`), nil
	})
	client, err := NewClient("k", "s", WithHTTPClient(&http.Client{Transport: transport}))
	require.NoError(t, err)

	_, err = client.CreateOrder(context.Background(), OrderRequest{Amount: 50, Currency: "INR"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeDependency, typed.Code())
	require.Contains(t, err.Error(), "BAD_REQUEST_ERROR")
}

func TestCreateOrderTransportFailure(t *testing.T) {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})
	client, err := NewClient("k", "s", WithHTTPClient(&http.Client{Transport: transport}), WithTimeout(time.Second))
	require.NoError(t, err)

	_, err = client.CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: "INR"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestCreateOrderValidatesInput(t *testing.T) {
	client, err := NewClient("k", "s")
	require.NoError(t, err)

	_, err = client.CreateOrder(context.Background(), OrderRequest{Amount: 0, Currency: "INR"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = client.CreateOrder(context.Background(), OrderRequest{Amount: 100})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewClientRequiresKeys(t *testing.T) {
	_, err := NewClient(" ", "s")
	require.ErrorIs(t, err, errKeyIDRequired)
	_, err = NewClient("k", "")
	require.ErrorIs(t, err, errKeySecretRequired)
}
