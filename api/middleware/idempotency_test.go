package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func placeOrderRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"place order", http.MethodPost, "/api/orders", criticalIdempotencyTTL, true},
		{"trailing slash", http.MethodPost, "/api/orders/", criticalIdempotencyTTL, true},
		{"order cancel", http.MethodPost, "/api/orders/ord-1/cancel", criticalIdempotencyTTL, true},
		{"confirm pickup", http.MethodPost, "/api/vendor/orders/ord-1/confirm-pickup", criticalIdempotencyTTL, true},
		{"payment intent", http.MethodPost, "/api/orders/ord-1/payment-intent", defaultIdempotencyTTL, true},
		{"inventory upsert", http.MethodPut, "/api/vendor/pharmacies/ph-1/inventory", defaultIdempotencyTTL, true},
		{"extra segment", http.MethodPost, "/api/orders/ord-1/x/cancel", 0, false},
		{"volunteer accept", http.MethodPost, "/api/volunteer/orders/ord-1/accept", 0, false},
		{"order list", http.MethodGet, "/api/orders", 0, false},
		{"root", http.MethodPost, "/", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl, ok := routeTTL(tt.method, tt.path)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, ttl)
		})
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, placeOrderRequest("", `{"pharmacyId":"ph-1"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, called)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	var calls int
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"ord-1"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, placeOrderRequest("abc", `{"pharmacyId":"ph-1"}`))
	require.Equal(t, http.StatusCreated, first.Code)
	require.Empty(t, first.Header().Get(replayedHeader))

	again := httptest.NewRecorder()
	handler.ServeHTTP(again, placeOrderRequest("abc", `{"pharmacyId":"ph-1"}`))
	require.Equal(t, http.StatusCreated, again.Code)
	require.Equal(t, "application/json", again.Header().Get("Content-Type"))
	require.Equal(t, "true", again.Header().Get(replayedHeader))
	require.JSONEq(t, `{"data":{"id":"ord-1"}}`, again.Body.String())
	require.Equal(t, 1, calls)
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), placeOrderRequest("xyz", `{"pharmacyId":"ph-1"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, placeOrderRequest("xyz", `{"pharmacyId":"ph-2"}`))

	require.Equal(t, http.StatusConflict, rec.Code)
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
}

func TestIdempotencySkipsRetryableResponses(t *testing.T) {
	store := newFakeStore()
	statuses := []int{http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusCreated}
	var calls int
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	}))

	for range statuses {
		handler.ServeHTTP(httptest.NewRecorder(), placeOrderRequest("retry-me", `{}`))
	}

	require.Equal(t, 3, calls)
	require.Len(t, store.data, 1)
}

func TestIdempotencyScopeSeparatesUsers(t *testing.T) {
	var calls int
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, user := range []string{"user-a", "user-b"} {
		req := placeOrderRequest("shared", `{}`)
		handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(WithUserID(req.Context(), user)))
	}

	require.Equal(t, 2, calls)
}

func TestIdempotencyIgnoresUnguardedRoutes(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, called)
}
