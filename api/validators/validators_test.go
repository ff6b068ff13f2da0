package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
)

type contactRequest struct {
	Name  string `json:"name" validate:"required,max=20"`
	Phone string `json:"phone" validate:"required,phone"`
}

func codeOf(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	return typed.Code()
}

func TestDecodeJSONBody(t *testing.T) {
	var dest contactRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Asha","phone":"+91 98765-43210"}`))
	require.NoError(t, DecodeJSONBody(req, &dest))
	require.Equal(t, "Asha", dest.Name)

	cases := map[string]string{
		"empty":         ``,
		"unknown field": `{"name":"Asha","phone":"9876543210","extra":1}`,
		"bad phone":     `{"name":"Asha","phone":"12ab"}`,
		"missing name":  `{"phone":"9876543210"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var dest contactRequest
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			require.Equal(t, pkgerrors.CodeValidation, codeOf(t, DecodeJSONBody(req, &dest)))
		})
	}
}

func TestDecodeJSONBodyFieldDetails(t *testing.T) {
	var dest contactRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Asha","phone":"1"}`))
	err := DecodeJSONBody(req, &dest)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Contains(t, details, "phone")
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=30&bad=x&big=500", nil)

	v, err := ParseQueryInt(req, "limit", 10, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 30, v)

	v, err = ParseQueryInt(req, "missing", 10, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 10, v)

	_, err = ParseQueryInt(req, "bad", 10, 1, 100)
	require.Equal(t, pkgerrors.CodeValidation, codeOf(t, err))
	_, err = ParseQueryInt(req, "big", 10, 1, 100)
	require.Equal(t, pkgerrors.CodeValidation, codeOf(t, err))
}

func TestParseQueryCoordinate(t *testing.T) {
	point, err := ParseQueryCoordinate(httptest.NewRequest(http.MethodGet, "/?lat=12.97&lng=77.59", nil), "lat", "lng")
	require.NoError(t, err)
	require.InDelta(t, 12.97, point.Latitude, 1e-9)
	require.InDelta(t, 77.59, point.Longitude, 1e-9)

	for _, query := range []string{"/?lat=12", "/?lat=91&lng=0", "/?lat=NaN&lng=0", "/?lat=1&lng=east"} {
		_, err := ParseQueryCoordinate(httptest.NewRequest(http.MethodGet, query, nil), "lat", "lng")
		require.Equal(t, pkgerrors.CodeValidation, codeOf(t, err), query)
	}
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "12 MG Road", SanitizeString("  12   MG\n\tRoad \x00", 0))
	require.Equal(t, "Paracet", SanitizeString("Paracetamol", 7))
	require.Equal(t, "ऐस्पि", SanitizeString("ऐस्पिरिन", 5))
	require.Equal(t, "ab", SanitizeString("ab cd", 3))
	require.Equal(t, "", SanitizeString("   ", 10))
}
