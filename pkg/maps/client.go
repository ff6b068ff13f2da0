// Package maps geocodes free-text addresses through the Google Places API.
package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://places.googleapis.com/v1"
	defaultTimeout              = 10 * time.Second
	textSearchFieldMask         = "places.id,places.formattedAddress,places.location,places.addressComponents"
	placeResolveFieldMask       = "id,formattedAddress,location,addressComponents"
	errorBodyReadLimit    int64 = 1024
)

var errAPIKeyRequired = errors.New("google maps api key is required")

// Client talks to the Places text-search and place-details endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL points the client at another Places host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout bounds every request made through the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	client := &Client{
		apiKey:     key,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// TextSearchRequest is a free-text place query.
type TextSearchRequest struct {
	Query        string `json:"textQuery"`
	RegionCode   string `json:"regionCode,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
	PageSize     int    `json:"pageSize,omitempty"`
}

// Place is a geocoded place.
type Place struct {
	PlaceID           string
	FormattedAddress  string
	Location          LatLng
	AddressComponents []AddressComponent
}

type LatLng struct {
	Latitude  float64
	Longitude float64
}

type AddressComponent struct {
	LongName  string
	ShortName string
	Types     []string
}

// Component returns the long name of the first component tagged kind.
func (p Place) Component(kind string) string {
	for _, comp := range p.AddressComponents {
		for _, typ := range comp.Types {
			if typ == kind && comp.LongName != "" {
				return comp.LongName
			}
		}
	}
	return ""
}

type apiPlace struct {
	ID               string `json:"id"`
	FormattedAddress string `json:"formattedAddress"`
	Location         struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	AddressComponents []struct {
		LongText  string   `json:"longText"`
		ShortText string   `json:"shortText"`
		Types     []string `json:"types"`
	} `json:"addressComponents"`
}

func (p apiPlace) place() Place {
	components := make([]AddressComponent, 0, len(p.AddressComponents))
	for _, comp := range p.AddressComponents {
		components = append(components, AddressComponent{LongName: comp.LongText, ShortName: comp.ShortText, Types: comp.Types})
	}
	return Place{
		PlaceID:           p.ID,
		FormattedAddress:  p.FormattedAddress,
		Location:          LatLng{Latitude: p.Location.Latitude, Longitude: p.Location.Longitude},
		AddressComponents: components,
	}
}

// SearchText geocodes a free-text address. An empty slice means Google found
// nothing.
func (c *Client) SearchText(ctx context.Context, req TextSearchRequest) ([]Place, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "geocoding is not configured")
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "search text is required")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal text search request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("places:searchText"), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build text search request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var apiResp struct {
		Places []apiPlace `json:"places"`
	}
	if err := c.do(httpReq, textSearchFieldMask, "text search", &apiResp); err != nil {
		return nil, err
	}
	places := make([]Place, 0, len(apiResp.Places))
	for _, p := range apiResp.Places {
		places = append(places, p.place())
	}
	return places, nil
}

// ResolvePlace loads one place by its Google place id.
func (c *Client) ResolvePlace(ctx context.Context, placeID string) (*Place, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "geocoding is not configured")
	}
	trimmed := strings.TrimSpace(placeID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "place id is required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("places/"+url.PathEscape(trimmed)), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build place resolve request")
	}

	var apiResp apiPlace
	if err := c.do(httpReq, placeResolveFieldMask, "place resolve", &apiResp); err != nil {
		return nil, err
	}
	place := apiResp.place()
	return &place, nil
}

func (c *Client) do(req *http.Request, fieldMask, op string, out any) error {
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+op+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, "location not found")
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), op+" request failed").
			WithDetails(map[string]any{"status": resp.StatusCode})
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+op+" response")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
