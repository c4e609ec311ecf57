// Package places looks up nearby hospitals through the Google Places API.
package places

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"googlemaps.github.io/maps"

	"github.com/groot/groot/internal/platform/telemetry"
)

// ErrNotConfigured is returned when no Google Maps API key is set.
var ErrNotConfigured = errors.New("Google Maps API key not configured")

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Clinic is the trimmed view of a Places result returned to clients.
// Rating and UserRatingsTotal are nil when Google has no ratings.
type Clinic struct {
	Name             string   `json:"name"`
	Vicinity         string   `json:"vicinity"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal *int     `json:"user_ratings_total"`
	Location         Location `json:"location"`
}

// Client wraps the Maps client.
type Client struct {
	maps *maps.Client
}

// NewClient builds a client for apiKey. baseURL overrides the Maps endpoint
// and is only set in tests.
func NewClient(apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	opts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, maps.WithBaseURL(baseURL))
	}
	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &Client{maps: mc}, nil
}

// NearbyHospitals returns hospitals within radius metres of (lat, lon).
func (c *Client) NearbyHospitals(ctx context.Context, lat, lon float64, radius uint) (_ []Clinic, err error) {
	ctx, span := telemetry.StartClientSpan(ctx, "places.nearby_search",
		attribute.Int("places.radius", int(radius)))
	defer func() { telemetry.EndSpan(span, err) }()

	resp, err := c.maps.NearbySearch(ctx, &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: lat, Lng: lon},
		Radius:   radius,
		Type:     maps.PlaceTypeHospital,
	})
	if err != nil {
		return nil, fmt.Errorf("places nearby search: %w", err)
	}

	clinics := make([]Clinic, 0, len(resp.Results))
	for _, r := range resp.Results {
		clinic := Clinic{
			Name:     r.Name,
			Vicinity: r.Vicinity,
			Location: Location{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		}
		if r.UserRatingsTotal > 0 {
			rating := float64(r.Rating)
			total := r.UserRatingsTotal
			clinic.Rating = &rating
			clinic.UserRatingsTotal = &total
		}
		clinics = append(clinics, clinic)
	}
	return clinics, nil
}
