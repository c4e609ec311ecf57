package clinic

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/groot/groot/internal/platform/places"
	"github.com/groot/groot/internal/platform/telemetry"
)

const (
	DefaultRadius = 3000
	MaxRadius     = 50000
)

// Finder looks up hospitals around a coordinate.
type Finder interface {
	NearbyHospitals(ctx context.Context, lat, lon float64, radius uint) ([]places.Clinic, error)
}

// ValidationError marks a query the caller must fix.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// UpstreamError wraps a failure of the Places API.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

type Service struct {
	finder  Finder
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

// NewService builds the clinic service. finder may be nil when no Google
// Maps key is configured.
func NewService(finder Finder, logger zerolog.Logger) *Service {
	return &Service{finder: finder, logger: logger}
}

// SetMetrics attaches an optional operation counter.
func (s *Service) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// Nearby returns hospitals within radius metres of (lat, lon).
func (s *Service) Nearby(ctx context.Context, lat, lon float64, radius int) ([]places.Clinic, error) {
	if lat < -90 || lat > 90 {
		return nil, &ValidationError{msg: "lat must be between -90 and 90"}
	}
	if lon < -180 || lon > 180 {
		return nil, &ValidationError{msg: "lon must be between -180 and 180"}
	}
	if radius < 1 || radius > MaxRadius {
		return nil, &ValidationError{msg: fmt.Sprintf("radius must be between 1 and %d metres", MaxRadius)}
	}
	if s.finder == nil {
		return nil, places.ErrNotConfigured
	}

	clinics, err := s.finder.NearbyHospitals(ctx, lat, lon, uint(radius))
	if err != nil {
		s.metrics.RecordOperation("clinic.nearby", "failure")
		s.logger.Error().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("places lookup failed")
		return nil, &UpstreamError{Err: err}
	}
	s.metrics.RecordOperation("clinic.nearby", "success")
	if clinics == nil {
		clinics = []places.Clinic{}
	}
	return clinics, nil
}
