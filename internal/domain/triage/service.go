package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/groot/groot/internal/platform/auth"
	"github.com/groot/groot/internal/platform/telemetry"
)

// ValidationError marks input the caller must fix.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalid(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

type Service struct {
	models      *Models
	catalog     CatalogRepository
	assessments AssessmentRepository
	metrics     *telemetry.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

// NewService wires the prediction models to the catalog. assessments may be
// nil, in which case computations are not persisted.
func NewService(models *Models, catalog CatalogRepository, assessments AssessmentRepository, logger zerolog.Logger) *Service {
	return &Service{
		models:      models,
		catalog:     catalog,
		assessments: assessments,
		logger:      logger,
		now:         time.Now,
	}
}

// SetMetrics attaches an optional operation counter.
func (s *Service) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

func validatePatient(p *PatientData) error {
	p.Normalize()
	if p.Age < 0 || p.Age > 120 {
		return invalid("age must be between 0 and 120")
	}
	if p.CystSize < 0 {
		return invalid("cyst_size must not be negative")
	}
	if p.CA125Level < 0 {
		return invalid("ca_125_level must not be negative")
	}
	if p.MenopauseStatus == "" {
		return invalid("menopause_status is required")
	}
	return nil
}

// PredictGrowth runs the growth regression.
func (s *Service) PredictGrowth(ctx context.Context, p PatientData) (*GrowthPrediction, error) {
	if err := validatePatient(&p); err != nil {
		s.metrics.RecordOperation("triage.growth", "invalid")
		return nil, err
	}
	out := &GrowthPrediction{PredictedGrowth: s.models.Growth.Predict(p)}
	s.metrics.RecordOperation("triage.growth", "success")
	s.record(ctx, KindGrowth, p, out)
	return out, nil
}

// Recommend predicts a treatment and checks its availability and cost at
// the patient's facility.
func (s *Service) Recommend(ctx context.Context, p PatientData) (*Recommendation, error) {
	if err := validatePatient(&p); err != nil {
		s.metrics.RecordOperation("triage.recommendation", "invalid")
		return nil, err
	}

	index, probs := s.models.Treatment.Predict(p)
	treatment := TreatmentLabel(index)

	available, err := s.catalog.Available(ctx, p.Region, p.Facility, treatment)
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}
	cost, err := s.catalog.Cost(ctx, p.Region, p.Facility, treatment)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup cost: %w", err)
	}

	out := &Recommendation{
		RecommendedTreatment: treatment,
		Available:            available,
		CostBreakdown:        breakdownFor(cost, p.HasInsurance),
		Probabilities:        probs,
	}
	s.metrics.RecordOperation("triage.recommendation", "success")
	s.record(ctx, KindRecommendation, p, out)
	return out, nil
}

// AssessRisk applies the size/age/type risk rules.
func (s *Service) AssessRisk(ctx context.Context, r RiskRequest) (*RiskResult, error) {
	if err := r.validate(); err != nil {
		s.metrics.RecordOperation("triage.risk", "invalid")
		return nil, invalid("%s", err.Error())
	}
	out := AssessRisk(r, s.now())
	s.metrics.RecordOperation("triage.risk", "success")
	s.record(ctx, KindRisk, r, &out)
	return &out, nil
}

// CheckVitals classifies a set of vital signs.
func (s *Service) CheckVitals(_ context.Context, v VitalsRequest) (*VitalsAlert, error) {
	if err := v.validate(); err != nil {
		s.metrics.RecordOperation("triage.vitals", "invalid")
		return nil, invalid("%s", err.Error())
	}
	out := EvaluateVitals(v, s.now().UTC())
	s.metrics.RecordOperation("triage.vitals", out.Level)
	if out.Level == AlertCritical {
		s.logger.Warn().Float64("heart_rate", v.HeartRate).Float64("temperature_f", v.TemperatureF).
			Int("pain_level", v.PainLevel).Msg("critical vital signs reported")
	}
	return &out, nil
}

// record persists a computation. Failures are logged and never surface to
// the caller.
func (s *Service) record(ctx context.Context, kind string, input, outcome interface{}) {
	if s.assessments == nil {
		return
	}
	in, err := json.Marshal(input)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("encode assessment input")
		return
	}
	res, err := json.Marshal(outcome)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("encode assessment outcome")
		return
	}
	a := &Assessment{Kind: kind, PatientData: in, Outcome: res}
	if uid := auth.UserIDFromContext(ctx); uid != "" {
		a.DoctorID = &uid
	}
	if err := s.assessments.Create(ctx, a); err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("persist assessment")
	}
}

func (s *Service) ListAssessments(ctx context.Context, kind string, limit, offset int) ([]*Assessment, int, error) {
	if kind != "" && !validKind(kind) {
		return nil, 0, invalid("kind must be one of growth, recommendation, risk")
	}
	if s.assessments == nil {
		return nil, 0, nil
	}
	return s.assessments.List(ctx, kind, limit, offset)
}

func (s *Service) GetAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	if s.assessments == nil {
		return nil, ErrNotFound
	}
	return s.assessments.GetByID(ctx, id)
}

// ImportCatalog replaces the stored catalog with the given rows.
func (s *Service) ImportCatalog(ctx context.Context, inventory []InventoryItem, costs []CostEntry) error {
	if len(inventory) == 0 && len(costs) == 0 {
		return invalid("catalog import needs at least one inventory or cost row")
	}
	if err := s.catalog.Replace(ctx, inventory, costs); err != nil {
		s.metrics.RecordOperation("triage.catalog_import", "failure")
		return err
	}
	s.metrics.RecordOperation("triage.catalog_import", "success")
	s.logger.Info().Int("inventory_rows", len(inventory)).Int("cost_rows", len(costs)).Msg("catalog imported")
	return nil
}
