package triage

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PatientData is the clinical input shared by the growth and recommendation
// endpoints.
type PatientData struct {
	Age                int     `json:"age"`
	MenopauseStatus    string  `json:"menopause_status"`
	CystSize           float64 `json:"cyst_size"`
	CystGrowthRate     float64 `json:"cyst_growth_rate"`
	CA125Level         float64 `json:"ca_125_level"`
	UltrasoundFeatures string  `json:"ultrasound_features"`
	ReportedSymptoms   string  `json:"reported_symptoms"`
	Region             string  `json:"region"`
	Facility           string  `json:"facility"`
	HasInsurance       bool    `json:"has_insurance"`
}

// Normalize lower-cases and trims the categorical fields in place.
func (p *PatientData) Normalize() {
	p.MenopauseStatus = normalizeCategory(p.MenopauseStatus)
	p.UltrasoundFeatures = normalizeCategory(p.UltrasoundFeatures)
	p.ReportedSymptoms = normalizeCategory(p.ReportedSymptoms)
	p.Region = strings.TrimSpace(p.Region)
	p.Facility = strings.TrimSpace(p.Facility)
}

func normalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// numericFeatures returns the continuous model inputs keyed by feature name.
func (p PatientData) numericFeatures() map[string]float64 {
	return map[string]float64{
		"age":              float64(p.Age),
		"cyst_size":        p.CystSize,
		"cyst_growth_rate": p.CystGrowthRate,
		"ca_125_level":     p.CA125Level,
	}
}

// categoricalFeatures returns the one-hot encoded model inputs.
func (p PatientData) categoricalFeatures() map[string]string {
	return map[string]string{
		"menopause_status":    p.MenopauseStatus,
		"ultrasound_features": p.UltrasoundFeatures,
		"reported_symptoms":   p.ReportedSymptoms,
	}
}

// GrowthPrediction is the response of POST /triage/growth.
type GrowthPrediction struct {
	PredictedGrowth float64 `json:"predicted_growth"`
}

// CostBreakdown is either a cost split or an Error explaining why none is
// available.
type CostBreakdown struct {
	BaseCost    *float64 `json:"base_cost,omitempty"`
	NHIF        *float64 `json:"nhif,omitempty"`
	CoPay       *float64 `json:"co_pay,omitempty"`
	OutOfPocket *float64 `json:"out_of_pocket,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Recommendation is the response of POST /triage/recommendation.
type Recommendation struct {
	RecommendedTreatment string             `json:"recommended_treatment"`
	Available            bool               `json:"available"`
	CostBreakdown        CostBreakdown      `json:"cost_breakdown"`
	Probabilities        map[string]float64 `json:"probabilities,omitempty"`
}

// InventoryItem maps to the inventory table.
type InventoryItem struct {
	Region         string `db:"region" json:"region"`
	Facility       string `db:"facility" json:"facility"`
	Category       string `db:"category" json:"category"`
	AvailableStock int    `db:"available_stock" json:"available_stock"`
}

// CostEntry maps to the treatment_costs table.
type CostEntry struct {
	Region         string  `db:"region" json:"region"`
	Facility       string  `db:"facility" json:"facility"`
	Category       string  `db:"category" json:"category"`
	BaseCost       float64 `db:"base_cost" json:"base_cost"`
	NHIFCovered    float64 `db:"nhif_covered" json:"nhif_covered"`
	InsuranceCoPay float64 `db:"insurance_copay" json:"insurance_copay"`
	OutOfPocket    float64 `db:"out_of_pocket" json:"out_of_pocket"`
}

// Assessment kinds.
const (
	KindGrowth         = "growth"
	KindRecommendation = "recommendation"
	KindRisk           = "risk"
)

// Assessment maps to the assessments table.
type Assessment struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Kind        string          `db:"kind" json:"kind"`
	DoctorID    *string         `db:"doctor_id" json:"doctor_id,omitempty"`
	PatientData json.RawMessage `db:"patient_data" json:"patient_data"`
	Outcome     json.RawMessage `db:"outcome" json:"outcome"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

func validKind(kind string) bool {
	switch kind {
	case KindGrowth, KindRecommendation, KindRisk:
		return true
	}
	return false
}
