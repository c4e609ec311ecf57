package triage

import (
	"fmt"
	"strings"
	"time"
)

// RiskRequest is the body of POST /triage/risk.
type RiskRequest struct {
	Age        int     `json:"age"`
	CystSizeMM float64 `json:"cyst_size_mm"`
	CystType   string  `json:"cyst_type"`
}

// RiskResult is the rule-based risk classification of a cyst.
type RiskResult struct {
	RiskLevel      string `json:"risk_level"`
	RiskScore      int    `json:"risk_score"`
	Recommendation string `json:"recommendation"`
	AdditionalInfo string `json:"additional_info"`
	NextCheckup    string `json:"next_checkup"`
}

type riskTier struct {
	level          string
	score          int
	recommendation string
	info           string
	followUp       time.Duration
}

var (
	riskLow = riskTier{
		level:          "Low",
		score:          25,
		recommendation: "Continue monitoring with ultrasound every 3 months",
		info:           "Continue current monitoring schedule.",
		followUp:       90 * 24 * time.Hour,
	}
	riskMedium = riskTier{
		level:          "Medium",
		score:          55,
		recommendation: "Monthly monitoring and possible hormonal therapy",
		info:           "Regular monitoring recommended due to size/age factors.",
		followUp:       30 * 24 * time.Hour,
	}
	riskHigh = riskTier{
		level:          "High",
		score:          75,
		recommendation: "Immediate surgical consultation recommended",
		info:           "Immediate consultation with specialist recommended.",
		followUp:       7 * 24 * time.Hour,
	}
)

func (r RiskRequest) validate() error {
	if r.Age < 0 || r.Age > 120 {
		return fmt.Errorf("age must be between 0 and 120")
	}
	if r.CystSizeMM < 0 {
		return fmt.Errorf("cyst_size_mm must not be negative")
	}
	return nil
}

// AssessRisk classifies a cyst. High (size over 80mm or a cystadenoma)
// overrides Medium (size over 50mm or age over 40).
func AssessRisk(r RiskRequest, now time.Time) RiskResult {
	tier := riskLow
	if r.CystSizeMM > 50 || r.Age > 40 {
		tier = riskMedium
	}
	if r.CystSizeMM > 80 || strings.EqualFold(strings.TrimSpace(r.CystType), "cystadenoma") {
		tier = riskHigh
	}
	return RiskResult{
		RiskLevel:      tier.level,
		RiskScore:      tier.score,
		Recommendation: tier.recommendation,
		AdditionalInfo: tier.info,
		NextCheckup:    now.Add(tier.followUp).Format("2006-01-02"),
	}
}

// VitalsRequest is the body of POST /triage/vitals.
type VitalsRequest struct {
	HeartRate    float64  `json:"heart_rate"`
	TemperatureF float64  `json:"temperature_f"`
	PainLevel    int      `json:"pain_level"`
	Symptoms     []string `json:"symptoms"`
}

// Alert levels for vital-sign checks.
const (
	AlertLow      = "low"
	AlertHigh     = "high"
	AlertCritical = "critical"
)

// VitalsAlert is the result of a vital-sign check.
type VitalsAlert struct {
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	Action     string    `json:"action,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

func (v VitalsRequest) validate() error {
	if v.PainLevel < 0 || v.PainLevel > 10 {
		return fmt.Errorf("pain_level must be between 0 and 10")
	}
	if v.HeartRate < 0 || v.HeartRate > 300 {
		return fmt.Errorf("heart_rate must be between 0 and 300")
	}
	if v.TemperatureF < 0 || v.TemperatureF > 115 {
		return fmt.Errorf("temperature_f must be between 0 and 115")
	}
	return nil
}

// EvaluateVitals maps vital signs to an alert. Severe pain or fever is
// critical; moderate pain or tachycardia is high.
func EvaluateVitals(v VitalsRequest, now time.Time) VitalsAlert {
	switch {
	case v.PainLevel > 7 || v.TemperatureF > 100.4:
		return VitalsAlert{
			Level:      AlertCritical,
			Message:    "Severe symptoms detected! Immediate medical attention required.",
			Action:     "Call emergency services or go to nearest hospital",
			DetectedAt: now,
		}
	case v.PainLevel > 5 || v.HeartRate > 100:
		return VitalsAlert{
			Level:      AlertHigh,
			Message:    "Concerning symptoms detected. Medical consultation recommended.",
			Action:     "Contact your healthcare provider within 2 hours",
			DetectedAt: now,
		}
	default:
		return VitalsAlert{
			Level:      AlertLow,
			Message:    "Vital signs within expected range.",
			DetectedAt: now,
		}
	}
}
