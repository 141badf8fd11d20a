package reason

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ringguard/ringguard/pkg/types"
)

// wireAssessment mirrors the JSON object the prompt asks the model to emit.
type wireAssessment struct {
	RiskLevel         string   `json:"risk_level"`
	Confidence        float64  `json:"confidence"`
	RedFlags          []string `json:"red_flags"`
	ScamType          string   `json:"scam_type"`
	Analysis          string   `json:"analysis"`
	EscalationLevel   string   `json:"escalation_level"`
	ImmediateRisk     bool     `json:"immediate_risk"`
	RecommendedAction string   `json:"recommended_action"`
}

// ParseAssessment extracts the JSON assessment from a raw model response.
// Models wrap the object in prose or markdown fences more often than not, so
// the parser extracts the outermost brace pair and repairs malformed JSON
// before giving up. Missing fields fall back to conservative defaults; the
// fallback level fills an absent or unrecognized risk_level.
func ParseAssessment(raw string, fallback types.RiskLevel) (Assessment, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return Assessment{}, fmt.Errorf("reason: no JSON object in model response")
	}
	payload := raw[start : end+1]

	var wa wireAssessment
	if err := json.Unmarshal([]byte(payload), &wa); err != nil {
		fixed, repairErr := jsonrepair.JSONRepair(payload)
		if repairErr != nil {
			return Assessment{}, fmt.Errorf("reason: parse model response: %w", err)
		}
		if err := json.Unmarshal([]byte(fixed), &wa); err != nil {
			return Assessment{}, fmt.Errorf("reason: parse repaired model response: %w", err)
		}
	}

	a := Assessment{
		RedFlags:          wa.RedFlags,
		ScamType:          wa.ScamType,
		Rationale:         wa.Analysis,
		RecommendedAction: wa.RecommendedAction,
		Escalation:        wa.EscalationLevel,
		ImmediateRisk:     wa.ImmediateRisk,
	}

	level, err := types.ParseRiskLevel(strings.ToLower(strings.TrimSpace(wa.RiskLevel)))
	if err != nil {
		level = fallback
	}
	a.Level = level

	// The prompt asks for 0-100; tolerate models that answer in [0, 1].
	conf := wa.Confidence
	if conf > 1 {
		conf /= 100
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	a.Confidence = conf

	if a.ScamType == "" {
		a.ScamType = "none"
	}
	switch a.Escalation {
	case EscalationLow, EscalationMedium, EscalationHigh:
	default:
		a.Escalation = EscalationLow
	}
	return a, nil
}
