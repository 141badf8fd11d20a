package reason

import (
	"strings"
	"testing"

	"github.com/ringguard/ringguard/pkg/types"
)

func TestParseAssessment_CleanJSON(t *testing.T) {
	raw := `{
		"risk_level": "high",
		"confidence": 85,
		"red_flags": ["urgency tactics", "payment by gift card"],
		"scam_type": "tech_support",
		"analysis": "Caller claims remote access is needed immediately.",
		"escalation_level": "high",
		"immediate_risk": true,
		"recommended_action": "Hang up and call the company directly."
	}`

	a, err := ParseAssessment(raw, types.RiskLow)
	if err != nil {
		t.Fatalf("ParseAssessment: %v", err)
	}
	if a.Level != types.RiskHigh {
		t.Errorf("Level = %v, want high", a.Level)
	}
	if a.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", a.Confidence)
	}
	if len(a.RedFlags) != 2 {
		t.Errorf("RedFlags = %v, want 2 entries", a.RedFlags)
	}
	if !a.ImmediateRisk {
		t.Error("ImmediateRisk = false, want true")
	}
	if a.Escalation != EscalationHigh {
		t.Errorf("Escalation = %q, want high", a.Escalation)
	}
}

func TestParseAssessment_JSONWrappedInProse(t *testing.T) {
	raw := "Sure, here is my analysis:\n```json\n" +
		`{"risk_level": "medium", "confidence": 0.6, "scam_type": "phishing", "analysis": "x"}` +
		"\n```\nLet me know if you need more."

	a, err := ParseAssessment(raw, types.RiskLow)
	if err != nil {
		t.Fatalf("ParseAssessment: %v", err)
	}
	if a.Level != types.RiskMedium {
		t.Errorf("Level = %v, want medium", a.Level)
	}
	if a.Confidence != 0.6 {
		t.Errorf("Confidence = %v, want 0.6 (already normalized)", a.Confidence)
	}
}

func TestParseAssessment_MalformedJSON_Repaired(t *testing.T) {
	// Trailing comma and single quotes, typical small-model output.
	raw := `{'risk_level': 'high', 'confidence': 90, 'red_flags': ['impersonation',],}`

	a, err := ParseAssessment(raw, types.RiskLow)
	if err != nil {
		t.Fatalf("ParseAssessment should repair malformed JSON: %v", err)
	}
	if a.Level != types.RiskHigh {
		t.Errorf("Level = %v, want high", a.Level)
	}
}

func TestParseAssessment_NoJSON_ReturnsError(t *testing.T) {
	if _, err := ParseAssessment("I cannot analyze this call.", types.RiskLow); err == nil {
		t.Fatal("expected error for response without JSON, got nil")
	}
}

func TestParseAssessment_UnknownLevel_UsesFallback(t *testing.T) {
	raw := `{"risk_level": "catastrophic", "confidence": 50}`

	a, err := ParseAssessment(raw, types.RiskMedium)
	if err != nil {
		t.Fatalf("ParseAssessment: %v", err)
	}
	if a.Level != types.RiskMedium {
		t.Errorf("Level = %v, want fallback medium", a.Level)
	}
}

func TestParseAssessment_Defaults(t *testing.T) {
	a, err := ParseAssessment(`{"risk_level": "low"}`, types.RiskLow)
	if err != nil {
		t.Fatalf("ParseAssessment: %v", err)
	}
	if a.ScamType != "none" {
		t.Errorf("ScamType = %q, want %q", a.ScamType, "none")
	}
	if a.Escalation != EscalationLow {
		t.Errorf("Escalation = %q, want low default", a.Escalation)
	}
	if a.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", a.Confidence)
	}
}

func TestParseAssessment_ConfidenceClamped(t *testing.T) {
	a, err := ParseAssessment(`{"risk_level": "low", "confidence": 250}`, types.RiskLow)
	if err != nil {
		t.Fatalf("ParseAssessment: %v", err)
	}
	if a.Confidence != 1 {
		t.Errorf("Confidence = %v, want clamped to 1", a.Confidence)
	}
}

func TestBuildPrompt_FirstChunk(t *testing.T) {
	p := BuildPrompt(Request{
		CallID:             "call-1",
		ChunkSequence:      0,
		DeterministicLevel: types.RiskLow,
		Signals: Signals{
			Transcript: "hello, this is your bank",
			Keywords:   []string{"bank"},
		},
	})

	if !strings.Contains(p, "chunk #0 from call ID call-1") {
		t.Error("prompt missing chunk identification")
	}
	if !strings.Contains(p, "FIRST CHUNK") {
		t.Error("prompt missing first-chunk marker when history is empty")
	}
	if !strings.Contains(p, `"hello, this is your bank"`) {
		t.Error("prompt missing transcript")
	}
}

func TestBuildPrompt_HistoryWindowedToLastThree(t *testing.T) {
	req := Request{
		CallID:        "call-2",
		ChunkSequence: 5,
		History: []types.EvidenceSummary{
			{ChunkSequence: 0, Level: types.RiskLow},
			{ChunkSequence: 1, Level: types.RiskLow},
			{ChunkSequence: 2, Level: types.RiskMedium},
			{ChunkSequence: 3, Level: types.RiskMedium},
			{ChunkSequence: 4, Level: types.RiskHigh},
		},
	}
	p := BuildPrompt(req)

	if !strings.Contains(p, "has 5 previous chunks") {
		t.Error("prompt missing full history count")
	}
	if strings.Contains(p, "Chunk 1:") {
		t.Error("prompt should only include the last three chunk summaries")
	}
	for _, want := range []string{"Chunk 2:", "Chunk 3:", "Chunk 4:"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_SpeakerEmotionsSorted(t *testing.T) {
	p := BuildPrompt(Request{
		CallID: "call-3",
		Signals: Signals{
			SpeakerCount: 2,
			SpeakerEmotions: map[string]SpeakerEmotion{
				"SPEAKER_01": {TopEmotion: "fear", Confidence: 0.8, StressLevel: 0.9},
				"SPEAKER_00": {TopEmotion: "neutral", Confidence: 0.7, StressLevel: 0.1},
			},
		},
	})

	i0 := strings.Index(p, "SPEAKER_00")
	i1 := strings.Index(p, "SPEAKER_01")
	if i0 == -1 || i1 == -1 || i0 > i1 {
		t.Error("speaker emotions should appear in sorted speaker order")
	}
}

func TestBuildPrompt_TruncatesLongTranscript(t *testing.T) {
	long := strings.Repeat("a", 3000)
	p := BuildPrompt(Request{Signals: Signals{Transcript: long}})
	if strings.Contains(p, long) {
		t.Error("transcript should be truncated in the prompt")
	}
}
