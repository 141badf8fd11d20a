package reason

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// transcriptLimit bounds how much transcript text goes into the prompt.
	transcriptLimit = 2000

	// historyWindow is how many prior chunk summaries are shown.
	historyWindow = 3
)

// BuildPrompt renders an assessment request into the analysis prompt shared
// by all reasoner backends. Exported so backends outside this package can
// reuse it.
func BuildPrompt(req Request) string {
	var b strings.Builder
	s := req.Signals

	fmt.Fprintf(&b, "Analyze this phone call audio chunk for scam indicators. This is chunk #%d from call ID %s.\n\n",
		req.ChunkSequence, req.CallID)

	b.WriteString("=== CURRENT CHUNK ANALYSIS ===\n")
	fmt.Fprintf(&b, "Text: %q\n", truncate(s.Transcript, transcriptLimit))
	fmt.Fprintf(&b, "Language: %s\n", orUnknown(s.Language))
	fmt.Fprintf(&b, "Scam Keywords Found: %v\n", s.Keywords)
	fmt.Fprintf(&b, "Keyword Risk Score: %.2f\n", s.KeywordRisk)
	fmt.Fprintf(&b, "Rule-Based Risk Level: %s\n\n", req.DeterministicLevel)

	b.WriteString("=== VOICE AUTHENTICITY ===\n")
	fmt.Fprintf(&b, "AI Voice Detected: %t\n", s.SyntheticVoice)
	fmt.Fprintf(&b, "AI Confidence: %.2f\n\n", s.SyntheticConfidence)

	b.WriteString("=== BACKGROUND ANALYSIS ===\n")
	fmt.Fprintf(&b, "Suspicious Sounds: %v\n", s.BackgroundTags)
	fmt.Fprintf(&b, "Suspicion Score: %.2f\n", s.BackgroundScore)
	fmt.Fprintf(&b, "Is Suspicious Environment: %t\n\n", s.BackgroundSuspicious)

	b.WriteString("=== SPEAKER ANALYSIS ===\n")
	fmt.Fprintf(&b, "Number of Speakers: %d\n\n", s.SpeakerCount)

	b.WriteString("=== EMOTION ANALYSIS (FROM DIARIZED AUDIO) ===\n")
	if len(s.SpeakerEmotions) == 0 {
		b.WriteString("No emotion data available (no speakers detected or diarization failed)\n")
	} else {
		speakers := make([]string, 0, len(s.SpeakerEmotions))
		for sp := range s.SpeakerEmotions {
			speakers = append(speakers, sp)
		}
		sort.Strings(speakers)
		for _, sp := range speakers {
			e := s.SpeakerEmotions[sp]
			fmt.Fprintf(&b, "%s (analyzed from separated audio):\n", sp)
			fmt.Fprintf(&b, "- Top Emotion: %s (confidence: %.2f)\n", orUnknown(e.TopEmotion), e.Confidence)
			fmt.Fprintf(&b, "- Stress Level: %.2f\n", e.StressLevel)
		}
	}

	if len(req.History) == 0 {
		b.WriteString("\n=== FIRST CHUNK ===\nThis is the first chunk of this call - no previous context available.\n")
	} else {
		fmt.Fprintf(&b, "\n=== PREVIOUS ANALYSIS HISTORY ===\nThis call has %d previous chunks analyzed:\n\n", len(req.History))
		recent := req.History
		if len(recent) > historyWindow {
			recent = recent[len(recent)-historyWindow:]
		}
		for _, h := range recent {
			fmt.Fprintf(&b, "Chunk %d:\n", h.ChunkSequence)
			fmt.Fprintf(&b, "- Risk Level: %s\n", h.Level)
			fmt.Fprintf(&b, "- Scam Type: %s\n", orNone(h.ScamType))
			fmt.Fprintf(&b, "- Indicators: %v\n", h.Indicators)
			fmt.Fprintf(&b, "- AI Voice: %t\n", h.SyntheticVoice)
			fmt.Fprintf(&b, "- Transcript: %q\n\n", h.TranscriptSnippet)
		}
	}

	b.WriteString(`
=== ANALYSIS INSTRUCTIONS ===
Based on ALL the above information (current chunk + previous analyses), analyze for scam patterns:

IMPORTANT: Consider how this chunk fits with previous analyses. Look for:
- Escalating patterns from previous chunks
- Consistency with previous red flags
- Changes in tactics or approach
- Building narrative or pressure tactics

1. COMMON SCAM TYPES:
   - Phishing/Identity theft
   - Tech support scams
   - IRS/Government impersonation
   - Romance scams
   - Prize/Lottery scams
   - Business email compromise
   - Investment/Crypto scams

2. RED FLAGS TO CONSIDER:
   - Urgency and pressure tactics
   - Requests for personal/financial information
   - Emotional manipulation
   - AI-generated voice
   - Suspicious background environment
   - Inconsistent speaker emotions
   - Scam-related keywords

Respond ONLY in this JSON format:
{
    "risk_level": "low|medium|high",
    "confidence": 0-100,
    "red_flags": ["list", "of", "specific", "red", "flags", "found"],
    "scam_type": "most_likely_scam_type_or_none",
    "analysis": "detailed explanation considering previous context and current chunk",
    "escalation_level": "low|medium|high",
    "immediate_risk": boolean,
    "recommended_action": "advice for call recipient"
}
`)

	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
