package spectral_test

import (
	"context"
	"math"
	"testing"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/ambience/spectral"
)

// tone generates dur seconds of a sine wave at freq Hz and the canonical rate.
func tone(freq float64, dur float64, amplitude float64) audio.Waveform {
	n := int(dur * float64(audio.CanonicalRate))
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(audio.CanonicalRate)))
	}
	return audio.Waveform{Samples: samples, SampleRate: audio.CanonicalRate}
}

func TestClassify_Silence_NotSuspicious(t *testing.T) {
	p := spectral.New()
	w := audio.Waveform{Samples: make([]int16, audio.CanonicalRate), SampleRate: audio.CanonicalRate}

	res, err := p.Classify(context.Background(), w)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Suspicious {
		t.Error("silence flagged as suspicious")
	}
	if res.Method != "spectral" {
		t.Errorf("Method = %q, want %q", res.Method, "spectral")
	}
}

func TestClassify_ShortWaveform_EmptyResult(t *testing.T) {
	p := spectral.New()
	w := audio.Waveform{Samples: make([]int16, 100), SampleRate: audio.CanonicalRate}

	res, err := p.Classify(context.Background(), w)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(res.Tags) != 0 || res.SuspicionScore != 0 {
		t.Errorf("short waveform produced tags %v score %v, want empty", res.Tags, res.SuspicionScore)
	}
}

func TestClassify_HighFrequencyTone_FlagsTypingActivity(t *testing.T) {
	p := spectral.New()
	// 6 kHz tone pushes the spectral centroid well above 3000 Hz.
	res, err := p.Classify(context.Background(), tone(6000, 1.0, 12_000))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	var found bool
	for _, tag := range res.Tags {
		if tag.Label == "High frequency activity (typing/clicking)" {
			found = true
		}
	}
	if !found {
		t.Errorf("6 kHz tone did not produce high-frequency tag; tags = %v", res.Tags)
	}
	if res.SuspicionScore < 0.3 {
		t.Errorf("SuspicionScore = %v, want at least 0.3", res.SuspicionScore)
	}
}

func TestClassify_SteadyTone_FlagsBackgroundHum(t *testing.T) {
	p := spectral.New()
	// A pure steady tone has a constant zero-crossing rate across frames.
	res, err := p.Classify(context.Background(), tone(200, 1.0, 12_000))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	var found bool
	for _, tag := range res.Tags {
		if tag.Label == "Regular background hum" {
			found = true
		}
	}
	if !found {
		t.Errorf("steady tone did not produce hum tag; tags = %v", res.Tags)
	}
}

func TestClassify_BurstyEnergy_FlagsMultipleVoices(t *testing.T) {
	p := spectral.New()

	// Alternate loud and silent half-second blocks to maximize energy variance.
	n := 2 * audio.CanonicalRate
	samples := make([]int16, n)
	block := audio.CanonicalRate / 2
	for i := range samples {
		if (i/block)%2 == 0 {
			samples[i] = int16(20_000 * math.Sin(2*math.Pi*300*float64(i)/float64(audio.CanonicalRate)))
		}
	}
	res, err := p.Classify(context.Background(), audio.Waveform{Samples: samples, SampleRate: audio.CanonicalRate})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	var found bool
	for _, tag := range res.Tags {
		if tag.Label == "Multiple voice activity" {
			found = true
		}
	}
	if !found {
		t.Errorf("bursty signal did not produce multi-voice tag; tags = %v", res.Tags)
	}
}

func TestClassify_CancelledContext_ReturnsError(t *testing.T) {
	p := spectral.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Classify(ctx, tone(440, 0.5, 10_000)); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}
