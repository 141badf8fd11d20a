package audio

import (
	"errors"
	"testing"
	"time"
)

// sine builds n samples of a fixed-amplitude test tone.
func sine(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		// Triangle-ish ramp is fine for codec-path tests; real sinusoids are
		// only needed for the spectral classifier tests.
		s[i] = int16((i % 200) * 100)
	}
	return s
}

func TestNormalizeWAV(t *testing.T) {
	tests := []struct {
		name     string
		wav      Waveform
		encoding string
	}{
		{
			name:     "16kHz mono passes through",
			wav:      Waveform{Samples: sine(16000), SampleRate: 16000},
			encoding: EncodingWAV,
		},
		{
			name:     "48kHz mono is resampled",
			wav:      Waveform{Samples: sine(48000), SampleRate: 48000},
			encoding: EncodingWAV,
		},
		{
			name:     "8kHz telephone audio is upsampled",
			wav:      Waveform{Samples: sine(8000), SampleRate: 8000},
			encoding: EncodingWAV,
		},
		{
			name:     "sniffed without encoding tag",
			wav:      Waveform{Samples: sine(16000), SampleRate: 16000},
			encoding: "",
		},
	}

	n := &Normalizer{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(EncodeWAV(tt.wav), tt.encoding)
			if err != nil {
				t.Fatalf("Normalize() error: %v", err)
			}
			if got.SampleRate != CanonicalRate {
				t.Errorf("sample rate = %d, want %d", got.SampleRate, CanonicalRate)
			}
			// Duration must be preserved within one resampling step of slack.
			wantDur := tt.wav.Duration()
			gotDur := got.Duration()
			slack := 2 * time.Millisecond
			if gotDur < wantDur-slack || gotDur > wantDur+slack {
				t.Errorf("duration = %v, want ≈%v", gotDur, wantDur)
			}
		})
	}
}

func TestNormalizeStereoDownmix(t *testing.T) {
	// Build a stereo WAV manually: interleave L=1000, R=3000.
	interleaved := make([]int16, 3200)
	for i := 0; i < len(interleaved); i += 2 {
		interleaved[i] = 1000
		interleaved[i+1] = 3000
	}
	stereo := Waveform{Samples: interleaved, SampleRate: 16000}
	raw := EncodeWAV(stereo)
	// Patch channel count and block align for stereo.
	raw[22] = 2
	raw[32] = 4
	raw[28] = byte(16000 * 4)
	raw[29] = byte((16000 * 4) >> 8)
	raw[30] = byte((16000 * 4) >> 16)

	n := &Normalizer{}
	got, err := n.Normalize(raw, EncodingWAV)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if len(got.Samples) != len(interleaved)/2 {
		t.Fatalf("got %d samples, want %d", len(got.Samples), len(interleaved)/2)
	}
	if got.Samples[0] != 2000 {
		t.Errorf("downmixed sample = %d, want 2000 (average of 1000 and 3000)", got.Samples[0])
	}
}

func TestNormalizeErrors(t *testing.T) {
	n := &Normalizer{}

	t.Run("garbage bytes", func(t *testing.T) {
		_, err := n.Normalize([]byte("definitely not audio at all"), EncodingWAV)
		if !errors.Is(err, ErrDecode) {
			t.Errorf("error = %v, want ErrDecode", err)
		}
	})

	t.Run("unsupported encoding tag", func(t *testing.T) {
		_, err := n.Normalize([]byte{1, 2, 3, 4}, "mp3")
		if !errors.Is(err, ErrDecode) {
			t.Errorf("error = %v, want ErrDecode", err)
		}
	})

	t.Run("zero-duration wav", func(t *testing.T) {
		empty := EncodeWAV(Waveform{SampleRate: 16000})
		_, err := n.Normalize(empty, EncodingWAV)
		if !errors.Is(err, ErrEmptyAudio) {
			t.Errorf("error = %v, want ErrEmptyAudio", err)
		}
	})

	t.Run("truncated wav chunk", func(t *testing.T) {
		raw := EncodeWAV(Waveform{Samples: sine(1600), SampleRate: 16000})
		_, err := n.Normalize(raw[:50], EncodingWAV)
		if !errors.Is(err, ErrDecode) {
			t.Errorf("error = %v, want ErrDecode", err)
		}
	})
}

func TestWaveformSlice(t *testing.T) {
	w := Waveform{Samples: sine(16000), SampleRate: 16000} // 1 second

	tests := []struct {
		name        string
		start, end  time.Duration
		wantSamples int
	}{
		{"middle slice", 250 * time.Millisecond, 750 * time.Millisecond, 8000},
		{"clamped past end", 900 * time.Millisecond, 2 * time.Second, 1600},
		{"negative start clamped", -1 * time.Second, 100 * time.Millisecond, 1600},
		{"inverted range is empty", 500 * time.Millisecond, 100 * time.Millisecond, 0},
		{"entirely out of range", 5 * time.Second, 6 * time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := w.Slice(tt.start, tt.end)
			if len(got.Samples) != tt.wantSamples {
				t.Errorf("slice has %d samples, want %d", len(got.Samples), tt.wantSamples)
			}
			// A slice must never exceed its requested span.
			if span := tt.end - tt.start; span > 0 && got.Duration() > span {
				t.Errorf("slice duration %v exceeds span %v", got.Duration(), span)
			}
		})
	}
}

func TestResampleHalvesAndDoubles(t *testing.T) {
	in := sine(32000)
	down := Resample(in, 32000, 16000)
	if len(down) != 16000 {
		t.Errorf("downsample: got %d samples, want 16000", len(down))
	}
	up := Resample(in, 16000, 32000)
	if len(up) != 64000 {
		t.Errorf("upsample: got %d samples, want 64000", len(up))
	}
	same := Resample(in, 16000, 16000)
	if &same[0] != &in[0] {
		t.Error("equal-rate resample should return the input unchanged")
	}
}

func TestEncodeDecodeWAV(t *testing.T) {
	want := Waveform{Samples: sine(4800), SampleRate: 16000}
	got, err := DecodeWAV(EncodeWAV(want))
	if err != nil {
		t.Fatalf("DecodeWAV() error: %v", err)
	}
	if got.SampleRate != want.SampleRate {
		t.Errorf("sample rate = %d, want %d", got.SampleRate, want.SampleRate)
	}
	if len(got.Samples) != len(want.Samples) {
		t.Fatalf("got %d samples, want %d", len(got.Samples), len(want.Samples))
	}
	for i := range want.Samples {
		if got.Samples[i] != want.Samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, got.Samples[i], want.Samples[i])
		}
	}
}
