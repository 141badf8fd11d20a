// Package spectral implements ambience.Provider with in-process signal
// analysis. It is the zero-dependency fallback used when no audio-tagging
// sidecar is deployed: a handful of frame-level heuristics that pick up the
// acoustic fingerprint of a busy call floor without any learned model.
//
// Heuristics:
//
//   - a high mean spectral centroid indicates broadband high-frequency
//     activity such as typing and mouse clicks
//   - a near-constant zero-crossing rate across frames indicates a steady
//     mechanical hum (air conditioning, server fans)
//   - high variance in frame energy indicates overlapping voice activity
//     from multiple background speakers
package spectral

import (
	"context"
	"math"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/ambience"
)

const (
	frameSize = 1024
	hopSize   = 512

	// centroidHz flags broadband high-frequency content.
	centroidHz = 3000.0

	// zcrStdFloor flags an unnaturally steady zero-crossing rate.
	zcrStdFloor = 0.01

	// energyVarCeil flags bursty multi-speaker energy.
	energyVarCeil = 0.01

	// threshold is the suspicion score above which the environment is
	// flagged. Lower than the panns threshold since only three coarse
	// signals contribute.
	threshold = 0.4
)

// Compile-time assertion that Provider implements ambience.Provider.
var _ ambience.Provider = (*Provider)(nil)

// Provider is a stateless heuristic classifier. The zero value is ready to
// use and safe for concurrent use.
type Provider struct{}

// New returns a ready-to-use spectral Provider.
func New() *Provider { return &Provider{} }

// Classify runs the frame-level heuristics over the waveform. Silence and
// waveforms shorter than one analysis frame produce an empty, non-suspicious
// result rather than an error.
func (p *Provider) Classify(ctx context.Context, w audio.Waveform) (ambience.Result, error) {
	if err := ctx.Err(); err != nil {
		return ambience.Result{}, err
	}

	res := ambience.Result{Method: "spectral"}
	if len(w.Samples) < frameSize || w.SampleRate <= 0 {
		return res, nil
	}

	samples := normalize(w.Samples)

	var (
		centroids []float64
		zcrs      []float64
		energies  []float64
	)
	for off := 0; off+frameSize <= len(samples); off += hopSize {
		frame := samples[off : off+frameSize]
		centroids = append(centroids, spectralCentroid(frame, w.SampleRate))
		zcrs = append(zcrs, zeroCrossingRate(frame))
		energies = append(energies, rms(frame))
	}

	if mean(centroids) > centroidHz {
		res.Tags = append(res.Tags, ambience.Tag{Label: "High frequency activity (typing/clicking)", Confidence: 0.7})
		res.SuspicionScore += 0.3
	}
	if stddev(zcrs) < zcrStdFloor {
		res.Tags = append(res.Tags, ambience.Tag{Label: "Regular background hum", Confidence: 0.6})
		res.SuspicionScore += 0.2
	}
	if variance(energies) > energyVarCeil {
		res.Tags = append(res.Tags, ambience.Tag{Label: "Multiple voice activity", Confidence: 0.5})
		res.SuspicionScore += 0.25
	}
	res.Suspicious = res.SuspicionScore > threshold
	return res, nil
}

// normalize converts 16-bit PCM to float64 in [-1, 1).
func normalize(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768.0
	}
	return out
}

// spectralCentroid returns the magnitude-weighted mean frequency of one
// frame in Hz.
func spectralCentroid(frame []float64, sampleRate int) float64 {
	mags := magnitudeSpectrum(frame)

	var weighted, total float64
	binHz := float64(sampleRate) / float64(len(frame))
	for k, m := range mags {
		weighted += float64(k) * binHz * m
		total += m
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// zeroCrossingRate returns the fraction of adjacent sample pairs that change
// sign.
func zeroCrossingRate(frame []float64) float64 {
	var crossings int
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}

func rms(frame []float64) float64 {
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	return math.Sqrt(variance(xs))
}
