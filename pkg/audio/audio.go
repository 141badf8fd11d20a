// Package audio provides the canonical waveform type and the chunk normalizer
// that converts incoming call audio — whatever container or codec the bridge
// relayed — into 16 kHz mono PCM for the inference stages.
//
// The central type is [Waveform]: mono 16-bit PCM at a known sample rate.
// Every inference adapter consumes a Waveform, and per-speaker emotion
// analysis consumes [Waveform.Slice] outputs covering exactly one diarized
// segment. The [Normalizer] produces Waveforms from raw chunk bytes and is
// the only component that understands codecs.
package audio

import "time"

// CanonicalRate is the sample rate every stage adapter expects, in Hz.
// Chosen to match the native input rate of the speech models downstream.
const CanonicalRate = 16000

// Waveform is a mono PCM waveform at a fixed sample rate. It is owned
// exclusively by the pipeline run that produced it and discarded after all
// stages complete.
type Waveform struct {
	// Samples holds signed 16-bit PCM samples, single channel.
	Samples []int16

	// SampleRate in Hz. The normalizer always emits CanonicalRate.
	SampleRate int
}

// Duration returns the waveform's play time.
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// Empty reports whether the waveform has zero duration.
func (w Waveform) Empty() bool {
	return len(w.Samples) == 0
}

// Slice returns the sub-waveform covering [start, end). Bounds are clamped to
// the waveform, so a slice can never be longer than its source span. The
// returned waveform shares backing storage with w.
func (w Waveform) Slice(start, end time.Duration) Waveform {
	if w.SampleRate <= 0 || end <= start {
		return Waveform{SampleRate: w.SampleRate}
	}
	lo := int(start * time.Duration(w.SampleRate) / time.Second)
	hi := int(end * time.Duration(w.SampleRate) / time.Second)
	if lo < 0 {
		lo = 0
	}
	if hi > len(w.Samples) {
		hi = len(w.Samples)
	}
	if lo >= hi {
		return Waveform{SampleRate: w.SampleRate}
	}
	return Waveform{Samples: w.Samples[lo:hi], SampleRate: w.SampleRate}
}

// Bytes returns the samples as little-endian int16 bytes, the layout expected
// by WAV payloads and the whisper.cpp bindings.
func (w Waveform) Bytes() []byte {
	b := make([]byte, len(w.Samples)*2)
	for i, s := range w.Samples {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// FromBytes builds a waveform from little-endian int16 PCM bytes. A trailing
// odd byte is dropped.
func FromBytes(pcm []byte, sampleRate int) Waveform {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := range n {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return Waveform{Samples: samples, SampleRate: sampleRate}
}
