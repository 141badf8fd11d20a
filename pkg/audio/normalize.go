package audio

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrDecode is returned when a chunk's bytes cannot be parsed as any
// supported codec. The chunk is rejected; the call session continues.
var ErrDecode = errors.New("audio: undecodable chunk")

// ErrEmptyAudio is returned when a chunk decodes to a zero-duration waveform.
var ErrEmptyAudio = errors.New("audio: empty audio")

// Supported encoding tags accepted by [Normalizer.Normalize]. An empty tag
// triggers format sniffing.
const (
	EncodingWAV   = "wav"
	EncodingOpus  = "opus"
	EncodingPCM16 = "pcm16" // raw little-endian int16 mono at CanonicalRate
)

// Normalizer converts raw chunk bytes into the canonical waveform format:
// mono 16-bit PCM at [Normalizer.TargetRate].
//
// A Normalizer is stateless and safe for concurrent use.
type Normalizer struct {
	// TargetRate is the output sample rate in Hz. Zero means CanonicalRate.
	TargetRate int
}

// Normalize decodes data according to encoding (or by sniffing when encoding
// is empty) and converts the result to mono PCM at the target rate.
//
// Returns an error wrapping [ErrDecode] when no supported codec matches, and
// [ErrEmptyAudio] when the decoded waveform has zero duration. Either error
// aborts the whole chunk — normalization failure is the only stage failure
// that rejects a chunk outright.
func (n *Normalizer) Normalize(data []byte, encoding string) (Waveform, error) {
	target := n.TargetRate
	if target <= 0 {
		target = CanonicalRate
	}

	if encoding == "" {
		encoding = sniffEncoding(data)
	}

	var wf Waveform
	switch encoding {
	case EncodingWAV:
		decoded, err := DecodeWAV(data)
		if err != nil {
			return Waveform{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		wf = decoded
	case EncodingOpus:
		stereo, err := decodeOpusStream(data)
		if err != nil {
			return Waveform{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		wf = Waveform{Samples: DownmixStereo(stereo), SampleRate: opusSampleRate}
	case EncodingPCM16:
		if len(data) < 2 {
			return Waveform{}, fmt.Errorf("%w: raw PCM shorter than one sample", ErrDecode)
		}
		if len(data)%2 != 0 {
			slog.Warn("normalizer: odd byte count in raw PCM, dropping trailing byte",
				"bytes", len(data))
		}
		wf = FromBytes(data, target)
	default:
		return Waveform{}, fmt.Errorf("%w: unsupported encoding %q", ErrDecode, encoding)
	}

	if wf.Empty() {
		return Waveform{}, ErrEmptyAudio
	}

	if wf.SampleRate != target {
		wf = Waveform{
			Samples:    Resample(wf.Samples, wf.SampleRate, target),
			SampleRate: target,
		}
		if wf.Empty() {
			return Waveform{}, ErrEmptyAudio
		}
	}
	return wf, nil
}

// sniffEncoding deduces the codec from the first bytes of the stream.
// RIFF magic marks WAV; a plausible length-prefixed packet marks the Opus
// stream framing; anything else is treated as raw PCM.
func sniffEncoding(data []byte) string {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return EncodingWAV
	}
	if looksLikeOpusStream(data) {
		return EncodingOpus
	}
	return EncodingPCM16
}

// looksLikeOpusStream checks whether data parses cleanly as a sequence of
// length-prefixed packets whose sizes are within Opus bounds (≤ 1275 bytes).
func looksLikeOpusStream(data []byte) bool {
	const maxOpusPacket = 1275
	if len(data) < 2 {
		return false
	}
	off, packets := 0, 0
	for off+2 <= len(data) {
		n := int(data[off])<<8 | int(data[off+1])
		if n == 0 || n > maxOpusPacket {
			return false
		}
		off += 2 + n
		packets++
	}
	return off == len(data) && packets > 0
}
