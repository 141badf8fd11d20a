package audio

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"
)

// Opus chunks arrive from the bridge as a packet stream: each Opus packet is
// prefixed with a 2-byte big-endian length. VoIP capture produces 48 kHz
// stereo packets at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// decodeOpusStream decodes a length-prefixed Opus packet stream into
// interleaved stereo int16 samples at 48 kHz. A single decoder instance is
// used for the whole chunk so decoder state carries across packets.
func decodeOpusStream(data []byte) ([]int16, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}

	var samples []int16
	off := 0
	for off+2 <= len(data) {
		n := int(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		if n == 0 {
			continue
		}
		if off+n > len(data) {
			return nil, fmt.Errorf("opus: packet at offset %d overruns stream", off-2)
		}
		pcm, err := dec.Decode(data[off:off+n], opusFrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("opus: decode packet at offset %d: %w", off-2, err)
		}
		samples = append(samples, pcm...)
		off += n
	}
	if off != len(data) {
		return nil, fmt.Errorf("opus: %d trailing bytes after last packet", len(data)-off)
	}
	return samples, nil
}
