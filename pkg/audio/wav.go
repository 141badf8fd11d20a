package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// wavHeaderSize is the size of a canonical RIFF/WAVE header with a single
// "fmt " chunk preceding "data".
const wavHeaderSize = 44

var (
	riffMagic = []byte("RIFF")
	waveMagic = []byte("WAVE")
)

// errNoDataChunk is returned when a RIFF stream lacks a "data" chunk.
var errNoDataChunk = errors.New("wav: no data chunk")

// DecodeWAV parses a RIFF/WAVE byte stream and returns its PCM payload as a
// waveform at the container's declared sample rate, downmixed to mono if the
// file is stereo. Only uncompressed 16-bit PCM (format tag 1) is supported —
// that covers everything the call bridge produces.
func DecodeWAV(data []byte) (Waveform, error) {
	if len(data) < wavHeaderSize ||
		string(data[0:4]) != string(riffMagic) || string(data[8:12]) != string(waveMagic) {
		return Waveform{}, errors.New("wav: not a RIFF/WAVE stream")
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		pcm           []byte
		haveFmt       bool
	)

	// Walk the chunk list. Chunks are 8-byte headers (id + size) followed by
	// size bytes, padded to even length.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return Waveform{}, fmt.Errorf("wav: chunk %q overruns stream", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Waveform{}, errors.New("wav: fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 { // PCM
				return Waveform{}, fmt.Errorf("wav: unsupported format tag %d (only PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		off = body + size
		if size%2 == 1 {
			off++ // chunk padding
		}
	}

	if !haveFmt {
		return Waveform{}, errors.New("wav: no fmt chunk")
	}
	if pcm == nil {
		return Waveform{}, errNoDataChunk
	}
	if bitsPerSample != 16 {
		return Waveform{}, fmt.Errorf("wav: unsupported bit depth %d (only 16)", bitsPerSample)
	}
	if channels != 1 && channels != 2 {
		return Waveform{}, fmt.Errorf("wav: unsupported channel count %d", channels)
	}
	if sampleRate <= 0 {
		return Waveform{}, fmt.Errorf("wav: invalid sample rate %d", sampleRate)
	}

	wf := FromBytes(pcm, sampleRate)
	if channels == 2 {
		wf.Samples = DownmixStereo(wf.Samples)
	}
	return wf, nil
}

// EncodeWAV serialises a waveform into a canonical 16-bit mono RIFF/WAVE
// stream. Used by the HTTP stage adapters when uploading audio to their
// model-server sidecars.
func EncodeWAV(w Waveform) []byte {
	pcm := w.Bytes()
	buf := make([]byte, wavHeaderSize+len(pcm))

	copy(buf[0:4], riffMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], waveMagic)

	copy(buf[12:16], []byte("fmt "))
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(w.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(w.SampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                      // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                     // bits per sample

	copy(buf[36:40], []byte("data"))
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)

	return buf
}
