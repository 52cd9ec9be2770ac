// Package pcm implements the wire encoding for audio chunk bodies.
// Chunks travel as raw interleaved 32-bit little-endian IEEE float mono
// samples with no framing or header.
package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BytesPerSample is the wire size of one float32 sample.
const BytesPerSample = 4

// ContentType is the MIME type used for chunk request bodies.
const ContentType = "application/octet-stream"

// Encode serializes mono float32 samples to little-endian bytes.
func Encode(samples []float32) []byte {
	buf := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*BytesPerSample:], math.Float32bits(s))
	}
	return buf
}

// Decode parses little-endian float32 bytes back into samples. The input
// length must be a multiple of 4.
func Decode(data []byte) ([]float32, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, fmt.Errorf("pcm data length %d is not a multiple of %d", len(data), BytesPerSample)
	}

	samples := make([]float32, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*BytesPerSample:]))
	}
	return samples, nil
}
