// Package encoder fixes the capture format and writes it to disk.
//
// The format is a deliberate contract with the ingestion endpoint: lossless
// mono 16 kHz / 16-bit PCM in a WAV container, small enough for half-hour
// slots and adequate for downstream analysis. It is not user-configurable.
package encoder

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16

	// BytesPerSecond of raw PCM at the fixed format.
	BytesPerSecond = SampleRate * Channels * BitsPerSample / 8

	// WAVHeaderSize is the size of the canonical 44-byte RIFF/WAVE header
	// this package writes.
	WAVHeaderSize = 44
)
