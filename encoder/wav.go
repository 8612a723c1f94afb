package encoder

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// WAVWriter streams PCM to a file, writing a placeholder header up front
// and patching the RIFF and data chunk sizes on Close. The audio callback
// thread writes concurrently with Close, so writes are serialized.
type WAVWriter struct {
	mu     sync.Mutex
	f      *os.File
	data   uint32
	closed bool
}

// NewWAVWriter creates (or truncates) path and writes the header.
func NewWAVWriter(path string) (*WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating wav file: %w", err)
	}
	w := &WAVWriter{f: f}
	if err := w.writeHeader(0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

func (w *WAVWriter) writeHeader(dataSize uint32) error {
	var hdr [WAVHeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], WAVHeaderSize-8+dataSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], Channels)
	binary.LittleEndian.PutUint32(hdr[24:28], SampleRate)
	binary.LittleEndian.PutUint32(hdr[28:32], BytesPerSecond)
	binary.LittleEndian.PutUint16(hdr[32:34], Channels*BitsPerSample/8) // block align
	binary.LittleEndian.PutUint16(hdr[34:36], BitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)

	if _, err := w.f.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("writing wav header: %w", err)
	}
	return nil
}

// Write appends raw little-endian S16 PCM. Writes after Close are dropped:
// the capture backend may deliver a trailing buffer while the recorder is
// tearing down.
func (w *WAVWriter) Write(pcm []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	// Positional write: the header occupies [0, WAVHeaderSize) and is
	// rewritten by Close, so PCM is placed explicitly after it rather
	// than relying on the file offset.
	if _, err := w.f.WriteAt(pcm, WAVHeaderSize+int64(w.data)); err != nil {
		return fmt.Errorf("writing pcm: %w", err)
	}
	w.data += uint32(len(pcm))
	return nil
}

// DataSize returns the number of PCM bytes written so far.
func (w *WAVWriter) DataSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(w.data)
}

// Close patches the header sizes and closes the file.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	hdrErr := w.writeHeader(w.data)
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("closing wav file: %w", err)
	}
	return hdrErr
}
