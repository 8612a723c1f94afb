package encoder

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestWAVWriterHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := NewWAVWriter(path)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}

	pcm := make([]byte, 3200) // 100ms at the fixed format
	for i := 0; i+1 < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(i%500))
	}
	if err := w.Write(pcm); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := w.DataSize(); got != int64(len(pcm)) {
		t.Errorf("DataSize = %d, want %d", got, len(pcm))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != WAVHeaderSize+len(pcm) {
		t.Fatalf("file size = %d, want %d", len(data), WAVHeaderSize+len(pcm))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); got != uint32(WAVHeaderSize-8+len(pcm)) {
		t.Errorf("riff size = %d", got)
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != SampleRate {
		t.Errorf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint16(data[22:24]); got != Channels {
		t.Errorf("channels = %d", got)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
	if !bytes.Equal(data[WAVHeaderSize:], pcm) {
		t.Error("pcm payload after the header does not match what was written")
	}
}

func TestWAVWriterChunkedPayloadIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := NewWAVWriter(path)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}

	chunks := [][]byte{
		bytes.Repeat([]byte{0x11, 0x22}, 160),
		bytes.Repeat([]byte{0x33, 0x44}, 160),
		bytes.Repeat([]byte{0x55, 0x66}, 160),
	}
	var want []byte
	for _, c := range chunks {
		if err := w.Write(c); err != nil {
			t.Fatalf("Write: %v", err)
		}
		want = append(want, c...)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != WAVHeaderSize+len(want) {
		t.Fatalf("file size = %d, want %d", len(data), WAVHeaderSize+len(want))
	}
	if string(data[0:4]) != "RIFF" {
		t.Error("header region does not start with RIFF magic")
	}
	if !bytes.Equal(data[WAVHeaderSize:], want) {
		t.Error("chunked pcm payload corrupted")
	}
}

func TestWAVWriterWriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := NewWAVWriter(path)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Write([]byte{0, 0}); err != nil {
		t.Errorf("Write after Close should be dropped, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Size() != WAVHeaderSize {
		t.Errorf("empty recording size = %d, want header only", fi.Size())
	}
}
