package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"kiku/audio"
	"kiku/encoder"
	"kiku/slot"
)

func testKey() slot.Key {
	return slot.At(time.Date(2025, 7, 7, 14, 40, 0, 0, time.UTC), time.UTC)
}

func TestRecordRoundTrip(t *testing.T) {
	root := t.TempDir()
	ctx := audio.NewSilentContext(500*time.Millisecond, false)
	e := New(ctx, root, nil)
	if err := e.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer e.Close()

	key := testKey()
	if err := e.StartRecording(key); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if !e.Recording() {
		t.Error("Recording() = false during capture")
	}
	if err := e.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	var got Completion
	select {
	case got = <-e.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("no completion event")
	}
	if got.Err != nil {
		t.Fatalf("completion error: %v", got.Err)
	}
	if got.Capture.Key != key {
		t.Errorf("completion key = %v, want %v", got.Capture.Key, key)
	}
	if got.Capture.SizeBytes <= encoder.WAVHeaderSize {
		t.Errorf("SizeBytes = %d, want > header", got.Capture.SizeBytes)
	}

	caps, err := e.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(caps) != 1 {
		t.Fatalf("Enumerate returned %d captures, want 1", len(caps))
	}
	if caps[0].Key != key {
		t.Errorf("enumerated key = %v, want %v", caps[0].Key, key)
	}
	if caps[0].SizeBytes != got.Capture.SizeBytes {
		t.Errorf("enumerated size = %d, want %d", caps[0].SizeBytes, got.Capture.SizeBytes)
	}
}

func TestStartWhileRecording(t *testing.T) {
	root := t.TempDir()
	e := New(audio.NewSilentContext(time.Second, false), root, nil)
	if err := e.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer e.Close()

	if err := e.StartRecording(testKey()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := e.StartRecording(testKey()); err != ErrAlreadyRecording {
		t.Errorf("second StartRecording = %v, want ErrAlreadyRecording", err)
	}
	e.StopRecording()
	<-e.Events()
}

func TestStopWithoutRecording(t *testing.T) {
	e := New(audio.NewSilentContext(time.Second, false), t.TempDir(), nil)
	if err := e.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer e.Close()
	if err := e.StopRecording(); err != ErrNotRecording {
		t.Errorf("StopRecording = %v, want ErrNotRecording", err)
	}
}

func TestStartWithoutPrepare(t *testing.T) {
	e := New(audio.NewSilentContext(time.Second, false), t.TempDir(), nil)
	if err := e.StartRecording(testKey()); err != ErrNotPrepared {
		t.Errorf("StartRecording = %v, want ErrNotPrepared", err)
	}
}

// deadCapture never delivers audio, producing an empty capture file.
type deadCapture struct{}

func (deadCapture) Start() error                  { return nil }
func (deadCapture) Stop()                         {}
func (deadCapture) Close()                        {}
func (deadCapture) SetCallback(audio.DataCallback) {}
func (deadCapture) ClearCallback()                {}
func (deadCapture) DeviceName() string            { return "dead" }

type deadContext struct{}

func (deadContext) Devices() ([]audio.DeviceInfo, error) { return nil, nil }
func (deadContext) Close()                               {}
func (deadContext) NewCapture(*audio.DeviceInfo, audio.CaptureConfig) (audio.CaptureDevice, error) {
	return deadCapture{}, nil
}

func TestEmptyRecordingDiscarded(t *testing.T) {
	root := t.TempDir()
	e := New(deadContext{}, root, nil)
	if err := e.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer e.Close()

	key := testKey()
	if err := e.StartRecording(key); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := e.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	got := <-e.Events()
	if got.Err != ErrEmptyFile {
		t.Fatalf("completion error = %v, want ErrEmptyFile", got.Err)
	}
	if _, err := os.Stat(filepath.Join(root, key.Path())); !os.IsNotExist(err) {
		t.Error("empty capture file left on disk")
	}
	caps, err := e.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(caps) != 0 {
		t.Errorf("empty capture appeared in enumeration: %v", caps)
	}
}

func TestEnumerateSkipsInvalid(t *testing.T) {
	root := t.TempDir()
	day := "2025-07-07"
	if err := os.MkdirAll(filepath.Join(root, day), 0755); err != nil {
		t.Fatal(err)
	}
	write := func(name string, data []byte) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(root, day, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("14-30.wav", []byte("x"))
	write("14-00.wav", nil)          // zero-byte
	write("notes.txt", []byte("x"))  // wrong extension
	write("14-15.wav", []byte("x"))  // invalid slot
	os.MkdirAll(filepath.Join(root, "scratch"), 0755) // non-day dir

	e := New(deadContext{}, root, nil)
	caps, err := e.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(caps) != 1 || caps[0].Key.Slot != "14-30" {
		t.Errorf("Enumerate = %v, want only 14-30", caps)
	}
}

func TestEnumerateRetentionWindow(t *testing.T) {
	root := t.TempDir()
	days := []string{"2025-07-05", "2025-07-06", "2025-07-07"}
	for _, day := range days {
		if err := os.MkdirAll(filepath.Join(root, day), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(root, day, "14-30.wav"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	e := New(deadContext{}, root, nil)
	e.SetRetentionDays(2)
	caps, err := e.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(caps) != 2 {
		t.Fatalf("Enumerate returned %d captures, want 2", len(caps))
	}
	for _, c := range caps {
		if c.Key.Day == "2025-07-05" {
			t.Error("capture outside the retention window enumerated")
		}
	}
}

func TestDeleteIdempotent(t *testing.T) {
	root := t.TempDir()
	e := New(deadContext{}, root, nil)
	c := Capture{Path: filepath.Join(root, "2025-07-07", "14-30.wav")}
	if err := e.Delete(c); err != nil {
		t.Errorf("Delete of missing file: %v", err)
	}
	os.MkdirAll(filepath.Dir(c.Path), 0755)
	os.WriteFile(c.Path, []byte("x"), 0644)
	if err := e.Delete(c); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if err := e.Delete(c); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}
