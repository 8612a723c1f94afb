// Package recorder owns the OS capture resource. At most one recording is
// active; completed captures are announced on a single-consumer event
// channel and live input levels on a latest-value-wins channel.
package recorder

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"kiku/audio"
	"kiku/encoder"
	"kiku/log"
	"kiku/slot"
)

var (
	ErrNotPrepared      = errors.New("audio session not prepared")
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")

	// ErrEmptyFile marks a capture the backend reported as successful but
	// whose file carries no usable audio. The file is deleted before the
	// completion event is emitted.
	ErrEmptyFile = errors.New("recording file is empty")
)

const (
	// DefaultRetentionDays bounds the enumeration scan; older captures are
	// past the retention window and are never uploaded.
	DefaultRetentionDays = 30

	meterInterval = 100 * time.Millisecond

	// Captures shorter than this are discarded as empty.
	minDuration = 100 * time.Millisecond
)

// Capture is one completed recording on disk.
type Capture struct {
	Key       slot.Key
	Path      string
	CreatedAt time.Time
	SizeBytes int64
}

// Completion is the terminal event of one recording: a capture on success,
// a typed error otherwise.
type Completion struct {
	Capture Capture
	Err     error
}

type active struct {
	key     slot.Key
	path    string
	w       *encoder.WAVWriter
	started time.Time
	stop    chan struct{} // stops the metering sampler
}

// Engine wraps one capture backend and the capture root directory.
type Engine struct {
	ctx       audio.Context
	root      string
	device    *audio.DeviceInfo
	retention int

	events chan Completion
	levels chan float64

	mu      sync.Mutex
	capture audio.CaptureDevice
	rec     *active

	level atomic.Uint64 // float64 bits, written by the audio callback
}

func New(ctx audio.Context, root string, device *audio.DeviceInfo) *Engine {
	return &Engine{
		ctx:       ctx,
		root:      root,
		device:    device,
		retention: DefaultRetentionDays,
		events:    make(chan Completion, 4),
		levels:    make(chan float64, 1),
	}
}

// SetRetentionDays narrows or widens the Enumerate scan window. Call
// before the first scan.
func (e *Engine) SetRetentionDays(days int) {
	if days > 0 {
		e.retention = days
	}
}

// Events delivers completion events in stop order. Single consumer.
func (e *Engine) Events() <-chan Completion { return e.events }

// Levels is the metering stream: normalized [0,1], newest value only.
// A slow consumer loses samples, never delays the audio thread.
func (e *Engine) Levels() <-chan float64 { return e.levels }

// Prepare opens the capture device. On failure it retries once against the
// system default device as a degraded fallback before giving up.
func (e *Engine) Prepare() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capture != nil {
		return nil
	}

	cfg := audio.CaptureConfig{SampleRate: encoder.SampleRate, Channels: encoder.Channels}
	capture, err := e.ctx.NewCapture(e.device, cfg)
	if err != nil && e.device != nil {
		log.Warnf("capture init failed for %q, falling back to default device: %v", e.device.Name, err)
		e.device = nil
		capture, err = e.ctx.NewCapture(nil, cfg)
	}
	if err != nil {
		return fmt.Errorf("preparing capture device: %w", err)
	}
	e.capture = capture
	return nil
}

// DeviceName returns the active device name, or "" before Prepare.
func (e *Engine) DeviceName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capture == nil {
		return ""
	}
	return e.capture.DeviceName()
}

// StartRecording arms the device and begins writing key's capture file.
// An existing file in the slot is overwritten. The caller must have called
// Prepare and must stop any active recording first.
func (e *Engine) StartRecording(key slot.Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capture == nil {
		return ErrNotPrepared
	}
	if e.rec != nil {
		return ErrAlreadyRecording
	}

	dir := filepath.Join(e.root, key.Day)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating day directory: %w", err)
	}
	path := filepath.Join(e.root, key.Path())
	if err := os.Remove(path); err == nil {
		log.Info("overwriting existing capture: " + key.String())
	}

	w, err := encoder.NewWAVWriter(path)
	if err != nil {
		return err
	}

	rec := &active{key: key, path: path, w: w, started: time.Now(), stop: make(chan struct{})}
	e.level.Store(0)

	e.capture.SetCallback(func(data []byte, _ uint32) {
		if len(data) == 0 {
			return
		}
		if err := w.Write(data); err != nil {
			log.Errorf("pcm write error: %v", err)
			return
		}
		e.level.Store(math.Float64bits(rms(data)))
	})

	if err := e.capture.Start(); err != nil {
		e.capture.ClearCallback()
		w.Close()
		os.Remove(path)
		return fmt.Errorf("starting capture: %w", err)
	}

	go e.meter(rec.stop)
	e.rec = rec
	return nil
}

// meter publishes the latest level at a fixed cadence until stopped.
func (e *Engine) meter(stop <-chan struct{}) {
	ticker := time.NewTicker(meterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v := math.Float64frombits(e.level.Load())
			select {
			case e.levels <- v:
			default:
				select {
				case <-e.levels:
				default:
				}
				select {
				case e.levels <- v:
				default:
				}
			}
		}
	}
}

// rms normalizes a little-endian S16 buffer into [0,1].
func rms(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(uint16(data[i]) | uint16(data[i+1])<<8)
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Min(1, math.Sqrt(sumSquares/float64(n)))
}

// StopRecording stops the device, finalizes the file and emits exactly one
// completion event. A capture with no usable audio is deleted and reported
// as ErrEmptyFile.
func (e *Engine) StopRecording() error {
	e.mu.Lock()
	rec := e.rec
	if rec == nil {
		e.mu.Unlock()
		return ErrNotRecording
	}
	e.rec = nil
	close(rec.stop)
	e.capture.Stop()
	e.capture.ClearCallback()
	e.mu.Unlock()

	if err := rec.w.Close(); err != nil {
		os.Remove(rec.path)
		e.events <- Completion{Err: fmt.Errorf("finalizing capture: %w", err)}
		return nil
	}

	minBytes := int64(minDuration.Seconds() * float64(encoder.BytesPerSecond))
	fi, err := os.Stat(rec.path)
	if err != nil || fi.Size() <= encoder.WAVHeaderSize ||
		fi.Size()-encoder.WAVHeaderSize < minBytes {
		os.Remove(rec.path)
		e.events <- Completion{Err: ErrEmptyFile}
		return nil
	}

	e.events <- Completion{Capture: Capture{
		Key:       rec.key,
		Path:      rec.path,
		CreatedAt: rec.started,
		SizeBytes: fi.Size(),
	}}
	return nil
}

// Recording reports whether a capture is currently open.
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec != nil
}

// Enumerate scans the capture root for valid captures, newest first,
// bounded to the most recent retention-window day directories.
func (e *Engine) Enumerate() ([]Capture, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading capture root: %w", err)
	}

	var days []string
	for _, ent := range entries {
		if ent.IsDir() && slot.IsDay(ent.Name()) {
			days = append(days, ent.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	if len(days) > e.retention {
		days = days[:e.retention]
	}

	var captures []Capture
	for _, day := range days {
		files, err := os.ReadDir(filepath.Join(e.root, day))
		if err != nil {
			log.Warnf("skipping day directory %s: %v", day, err)
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			key, err := slot.Parse(day, f.Name())
			if err != nil {
				continue
			}
			fi, err := f.Info()
			if err != nil || fi.Size() == 0 {
				continue
			}
			captures = append(captures, Capture{
				Key:       key,
				Path:      filepath.Join(e.root, day, f.Name()),
				CreatedAt: fi.ModTime(),
				SizeBytes: fi.Size(),
			})
		}
	}

	sort.Slice(captures, func(i, j int) bool {
		return captures[i].CreatedAt.After(captures[j].CreatedAt)
	})
	return captures, nil
}

// Delete removes a capture file. A missing file is not an error.
func (e *Engine) Delete(c Capture) error {
	if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting capture: %w", err)
	}
	return nil
}

// Close releases the capture device. Safe without Prepare.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capture != nil {
		e.capture.Close()
		e.capture = nil
	}
}
