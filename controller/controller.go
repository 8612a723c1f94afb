// Package controller owns the session state machine. It is the only
// writer of session state: the capture engine, upload client and pending
// store never mutate it, and every other component observes it through
// read-only snapshots or sink events.
package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"kiku/log"
	"kiku/notify"
	"kiku/pending"
	"kiku/recorder"
	"kiku/slot"
	"kiku/uploader"
)

var (
	ErrNoWritePermission = errors.New("no write permission for capture storage")
	ErrNoDevice          = errors.New("no device identity configured")
	ErrMicDenied         = errors.New("microphone permission denied")
	ErrRecordingActive   = errors.New("cannot upload while recording")
	ErrDrainActive       = errors.New("cannot record while uploads are draining")
	ErrNothingToUpload   = errors.New("nothing to upload")
)

const tickInterval = 100 * time.Millisecond

// MicPermission is the tri-state microphone authorization.
type MicPermission int

const (
	MicUndetermined MicPermission = iota
	MicGranted
	MicDenied
)

// Permissions is the authorization surface the controller consults before
// arming a recording. Implementations may prompt the user.
type Permissions interface {
	CanWrite() bool
	Microphone() MicPermission
	// RequestMicrophone prompts and returns the resulting state. Called at
	// most once per process; a later Microphone() must reflect the answer.
	RequestMicrophone() MicPermission
}

// Engine is the capture surface the controller drives.
// *recorder.Engine satisfies it.
type Engine interface {
	Prepare() error
	DeviceName() string
	StartRecording(slot.Key) error
	StopRecording() error
	Recording() bool
	Events() <-chan recorder.Completion
	Levels() <-chan float64
}

// DrainStats counts settled attempts of one drain pass.
type DrainStats struct {
	Success int
	Failure int
}

// State is an immutable snapshot of the session.
type State struct {
	Phase            notify.Phase
	SessionStartedAt time.Time
	Elapsed          time.Duration
	CurrentSlot      slot.Key
	Pending          []recorder.Capture
	DrainInProgress  bool
	DrainProgress    float64
	DrainStats       DrainStats
	Uploading        *recorder.Capture
	LastError        string
}

// Config wires the controller's collaborators. Engine, Uploader, Store
// and Perms are required.
type Config struct {
	Engine   Engine
	Uploader uploader.Uploader
	Store    *pending.Store
	Perms    Permissions
	Sink     notify.Sink

	UserID   string
	DeviceID string
	Timezone *time.Location

	// Now is the clock; tests substitute it. Defaults to time.Now.
	Now func() time.Time
}

type Controller struct {
	engine   Engine
	uploader uploader.Uploader
	store    *pending.Store
	perms    Permissions
	sink     notify.Sink
	userID   string
	deviceID string
	tz       *time.Location
	now      func() time.Time

	mu               sync.Mutex
	phase            notify.Phase
	sessionStartedAt time.Time
	elapsed          time.Duration
	currentSlot      slot.Key
	drainInProgress  bool
	drainProgress    float64
	drainStats       DrainStats
	uploading        *recorder.Capture
	lastError        string
	prepared         bool
	micPrompted      bool
	tickStop         chan struct{}
	rollover         *time.Timer

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(cfg Config) *Controller {
	if cfg.Sink == nil {
		cfg.Sink = notify.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	return &Controller{
		engine:   cfg.Engine,
		uploader: cfg.Uploader,
		store:    cfg.Store,
		perms:    cfg.Perms,
		sink:     cfg.Sink,
		userID:   cfg.UserID,
		deviceID: cfg.DeviceID,
		tz:       cfg.Timezone,
		now:      cfg.Now,
		done:     make(chan struct{}),
	}
}

// Run starts the background consumers: completion events from the engine
// and the metering stream. Must be called once before Start.
func (c *Controller) Run() {
	c.wg.Add(2)
	go c.consumeCompletions()
	go c.forwardLevels()
}

// Close stops the background consumers. It does not stop an active
// recording; callers stop first.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

// RefreshPending rebuilds the pending list from disk. Called at startup
// so captures that survived a crash reappear.
func (c *Controller) RefreshPending() error {
	if err := c.store.Refresh(); err != nil {
		return err
	}
	c.sink.PendingCount(c.store.Len())
	return nil
}

// Start arms a recording for the current slot. Calling it while already
// recording is a logged no-op; calling it during a queue drain is
// refused. Permission or preparation failure leaves the phase Idle with
// LastError set.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.phase == notify.PhaseRecording {
		c.mu.Unlock()
		log.Info("start ignored: already recording")
		return nil
	}
	if c.phase == notify.PhasePreparing {
		c.mu.Unlock()
		return nil
	}
	// Recording and draining are mutually exclusive in both directions;
	// DrainQueue refuses while Recording, so Start refuses here.
	if c.drainInProgress {
		c.setErrorLocked(ErrDrainActive.Error())
		c.mu.Unlock()
		return ErrDrainActive
	}

	if err := c.checkPermissionsLocked(); err != nil {
		c.setErrorLocked(err.Error())
		c.mu.Unlock()
		return err
	}

	c.setPhaseLocked(notify.PhasePreparing)
	c.mu.Unlock()

	// Blocking I/O happens outside the lock; Preparing gates re-entry.
	if err := c.engine.Prepare(); err != nil {
		c.mu.Lock()
		c.setPhaseLocked(notify.PhaseIdle)
		c.setErrorLocked("audio session setup failed: " + err.Error())
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.prepared = true

	key := slot.At(c.now(), c.tz)
	if err := c.engine.StartRecording(key); err != nil {
		c.setPhaseLocked(notify.PhaseIdle)
		c.setErrorLocked("recording start failed: " + err.Error())
		return err
	}

	c.sessionStartedAt = c.now()
	c.elapsed = 0
	c.currentSlot = key
	c.setPhaseLocked(notify.PhaseRecording)
	c.sink.DeviceLine(c.engine.DeviceName())

	c.tickStop = make(chan struct{})
	c.wg.Add(1)
	go c.tick(c.tickStop)
	c.armRolloverLocked()
	return nil
}

func (c *Controller) checkPermissionsLocked() error {
	if !c.perms.CanWrite() {
		return ErrNoWritePermission
	}
	if c.deviceID == "" {
		return ErrNoDevice
	}
	switch c.perms.Microphone() {
	case MicDenied:
		return ErrMicDenied
	case MicUndetermined:
		if c.micPrompted {
			return ErrMicDenied
		}
		c.micPrompted = true
		if c.perms.RequestMicrophone() != MicGranted {
			return ErrMicDenied
		}
	}
	return nil
}

// Stop ends the active recording. Not recording is a no-op. The phase
// flips to Idle before the engine confirms; an engine stop failure is
// surfaced but never reverts the phase.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.phase != notify.PhaseRecording {
		c.mu.Unlock()
		log.Info("stop ignored: not recording")
		return nil
	}
	c.leaveRecordingLocked()
	c.mu.Unlock()

	if err := c.engine.StopRecording(); err != nil {
		c.mu.Lock()
		c.setErrorLocked("recording stop failed: " + err.Error())
		c.mu.Unlock()
		return err
	}
	return nil
}

// leaveRecordingLocked flips to Idle and stops the tick and the rollover
// timer. The tick must stop strictly on leaving Recording.
func (c *Controller) leaveRecordingLocked() {
	c.setPhaseLocked(notify.PhaseIdle)
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
	if c.rollover != nil {
		c.rollover.Stop()
		c.rollover = nil
	}
}

func (c *Controller) tick(stop <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.phase != notify.PhaseRecording {
				c.mu.Unlock()
				return
			}
			c.elapsed = c.now().Sub(c.sessionStartedAt)
			d := c.elapsed
			c.mu.Unlock()
			c.sink.Elapsed(d)
		}
	}
}

// armRolloverLocked schedules the capture switch at the next slot
// boundary so a long session lands in one file per slot.
func (c *Controller) armRolloverLocked() {
	c.rollover = time.AfterFunc(slot.UntilNext(c.now(), c.tz), c.rolloverFire)
}

func (c *Controller) rolloverFire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != notify.PhaseRecording {
		return
	}
	if err := c.engine.StopRecording(); err != nil {
		log.Errorf("rollover stop failed: %v", err)
	}
	key := slot.At(c.now(), c.tz)
	if err := c.engine.StartRecording(key); err != nil {
		c.leaveRecordingLocked()
		c.setErrorLocked("recording restart failed at slot boundary: " + err.Error())
		return
	}
	c.currentSlot = key
	log.Info("slot rollover: now capturing " + key.String())
	c.armRolloverLocked()
}

// consumeCompletions handles terminal events from the engine: successful
// captures are auto-uploaded, empty captures are dropped silently.
func (c *Controller) consumeCompletions() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.engine.Events():
			if ev.Err != nil {
				if errors.Is(ev.Err, recorder.ErrEmptyFile) {
					log.Info("empty capture discarded")
					continue
				}
				c.mu.Lock()
				c.setErrorLocked(ev.Err.Error())
				c.mu.Unlock()
				continue
			}
			c.autoUpload(ev.Capture)
		}
	}
}

// autoUpload makes exactly one attempt for a fresh capture. Failure of
// any kind parks the capture at the head of the pending list.
func (c *Controller) autoUpload(capture recorder.Capture) {
	c.sink.UploadProgress(0)
	job := c.jobFor(capture)
	// Midpoint fires from inside the client once the payload is built.
	job.Progress = c.sink.UploadProgress

	res, err := c.uploader.Upload(context.Background(), job)
	if err != nil {
		c.store.Prepend(capture)
		msg := "upload failed"
		var ue *uploader.Error
		if errors.As(err, &ue) {
			msg = "upload failed: " + ue.Message()
		}
		log.Errorf("auto-upload %s: %v", capture.Key, err)
		c.mu.Lock()
		c.setErrorLocked(msg)
		c.mu.Unlock()
		c.sink.Banner(notify.BannerError, msg)
		c.sink.PendingCount(c.store.Len())
		return
	}

	c.sink.UploadProgress(1)
	if err := c.store.Remove(capture); err != nil {
		log.Warnf("removing uploaded capture: %v", err)
	}
	log.UploadMetrics(capture.Key.String(), capture.SizeBytes, res.Metrics.Total)
	c.sink.Banner(notify.BannerSuccess, "uploaded "+capture.Key.String())
	c.sink.PendingCount(c.store.Len())
}

// jobFor builds a fresh upload job from current session context.
func (c *Controller) jobFor(capture recorder.Capture) uploader.Job {
	return uploader.Job{
		FilePath:   capture.Path,
		UserID:     c.userID,
		DeviceID:   c.deviceID,
		RecordedAt: capture.CreatedAt,
		Timezone:   c.tz,
	}
}

// DrainQueue uploads every pending capture once, sequentially, in list
// order over a snapshot taken at entry. Items added during the pass wait
// for the next call. A drain already in progress is a no-op; draining
// while recording is refused.
func (c *Controller) DrainQueue() error {
	c.mu.Lock()
	if c.drainInProgress {
		c.mu.Unlock()
		log.Info("drain ignored: already in progress")
		return nil
	}
	if c.phase == notify.PhaseRecording || c.phase == notify.PhasePreparing {
		c.setErrorLocked(ErrRecordingActive.Error())
		c.mu.Unlock()
		return ErrRecordingActive
	}

	var batch []recorder.Capture
	for _, item := range c.store.Snapshot() {
		if fi, err := os.Stat(item.Path); err == nil && fi.Size() > 0 {
			batch = append(batch, item)
		}
	}
	if len(batch) == 0 {
		c.setErrorLocked(ErrNothingToUpload.Error())
		c.mu.Unlock()
		c.sink.Banner(notify.BannerWarning, ErrNothingToUpload.Error())
		return ErrNothingToUpload
	}

	c.drainInProgress = true
	c.drainStats = DrainStats{}
	c.drainProgress = 0
	c.mu.Unlock()

	total := len(batch)
	log.Infof("drain start: %d pending", total)

	for _, item := range batch {
		c.mu.Lock()
		done := c.drainStats.Success + c.drainStats.Failure
		c.drainProgress = float64(done) / float64(total)
		c.uploading = &item
		c.mu.Unlock()
		c.sink.DrainProgress(done, total)

		if _, err := c.uploader.Upload(context.Background(), c.jobFor(item)); err != nil {
			log.Errorf("drain upload %s: %v", item.Key, err)
			c.mu.Lock()
			c.drainStats.Failure++
			c.mu.Unlock()
			continue
		}
		if err := c.store.Remove(item); err != nil {
			log.Warnf("removing uploaded capture: %v", err)
		}
		c.mu.Lock()
		c.drainStats.Success++
		c.mu.Unlock()
	}

	c.mu.Lock()
	stats := c.drainStats
	c.drainProgress = 1
	c.drainInProgress = false
	c.uploading = nil
	c.mu.Unlock()

	c.sink.DrainProgress(total, total)
	c.emitDrainResult(stats, total)
	c.sink.PendingCount(c.store.Len())
	log.DrainResult(stats.Success, stats.Failure)
	return nil
}

func (c *Controller) emitDrainResult(stats DrainStats, total int) {
	switch {
	case stats.Failure == 0:
		c.sink.Banner(notify.BannerSuccess, fmt.Sprintf("uploaded %d captures", stats.Success))
	case stats.Success == 0:
		c.sink.Banner(notify.BannerError, fmt.Sprintf("all %d uploads failed", total))
	default:
		c.sink.Banner(notify.BannerWarning,
			fmt.Sprintf("uploaded %d of %d captures, %d failed", stats.Success, total, stats.Failure))
	}
}

// DeleteCapture removes one pending capture and its file.
func (c *Controller) DeleteCapture(key slot.Key) error {
	for _, item := range c.store.Snapshot() {
		if item.Key == key {
			if err := c.store.Remove(item); err != nil {
				return err
			}
			c.sink.PendingCount(c.store.Len())
			return nil
		}
	}
	return nil
}

// ClearError resets the last user-facing error.
func (c *Controller) ClearError() {
	c.mu.Lock()
	c.lastError = ""
	c.mu.Unlock()
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Phase:            c.phase,
		SessionStartedAt: c.sessionStartedAt,
		Elapsed:          c.elapsed,
		CurrentSlot:      c.currentSlot,
		Pending:          c.store.Snapshot(),
		DrainInProgress:  c.drainInProgress,
		DrainProgress:    c.drainProgress,
		DrainStats:       c.drainStats,
		LastError:        c.lastError,
	}
	if c.uploading != nil {
		u := *c.uploading
		st.Uploading = &u
	}
	return st
}

func (c *Controller) setPhaseLocked(p notify.Phase) {
	c.phase = p
	c.sink.Phase(p)
}

func (c *Controller) setErrorLocked(msg string) {
	c.lastError = msg
	log.Error(msg)
}

func (c *Controller) forwardLevels() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case v := <-c.engine.Levels():
			c.sink.Level(v)
		}
	}
}
