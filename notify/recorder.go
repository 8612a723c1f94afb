package notify

import (
	"sync"
	"time"
)

// BannerEvent is one recorded Banner call.
type BannerEvent struct {
	Kind BannerKind
	Text string
}

// ProgressEvent is one recorded UploadProgress or DrainProgress call.
type ProgressEvent struct {
	Fraction    float64
	Done, Total int
}

// Recorder captures events for assertions in tests.
type Recorder struct {
	mu       sync.Mutex
	phases   []Phase
	banners  []BannerEvent
	uploads  []float64
	drains   []ProgressEvent
	pending  []int
	elapsed  []time.Duration
	levels   []float64
	devLines []string
}

func (r *Recorder) Phase(p Phase) {
	r.mu.Lock()
	r.phases = append(r.phases, p)
	r.mu.Unlock()
}

func (r *Recorder) Elapsed(d time.Duration) {
	r.mu.Lock()
	r.elapsed = append(r.elapsed, d)
	r.mu.Unlock()
}

func (r *Recorder) Level(v float64) {
	r.mu.Lock()
	r.levels = append(r.levels, v)
	r.mu.Unlock()
}

func (r *Recorder) PendingCount(n int) {
	r.mu.Lock()
	r.pending = append(r.pending, n)
	r.mu.Unlock()
}

func (r *Recorder) UploadProgress(fraction float64) {
	r.mu.Lock()
	r.uploads = append(r.uploads, fraction)
	r.mu.Unlock()
}

func (r *Recorder) DrainProgress(done, total int) {
	r.mu.Lock()
	r.drains = append(r.drains, ProgressEvent{Done: done, Total: total})
	r.mu.Unlock()
}

func (r *Recorder) Banner(kind BannerKind, text string) {
	r.mu.Lock()
	r.banners = append(r.banners, BannerEvent{Kind: kind, Text: text})
	r.mu.Unlock()
}

func (r *Recorder) DeviceLine(text string) {
	r.mu.Lock()
	r.devLines = append(r.devLines, text)
	r.mu.Unlock()
}

func (r *Recorder) Phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Phase(nil), r.phases...)
}

func (r *Recorder) Banners() []BannerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BannerEvent(nil), r.banners...)
}

func (r *Recorder) Uploads() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.uploads...)
}

func (r *Recorder) Drains() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressEvent(nil), r.drains...)
}

func (r *Recorder) PendingCounts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.pending...)
}

func (r *Recorder) ElapsedTicks() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.elapsed...)
}
