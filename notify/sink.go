// Package notify abstracts the display layer so the Bubble Tea TUI and
// the headless test driver receive the same session events.
package notify

import "time"

// Phase is the coarse session state shown in the status line.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseRecording
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreparing:
		return "preparing"
	case PhaseRecording:
		return "recording"
	}
	return "unknown"
}

// BannerKind selects the banner's visual treatment only; the text is
// already final.
type BannerKind int

const (
	BannerInfo BannerKind = iota
	BannerSuccess
	BannerWarning
	BannerError
)

func (k BannerKind) String() string {
	switch k {
	case BannerSuccess:
		return "success"
	case BannerWarning:
		return "warning"
	case BannerError:
		return "error"
	}
	return "info"
}

// Sink receives session events. Implementations must not block: events
// are emitted from the session's state goroutine.
type Sink interface {
	Phase(p Phase)
	Elapsed(d time.Duration)
	Level(v float64)
	PendingCount(n int)
	UploadProgress(fraction float64)
	DrainProgress(done, total int)
	Banner(kind BannerKind, text string)
	DeviceLine(text string)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Phase(Phase)               {}
func (Nop) Elapsed(time.Duration)     {}
func (Nop) Level(float64)             {}
func (Nop) PendingCount(int)          {}
func (Nop) UploadProgress(float64)    {}
func (Nop) DrainProgress(int, int)    {}
func (Nop) Banner(BannerKind, string) {}
func (Nop) DeviceLine(string)         {}
