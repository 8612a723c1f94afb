// Package slot maps wall-clock time onto the day/slot naming scheme the
// ingestion pipeline is built around: every recording belongs to one
// 30-minute bucket of one calendar day, and at most one file exists per
// bucket.
package slot

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// Duration of one slot. The capture layout and the rollover timer both
	// derive from this.
	Duration = 30 * time.Minute

	// Ext is the file extension of every capture; the upload contract is
	// audio/wav, so this is fixed.
	Ext = ".wav"
)

var dayRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Key identifies one capture: a calendar day (YYYY-MM-DD) plus a slot name
// (HH-MM, minutes either 00 or 30). Both are rendered in the device's
// timezone, not the host's.
type Key struct {
	Day  string
	Slot string
}

func (k Key) String() string { return k.Day + "/" + k.Slot }

// Path returns the capture file path relative to the capture root.
func (k Key) Path() string { return filepath.Join(k.Day, k.Slot+Ext) }

// At returns the key for t in the given timezone. Minutes 0-29 fold to 00,
// 30-59 to 30.
func At(t time.Time, tz *time.Location) Key {
	t = t.In(tz)
	m := 0
	if t.Minute() >= 30 {
		m = 30
	}
	return Key{
		Day:  t.Format("2006-01-02"),
		Slot: fmt.Sprintf("%02d-%02d", t.Hour(), m),
	}
}

// UntilNext returns the time remaining until the next slot boundary after t.
func UntilNext(t time.Time, tz *time.Location) time.Duration {
	t = t.In(tz)
	elapsed := time.Duration(t.Minute()%30)*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return Duration - elapsed
}

// IsDay reports whether name looks like a day directory (YYYY-MM-DD).
func IsDay(name string) bool { return dayRe.MatchString(name) }

// Parse recovers a key from a day directory name and a capture file name.
// It errors on anything that does not match the layout, so stray files in
// the capture root are skipped rather than uploaded.
func Parse(day, file string) (Key, error) {
	if !IsDay(day) {
		return Key{}, fmt.Errorf("slot: %q is not a day directory", day)
	}
	name, ok := strings.CutSuffix(file, Ext)
	if !ok {
		return Key{}, fmt.Errorf("slot: %q is not a capture file", file)
	}
	var h, m int
	if _, err := fmt.Sscanf(name, "%2d-%2d", &h, &m); err != nil ||
		len(name) != 5 || h > 23 || (m != 0 && m != 30) {
		return Key{}, fmt.Errorf("slot: invalid slot name %q", name)
	}
	return Key{Day: day, Slot: name}, nil
}
