// Package hotkey delivers the global record-toggle chord
// (Ctrl+Shift+R): one press starts a recording, the next stops it.
package hotkey

type Hotkey interface {
	Register() error
	Unregister()
	Toggle() <-chan struct{}
}
