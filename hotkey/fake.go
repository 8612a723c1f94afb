package hotkey

type FakeHotkey struct {
	toggle chan struct{}
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{
		toggle: make(chan struct{}, 1),
	}
}

func (f *FakeHotkey) Register() error          { return nil }
func (f *FakeHotkey) Unregister()              {}
func (f *FakeHotkey) Toggle() <-chan struct{}  { return f.toggle }

func (f *FakeHotkey) SimToggle() { f.toggle <- struct{}{} }
