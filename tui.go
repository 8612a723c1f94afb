package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kiku/notify"
)

// TUI message types
type PhaseMsg struct{ Phase notify.Phase }
type ElapsedMsg struct{ Elapsed time.Duration }
type LevelMsg struct{ Level float64 }
type PendingMsg struct{ Count int }
type UploadProgressMsg struct{ Fraction float64 }
type DrainProgressMsg struct{ Done, Total int }
type BannerMsg struct {
	Kind notify.BannerKind
	Text string
}
type DeviceLineMsg struct{ Text string }
type tickMsg time.Time

// uiAction is a key-driven command handed back to the session loop.
type uiAction int

const (
	actionToggle uiAction = iota
	actionDrain
)

const bannerTTL = 6 * time.Second

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

var (
	styleRec      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	stylePrep     = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleIdle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleDim      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleHelpBold = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	styleMeterLo  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleMeterMid = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleMeterHi  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleBarFill  = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))

	bannerStyles = map[notify.BannerKind]lipgloss.Style{
		notify.BannerInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		notify.BannerSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		notify.BannerWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		notify.BannerError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)

type tuiModel struct {
	phase      notify.Phase
	elapsed    time.Duration
	level      float64
	peak       float64
	pending    int
	uploadFrac float64 // <0 when no auto-upload in flight
	drainDone  int
	drainTotal int
	draining   bool
	bannerKind notify.BannerKind
	bannerText string
	bannerAt   time.Time

	device        string
	width, height int
	frame         int

	actions chan<- uiAction
}

func NewTUIProgram(actions chan<- uiAction) *tea.Program {
	m := tuiModel{uploadFrac: -1, actions: actions}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) sendAction(a uiAction) {
	if m.actions == nil {
		return
	}
	select {
	case m.actions <- a:
	default:
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r", " ":
			m.sendAction(actionToggle)
		case "u":
			m.sendAction(actionDrain)
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case PhaseMsg:
		m.phase = msg.Phase
		if msg.Phase == notify.PhaseRecording {
			m.elapsed = 0
			m.level = 0
			m.peak = 0
		} else {
			m.level = 0
		}

	case ElapsedMsg:
		m.elapsed = msg.Elapsed

	case LevelMsg:
		if m.phase == notify.PhaseRecording {
			m.level = m.level*0.6 + msg.Level*0.4
			if msg.Level > m.peak {
				m.peak = msg.Level
			}
		}

	case PendingMsg:
		m.pending = msg.Count

	case UploadProgressMsg:
		m.uploadFrac = msg.Fraction
		if msg.Fraction >= 1 {
			m.uploadFrac = -1
		}

	case DrainProgressMsg:
		m.drainDone = msg.Done
		m.drainTotal = msg.Total
		m.draining = msg.Done < msg.Total

	case BannerMsg:
		m.bannerKind = msg.Kind
		m.bannerText = msg.Text
		m.bannerAt = time.Now()

	case DeviceLineMsg:
		m.device = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string
	lines = append(lines, styleHelpBold.Render("kiku ")+styleHelp.Render(version))
	lines = append(lines, "")

	switch m.phase {
	case notify.PhaseRecording:
		lines = append(lines, styleRec.Render(fmt.Sprintf("● REC %s", fmtElapsed(m.elapsed))))
		lines = append(lines, renderMeter(m.level, 30))
		// Silent-input warning after the first second
		if m.elapsed > time.Second && m.peak < 0.02 {
			lines = append(lines, styleMeterMid.Render("  ⚠ no audio detected"))
		}
	case notify.PhasePreparing:
		lines = append(lines, stylePrep.Render("◌ PREPARING"))
		lines = append(lines, renderMeter(0, 30))
	default:
		lines = append(lines, styleIdle.Render("○ STANDBY"))
		lines = append(lines, renderMeter(0, 30))
	}
	lines = append(lines, "")

	if m.device != "" {
		lines = append(lines, styleDim.Render("mic: "+m.device))
	}

	switch {
	case m.draining:
		lines = append(lines, styleBarFill.Render(
			fmt.Sprintf("uploading %d/%d %s", m.drainDone, m.drainTotal, renderBar(m.drainDone, m.drainTotal, 20))))
	case m.uploadFrac >= 0:
		lines = append(lines, styleBarFill.Render(
			fmt.Sprintf("uploading %s", renderBar(int(m.uploadFrac*100), 100, 20))))
	case m.pending > 0:
		lines = append(lines, styleDim.Render(fmt.Sprintf("%d pending capture(s), press u to upload", m.pending)))
	default:
		lines = append(lines, styleDim.Render("no pending captures"))
	}

	if m.bannerText != "" && time.Since(m.bannerAt) < bannerTTL {
		lines = append(lines, "")
		lines = append(lines, bannerStyles[m.bannerKind].Render(m.bannerText))
	}

	lines = append(lines, "")
	lines = append(lines, styleHelpBold.Render("Ctrl+Shift+R")+styleHelp.Render(" or r to record · u upload · q quit"))

	body := strings.Join(lines, "\n")
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Padding(1, 2).
		Render(body)
}

func fmtElapsed(d time.Duration) string {
	s := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// renderMeter draws the live input level as a colored bar.
func renderMeter(level float64, width int) string {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(level * float64(width))
	var b strings.Builder
	for i := 0; i < width; i++ {
		if i >= filled {
			b.WriteString(styleDim.Render("·"))
			continue
		}
		frac := float64(i) / float64(width)
		switch {
		case frac > 0.8:
			b.WriteString(styleMeterHi.Render("█"))
		case frac > 0.5:
			b.WriteString(styleMeterMid.Render("█"))
		default:
			b.WriteString(styleMeterLo.Render("█"))
		}
	}
	return b.String()
}

func renderBar(done, total, width int) string {
	if total <= 0 {
		return ""
	}
	filled := done * width / total
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

// tuiSink bridges session events into Bubble Tea messages. Program.Send
// never blocks, which keeps the sink contract.
type tuiSink struct{}

func (tuiSink) Phase(p notify.Phase)          { tuiSend(PhaseMsg{Phase: p}) }
func (tuiSink) Elapsed(d time.Duration)       { tuiSend(ElapsedMsg{Elapsed: d}) }
func (tuiSink) Level(v float64)               { tuiSend(LevelMsg{Level: v}) }
func (tuiSink) PendingCount(n int)            { tuiSend(PendingMsg{Count: n}) }
func (tuiSink) UploadProgress(f float64)      { tuiSend(UploadProgressMsg{Fraction: f}) }
func (tuiSink) DrainProgress(done, total int) { tuiSend(DrainProgressMsg{Done: done, Total: total}) }
func (tuiSink) Banner(k notify.BannerKind, text string) {
	tuiSend(BannerMsg{Kind: k, Text: text})
}
func (tuiSink) DeviceLine(text string) { tuiSend(DeviceLineMsg{Text: text}) }
