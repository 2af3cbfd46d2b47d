package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"jot/clipboard"
	"jot/export"
	"jot/hotkey"
	"jot/session"
)

// actionMsg reports the outcome of a controller call made from a key.
type actionMsg struct {
	Status string
	Err    error
}
type tickMsg time.Time

const barWidth = 30

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	freeBadge   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("250")).Padding(0, 1)
	proBadge    = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")).Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	recStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	barFull     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	barEmpty    = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	editStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("236"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	lockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKey     = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	helpText    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

var noticeBox = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("208")).
	Padding(0, 1)

type tuiModel struct {
	ctx        context.Context
	app        *app
	copy       func(string) error
	deviceLine string
	tierLine   string
	pro        bool

	width, height int
	frame         int

	state    session.State
	progress session.Progress
	review   *session.Review
	text     string // transcript under review, edited copy once saved
	notice   *session.Notice
	status   string

	editing bool
	draft   []rune
}

func newTUIModel(ctx context.Context, a *app, deviceLine string) tuiModel {
	m := tuiModel{
		ctx:        ctx,
		app:        a,
		copy:       clipboard.Copy,
		deviceLine: deviceLine,
		state:      a.ctrl.State(),
	}
	m.refreshTier()
	return m
}

func (m *tuiModel) refreshTier() {
	p := m.app.ctrl.Profile()
	m.pro = p.Pro
	m.tierLine = tierLine(p, m.app.ctrl.Quota())
}

func tuiTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

// call runs a controller operation off the event loop. Operations that emit
// events must never run inside Update.
func (m tuiModel) call(f func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		status, err := f()
		return actionMsg{Status: status, Err: err}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditor(msg)
		}
		return m.updateKey(msg)

	case stateMsg:
		m.state = msg.State
		switch msg.State {
		case session.StateRequesting:
			m.review = nil
			m.text = ""
			m.status = ""
			m.progress = session.Progress{}
		case session.StateRecording:
			m.progress = session.Progress{Limit: m.app.ctrl.Snapshot().Limit}
		case session.StateIdle:
			m.review = nil
			m.text = ""
			m.editing = false
		}
		m.refreshTier()

	case progressMsg:
		m.progress = session.Progress(msg)

	case noticeMsg:
		n := session.Notice(msg)
		m.notice = &n

	case reviewMsg:
		r := session.Review(msg)
		m.review = &r
		m.text = r.Transcript.Text
		m.notice = nil

	case actionMsg:
		switch {
		case msg.Err == nil:
			m.status = msg.Status
		case errors.Is(msg.Err, session.ErrUpgradeRequired), errors.Is(msg.Err, session.ErrQuotaExceeded):
			// Already surfaced as a notice.
			m.status = ""
		default:
			m.status = "Error: " + msg.Err.Error()
		}
		m.refreshTier()
	}
	return m, nil
}

func (m tuiModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctrl := m.app.ctrl
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "r", " ":
		return m, m.call(func() (string, error) {
			return "", toggle(m.ctx, ctrl)
		})

	case "e":
		if m.state == session.StateReviewing {
			m.editing = true
			m.draft = []rune(m.text)
		}

	case "c":
		if m.state != session.StateReviewing {
			return m, nil
		}
		text, cp := ctrl.Snapshot().Text(), m.copy
		return m, m.call(func() (string, error) {
			if err := cp(text); err != nil {
				return "", fmt.Errorf("copy: %w", err)
			}
			return "Copied to clipboard", nil
		})

	case "d":
		return m, m.call(func() (string, error) {
			path, err := ctrl.Download(m.ctx)
			if err != nil {
				return "", err
			}
			return "Audio saved to " + path, nil
		})

	case "x":
		return m, m.call(func() (string, error) {
			art, err := ctrl.Export(m.ctx, nil)
			if err != nil {
				return "", err
			}
			return "Exported to " + art.Path, nil
		})

	case "t":
		if m.state == session.StateFailed {
			return m, m.call(func() (string, error) { return "", ctrl.Retry() })
		}

	case "u":
		a := m.app
		return m, m.call(func() (string, error) {
			if a.ctrl.RefreshTier().Pro {
				return "Pro plan active", nil
			}
			return "Free plan", nil
		})

	case "esc":
		if m.notice != nil {
			m.notice = nil
			return m, nil
		}
		if m.state == session.StateReviewing || m.state == session.StateFailed {
			return m, m.call(func() (string, error) { return "", ctrl.Dismiss() })
		}
	}
	return m, nil
}

func (m tuiModel) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.editing = false
		m.draft = nil
	case tea.KeyEnter:
		text := string(m.draft)
		m.editing = false
		m.draft = nil
		if err := m.app.ctrl.EditTranscript(text); err != nil {
			m.status = "Error: " + err.Error()
			return m, nil
		}
		m.text = text
		m.status = "Transcript updated"
	case tea.KeyBackspace:
		if len(m.draft) > 0 {
			m.draft = m.draft[:len(m.draft)-1]
		}
	case tea.KeySpace:
		m.draft = append(m.draft, ' ')
	case tea.KeyRunes:
		m.draft = append(m.draft, msg.Runes...)
	}
	return m, nil
}

func (m tuiModel) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	wrapWidth := max(width-2, 10)

	var b strings.Builder

	badge := freeBadge.Render("FREE")
	if m.pro {
		badge = proBadge.Render("PRO")
	}
	b.WriteString(titleStyle.Render("jot") + " " + badge + " " + dimStyle.Render(m.tierLine) + "\n")
	if m.deviceLine != "" {
		b.WriteString(dimStyle.Render(m.deviceLine) + "\n")
	}
	b.WriteString("\n")

	switch m.state {
	case session.StateIdle:
		b.WriteString(dimStyle.Render("○ ready") + "\n")
	case session.StateRequesting:
		b.WriteString(dimStyle.Render("… waiting for the microphone") + "\n")
	case session.StateRecording:
		dot := "●"
		if m.frame%2 == 1 {
			dot = " "
		}
		line := recStyle.Render(fmt.Sprintf("%s REC %s / %s", dot, clock(m.progress.Elapsed), clock(m.progress.Limit)))
		line += "  " + progressBar(m.progress, barWidth)
		line += "  " + dimStyle.Render(clock(m.progress.Remaining())+" left")
		b.WriteString(line + "\n")
	case session.StateTranscribing:
		b.WriteString(dimStyle.Render("… transcribing") + "\n")
	case session.StateReviewing:
		b.WriteString(m.viewReview(wrapWidth))
	case session.StateFailed:
		b.WriteString(recStyle.Render("✗ failed") + "\n")
	}

	if m.notice != nil {
		body := m.notice.Message
		if m.notice.UpgradeURL != "" {
			body += "\nUpgrade: " + m.notice.UpgradeURL
		}
		b.WriteString("\n" + noticeBox.Width(min(wrapWidth, 72)).Render(body) + "\n")
	}

	if m.status != "" {
		b.WriteString("\n" + okStyle.Render(m.status) + "\n")
	}

	b.WriteString("\n" + m.viewHelp() + "\n")
	return b.String()
}

func (m tuiModel) viewReview(wrapWidth int) string {
	var b strings.Builder
	if m.review != nil {
		t := m.review.Transcript
		meta := fmt.Sprintf("Transcript · %s · %s · %s",
			export.LanguageText(t.Language),
			export.ConfidenceText(t.Confidence, t.HasConfidence),
			export.DurationText(m.review.Duration))
		b.WriteString(dimStyle.Render(meta) + "\n\n")
	}

	if m.editing {
		for _, line := range wrapText(string(m.draft)+"▏", wrapWidth) {
			b.WriteString(editStyle.Render(line) + "\n")
		}
		return b.String()
	}

	text := m.text
	if strings.TrimSpace(text) == "" {
		b.WriteString(dimStyle.Render("(no speech detected)") + "\n")
		return b.String()
	}
	for _, line := range wrapText(text, wrapWidth) {
		b.WriteString(textStyle.Render(line) + "\n")
	}
	return b.String()
}

func (m tuiModel) viewHelp() string {
	item := func(key, label string, locked bool) string {
		if locked {
			return lockedStyle.Render("["+key+"] "+label+" (pro)")
		}
		return helpKey.Render("["+key+"]") + helpText.Render(" "+label)
	}

	var items []string
	switch {
	case m.editing:
		items = append(items, item("enter", "save", false), item("esc", "cancel", false))
	case m.state == session.StateRecording:
		items = append(items, item("r", "stop", false))
	case m.state == session.StateReviewing:
		items = append(items,
			item("r", "new", false),
			item("e", "edit", false),
			item("c", "copy", false),
			item("d", "download", !m.pro),
			item("x", "export", !m.pro),
			item("esc", "dismiss", false))
	case m.state == session.StateFailed:
		items = append(items, item("t", "retry", false), item("r", "new", false), item("esc", "dismiss", false))
	default:
		items = append(items, item("r", "record", false), item("u", "refresh plan", false))
	}
	if !m.editing {
		items = append(items, item("q", "quit", false))
	}
	return strings.Join(items, "  ") + "\n" + helpText.Render("global: "+hotkey.Combo+" with -hotkey · jot "+version)
}

// progressBar renders elapsed/limit as a fixed-width bar.
func progressBar(p session.Progress, width int) string {
	filled := int(p.Fraction() * float64(width))
	filled = min(max(filled, 0), width)
	return barFull.Render(strings.Repeat("█", filled)) + barEmpty.Render(strings.Repeat("░", width-filled))
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		runes := []rune(para)
		for len(runes) > width {
			// Break at the last space within width.
			splitAt := width
			for i := width; i > 0; i-- {
				if runes[i] == ' ' {
					splitAt = i
					break
				}
			}
			lines = append(lines, string(runes[:splitAt]))
			runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
		}
		lines = append(lines, string(runes))
	}
	return lines
}
