package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/apexion-ai/iad/internal/session"
)

// ---------- messages sent from the session goroutine via program.Send() ----------

type readInputMsg struct{}

type inputResult struct {
	text string
	err  error
}

type userMsg struct{ text string }
type thinkingStartMsg struct{ label string }
type thinkingDoneMsg struct{}
type stepMsg struct {
	index int
	step  session.Step
}
type reportMsg struct{ text string }
type systemMsg struct{ text string }
type errorMsg struct{ text string }
type budgetMsg struct{ used, soft, hard int }
type loopDoneMsg struct{ err error }

// TUIConfig carries version/provider info for the welcome page and status bar.
type TUIConfig struct {
	Version     string
	Provider    string
	Model       string
	SessionID   string
	ShowWelcome bool
}

// ---------- styles ----------

var (
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	dotRunningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	// Steps
	stepHeadingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("63")).
				Bold(true)

	restatementStyle = lipgloss.NewStyle().
				Italic(true).
				PaddingLeft(2)

	optionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	optionSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("220")).
				Bold(true)

	degradedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	// Status bar
	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	statusBarBgStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235"))

	statusModelStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("2")).
				Bold(true)

	statusWarnStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("214")).
			Bold(true)

	statusBlockedStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("196")).
				Bold(true)

	// Welcome box
	welcomeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("8")).
				Padding(0, 1)

	welcomeTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("2")).
				Bold(true)

	welcomeLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("8"))

	welcomeValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	welcomeHintStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))
)

var thinkingSpinner = spinner.Spinner{
	Frames: []string{"·", "✢", "✳", "✶", "✻", "✽", "✻", "✶", "✳", "✢"},
	FPS:    120 * time.Millisecond,
}

// maxPreviewLines bounds the wrapped preview shown above a long input line.
const maxPreviewLines = 6

// ---------- Model ----------

// Model is the bubbletea model managing the full TUI state.
type Model struct {
	textinput textinput.Model
	spinner   spinner.Model
	width     int
	height    int

	inputMode     bool
	thinking      bool
	thinkingLabel string
	thinkingSince time.Time

	inputCh        chan inputResult
	noiseDropCount int
	quitting       bool

	used, soft, hard int

	slashItems []SlashMenuItem
	slashSel   int

	cancelLoopFn func() bool

	cfg TUIConfig

	mdRenderer      *glamour.TermRenderer
	mdRendererWidth int
}

// NewModel creates the initial bubbletea model.
func NewModel(inputCh chan inputResult, cfg TUIConfig) Model {
	ti := textinput.New()
	ti.Prompt = "❯ "
	ti.Placeholder = "describe a problem, or /help"
	ti.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = thinkingSpinner
	sp.Style = spinnerStyle

	return Model{
		textinput: ti,
		spinner:   sp,
		inputCh:   inputCh,
		cfg:       cfg,
	}
}

func (m Model) Init() tea.Cmd {
	if m.cfg.ShowWelcome {
		return tea.Println(renderWelcome(m.cfg))
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textinput.Width = m.width - 4

	case spinner.TickMsg:
		if m.thinking {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		s := msg.String()
		if isTerminalNoiseKey(s) {
			m.noiseDropCount = 4
			return m, nil
		}
		if m.noiseDropCount > 0 && len(s) <= 2 {
			m.noiseDropCount--
			return m, nil
		}
		switch s {
		case "ctrl+c":
			if m.inputMode {
				m.inputCh <- inputResult{err: fmt.Errorf("interrupted")}
				m.inputMode = false
				m.textinput.Blur()
			}
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if m.inputMode {
				text := strings.TrimSpace(m.textinput.Value())
				if len(m.slashItems) > 0 && !strings.Contains(text, " ") {
					text = m.slashItems[m.slashSel].Name
				}
				m.textinput.SetValue("")
				m.slashItems = nil
				m.inputCh <- inputResult{text: text}
				m.inputMode = false
				m.textinput.Blur()
			}
			return m, nil
		case "tab":
			if m.inputMode && len(m.slashItems) > 0 {
				m.textinput.SetValue(m.slashItems[m.slashSel].Name + " ")
				m.textinput.CursorEnd()
				m.slashItems = nil
			}
			return m, nil
		case "up":
			if len(m.slashItems) > 0 && m.slashSel > 0 {
				m.slashSel--
			}
			return m, nil
		case "down":
			if len(m.slashItems) > 0 && m.slashSel < len(m.slashItems)-1 {
				m.slashSel++
			}
			return m, nil
		case "esc":
			if len(m.slashItems) > 0 {
				m.slashItems = nil
				return m, nil
			}
			if m.thinking && m.cancelLoopFn != nil {
				if m.cancelLoopFn() {
					cmds = append(cmds, tea.Println(systemStyle.Render("  [cancelled]")))
				}
				return m, tea.Batch(cmds...)
			}
			if m.inputMode {
				m.noiseDropCount = 4
			}
			return m, nil
		}

		if m.inputMode {
			if isControlKeyMsg(s) {
				return m, nil
			}
			var cmd tea.Cmd
			m.textinput, cmd = m.textinput.Update(msg)
			cmds = append(cmds, cmd)
			m.updateSlashMenu()
		}

	// ---------- custom messages from the session goroutine ----------

	case readInputMsg:
		m.inputMode = true
		m.textinput.Focus()

	case userMsg:
		cmds = append(cmds, tea.Println(userStyle.Render("You: "+msg.text)))

	case thinkingStartMsg:
		m.thinking = true
		m.thinkingLabel = msg.label
		m.thinkingSince = time.Now()
		cmds = append(cmds, m.spinner.Tick)

	case thinkingDoneMsg:
		m.thinking = false
		m.thinkingLabel = ""

	case stepMsg:
		cmds = append(cmds, tea.Println(renderStep(msg.index, msg.step)))

	case reportMsg:
		cmds = append(cmds, tea.Println(m.renderMarkdown(msg.text)))

	case systemMsg:
		cmds = append(cmds, tea.Println(systemStyle.Render(msg.text)))

	case errorMsg:
		cmds = append(cmds, tea.Println(errorStyle.Render("Error: "+msg.text)))

	case budgetMsg:
		m.used, m.soft, m.hard = msg.used, msg.soft, msg.hard

	case loopDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

// updateSlashMenu refreshes the autocomplete list from the current input.
func (m *Model) updateSlashMenu() {
	v := m.textinput.Value()
	if !strings.HasPrefix(v, "/") || strings.Contains(v, " ") {
		m.slashItems = nil
		return
	}
	m.slashItems = filterSlashItems(BuiltinSlashCommands(), v)
	if m.slashSel >= len(m.slashItems) {
		m.slashSel = 0
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var parts []string
	if m.thinking {
		elapsed := int(time.Since(m.thinkingSince).Seconds())
		parts = append(parts, dotRunningStyle.Render(m.spinner.View())+
			hintStyle.Render(fmt.Sprintf(" Generating %s… %ds · esc to cancel", m.thinkingLabel, elapsed)))
	}
	if len(m.slashItems) > 0 {
		parts = append(parts, renderSlashMenu(m.slashItems, m.slashSel, m.width))
	}

	if m.inputMode {
		if preview := renderWrappedInputPreview(m.textinput.Value(), m.textinput.Width, maxPreviewLines); preview != "" {
			parts = append(parts, preview)
		}
		parts = append(parts, m.textinput.View())
	} else {
		parts = append(parts, systemStyle.Render("❯"))
	}

	parts = append(parts, m.renderStatusBar())
	return strings.Join(parts, "\n")
}

// ---------- step rendering ----------

// renderStep renders a step for scrollback. The chosen options are bold.
func renderStep(index int, st session.Step) string {
	var lines []string
	lines = append(lines, stepHeadingStyle.Render(StepHeading(index)))
	if st.Degraded {
		lines = append(lines, restatementStyle.Inherit(degradedStyle).Render("“"+st.Restatement+"”"))
		lines = append(lines, hintStyle.Render("  "+RetryHint(index)))
		return strings.Join(lines, "\n")
	}
	lines = append(lines, restatementStyle.Render("“"+st.Restatement+"”"))
	for i, opt := range st.Options {
		text := fmt.Sprintf("  %d. %s", i+1, opt.Text)
		if opt.Selected {
			lines = append(lines, optionSelectedStyle.Render("▸"+text[1:]))
		} else {
			lines = append(lines, optionStyle.Render(text))
		}
	}
	return strings.Join(lines, "\n")
}

// renderStatusBar renders the bottom separator + model/budget bar.
func (m *Model) renderStatusBar() string {
	modelName := m.cfg.Model
	if modelName == "" {
		modelName = "unknown"
	}
	status := statusModelStyle.Render(" "+modelName) +
		statusBarStyle.Render(fmt.Sprintf(" │ tokens: %d/%d", m.used, m.hard))
	switch {
	case m.hard > 0 && m.used >= m.hard:
		status += statusBlockedStyle.Render(" │ hard limit: /reset")
	case m.soft > 0 && m.used >= m.soft:
		status += statusWarnStyle.Render(" │ soft limit: /report only")
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	return separatorStyle.Width(width).Render(strings.Repeat("─", width)) + "\n" +
		statusBarBgStyle.Width(width).Render(status)
}

// ---------- markdown rendering ----------

func (m *Model) getMarkdownRenderer() *glamour.TermRenderer {
	width := m.width
	if width <= 0 {
		width = 80
	}
	wrapWidth := width - 4
	if m.mdRenderer != nil && m.mdRendererWidth == wrapWidth {
		return m.mdRenderer
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return nil
	}
	m.mdRenderer = r
	m.mdRendererWidth = wrapWidth
	return r
}

func (m *Model) renderMarkdown(text string) string {
	r := m.getMarkdownRenderer()
	if r == nil {
		return text
	}
	rendered, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

// ---------- welcome page ----------

func renderWelcome(cfg TUIConfig) string {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	lines := []string{
		welcomeLabelStyle.Render("Provider: ") + welcomeValueStyle.Render(cfg.Provider),
		welcomeLabelStyle.Render("Model:    ") + welcomeValueStyle.Render(cfg.Model),
		welcomeLabelStyle.Render("Session:  ") + welcomeValueStyle.Render(cfg.SessionID),
		"",
		welcomeHintStyle.Render("Describe a problem to begin. /help lists commands."),
		welcomeHintStyle.Render("/pick 2 follows option 2, /report writes the summary."),
	}
	title := welcomeTitleStyle.Render(fmt.Sprintf("iad %s", version))
	return title + "\n" + welcomeBorderStyle.Render(strings.Join(lines, "\n"))
}

// ---------- input wrapping ----------

// wrapByDisplayWidth splits s into lines no wider than width terminal cells.
func wrapByDisplayWidth(s string, width int) []string {
	if width <= 0 {
		return []string{s}
	}
	var (
		lines []string
		cur   strings.Builder
		w     int
	)
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if w+rw > width && w > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
			w = 0
		}
		cur.WriteRune(r)
		w += rw
	}
	if cur.Len() > 0 || len(lines) == 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// renderWrappedInputPreview shows the tail of an input too long for one
// line. Returns "" when the input fits.
func renderWrappedInputPreview(text string, width, maxLines int) string {
	lines := wrapByDisplayWidth(text, width)
	if len(lines) <= 1 {
		return ""
	}
	if maxLines < 2 {
		maxLines = 2
	}
	if len(lines) > maxLines {
		keep := maxLines - 1
		hidden := len(lines) - keep
		lines = append([]string{fmt.Sprintf("… +%d lines", hidden)}, lines[len(lines)-keep:]...)
	}
	return hintStyle.Render(strings.Join(lines, "\n"))
}

// ---------- key event helpers ----------

func isTerminalNoiseKey(s string) bool {
	if strings.Contains(s, ";rgb:") || strings.HasPrefix(s, "]") || strings.HasPrefix(s, "alt+]") {
		return true
	}
	if (strings.HasSuffix(s, "M") || strings.HasSuffix(s, "m")) && strings.Contains(s, ";") {
		return true
	}
	if strings.HasPrefix(s, "[<") || strings.HasPrefix(s, "alt+[<") {
		return true
	}
	if strings.HasPrefix(s, "[?") || strings.HasPrefix(s, "alt+[?") {
		return true
	}
	if len(s) > 1 && s[0] == '[' && s[1] >= '0' && s[1] <= '9' {
		return true
	}
	return false
}

func isControlKeyMsg(s string) bool {
	for _, r := range s {
		if r == '\x1b' || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			return true
		}
	}
	return false
}
