package tui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"slices"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"

	"github.com/taskerco/complaintdesk/internal/app"
	"github.com/taskerco/complaintdesk/internal/domain"
	"github.com/taskerco/complaintdesk/internal/formdef"
)

// Session is the editing surface the model drives.
type Session interface {
	Status() app.SessionStatus
	SetField(name, raw string) error
	Undo() bool
	Redo() bool
	Save(ctx context.Context) (app.SaveOutcome, error)
	ToggleAutoSave() bool
	Replay(ctx context.Context) (app.ReplayReport, error)
	LatestNotice() (app.Notice, bool)
}

// defaultTickEvery refreshes the status line countdown.
const defaultTickEvery = time.Second

// inputMode identifies the active interaction mode.
type inputMode int

const (
	modeNone inputMode = iota
	modeEdit
	modePreview
)

// Model is the Bubble Tea model for the complaint editor.
type Model struct {
	session   Session
	def       formdef.Definition
	keys      keyMap
	help      help.Model
	input     textinput.Model
	preview   *previewRenderer
	copyText  func(string) error
	tickEvery time.Duration

	mode     inputMode
	section  int
	selected int

	snapshot  app.SessionStatus
	inputErr  string
	status    string
	notice    app.Notice
	hasNotice bool
	busy      bool

	width  int
	height int
}

// tickMsg refreshes the status snapshot.
type tickMsg time.Time

// saveDoneMsg carries the result of one background save.
type saveDoneMsg struct {
	outcome app.SaveOutcome
	err     error
}

// replayDoneMsg carries the result of one queue replay.
type replayDoneMsg struct {
	report app.ReplayReport
	err    error
}

// NewModel constructs the editor over session.
func NewModel(session Session, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		session:   session,
		def:       formdef.Default(),
		keys:      newKeyMap(DefaultKeyConfig()),
		help:      h,
		input:     newFieldInput("", "", 0),
		copyText:  clipboard.WriteAll,
		tickEvery: defaultTickEvery,
		preview:   newPreviewRenderer(defaultPreviewStyle),
		status:    "ready",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	m.snapshot = session.Status()
	return m
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.tickEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.refresh()
		return m, m.tick()

	case saveDoneMsg:
		m.busy = false
		m.refresh()
		switch {
		case msg.err != nil:
			m.status = "save failed: " + msg.err.Error()
		case msg.outcome == app.SaveQueued:
			m.status = "queued for sync"
		default:
			m.status = "saved"
		}
		return m, nil

	case replayDoneMsg:
		m.busy = false
		m.refresh()
		if msg.err != nil {
			m.status = "sync failed: " + msg.err.Error()
			return m, nil
		}
		m.status = fmt.Sprintf("synced %d of %d queued changes", msg.report.Succeeded, msg.report.Attempted)
		return m, nil

	case tea.KeyPressMsg:
		switch m.mode {
		case modeEdit:
			return m.handleEditKey(msg)
		case modePreview:
			return m.handlePreviewKey(msg)
		default:
			return m.handleNormalModeKey(msg)
		}

	default:
		if m.mode == modeEdit {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}
}

// handleNormalModeKey handles keys while browsing fields.
func (m Model) handleNormalModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case msg.String() == "esc":
		m.help.ShowAll = false
		m.status = "ready"
		return m, nil
	case key.Matches(msg, m.keys.moveUp):
		m.selected = clamp(m.selected-1, 0, len(m.sectionFields())-1)
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.selected = clamp(m.selected+1, 0, len(m.sectionFields())-1)
		return m, nil
	case key.Matches(msg, m.keys.nextSection):
		m.section = wrapIndex(m.section, 1, len(m.def.Sections))
		m.selected = 0
		return m, nil
	case key.Matches(msg, m.keys.prevSection):
		m.section = wrapIndex(m.section, -1, len(m.def.Sections))
		m.selected = 0
		return m, nil
	case key.Matches(msg, m.keys.editField):
		return m.startEdit()
	case key.Matches(msg, m.keys.cycleOption):
		return m.cycleSelectOption()
	case key.Matches(msg, m.keys.preview):
		field, ok := m.selectedField()
		if !ok || !field.Markdown {
			m.status = "preview is only available for markdown fields"
			return m, nil
		}
		m.mode = modePreview
		return m, nil
	case key.Matches(msg, m.keys.undo):
		if m.session.Undo() {
			m.status = "undo"
		} else {
			m.status = "nothing to undo"
		}
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.redo):
		if m.session.Redo() {
			m.status = "redo"
		} else {
			m.status = "nothing to redo"
		}
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.save):
		if m.busy {
			m.status = "save already running"
			return m, nil
		}
		m.busy = true
		m.status = "saving..."
		return m, m.saveCmd()
	case key.Matches(msg, m.keys.toggleAutoSave):
		if m.session.ToggleAutoSave() {
			m.status = "auto-save on"
		} else {
			m.status = "auto-save off"
		}
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.replay):
		if m.busy {
			m.status = "sync already running"
			return m, nil
		}
		m.busy = true
		m.status = "syncing queued changes..."
		return m, m.replayCmd()
	case key.Matches(msg, m.keys.copyField):
		return m.copySelectedField()
	default:
		return m, nil
	}
}

// handleEditKey handles keys while a field input is focused.
func (m Model) handleEditKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNone
		m.inputErr = ""
		m.input.Blur()
		m.status = "edit cancelled"
		return m, nil
	case "enter":
		field, ok := m.selectedField()
		if !ok {
			m.mode = modeNone
			return m, nil
		}
		if err := m.session.SetField(field.Name, m.input.Value()); err != nil {
			m.inputErr = describeFieldError(err)
			return m, nil
		}
		m.mode = modeNone
		m.inputErr = ""
		m.input.Blur()
		m.status = field.DisplayLabel() + " updated"
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handlePreviewKey closes the markdown preview.
func (m Model) handlePreviewKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "esc", key.Matches(msg, m.keys.preview):
		m.mode = modeNone
		return m, nil
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	}
	return m, nil
}

// startEdit focuses the input on the selected field.
func (m Model) startEdit() (tea.Model, tea.Cmd) {
	field, ok := m.selectedField()
	if !ok {
		return m, nil
	}
	value, err := m.snapshot.Record.FieldValue(field.Name)
	if err != nil {
		m.status = err.Error()
		return m, nil
	}
	placeholder := field.Placeholder
	if placeholder == "" && field.Kind == formdef.KindSelect {
		placeholder = strings.Join(field.Options, " | ")
	}
	m.input = newFieldInput(field.DisplayLabel()+": ", placeholder, 0)
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.inputErr = ""
	m.mode = modeEdit
	return m, m.input.Focus()
}

// cycleSelectOption advances a select field to its next option.
func (m Model) cycleSelectOption() (tea.Model, tea.Cmd) {
	field, ok := m.selectedField()
	if !ok || field.Kind != formdef.KindSelect || len(field.Options) == 0 {
		m.status = "not a select field"
		return m, nil
	}
	current, _ := m.snapshot.Record.FieldValue(field.Name)
	idx := slices.Index(field.Options, current)
	next := field.Options[wrapIndex(idx, 1, len(field.Options))]
	if err := m.session.SetField(field.Name, next); err != nil {
		m.status = describeFieldError(err)
		return m, nil
	}
	m.status = fmt.Sprintf("%s: %s", field.DisplayLabel(), next)
	m.refresh()
	return m, nil
}

// copySelectedField writes the selected value to the clipboard.
func (m Model) copySelectedField() (tea.Model, tea.Cmd) {
	field, ok := m.selectedField()
	if !ok {
		return m, nil
	}
	value, _ := m.snapshot.Record.FieldValue(field.Name)
	if strings.TrimSpace(value) == "" {
		m.status = field.DisplayLabel() + " is empty"
		return m, nil
	}
	if err := m.copyText(value); err != nil {
		m.status = "copy failed: " + err.Error()
		return m, nil
	}
	m.status = "copied " + field.DisplayLabel()
	return m, nil
}

func (m Model) saveCmd() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		outcome, err := session.Save(context.Background())
		return saveDoneMsg{outcome: outcome, err: err}
	}
}

func (m Model) replayCmd() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		report, err := session.Replay(context.Background())
		return replayDoneMsg{report: report, err: err}
	}
}

// refresh pulls the current session status and latest notice.
func (m *Model) refresh() {
	m.snapshot = m.session.Status()
	if notice, ok := m.session.LatestNotice(); ok {
		m.notice = notice
		m.hasNotice = true
	}
	m.selected = clamp(m.selected, 0, len(m.sectionFields())-1)
}

func (m Model) sectionFields() []formdef.Field {
	if len(m.def.Sections) == 0 {
		return nil
	}
	return m.def.Sections[clamp(m.section, 0, len(m.def.Sections)-1)].Fields
}

func (m Model) selectedField() (formdef.Field, bool) {
	fields := m.sectionFields()
	if len(fields) == 0 {
		return formdef.Field{}, false
	}
	return fields[clamp(m.selected, 0, len(fields)-1)], true
}

// View handles view.
func (m Model) View() tea.View {
	view := tea.NewView(m.render())
	view.AltScreen = true
	return view
}

// render builds the full screen content, help footer included.
func (m Model) render() string {
	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	danger := lipgloss.Color("203")
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(dim)

	sections := []string{titleStyle.Render(m.title()), m.renderTabs(accent, muted)}
	if m.mode == modePreview {
		sections = append(sections, "", m.renderPreview())
	} else {
		sections = append(sections, "", m.renderFields(accent, muted, danger))
	}
	if m.mode == modeEdit {
		editLine := m.input.View()
		if m.inputErr != "" {
			editLine += "\n" + lipgloss.NewStyle().Foreground(danger).Render(m.inputErr)
		}
		sections = append(sections, "", lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1).
			Render(editLine))
	}

	sections = append(sections, "", m.renderStatusLine(accent, muted, danger))
	if m.hasNotice {
		sections = append(sections, statusStyle.Render(m.notice.Message))
	}
	if strings.TrimSpace(m.status) != "" && m.status != "ready" {
		sections = append(sections, statusStyle.Render(m.status))
	}
	content := strings.Join(sections, "\n")

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}

	return content + "\n" + helpLine
}

func (m Model) title() string {
	record := m.snapshot.Record
	title := strings.TrimSpace(m.def.Title)
	if title == "" {
		title = "Complaint"
	}
	switch {
	case record.ComplaintNumber != "":
		return fmt.Sprintf("%s %s", title, record.ComplaintNumber)
	case record.ID != "":
		return fmt.Sprintf("%s #%s", title, record.ID)
	default:
		return "New " + strings.ToLower(title)
	}
}

func (m Model) renderTabs(accent, muted color.Color) string {
	tabs := make([]string, 0, len(m.def.Sections))
	for idx, section := range m.def.Sections {
		label := section.Label
		if strings.TrimSpace(label) == "" {
			label = section.Name
		}
		style := lipgloss.NewStyle().Padding(0, 1).Foreground(muted)
		if idx == m.section {
			style = style.Bold(true).Foreground(accent).Underline(true)
		}
		tabs = append(tabs, style.Render(label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderFields(accent, muted, danger color.Color) string {
	fields := m.sectionFields()
	labelWidth := 0
	for _, field := range fields {
		labelWidth = max(labelWidth, lipgloss.Width(field.DisplayLabel())+2)
	}
	lines := make([]string, 0, len(fields)*2)
	for idx, field := range fields {
		label := field.DisplayLabel()
		if field.Required {
			label += " *"
		}
		value, _ := m.snapshot.Record.FieldValue(field.Name)
		if field.Kind == formdef.KindTextarea {
			value = firstLine(value)
		}
		if value == "" {
			value = lipgloss.NewStyle().Foreground(muted).Render("-")
		}
		cursor := "  "
		labelStyle := lipgloss.NewStyle().Width(labelWidth).Foreground(muted)
		if idx == m.selected {
			cursor = lipgloss.NewStyle().Foreground(accent).Render("> ")
			labelStyle = labelStyle.Foreground(accent).Bold(true)
		}
		lines = append(lines, cursor+labelStyle.Render(label)+" "+value)
		if message, ok := m.snapshot.Errors[field.Name]; ok {
			lines = append(lines, "    "+lipgloss.NewStyle().Foreground(danger).Render(message))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderPreview() string {
	field, ok := m.selectedField()
	if !ok {
		return ""
	}
	value, _ := m.snapshot.Record.FieldValue(field.Name)
	rendered := m.preview.render(value, m.width-4)
	if rendered == "" {
		rendered = "(empty)"
	}
	return field.DisplayLabel() + "\n\n" + rendered
}

// renderStatusLine colors the sync status by severity.
func (m Model) renderStatusLine(accent, muted, danger color.Color) string {
	style := lipgloss.NewStyle().Foreground(muted)
	switch {
	case !m.snapshot.Online:
		style = style.Foreground(danger).Bold(true)
	case m.snapshot.HasUnsavedChanges || m.snapshot.PendingCount > 0:
		style = style.Foreground(accent)
	}
	text := m.snapshot.Text
	if text == "" {
		text = app.StatusText(m.snapshot)
	}
	autosave := "auto-save off"
	if m.snapshot.AutoSaveEnabled {
		autosave = "auto-save on"
	}
	return style.Render(text) + lipgloss.NewStyle().Foreground(muted).Render(" • "+autosave)
}

// describeFieldError trims wrapped sentinel prefixes for inline display.
func describeFieldError(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownField):
		return "unknown field"
	case errors.Is(err, app.ErrSessionClosed):
		return "session closed"
	}
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 && idx+2 < len(msg) {
		return msg[idx+2:]
	}
	return msg
}

func newFieldInput(prompt, placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	in.Placeholder = placeholder
	in.CharLimit = limit
	return in
}

func firstLine(value string) string {
	line, rest, found := strings.Cut(value, "\n")
	if found && strings.TrimSpace(rest) != "" {
		return line + " …"
	}
	return line
}

func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func wrapIndex(current, delta, total int) int {
	if total <= 0 {
		return 0
	}
	next := (current + delta) % total
	if next < 0 {
		next += total
	}
	return next
}

// fitLines pads or truncates content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}
