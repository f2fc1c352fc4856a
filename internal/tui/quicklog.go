// Package tui implements the terminal quick-log form: pick a record type,
// fill a handful of fields, hit enter. Meant for one-handed 3am logging over
// ssh when the web UI is too much.
package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"nestling/internal/types"
)

// Recorder persists a finished record, setting its ID on the passed pointer
// and returning it. *store.Store satisfies this.
type Recorder interface {
	AddRecord(rec *types.Record) (string, error)
}

type step int

const (
	stepPick step = iota
	stepForm
	stepDone
)

// fieldSpec describes one form input for a record type.
type fieldSpec struct {
	key         string
	prompt      string
	placeholder string
	required    bool
}

// formFields lists the inputs shown for each loggable type. Snapshots need
// an image file and go through the HTTP API instead.
var formFields = map[types.RecordType][]fieldSpec{
	types.RecordFeeding: {
		{key: "method", prompt: "Method", placeholder: "breast/bottle/formula", required: true},
		{key: "amount_ml", prompt: "Amount (ml)", placeholder: "120"},
		{key: "duration_min", prompt: "Duration (min)", placeholder: "15"},
		{key: "when", prompt: "When", placeholder: "now, 14:30, or 2026-02-10 14:30"},
		{key: "note", prompt: "Note", placeholder: ""},
	},
	types.RecordDiaper: {
		{key: "kind", prompt: "Kind", placeholder: "wet/dirty/mixed", required: true},
		{key: "when", prompt: "When", placeholder: "now"},
		{key: "note", prompt: "Note", placeholder: ""},
	},
	types.RecordSleep: {
		{key: "when", prompt: "Fell asleep", placeholder: "now, 13:30"},
		{key: "ended", prompt: "Woke up", placeholder: "blank if still asleep"},
		{key: "note", prompt: "Note", placeholder: ""},
	},
	types.RecordSolid: {
		{key: "food", prompt: "Food", placeholder: "banana", required: true},
		{key: "amount", prompt: "Amount", placeholder: "2 spoons"},
		{key: "reaction", prompt: "Reaction", placeholder: "liked/neutral/disliked/allergic"},
		{key: "when", prompt: "When", placeholder: "now"},
		{key: "note", prompt: "Note", placeholder: ""},
	},
	types.RecordMeasurement: {
		{key: "height_cm", prompt: "Height (cm)", placeholder: "56"},
		{key: "weight_kg", prompt: "Weight (kg)", placeholder: "4.8"},
		{key: "head_cm", prompt: "Head (cm)", placeholder: "38"},
		{key: "when", prompt: "When", placeholder: "now"},
		{key: "note", prompt: "Note", placeholder: ""},
	},
}

// pickable is the type picker order.
var pickable = []types.RecordType{
	types.RecordFeeding,
	types.RecordDiaper,
	types.RecordSleep,
	types.RecordSolid,
	types.RecordMeasurement,
}

type styles struct {
	title    lipgloss.Style
	selected lipgloss.Style
	dim      lipgloss.Style
	errText  lipgloss.Style
	okText   lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		dim:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		errText:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		okText:   lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
	}
}

// Model is the quick-log bubbletea model.
type Model struct {
	recorder Recorder
	babyID   string
	babyName string
	now      func() time.Time

	step    step
	cursor  int
	recType types.RecordType
	specs   []fieldSpec
	inputs  []textinput.Model
	focus   int

	saved   *types.Record
	errMsg  string
	styles  styles
	aborted bool
}

// NewModel builds the quick-log form for one baby.
func NewModel(rec Recorder, babyID, babyName string) Model {
	return Model{
		recorder: rec,
		babyID:   babyID,
		babyName: babyName,
		now:      time.Now,
		step:     stepPick,
		styles:   defaultStyles(),
	}
}

// Aborted reports whether the user quit without saving.
func (m Model) Aborted() bool { return m.aborted }

// Saved returns the last record written, or nil.
func (m Model) Saved() *types.Record { return m.saved }

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m.updateInputs(msg)
	}

	switch m.step {
	case stepPick:
		return m.updatePick(key)
	case stepForm:
		return m.updateForm(key)
	default:
		return m.updateDone(key)
	}
}

func (m Model) updatePick(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.aborted = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(pickable)-1 {
			m.cursor++
		}
	case "enter":
		return m.enterForm(pickable[m.cursor])
	default:
		// 1-5 jump straight into a form
		if n, err := strconv.Atoi(key.String()); err == nil && n >= 1 && n <= len(pickable) {
			return m.enterForm(pickable[n-1])
		}
	}
	return m, nil
}

func (m Model) enterForm(t types.RecordType) (tea.Model, tea.Cmd) {
	m.recType = t
	m.specs = formFields[t]
	m.inputs = make([]textinput.Model, len(m.specs))
	for i, spec := range m.specs {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = spec.placeholder
		ti.CharLimit = 120
		ti.Width = 32
		m.inputs[i] = ti
	}
	m.focus = 0
	m.inputs[0].Focus()
	m.step = stepForm
	m.errMsg = ""
	return m, textinput.Blink
}

func (m Model) updateForm(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		m.aborted = true
		return m, tea.Quit
	case "esc":
		m.step = stepPick
		m.errMsg = ""
		return m, nil
	case "tab", "down":
		return m.moveFocus(1)
	case "shift+tab", "up":
		return m.moveFocus(-1)
	case "enter":
		if m.focus < len(m.inputs)-1 {
			return m.moveFocus(1)
		}
		return m.submit()
	}
	return m.updateInputs(key)
}

func (m Model) moveFocus(delta int) (tea.Model, tea.Cmd) {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + len(m.inputs)) % len(m.inputs)
	return m, m.inputs[m.focus].Focus()
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.step != stepForm {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	rec, err := m.buildRecord()
	if err != nil {
		m.errMsg = err.Error()
		return m, nil
	}
	if _, err := m.recorder.AddRecord(rec); err != nil {
		m.errMsg = err.Error()
		return m, nil
	}
	m.saved = rec
	m.step = stepDone
	m.errMsg = ""
	return m, nil
}

func (m Model) updateDone(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "l", "enter":
		m.step = stepPick
		m.cursor = 0
		return m, nil
	default:
		return m, tea.Quit
	}
}

// buildRecord converts the form values into a validated record.
func (m Model) buildRecord() (*types.Record, error) {
	rec := &types.Record{
		BabyID:     m.babyID,
		Type:       m.recType,
		HappenedAt: m.now().UTC(),
	}

	for i, spec := range m.specs {
		val := strings.TrimSpace(m.inputs[i].Value())
		if val == "" {
			if spec.required {
				return nil, fmt.Errorf("%s is required", spec.prompt)
			}
			continue
		}
		if err := applyField(rec, spec.key, val, m.now()); err != nil {
			return nil, err
		}
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func applyField(rec *types.Record, key, val string, now time.Time) error {
	switch key {
	case "method":
		rec.Method = strings.ToLower(val)
	case "kind":
		rec.Kind = strings.ToLower(val)
	case "food":
		rec.Food = val
	case "amount":
		rec.Amount = val
	case "reaction":
		rec.Reaction = strings.ToLower(val)
	case "note":
		rec.Note = val
	case "when":
		t, err := parseWhen(val, now)
		if err != nil {
			return err
		}
		rec.HappenedAt = t
	case "ended":
		t, err := parseWhen(val, now)
		if err != nil {
			return err
		}
		rec.EndedAt = &t
	case "amount_ml", "duration_min", "height_cm", "weight_kg", "head_cm":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%s: not a number: %q", key, val)
		}
		switch key {
		case "amount_ml":
			rec.AmountML = f
		case "duration_min":
			rec.DurationMin = f
		case "height_cm":
			rec.HeightCM = f
		case "weight_kg":
			rec.WeightKG = f
		case "head_cm":
			rec.HeadCM = f
		}
	}
	return nil
}

// parseWhen accepts "now", "15:04" (today) or "2006-01-02 15:04", in local
// time, and returns UTC.
func parseWhen(val string, now time.Time) (time.Time, error) {
	val = strings.TrimSpace(strings.ToLower(val))
	if val == "" || val == "now" {
		return now.UTC(), nil
	}
	if t, err := time.ParseInLocation("15:04", val, now.Location()); err == nil {
		y, mo, d := now.Date()
		return time.Date(y, mo, d, t.Hour(), t.Minute(), 0, 0, now.Location()).UTC(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", val, now.Location()); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q (want now, 15:04 or 2006-01-02 15:04)", val)
}

func (m Model) View() string {
	switch m.step {
	case stepPick:
		return m.viewPick()
	case stepForm:
		return m.viewForm()
	default:
		return m.viewDone()
	}
}

func (m Model) viewPick() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render(fmt.Sprintf("Log for %s", m.babyName)))
	b.WriteString("\n\n")
	for i, t := range pickable {
		line := fmt.Sprintf("  %d. %s", i+1, t)
		if i == m.cursor {
			line = m.styles.selected.Render("> " + line[2:])
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + m.styles.dim.Render("j/k move · enter select · q quit") + "\n")
	return b.String()
}

func (m Model) viewForm() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render(fmt.Sprintf("%s · %s", m.babyName, m.recType)))
	b.WriteString("\n\n")
	for i, spec := range m.specs {
		label := fmt.Sprintf("%-16s", spec.prompt)
		if i == m.focus {
			label = m.styles.selected.Render(label)
		}
		b.WriteString("  " + label + m.inputs[i].View() + "\n")
	}
	if m.errMsg != "" {
		b.WriteString("\n  " + m.styles.errText.Render(m.errMsg) + "\n")
	}
	b.WriteString("\n" + m.styles.dim.Render("tab next · enter on last field saves · esc back") + "\n")
	return b.String()
}

func (m Model) viewDone() string {
	var b strings.Builder
	b.WriteString(m.styles.okText.Render(fmt.Sprintf("Saved %s record for %s.", m.saved.Type, m.babyName)))
	b.WriteString("\n\n" + m.styles.dim.Render("l log another · any other key quits") + "\n")
	return b.String()
}
