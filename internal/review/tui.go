package review

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mailgroom/internal/gmail"
	"mailgroom/internal/model"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	proposedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	existingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	cardStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

type uiState int

const (
	stateDeciding uiState = iota
	stateLabelInput
	stateDone
)

// Model is the bubbletea front-end over a review Session.
type Model struct {
	session   *Session
	labelName func(id string) (string, bool)

	state      uiState
	input      textinput.Model
	archive    bool
	archiveSet bool
	errMsg     string
	aborted    bool
}

// NewModel builds the review UI. labelName resolves label ids for the
// existing-filter comparison pane; it may be nil.
func NewModel(session *Session, labelName func(id string) (string, bool)) *Model {
	ti := textinput.New()
	ti.Placeholder = "AutoManaged/..."
	ti.CharLimit = 120
	return &Model{session: session, labelName: labelName, input: ti}
}

// Aborted reports whether the user quit before emptying the queue.
func (m *Model) Aborted() bool { return m.aborted }

func (m *Model) Init() tea.Cmd {
	if _, ok := m.session.Current(); !ok {
		m.state = stateDone
		return tea.Quit
	}
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if key.String() == "ctrl+c" {
		m.aborted = true
		return m, tea.Quit
	}

	switch m.state {
	case stateLabelInput:
		switch key.String() {
		case "enter":
			label := strings.TrimSpace(m.input.Value())
			if label != "" {
				m.decide(model.ActionAccept, label)
			}
			m.state = stateDeciding
			m.input.Reset()
			m.input.Blur()
			return m, nil
		case "esc":
			m.state = stateDeciding
			m.input.Reset()
			m.input.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case stateDeciding:
		return m.handleDecisionKey(key)
	}
	return m, nil
}

func (m *Model) handleDecisionKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	c, ok := m.session.Current()
	if !ok {
		m.state = stateDone
		return m, tea.Quit
	}
	m.errMsg = ""

	switch key.String() {
	case "q":
		m.aborted = true
		return m, tea.Quit
	case "a":
		if c.Existing != nil {
			m.decide(model.ActionUpdateExisting, c.SuggestedLabel)
		} else {
			m.decide(model.ActionAccept, c.SuggestedLabel)
		}
	case "r":
		m.decide(model.ActionReject, "")
	case "s":
		m.decide(model.ActionSkip, "")
	case "d":
		m.decide(model.ActionDefer, "")
	case "e":
		m.decide(model.ActionExclude, "")
	case "k":
		if c.Existing != nil {
			m.decide(model.ActionKeepExisting, "")
		}
	case "x":
		if c.Existing != nil {
			m.decide(model.ActionDeleteExisting, "")
		}
	case "t":
		m.archive = !m.effectiveArchive(c)
		m.archiveSet = true
	case "l":
		m.state = stateLabelInput
		m.input.SetValue(c.SuggestedLabel)
		m.input.Focus()
		return m, textinput.Blink
	case "z":
		if err := m.session.Undo(); err != nil {
			m.errMsg = err.Error()
		}
		m.archiveSet = false
	case "K":
		if err := m.session.KeepAllExisting(); err != nil {
			m.errMsg = err.Error()
		}
	}

	if _, ok := m.session.Current(); !ok {
		m.state = stateDone
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) effectiveArchive(c *model.Cluster) bool {
	if m.archiveSet {
		return m.archive
	}
	return c.ShouldArchive
}

func (m *Model) decide(action model.DecisionAction, label string) {
	c, ok := m.session.Current()
	if !ok {
		return
	}
	if err := m.session.Decide(action, label, m.effectiveArchive(c)); err != nil {
		m.errMsg = err.Error()
		return
	}
	m.archiveSet = false
}

func (m *Model) View() string {
	if m.state == stateDone {
		return "Review complete.\n"
	}
	c, ok := m.session.Current()
	if !ok {
		return "Review complete.\n"
	}

	pos, total := m.session.Position()
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Cluster %d/%d", pos, total)))
	b.WriteString("\n\n")

	var card strings.Builder
	card.WriteString(headerStyle.Render(describePredicate(c)))
	card.WriteString("\n")
	card.WriteString(dimStyle.Render(fmt.Sprintf("%d messages · %s · confidence %.2f", c.Count(), c.Category, c.Confidence)))
	card.WriteString("\n\n")
	for _, subject := range c.SampleSubjects {
		card.WriteString("  " + truncate(subject, 76) + "\n")
	}
	card.WriteString("\n")
	card.WriteString(proposedStyle.Render(fmt.Sprintf("proposed: %s  archive: %v", c.SuggestedLabel, m.effectiveArchive(c))))

	if c.Existing != nil {
		existingLabel := c.Existing.Rule.TargetLabelID
		if m.labelName != nil {
			if name, ok := m.labelName(existingLabel); ok {
				existingLabel = name
			}
		}
		card.WriteString("\n")
		card.WriteString(existingStyle.Render(fmt.Sprintf("existing: %s  archive: %v  (%s)",
			existingLabel, c.Existing.Rule.ShouldArchive, gmail.BuildQuery(c.Existing.Rule))))
	}

	b.WriteString(cardStyle.Render(card.String()))
	b.WriteString("\n\n")

	if m.state == stateLabelInput {
		b.WriteString("Custom label:\n")
		b.WriteString(m.input.View())
		b.WriteString("\n" + dimStyle.Render("enter to accept · esc to cancel"))
		return b.String()
	}

	if m.errMsg != "" {
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteString("\n")
	}

	keys := "a accept · r reject · s skip · d defer · e exclude · l label · t archive · z undo · q quit"
	if c.Existing != nil {
		keys = "a update · k keep · x delete · " + keys[len("a accept · "):]
		keys += " · K keep all existing"
	}
	b.WriteString(dimStyle.Render(keys))
	b.WriteString("\n")
	return b.String()
}

func describePredicate(c *model.Cluster) string {
	switch c.Tier {
	case model.TierSubjectSender:
		return fmt.Sprintf("from:(%s) subject:(%s)", c.SenderEmail, c.SubjectPattern)
	case model.TierSender:
		return fmt.Sprintf("from:(%s)", c.SenderEmail)
	default:
		parts := []string{fmt.Sprintf("from:(*@%s)", c.SenderDomain)}
		for _, excluded := range c.ExcludedSenders {
			parts = append(parts, "-from:("+excluded+")")
		}
		return strings.Join(parts, " ")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return s[:max-1] + "…"
}

// Run drives the TUI to completion. It returns whether the user finished
// the queue (false when they quit early).
func Run(session *Session, labelName func(id string) (string, bool)) (bool, error) {
	m := NewModel(session, labelName)
	p := tea.NewProgram(m)
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	fm, ok := final.(*Model)
	if !ok {
		return false, fmt.Errorf("unexpected model type %T", final)
	}
	return !fm.Aborted(), nil
}
