package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pscheid92/pipelinepulse/internal/domain"
)

const initialText = "Waiting"

// Element is the in-memory counterpart of one stage row on the page.
type Element struct {
	ID      string
	Label   string
	Text    string
	State   ClassState
	Spinner bool
}

// Document is a Surface holding the stage board. It is not safe for
// concurrent use; the client mutates and renders it from one goroutine.
type Document struct {
	order    []string
	elements map[string]*Element
}

var stageLabels = map[domain.Stage]string{
	domain.StageCodePushed:    "Code pushed",
	domain.StageGitHubActions: "GitHub Actions",
	domain.StageDockerBuild:   "Docker build",
	domain.StageDeployment:    "Deployment",
}

// NewDocument returns the board with one element per pipeline stage.
func NewDocument() *Document {
	d := &Document{elements: make(map[string]*Element)}
	for _, stage := range domain.Stages() {
		id := string(stage)
		d.order = append(d.order, id)
		d.elements[id] = &Element{ID: id, Label: stageLabels[stage], Text: initialText}
	}
	return d
}

// Element returns a copy of the element with the given id.
func (d *Document) Element(id string) (Element, bool) {
	el, ok := d.elements[id]
	if !ok {
		return Element{}, false
	}
	return *el, true
}

func (d *Document) HasElement(key string) bool {
	_, ok := d.elements[key]
	return ok
}

func (d *Document) SetText(key, text string) {
	if el, ok := d.elements[key]; ok {
		el.Text = text
	}
}

func (d *Document) SetClassState(key string, state ClassState) {
	if el, ok := d.elements[key]; ok {
		el.State = state
	}
}

func (d *Document) SetSpinner(key string, shown bool) {
	if el, ok := d.elements[key]; ok {
		el.Spinner = shown
	}
}

// Complete reports whether every stage reached success.
func (d *Document) Complete() bool {
	for _, el := range d.elements {
		if el.State != ClassSuccess {
			return false
		}
	}
	return true
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	labelStyle      = lipgloss.NewStyle().Width(16).Bold(true)
	waitingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	processingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	successStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	boardStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// Render draws the board.
func (d *Document) Render(w io.Writer) error {
	rows := make([]string, 0, len(d.order))
	for _, id := range d.order {
		rows = append(rows, renderElement(d.elements[id]))
	}

	board := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Pipeline Pulse"),
		strings.Join(rows, "\n"),
	)
	if _, err := fmt.Fprintln(w, boardStyle.Render(board)); err != nil {
		return fmt.Errorf("render board: %w", err)
	}
	return nil
}

func renderElement(el *Element) string {
	style := waitingStyle
	switch el.State {
	case ClassProcessing:
		style = processingStyle
	case ClassSuccess:
		style = successStyle
	}

	status := style.Render(el.Text)
	if el.Spinner {
		status += " " + processingStyle.Render("◌")
	}
	return labelStyle.Render(el.Label) + status
}
