// Package ui renders the detected note on a guitar neck in the terminal.
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/PieroV/guitarbiro/internal/guitar"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(2).
			PaddingRight(2).
			MarginBottom(1)

	noteStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFD75F"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	neckStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#875F00"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	dotStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5F5F"))
)

// inlayFrets are the fret numbers printed above the neck, the ones marked
// on a real guitar.
var inlayFrets = map[int]bool{3: true, 5: true, 7: true, 9: true, 12: true, 15: true, 17: true, 19: true, 21: true}

// NoteMsg updates the displayed note and its fretboard positions.
type NoteMsg struct {
	Note      guitar.Semitone
	Frets     []guitar.Semitone
	Frequency float64
}

// SilenceMsg clears the display.
type SilenceMsg struct{}

// Model is the Bubble Tea model of the fretboard view.
type Model struct {
	tuning   []guitar.Semitone
	numFrets int

	note  guitar.Semitone
	frets []guitar.Semitone
	freq  float64

	width  int
	height int
}

// NewModel creates the view for a guitar with the given tuning and fret
// count.
func NewModel(tuning []guitar.Semitone, numFrets int) Model {
	return Model{
		tuning:   tuning,
		numFrets: numFrets,
		note:     guitar.Invalid,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case NoteMsg:
		m.note = msg.Note
		m.frets = msg.Frets
		m.freq = msg.Frequency

	case SilenceMsg:
		m.note = guitar.Invalid
		m.frets = nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("GuitarBiro"))
	b.WriteString("\n")

	if m.note != guitar.Invalid {
		b.WriteString(noteStyle.Render(m.note.String()))
		b.WriteString(infoStyle.Render(fmt.Sprintf("  %.1f Hz", m.freq)))
	} else {
		b.WriteString(infoStyle.Render("Listening..."))
	}
	b.WriteString("\n\n")

	b.WriteString(m.renderNeck())

	b.WriteString("\n")
	b.WriteString(infoStyle.Render("Press q to quit"))

	return b.String()
}

// renderNeck draws one row per string: the open-string label, a marker when
// the note is played open, and a cell per fret with a dot on the playable
// position.
func (m Model) renderNeck() string {
	var b strings.Builder

	// Fret numbers above the neck, on the inlay frets only.
	b.WriteString(labelStyle.Render("      "))
	for f := 1; f <= m.numFrets; f++ {
		cell := "    "
		if inlayFrets[f] {
			cell = fmt.Sprintf("%3d ", f)
		}
		b.WriteString(labelStyle.Render(cell))
	}
	b.WriteString("\n")

	for i, open := range m.tuning {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%3s ", open.String())))

		openMark := " "
		if m.fretOf(i) == 0 {
			openMark = dotStyle.Render("o")
		}
		b.WriteString(openMark)
		b.WriteString(neckStyle.Render("║"))

		for f := 1; f <= m.numFrets; f++ {
			if m.fretOf(i) == f {
				b.WriteString(neckStyle.Render("─"))
				b.WriteString(dotStyle.Render("●"))
				b.WriteString(neckStyle.Render("─│"))
			} else {
				b.WriteString(neckStyle.Render("───│"))
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

// fretOf returns the highlighted fret of string i, or a negative value when
// nothing is highlighted there.
func (m Model) fretOf(i int) int {
	if m.frets == nil || i >= len(m.frets) {
		return int(guitar.Unplayable)
	}
	return int(m.frets[i])
}
