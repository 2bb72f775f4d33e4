package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

// tapdrum-display is a terminal stand-in for the LED panel: it shows the
// mode token pushed by tapdrumd and acts as the control knob.

const (
	maxKnob     = 4095
	knobStep    = 32
	sendDelta   = 20
	neutralKnob = 2048
)

// wire is the half of the websocket connection the model needs.
type wire interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
}

type tokenMsg string

type connErrMsg struct{ err error }

type model struct {
	conn     wire
	url      string
	mode     string
	knob     int
	lastSent int
	sent     int
	err      error
}

func newModel(conn wire, url string) model {
	return model{conn: conn, url: url, mode: "?", knob: neutralKnob, lastSent: neutralKnob}
}

func listen(conn wire) tea.Cmd {
	return func() tea.Msg {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return connErrMsg{err}
		}
		return tokenMsg(strings.TrimSpace(string(msg)))
	}
}

func (m model) Init() tea.Cmd { return listen(m.conn) }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "right", "k", "l":
			m.knob = min(m.knob+knobStep, maxKnob)
		case "down", "left", "j", "h":
			m.knob = max(m.knob-knobStep, 0)
		case "s":
			m.send("start")
			return m, nil
		case "x":
			m.send("stop")
			return m, nil
		default:
			return m, nil
		}
		// Small knob jitter stays local.
		if abs(m.knob-m.lastSent) >= sendDelta {
			m.send(strconv.Itoa(m.knob))
			m.lastSent = m.knob
		}

	case tokenMsg:
		m.mode = string(msg)
		return m, listen(m.conn)

	case connErrMsg:
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) send(payload string) {
	if err := m.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		m.err = err
		return
	}
	m.sent++
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	modeStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 2).
			Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230"))
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const barWidth = 40

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("tapdrum") + "  " + dimStyle.Render(m.url) + "\n\n")
	b.WriteString("mode  " + modeStyle.Render(m.mode) + "\n\n")

	filled := m.knob * barWidth / maxKnob
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(&b, "knob  %s %4d\n\n", bar, m.knob)

	if m.err != nil {
		b.WriteString(errStyle.Render("error: "+m.err.Error()) + "\n\n")
	}
	b.WriteString(dimStyle.Render("←/→ knob · s start · x stop · q quit") + "\n")
	return b.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func main() {
	url := flag.String("url", "ws://localhost:3002/ws", "tapdrumd display websocket URL")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: dial %s: %v\n", *url, err)
		os.Exit(1)
	}
	defer conn.Close()

	final, err := tea.NewProgram(newModel(conn, *url)).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if m, ok := final.(model); ok && m.err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", m.err)
		os.Exit(1)
	}
}
