package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.bytecodealliance.org/wit"

	fibre "github.com/wippyai/fibre-go"
	"github.com/wippyai/fibre-go/config"
	"github.com/wippyai/fibre-go/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type entryKind int

const (
	entryFunction entryKind = iota
	entryProperty
	entryObject
)

type entry struct {
	fn     *runtime.Function
	name   string
	token  string
	params []paramInfo
	kind   entryKind
}

type paramInfo struct {
	witType wit.Type
	name    string
	typeStr string
}

type modelState int

const (
	stateSelect modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	ctx      context.Context
	err      error
	rt       *runtime.Runtime
	cfg      config.Config
	path     []string
	stack    []*fibre.Object
	entries  []entry
	inputs   []textinput.Model
	result   string
	selected int
	focusIdx int
	state    modelState
}

func newInteractiveModel(ctx context.Context, rt *runtime.Runtime, cfg config.Config) *interactiveModel {
	return &interactiveModel{ctx: ctx, rt: rt, cfg: cfg, state: stateSelect}
}

type loadedMsg struct {
	err     error
	obj     *fibre.Object
	name    string
	entries []entry
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return func() tea.Msg {
		obj, err := findDevice(m.ctx, m.rt, m.cfg)
		if err != nil {
			return loadedMsg{err: err}
		}
		return loadEntries(obj, obj.String())
	}
}

func (m *interactiveModel) current() *fibre.Object {
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1]
}

// loadEntries lists the public members of obj.
func loadEntries(obj *fibre.Object, name string) loadedMsg {
	names, err := obj.Members()
	if err != nil {
		return loadedMsg{err: err}
	}
	var entries []entry
	for _, n := range names {
		if strings.HasPrefix(n, "_") {
			continue
		}
		mem, err := obj.Member(n)
		if err != nil {
			return loadedMsg{err: err}
		}
		switch v := mem.(type) {
		case *runtime.Function:
			e := entry{name: n, kind: entryFunction, fn: v}
			for _, in := range v.Inputs() {
				t := witType(in.Token)
				e.params = append(e.params, paramInfo{name: in.Name, witType: t, typeStr: witTypeStr(t)})
			}
			entries = append(entries, e)
		case *runtime.Attribute:
			if !v.Readable() {
				entries = append(entries, entry{name: n, kind: entryObject, token: v.SubInterfaceName()})
				continue
			}
			token, err := propertyToken(obj, n)
			if err != nil {
				return loadedMsg{err: err}
			}
			entries = append(entries, entry{name: n, kind: entryProperty, token: token})
		}
	}
	return loadedMsg{obj: obj, name: name, entries: entries}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != stateInputArgs || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelect && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelect && m.selected < len(m.entries)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelect:
				return m, m.activate()
			case stateInputArgs:
				return m, m.callFunction
			case stateShowResult:
				m.state = stateSelect
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelect
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelect
				m.result = ""
				m.err = nil
			case stateSelect:
				if len(m.stack) > 1 {
					m.stack = m.stack[:len(m.stack)-1]
					m.path = m.path[:len(m.path)-1]
					obj := m.current()
					return m, func() tea.Msg { return loadEntries(obj, "") }
				}
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if msg.name != "" {
			m.stack = append(m.stack, msg.obj)
			m.path = append(m.path, msg.name)
		}
		m.entries = msg.entries
		m.selected = 0

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) activate() tea.Cmd {
	if len(m.entries) == 0 {
		return nil
	}
	e := m.entries[m.selected]
	obj := m.current()
	switch e.kind {
	case entryProperty:
		return func() tea.Msg {
			v, err := obj.Get(m.ctx, e.name)
			return callResultMsg{result: formatValue(v), err: err}
		}
	case entryObject:
		return func() tea.Msg {
			sub, err := obj.Attr(e.name)
			if err != nil {
				return callResultMsg{err: err}
			}
			return loadEntries(sub, e.name)
		}
	default:
		m.prepareInputs()
		if len(m.inputs) == 0 {
			return m.callFunction
		}
		m.state = stateInputArgs
		return nil
	}
}

func (m *interactiveModel) prepareInputs() {
	e := m.entries[m.selected]
	m.inputs = make([]textinput.Model, len(e.params))
	for i, p := range e.params {
		ti := textinput.New()
		ti.Placeholder = p.typeStr
		ti.Prompt = p.name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	e := m.entries[m.selected]
	args := make([]any, len(m.inputs))
	for i, input := range m.inputs {
		v, err := parseArg(input.Value(), e.params[i].witType)
		if err != nil {
			return callResultMsg{err: fmt.Errorf("%s: %w", e.params[i].name, err)}
		}
		args[i] = v
	}

	result, err := e.fn.Call(m.ctx, m.current(), args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatValue(result)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.stack) == 0 {
		return fmt.Sprintf("Searching %s...", m.cfg.Path)
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("fibre"))
	b.WriteString(" ")
	b.WriteString(strings.Join(m.path, "."))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelect:
		if len(m.entries) == 0 {
			b.WriteString("No members.\n")
		}
		for i, e := range m.entries {
			line := "  " + m.formatEntry(e)
			if i == m.selected {
				line = selectedStyle.Render("> " + m.formatEntry(e))
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter open/call • esc up • q quit"))

	case stateInputArgs:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(e.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(e.params[i].typeStr))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(e.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatEntry(e entry) string {
	switch e.kind {
	case entryProperty:
		return e.name + ": " + typeStyle.Render(witTypeStr(witType(e.token)))
	case entryObject:
		return e.name + "/ " + typeStyle.Render(e.token)
	}
	var params []string
	for _, p := range e.params {
		params = append(params, p.name+": "+typeStyle.Render(p.typeStr))
	}
	result := ""
	if outs := e.fn.Outputs(); len(outs) > 0 {
		var types []string
		for _, o := range outs {
			types = append(types, witTypeStr(witType(o.Token)))
		}
		result = " -> " + typeStyle.Render(strings.Join(types, ", "))
	}
	return funcStyle.Render(e.name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(ctx context.Context, rt *runtime.Runtime, cfg config.Config) error {
	p := tea.NewProgram(newInteractiveModel(ctx, rt, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
