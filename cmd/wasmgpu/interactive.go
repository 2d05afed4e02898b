package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/LucentFlux/wasm-gpu/compiler"
	"github.com/LucentFlux/wasm-gpu/gateway"
	"github.com/LucentFlux/wasm-gpu/simulate"
)

// traceWindow is the number of dispatches shown at once.
const traceWindow = 12

type interactiveModel struct {
	err      error
	opts     options
	st       styles
	out      *compiler.Output
	result   string
	exports  []string
	inputs   []textinput.Model
	trace    []gateway.BlockID
	steps    int
	offset   int
	selected int
	focusIdx int
	state    modelState
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type loadedMsg struct {
	err error
	out *compiler.Output
}

type callResultMsg struct {
	err    error
	result string
	trace  []gateway.BlockID
	steps  int
}

func newInteractiveModel(o options) *interactiveModel {
	return &interactiveModel{
		opts:  o,
		st:    newStyles(os.Stdout),
		state: stateSelectFunc,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	_, out, err := compile(m.opts)
	return loadedMsg{err: err, out: out}
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
			switch m.state {
			case stateSelectFunc:
				if m.selected > 0 {
					m.selected--
				}
			case stateShowResult:
				if m.offset > 0 {
					m.offset--
				}
			}

		case "down", "j":
			switch m.state {
			case stateSelectFunc:
				if m.selected < len(m.exports)-1 {
					m.selected++
				}
			case stateShowResult:
				if m.offset+traceWindow < len(m.trace) {
					m.offset++
				}
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.exports) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.reset()
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
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.reset()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.out = msg.out
		m.exports = msg.out.EntryNames()

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.trace = msg.trace
		m.steps = msg.steps
		m.offset = 0
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

func (m *interactiveModel) reset() {
	m.state = stateSelectFunc
	m.result = ""
	m.err = nil
	m.trace = nil
}

func (m *interactiveModel) prepareInputs() {
	e := m.out.Entries[m.exports[m.selected]]
	m.inputs = make([]textinput.Model, len(e.Params))
	for i, p := range e.Params {
		ti := textinput.New()
		ti.Placeholder = p.String()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	name := m.exports[m.selected]
	e := m.out.Entries[name]
	raw := make([]string, len(m.inputs))
	for i, in := range m.inputs {
		raw[i] = in.Value()
	}
	args, err := parseArgs(strings.Join(raw, ","), e.Params)
	if err != nil {
		return callResultMsg{err: err}
	}

	var trace []gateway.BlockID
	exec, err := simulate.New(m.out, simulate.Config{
		Host:     m.opts.host(),
		MaxSteps: m.opts.maxSteps,
		OnDispatch: func(_ uint32, id gateway.BlockID, _ gateway.Stack) {
			trace = append(trace, id)
		},
	})
	if err != nil {
		return callResultMsg{err: err}
	}
	vals, err := exec.Run(context.Background(), 0, name, args)
	if err != nil {
		return callResultMsg{err: err, trace: trace, steps: len(trace)}
	}
	return callResultMsg{result: formatValues(vals), trace: trace, steps: len(trace)}
}

func (m *interactiveModel) View() string {
	st := m.st
	if m.err != nil && m.state != stateShowResult {
		return st.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.out == nil {
		return "Compiling module..."
	}

	var b strings.Builder
	b.WriteString(st.title.Render("WASM GPU"))
	b.WriteString(" ")
	b.WriteString(m.opts.wasmFile)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.exports) == 0 {
			b.WriteString("The module exports no functions.\n\n")
			b.WriteString(st.help.Render("q quit"))
			break
		}
		b.WriteString("Select an export to run:\n\n")
		for i, name := range m.exports {
			line := st.entry(m.out.Entries[name])
			if i == m.selected {
				b.WriteString(st.sel.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(st.help.Render("↑/↓ select • enter run • q quit"))

	case stateInputArgs:
		e := m.out.Entries[m.exports[m.selected]]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", st.fn.Render(e.Export)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(st.typ.Render(e.Params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(st.help.Render("tab next field • enter run • esc back"))

	case stateShowResult:
		name := m.exports[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", st.fn.Render(name)))
		if m.err != nil {
			b.WriteString(st.err.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(st.result.Render(m.result))
		}
		b.WriteString(fmt.Sprintf("\n\n%d dispatches\n", m.steps))
		m.writeTrace(&b)
		b.WriteString("\n")
		b.WriteString(st.help.Render("↑/↓ scroll trace • enter continue • q quit"))
	}
	return b.String()
}

func (m *interactiveModel) writeTrace(b *strings.Builder) {
	end := min(m.offset+traceWindow, len(m.trace))
	for i := m.offset; i < end; i++ {
		id := m.trace[i]
		desc := ""
		if blk, ok := m.out.Blocks[id]; ok {
			desc = fmt.Sprintf("func %d block %d (%s)", blk.Func, blk.Index, blk.Term)
			if blk.Exit {
				desc = fmt.Sprintf("func %d exit", blk.Func)
			}
		}
		fmt.Fprintf(b, "  %5d  %-10s %s\n", i, id, m.st.help.Render(desc))
	}
}

func runInteractive(o options) error {
	p := tea.NewProgram(newInteractiveModel(o), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
