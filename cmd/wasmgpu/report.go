package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/LucentFlux/wasm-gpu/compiler"
	"github.com/LucentFlux/wasm-gpu/gateway"
)

type styles struct {
	title  lipgloss.Style
	fn     lipgloss.Style
	typ    lipgloss.Style
	result lipgloss.Style
	err    lipgloss.Style
	help   lipgloss.Style
	sel    lipgloss.Style
}

// newStyles colours output only when f is a terminal.
func newStyles(f *os.File) styles {
	if !term.IsTerminal(int(f.Fd())) {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain, plain}
	}
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		fn:     lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		typ:    lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		result: lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90")),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		help:   lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		sel: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")),
	}
}

func (st styles) entry(e *compiler.Entry) string {
	params := make([]string, len(e.Params))
	for i, p := range e.Params {
		params[i] = st.typ.Render(p.String())
	}
	results := make([]string, len(e.Results))
	for i, r := range e.Results {
		results[i] = st.typ.Render(r.String())
	}
	kind := "direct"
	if e.Machine {
		kind = "machine, exit " + e.Exit.String()
	}
	s := st.fn.Render(e.Export) + "(" + strings.Join(params, ", ") + ")"
	if len(results) > 0 {
		s += " -> " + strings.Join(results, ", ")
	}
	return s + "  [" + kind + "]"
}

// writeReport prints the recursion groups, the function order, the block
// table and the host functions.
func writeReport(w io.Writer, out *compiler.Output, st styles) {
	p, a := out.Program, out.Analysis
	name := func(fn uint32) string {
		if n := p.Func(fn).Name; n != "" {
			return n
		}
		return fmt.Sprintf("func%d", fn)
	}

	fmt.Fprintln(w, st.title.Render("Recursion groups"))
	if len(a.Groups) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, g := range a.Groups {
		names := make([]string, len(g.Members))
		for i, m := range g.Members {
			names[i] = name(m)
		}
		fmt.Fprintf(w, "  #%d: %s\n", g.ID, strings.Join(names, ", "))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, st.title.Render("Call order"))
	for _, fn := range a.Order {
		var tags []string
		if a.DirectSafe(fn) {
			tags = append(tags, "direct")
		}
		if a.NeedsMachine(fn) {
			tags = append(tags, "machine")
		}
		if a.HostYields(fn) {
			tags = append(tags, "yields")
		}
		fmt.Fprintf(w, "  %3d %s %s\n", a.Rank(fn), st.fn.Render(name(fn)), st.help.Render(strings.Join(tags, " ")))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, st.title.Render("Blocks"))
	ids := make([]gateway.BlockID, 0, len(out.Blocks))
	for id := range out.Blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		b := out.Blocks[id]
		where := fmt.Sprintf("%s.%d", name(b.Func), b.Index)
		if b.Exit {
			where = name(b.Func) + ".exit"
		}
		fmt.Fprintf(w, "  %-10s %-20s %-8s %2d words %v\n", id, where, b.Term, b.FrameWords, b.Payload)
	}

	if len(out.Hosts.Funcs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.title.Render("Host functions"))
		for _, h := range out.Hosts.Funcs {
			fmt.Fprintf(w, "  %-10s %-8s %s %v -> %v\n", h.ID, h.Kind, st.fn.Render(h.Name), h.Params, h.Results)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "stack %d words, io %d words, globals %d words per lane\n",
		out.Config.StackWords, out.IOWords, out.GlobalWords)
}
