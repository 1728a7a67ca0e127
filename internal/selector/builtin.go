package selector

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
)

const defaultListHeight = 20

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	cursorStyle = lipgloss.NewStyle().Reverse(true)
	markStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// BuiltinFilter is an in-process fuzzy finder drawn on the terminal. It keeps
// the table header pinned above the matching rows.
//
// Keys: typing edits the query, Up/Down/PgUp/PgDown move, Tab marks a line
// when several may be kept, Enter accepts, Esc or Ctrl-C cancels.
type BuiltinFilter struct {
	programOptions []tea.ProgramOption
}

// NewBuiltinFilter creates a BuiltinFilter. Extra program options are applied
// after the defaults, which draw on stderr and read keys from the terminal.
func NewBuiltinFilter(opts ...tea.ProgramOption) *BuiltinFilter {
	return &BuiltinFilter{programOptions: opts}
}

// Filter implements Filter.
func (f *BuiltinFilter) Filter(ctx context.Context, input string, opts Options) ([]string, error) {
	p := newPicker(input, opts.Multi)

	programOpts := append([]tea.ProgramOption{
		tea.WithContext(ctx),
		tea.WithOutput(os.Stderr),
		tea.WithInputTTY(),
		tea.WithAltScreen(),
	}, f.programOptions...)

	final, err := tea.NewProgram(p, programOpts...).Run()
	if err != nil {
		return nil, fmt.Errorf("running builtin filter: %w", err)
	}
	return final.(*picker).result(), nil
}

// picker is the Bubble Tea model behind BuiltinFilter.
type picker struct {
	pinned []string
	lines  []string

	query  textinput.Model
	list   *virtualList[int]
	marked map[int]bool
	multi  bool

	accepted bool
}

func newPicker(input string, multi bool) *picker {
	pinned, lines := splitTable(input)

	q := textinput.New()
	q.Prompt = "QUERY> "
	q.Focus()

	p := &picker{
		pinned: pinned,
		lines:  lines,
		query:  q,
		marked: map[int]bool{},
		multi:  multi,
	}
	p.list = newVirtualList(p.allIndexes(), defaultListHeight, p.renderLine)
	return p
}

// splitTable separates the top border, header row and header separator from
// the body rows. Border-only rows in the body are dropped.
func splitTable(input string) ([]string, []string) {
	all := strings.Split(strings.TrimRight(input, "\n"), "\n")

	i := 0
	if i < len(all) && isSeparator(parseLine(all[i])) {
		i++
	}
	if i < len(all) {
		i++
	}
	if i < len(all) && isSeparator(parseLine(all[i])) {
		i++
	}

	var body []string
	for _, l := range all[i:] {
		if strings.TrimSpace(l) == "" || isSeparator(parseLine(l)) {
			continue
		}
		body = append(body, l)
	}
	return all[:i], body
}

func (p *picker) Init() tea.Cmd {
	return textinput.Blink
}

//nolint:exhaustive // unhandled keys go to the query input.
func (p *picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.list.setHeight(msg.Height - len(p.pinned) - 1)
		return p, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			p.accepted = false
			return p, tea.Quit
		case tea.KeyEnter:
			p.accepted = true
			return p, tea.Quit
		case tea.KeyTab:
			if p.multi {
				if idx, ok := p.list.current(); ok {
					p.marked[idx] = !p.marked[idx]
				}
				p.list.move(1)
			}
			return p, nil
		}
		if p.list.handleKey(msg) {
			return p, nil
		}

		before := p.query.Value()
		var cmd tea.Cmd
		p.query, cmd = p.query.Update(msg)
		if p.query.Value() != before {
			p.refilter()
		}
		return p, cmd
	}

	var cmd tea.Cmd
	p.query, cmd = p.query.Update(msg)
	return p, cmd
}

func (p *picker) refilter() {
	q := p.query.Value()
	if q == "" {
		p.list.setItems(p.allIndexes())
		return
	}
	matches := fuzzy.Find(q, p.lines)
	idx := make([]int, len(matches))
	for i, m := range matches {
		idx[i] = m.Index
	}
	p.list.setItems(idx)
}

func (p *picker) allIndexes() []int {
	idx := make([]int, len(p.lines))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func (p *picker) renderLine(idx int, cursor bool) string {
	mark := "  "
	if p.marked[idx] {
		mark = markStyle.Render("* ")
	}
	line := p.lines[idx]
	if cursor {
		line = cursorStyle.Render(line)
	}
	return mark + line
}

func (p *picker) View() string {
	var b strings.Builder
	b.WriteString(p.query.View())
	b.WriteByte('\n')
	for _, l := range p.pinned {
		b.WriteString("  " + headerStyle.Render(l) + "\n")
	}
	b.WriteString(p.list.view())
	return b.String()
}

// result returns the marked lines in table order, or the line under the
// cursor when nothing is marked. A cancelled picker returns nothing.
func (p *picker) result() []string {
	if !p.accepted {
		return nil
	}
	if p.multi {
		var out []string
		for i, l := range p.lines {
			if p.marked[i] {
				out = append(out, l)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	if idx, ok := p.list.current(); ok {
		return []string{p.lines[idx]}
	}
	return nil
}
