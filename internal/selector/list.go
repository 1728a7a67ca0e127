package selector

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// renderFunc draws one item; cursor reports whether it is under the cursor.
type renderFunc[T any] func(item T, cursor bool) string

// virtualList keeps a cursor over items and renders only the rows that fit in
// the viewport, so very long inventories stay responsive.
type virtualList[T any] struct {
	items  []T
	render renderFunc[T]

	cursor int
	from   int
	to     int
	height int
}

func newVirtualList[T any](items []T, height int, render renderFunc[T]) *virtualList[T] {
	l := &virtualList[T]{items: items, render: render, height: max(height, 1)}
	l.scroll()
	return l
}

// setItems replaces the items and moves the cursor back to the top.
func (l *virtualList[T]) setItems(items []T) {
	l.items = items
	l.cursor = 0
	l.scroll()
}

func (l *virtualList[T]) setHeight(height int) {
	l.height = max(height, 1)
	l.scroll()
}

// current returns the item under the cursor.
func (l *virtualList[T]) current() (T, bool) {
	if len(l.items) == 0 {
		var zero T
		return zero, false
	}
	return l.items[l.cursor], true
}

func (l *virtualList[T]) move(delta int) {
	if len(l.items) == 0 {
		return
	}
	l.cursor = min(max(l.cursor+delta, 0), len(l.items)-1)
	l.scroll()
}

// handleKey moves the cursor for navigation keys and reports whether the key
// was consumed.
//
//nolint:exhaustive // only navigation keys are handled here.
func (l *virtualList[T]) handleKey(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyUp, tea.KeyCtrlP:
		l.move(-1)
	case tea.KeyDown, tea.KeyCtrlN:
		l.move(1)
	case tea.KeyPgUp:
		l.move(-l.height)
	case tea.KeyPgDown:
		l.move(l.height)
	default:
		return false
	}
	return true
}

// scroll keeps the cursor inside the [from, to) window.
func (l *virtualList[T]) scroll() {
	if len(l.items) == 0 {
		l.from, l.to = 0, 0
		return
	}
	if l.cursor < l.from {
		l.from = l.cursor
	}
	if l.cursor >= l.from+l.height {
		l.from = l.cursor - l.height + 1
	}
	l.from = max(min(l.from, len(l.items)-l.height), 0)
	l.to = min(l.from+l.height, len(l.items))
}

func (l *virtualList[T]) view() string {
	var b strings.Builder
	for i := l.from; i < l.to; i++ {
		if i > l.from {
			b.WriteByte('\n')
		}
		b.WriteString(l.render(l.items[i], i == l.cursor))
	}
	return b.String()
}
