package selector

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/minimum2scp/geco/internal/inventory"
)

// Schema describes how records of type T are laid out as table rows.
type Schema[T any] struct {
	// Header holds the column labels in field declaration order.
	Header []string

	// Row returns the cell values of a record, one per header label.
	Row func(T) []string

	// KeyColumns is the number of leading cells forming a record's identity.
	KeyColumns int
}

// ProjectSchema lays out projects with the id as identity.
func ProjectSchema() Schema[inventory.Project] {
	return Schema[inventory.Project]{
		Header: []string{"id", "name", "number"},
		Row: func(p inventory.Project) []string {
			return []string{p.ID, p.Name, p.Number}
		},
		KeyColumns: 1,
	}
}

// InstanceSchema lays out VM instances. With includeProject the identity is
// (project, name); scoped to a single project the column is omitted and the
// identity is the name alone.
func InstanceSchema(includeProject bool) Schema[inventory.VMInstance] {
	if !includeProject {
		return Schema[inventory.VMInstance]{
			Header: []string{"name", "zone", "machine_type", "internal_ip", "external_ip", "status"},
			Row: func(i inventory.VMInstance) []string {
				return []string{i.Name, i.Zone, i.MachineType, i.InternalIP, i.ExternalIP, i.Status}
			},
			KeyColumns: 1,
		}
	}
	return Schema[inventory.VMInstance]{
		Header: []string{"project", "name", "zone", "machine_type", "internal_ip", "external_ip", "status"},
		Row: func(i inventory.VMInstance) []string {
			return []string{i.Project, i.Name, i.Zone, i.MachineType, i.InternalIP, i.ExternalIP, i.Status}
		},
		KeyColumns: 2,
	}
}

// Render draws records as an ASCII table bordered with '+', '-' and '|'.
// Header labels are printed as declared.
func (s Schema[T]) Render(records []T) string {
	t := table.NewWriter()
	t.AppendHeader(toRow(s.Header))
	for _, r := range records {
		t.AppendRow(toRow(s.Row(r)))
	}

	style := table.StyleDefault
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)

	return t.Render() + "\n"
}

func (s Schema[T]) identity(r T) []string {
	return s.Row(r)[:s.KeyColumns]
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

// parseLine strips the outer borders of a table line and splits it into
// trimmed cells.
func parseLine(line string) []string {
	line = strings.TrimSpace(strings.TrimRight(line, "\r\n"))
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")

	cells := strings.Split(line, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

func isSeparator(cells []string) bool {
	joined := strings.Join(cells, "")
	if joined == "" {
		return false
	}
	return strings.Trim(joined, "+-") == ""
}

func identityKey(cells []string) string {
	return strings.Join(cells, "\x00")
}
