package selector

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minimum2scp/geco/internal/inventory"
	"github.com/minimum2scp/geco/internal/shell"
)

var borderRE = regexp.MustCompile(`^[+-]+$`)

func testProjects() []inventory.Project {
	return []inventory.Project{
		{ID: "p1", Name: "Proj One", Number: "111"},
		{ID: "p2", Name: "Proj Two", Number: "222"},
	}
}

func testInstances() []inventory.VMInstance {
	return []inventory.VMInstance{
		{Project: "p1", Name: "web-1", Zone: "asia-northeast1-a", MachineType: "e2-small", InternalIP: "10.0.0.1", ExternalIP: "34.1.1.1", Status: "RUNNING"},
		{Project: "p1", Name: "db-1", Zone: "asia-northeast1-b", MachineType: "e2-medium", InternalIP: "10.0.0.2", Status: "TERMINATED"},
		{Project: "p2", Name: "web-1", Zone: "asia-northeast1-a", MachineType: "e2-small", InternalIP: "10.1.0.1", Status: "RUNNING"},
	}
}

// lineFor returns the rendered table line containing every needle.
func lineFor(t *testing.T, table string, needles ...string) string {
	t.Helper()
	for _, l := range strings.Split(table, "\n") {
		ok := true
		for _, n := range needles {
			if !strings.Contains(l, n) {
				ok = false
				break
			}
		}
		if ok {
			return l
		}
	}
	t.Fatalf("no line with %v in:\n%s", needles, table)
	return ""
}

// pick returns a filter that keeps the lines chosen by choose.
func pick(choose func(table string) []string) Filter {
	return FilterFunc(func(_ context.Context, input string, _ Options) ([]string, error) {
		return choose(input), nil
	})
}

func TestSchema_Render(t *testing.T) {
	out := ProjectSchema().Render(testProjects())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	require.Len(t, lines, 6)
	assert.Regexp(t, borderRE, lines[0])
	assert.Equal(t, []string{"id", "name", "number"}, parseLine(lines[1]))
	assert.Regexp(t, borderRE, lines[2])
	assert.Equal(t, []string{"p1", "Proj One", "111"}, parseLine(lines[3]))
	assert.Equal(t, []string{"p2", "Proj Two", "222"}, parseLine(lines[4]))
	assert.Regexp(t, borderRE, lines[5])
	assert.True(t, strings.HasPrefix(lines[3], "|"))
	assert.True(t, strings.HasSuffix(lines[3], "|"))
}

func TestInstanceSchema(t *testing.T) {
	full := InstanceSchema(true)
	assert.Equal(t, "project", full.Header[0])
	assert.Equal(t, 2, full.KeyColumns)
	assert.Len(t, full.Row(testInstances()[0]), len(full.Header))

	scoped := InstanceSchema(false)
	assert.NotContains(t, scoped.Header, "project")
	assert.Equal(t, 1, scoped.KeyColumns)
	assert.Len(t, scoped.Row(testInstances()[0]), len(scoped.Header))

	out := scoped.Render(testInstances()[:2])
	assert.NotContains(t, out, "p1")
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"| p1 | Proj One | 111    |", []string{"p1", "Proj One", "111"}},
		{"  | p1 |   |\r\n", []string{"p1", ""}},
		{"+----+------+", []string{"+----+------+"}},
		{"p1 | x", []string{"p1", "x"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLine(tt.line), tt.line)
	}
}

func TestSelectOne_Project(t *testing.T) {
	f := pick(func(table string) []string {
		return []string{lineFor(t, table, "p2")}
	})

	got, err := SelectOne(context.Background(), f, ProjectSchema(), testProjects())
	require.NoError(t, err)
	assert.Equal(t, "p2", got.ID)
}

func TestSelect_CompositeIdentity(t *testing.T) {
	f := pick(func(table string) []string {
		return []string{lineFor(t, table, "p2", "web-1")}
	})

	got, err := Select(context.Background(), f, InstanceSchema(true), testInstances(), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p2", got[0].Project)
	assert.Equal(t, "10.1.0.1", got[0].InternalIP)
}

func TestSelect_Cardinality(t *testing.T) {
	ctx := context.Background()
	schema := ProjectSchema()

	tests := []struct {
		name    string
		choose  func(table string) []string
		multi   bool
		want    []string
		wantErr bool
	}{
		{
			name:    "none single",
			choose:  func(string) []string { return nil },
			wantErr: true,
		},
		{
			name: "two single",
			choose: func(table string) []string {
				return []string{lineFor(t, table, "p1"), lineFor(t, table, "p2")}
			},
			wantErr: true,
		},
		{
			name:   "none multi",
			choose: func(string) []string { return nil },
			multi:  true,
			want:   []string{},
		},
		{
			name: "two multi keeps filter order",
			choose: func(table string) []string {
				return []string{lineFor(t, table, "p2"), lineFor(t, table, "p1")}
			},
			multi: true,
			want:  []string{"p2", "p1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(ctx, pick(tt.choose), schema, testProjects(), tt.multi)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrSelectionCardinality)
				assert.Contains(t, err.Error(), "please select exactly 1 item")
				return
			}
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSelect_RejectsHeaderAndBorders(t *testing.T) {
	ctx := context.Background()

	// The whole table echoed back, including borders and header.
	echoAll := pick(func(table string) []string {
		return strings.Split(strings.TrimRight(table, "\n"), "\n")
	})
	got, err := Select(ctx, echoAll, ProjectSchema(), testProjects(), true)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	headerOnly := pick(func(table string) []string {
		return []string{lineFor(t, table, "id", "name", "number")}
	})
	_, err = SelectOne(ctx, headerOnly, ProjectSchema(), testProjects())
	require.ErrorIs(t, err, ErrSelectionCardinality)

	upper := pick(func(string) []string { return []string{"| ID | NAME | NUMBER |", "+---+"} })
	got, err = Select(ctx, upper, ProjectSchema(), testProjects(), true)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelect_HeaderNamedRecordIsRejected(t *testing.T) {
	projects := []inventory.Project{{ID: "id", Name: "weird", Number: "1"}}
	f := pick(func(table string) []string { return []string{lineFor(t, table, "weird")} })

	_, err := SelectOne(context.Background(), f, ProjectSchema(), projects)
	assert.ErrorIs(t, err, ErrSelectionCardinality)
}

func TestMatch_UnmatchedAndDuplicates(t *testing.T) {
	dups := []inventory.Project{
		{ID: "p1", Name: "first"},
		{ID: "p1", Name: "second"},
	}
	got := Match(ProjectSchema(), dups, []string{"| p1 | second | |", "| zz | nope | |", "garbage"})
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Name)
}

func TestSelect_FilterError(t *testing.T) {
	boom := errors.New("boom")
	f := FilterFunc(func(context.Context, string, Options) ([]string, error) { return nil, boom })

	_, err := Select(context.Background(), f, ProjectSchema(), testProjects(), true)
	assert.ErrorIs(t, err, boom)
}

type mockRunner struct {
	stdout []byte
	err    error

	gotCmd   shell.Command
	gotStdin string
}

func (m *mockRunner) Output(_ context.Context, stdin io.Reader, cmd shell.Command) ([]byte, []byte, error) {
	m.gotCmd = cmd
	if stdin != nil {
		b, _ := io.ReadAll(stdin)
		m.gotStdin = string(b)
	}
	return m.stdout, nil, m.err
}

func (m *mockRunner) Interactive(context.Context, shell.Command) error {
	return errors.New("not interactive")
}

type exitError struct{}

func (exitError) Error() string { return "exit status 1" }

func TestCommandFilter(t *testing.T) {
	r := &mockRunner{stdout: []byte("| p1 | Proj One | 111 |\n\n| p2 | Proj Two | 222 |\n")}
	f := NewCommandFilter(r, "peco", "--layout=bottom-up")

	lines, err := f.Filter(context.Background(), "table", Options{Multi: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"| p1 | Proj One | 111 |", "| p2 | Proj Two | 222 |"}, lines)
	assert.Equal(t, "table", r.gotStdin)
	assert.Equal(t, []string{"peco", "--layout=bottom-up"}, r.gotCmd.Argv())
}

func TestCommandFilter_FzfMulti(t *testing.T) {
	r := &mockRunner{}
	f := NewCommandFilter(r, "fzf")

	_, err := f.Filter(context.Background(), "", Options{Multi: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"fzf", "--multi"}, r.gotCmd.Argv())

	_, err = f.Filter(context.Background(), "", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"fzf"}, r.gotCmd.Argv())
	assert.Empty(t, f.Command.Args)
}

func TestCommandFilter_Errors(t *testing.T) {
	notFound := &mockRunner{err: shell.ErrCommandNotFound}
	_, err := NewCommandFilter(notFound, "peco").Filter(context.Background(), "", Options{})
	assert.ErrorIs(t, err, shell.ErrCommandNotFound)

	// A runner error that is not an exit status propagates unchanged.
	other := &mockRunner{err: exitError{}}
	_, err = NewCommandFilter(other, "peco").Filter(context.Background(), "", Options{})
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	t.Setenv("PATH", t.TempDir())

	f, err := Resolve(ctx, &mockRunner{}, BuiltinName, nil, false)
	require.NoError(t, err)
	assert.IsType(t, &BuiltinFilter{}, f)

	f, err = Resolve(ctx, &mockRunner{}, "peco", nil, true)
	require.NoError(t, err)
	assert.IsType(t, &BuiltinFilter{}, f)

	_, err = Resolve(ctx, &mockRunner{}, "peco", nil, false)
	assert.ErrorIs(t, err, shell.ErrCommandNotFound)
}

func TestCommandFilter_IgnoresExitStatus(t *testing.T) {
	if _, err := shell.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	f := NewCommandFilter(shell.NewExecRunner(), "sh", "-c", "head -n 4 | tail -n 1; exit 1")

	got, err := Select(context.Background(), f, ProjectSchema(), testProjects(), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
}
