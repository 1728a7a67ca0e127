package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minimum2scp/geco/internal/logging"
)

// ErrSelectionCardinality is returned when a single-selection prompt did not
// end with exactly one record.
var ErrSelectionCardinality = errors.New("please select exactly 1 item")

// Select renders records, runs the filter and returns the records whose lines
// were kept, in the order the filter returned them. With multi any count,
// including zero, is accepted; otherwise exactly one record must remain.
func Select[T any](ctx context.Context, f Filter, schema Schema[T], records []T, multi bool) ([]T, error) {
	lines, err := f.Filter(ctx, schema.Render(records), Options{Multi: multi})
	if err != nil {
		return nil, fmt.Errorf("running filter: %w", err)
	}

	selected := Match(schema, records, lines)
	logging.FromContext(ctx).Debug().
		Str("component", "selector").
		Int("lines", len(lines)).
		Int("selected", len(selected)).
		Bool("multi", multi).
		Msg("filter finished")

	if !multi && len(selected) != 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrSelectionCardinality, len(selected))
	}
	return selected, nil
}

// SelectOne is Select for a single record.
func SelectOne[T any](ctx context.Context, f Filter, schema Schema[T], records []T) (T, error) {
	var zero T
	selected, err := Select(ctx, f, schema, records, false)
	if err != nil {
		return zero, err
	}
	return selected[0], nil
}

// Match maps filtered table lines back to records. Header and border lines
// are skipped, as are lines naming no known record. When two records share an
// identity the first one wins.
func Match[T any](schema Schema[T], records []T, lines []string) []T {
	index := make(map[string]int, len(records))
	for i, r := range records {
		key := identityKey(schema.identity(r))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	header := make([]string, schema.KeyColumns)
	for i := range header {
		header[i] = strings.ToLower(schema.Header[i])
	}
	headerKey := identityKey(header)

	selected := make([]T, 0, len(lines))
	for _, line := range lines {
		cells := parseLine(line)
		if isSeparator(cells) || len(cells) < schema.KeyColumns {
			continue
		}
		id := cells[:schema.KeyColumns]
		if identityKey(lowerAll(id)) == headerKey {
			continue
		}
		if i, ok := index[identityKey(id)]; ok {
			selected = append(selected, records[i])
		}
	}
	return selected
}

func lowerAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ToLower(c)
	}
	return out
}
