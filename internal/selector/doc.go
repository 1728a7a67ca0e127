// Package selector renders records as a plain bordered table, hands the text
// to an interactive filter, and maps the lines the operator kept back to the
// records they came from.
//
// A line is matched by its identity cells, the leading KeyColumns cells of the
// row. Lines that echo the header or a border are never treated as records.
package selector
