package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
)

// TableFormatter formats data as an aligned text table. Objects render as
// FIELD/VALUE rows, lists of objects as one row per element.
type TableFormatter struct {
	NoHeaders bool
}

// Format implements Formatter.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}
	if t, ok := data.(*Table); ok {
		return t.render(w, f.NoHeaders)
	}

	v, err := normalize(data)
	if err != nil {
		return err
	}
	return toTable(v).render(w, f.NoHeaders)
}

func toTable(v any) *Table {
	switch t := v.(type) {
	case map[string]any:
		table := &Table{Headers: []string{"FIELD", "VALUE"}}
		flat := map[string]string{}
		flatten("", t, flat)
		for _, k := range sortedKeys(flat) {
			table.AddRow(k, flat[k])
		}
		return table

	case []any:
		var cols []string
		seen := map[string]bool{}
		rows := make([]map[string]string, 0, len(t))
		for _, e := range t {
			flat := map[string]string{}
			if m, ok := e.(map[string]any); ok {
				flatten("", m, flat)
			} else {
				flat["value"] = cell(e)
			}
			for k := range flat {
				if !seen[k] {
					seen[k] = true
					cols = append(cols, k)
				}
			}
			rows = append(rows, flat)
		}
		sort.Strings(cols)

		table := &Table{}
		for _, c := range cols {
			table.Headers = append(table.Headers, strings.ToUpper(c))
		}
		for _, r := range rows {
			cells := make([]string, len(cols))
			for i, c := range cols {
				if s, ok := r[c]; ok {
					cells[i] = s
				} else {
					cells[i] = "-"
				}
			}
			table.AddRow(cells...)
		}
		return table
	}
	return &Table{Headers: []string{"VALUE"}, Rows: [][]string{{cell(v)}}}
}

// flatten writes nested objects as dotted keys.
func flatten(prefix string, m map[string]any, out map[string]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			flatten(key, nested, out)
			continue
		}
		out[key] = cell(v)
	}
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		if t == "" {
			return "-"
		}
		return t
	case json.Number:
		return t.String()
	case bool:
		return fmt.Sprint(t)
	case []any:
		if len(t) == 0 {
			return "-"
		}
		return fmt.Sprintf("[%d items]", len(t))
	case map[string]any:
		return "-"
	}
	return fmt.Sprint(v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Table is preformatted tabular output.
type Table struct {
	Headers []string
	Rows    [][]string
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func (t *Table) render(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
