package verify

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Text renders the human-readable verification report.
func (r *Result) Text() string {
	var b strings.Builder

	b.WriteString("verification report\n")
	fmt.Fprintf(&b, "  %-18s %8s %8s\n", "category", "model", "program")
	row := func(name string, model, program int) {
		mark := ""
		if model != program {
			mark = "  <-- mismatch"
		}
		fmt.Fprintf(&b, "  %-18s %8d %8d%s\n", name, model, program, mark)
	}
	row("tables", r.Model.Tables, r.Program.Tables)
	row("columns", r.Model.Columns, r.Program.Columns)
	row("indexes", r.Model.Indexes, r.Program.Indexes)
	row("uniques", r.Model.Uniques, r.Program.Uniques)
	row("foreign_keys", r.Model.ForeignKeys, r.Program.ForeignKeys)
	row("enum_columns", r.Model.EnumColumns, r.Program.EnumColumns)
	row("check_constraints", r.Model.OpaqueChecks, r.Program.OpaqueChecks)
	row("unmapped_types", r.Model.UnmappedTypes, r.Program.UnmappedTypes)

	if len(r.Dropped) > 0 {
		b.WriteString("\ndropped entities:\n")
		for _, d := range r.Dropped {
			fmt.Fprintf(&b, "  - %s\n", d)
		}
	}
	if len(r.Discrepancies) > 0 {
		b.WriteString("\ndiscrepancies:\n")
		for _, d := range perTableLast(r.Discrepancies) {
			fmt.Fprintf(&b, "  - %s\n", d)
		}
		b.WriteString("\nresult: FAILED\n")
	} else {
		b.WriteString("\nresult: PASSED\n")
	}
	return b.String()
}

// Text renders one statistic set on its own, with the per-table column
// breakdown. Used by the stats command, which has no program side to compare.
func (s Stats) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tables:            %d\n", s.Tables)
	fmt.Fprintf(&b, "columns:           %d\n", s.Columns)
	fmt.Fprintf(&b, "indexes:           %d\n", s.Indexes)
	fmt.Fprintf(&b, "uniques:           %d\n", s.Uniques)
	fmt.Fprintf(&b, "foreign_keys:      %d\n", s.ForeignKeys)
	fmt.Fprintf(&b, "enum_columns:      %d\n", s.EnumColumns)
	fmt.Fprintf(&b, "check_constraints: %d\n", s.OpaqueChecks)
	fmt.Fprintf(&b, "unmapped_types:    %d\n", s.UnmappedTypes)

	names := make([]string, 0, len(s.PerTableColumns))
	for name := range s.PerTableColumns {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		b.WriteString("\ncolumns per table:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "  %-30s %d\n", name, s.PerTableColumns[name])
		}
	}
	return b.String()
}

// YAML renders the machine-readable verification report.
func (r *Result) YAML() (string, error) {
	out, err := yaml.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// perTableLast keeps aggregate discrepancies ahead of per-table ones without
// disturbing the relative order within each group.
func perTableLast(ds []Discrepancy) []Discrepancy {
	out := make([]Discrepancy, len(ds))
	copy(out, ds)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Table == "" && out[j].Table != ""
	})
	return out
}
