// Package verify is the correctness oracle: it derives one statistic set by
// walking the schema model and a second by re-scanning the generated program
// text, and compares the two per category. Any mismatch fails the run and
// the program text must not be released.
package verify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"pgknex/internal/schema"
)

// ErrVerificationFailed marks an aggregate mismatch after generation. Fatal
// for the whole run: no output is trustworthy.
var ErrVerificationFailed = errors.New("verification failed")

// Discrepancy is one per-category mismatch.
type Discrepancy struct {
	Category string `yaml:"category"`
	Table    string `yaml:"table,omitempty"`
	Expected int    `yaml:"expected"`
	Actual   int    `yaml:"actual"`
}

func (d Discrepancy) String() string {
	if d.Table != "" {
		return fmt.Sprintf("%s (table %s): expected %d, got %d", d.Category, d.Table, d.Expected, d.Actual)
	}
	return fmt.Sprintf("%s: expected %d, got %d", d.Category, d.Expected, d.Actual)
}

// Stats is one independently derived statistic set. Uniques merges unique
// constraints and unique indexes, because both render as table.unique; the
// two stay separate entities in the model and are merged for reporting only.
type Stats struct {
	Tables       int `yaml:"tables"`
	Columns      int `yaml:"columns"`
	Indexes      int `yaml:"indexes"`
	Uniques      int `yaml:"uniques"`
	ForeignKeys  int `yaml:"foreign_keys"`
	EnumColumns  int `yaml:"enum_columns"`
	OpaqueChecks int `yaml:"check_constraints"`

	// UnmappedTypes counts columns whose type has no builder mapping. The
	// program side cannot tell these apart from mapped specificType columns,
	// so its count is always zero and any model-side occurrence is a mismatch.
	UnmappedTypes int `yaml:"unmapped_types"`

	PerTableColumns map[string]int `yaml:"-"`
}

type Result struct {
	Passed        bool          `yaml:"passed"`
	Model         Stats         `yaml:"model"`
	Program       Stats         `yaml:"program"`
	Discrepancies []Discrepancy `yaml:"discrepancies,omitempty"`
	Dropped       []string      `yaml:"dropped,omitempty"`
}

// Run compares the model against the generated program. The returned result
// carries every discrepancy found; Passed is true only when there are none,
// no type-mapping gaps exist, and nothing was dropped along the way.
func Run(m *schema.Model, program string) *Result {
	r := &Result{
		Model:   ModelStats(m),
		Program: programStats(program),
		Dropped: m.Dropped,
	}

	add := func(category, table string, expected, actual int) {
		if expected != actual {
			r.Discrepancies = append(r.Discrepancies, Discrepancy{
				Category: category, Table: table, Expected: expected, Actual: actual,
			})
		}
	}

	add("tables", "", r.Model.Tables, r.Program.Tables)
	add("columns", "", r.Model.Columns, r.Program.Columns)
	for _, t := range m.Tables {
		add("columns", t.Name, r.Model.PerTableColumns[t.Name], r.Program.PerTableColumns[t.Name])
	}
	add("indexes", "", r.Model.Indexes, r.Program.Indexes)
	add("uniques", "", r.Model.Uniques, r.Program.Uniques)
	add("foreign_keys", "", r.Model.ForeignKeys, r.Program.ForeignKeys)
	add("enum_columns", "", r.Model.EnumColumns, r.Program.EnumColumns)
	add("check_constraints", "", r.Model.OpaqueChecks, r.Program.OpaqueChecks)
	add("unmapped_types", "", r.Program.UnmappedTypes, r.Model.UnmappedTypes)
	add("dropped_entities", "", 0, len(m.Dropped))

	r.Passed = len(r.Discrepancies) == 0
	return r
}

// ModelStats walks the schema model and tallies one statistic set.
func ModelStats(m *schema.Model) Stats {
	s := Stats{PerTableColumns: map[string]int{}}
	s.Tables = len(m.Tables)
	for _, t := range m.Tables {
		s.PerTableColumns[t.Name] = len(t.Columns)
		s.Columns += len(t.Columns)
		for i := range t.Columns {
			if t.Columns[i].Unmapped {
				s.UnmappedTypes++
			}
		}
	}
	for _, ix := range m.Indexes {
		if ix.Unique {
			s.Uniques++
		} else {
			s.Indexes++
		}
	}
	s.Uniques += len(m.Uniques)
	s.ForeignKeys = len(m.ForeignKeys)
	for _, cc := range m.Checks {
		switch cc.Class {
		case schema.CheckEnum:
			s.EnumColumns++
		case schema.CheckOpaque:
			s.OpaqueChecks++
		}
	}
	return s
}

var createTableRE = regexp.MustCompile(`this\.schema\.createTable\("([^"]+)"`)

// programStats re-derives the statistics from the migration text alone,
// scanning the builder calls the up() phase is expected to contain.
func programStats(program string) Stats {
	s := Stats{PerTableColumns: map[string]int{}}

	// Only the forward phase is counted; down() holds the inverses.
	if i := strings.Index(program, "async down()"); i >= 0 {
		program = program[:i]
	}

	table := ""
	for _, raw := range strings.Split(program, "\n") {
		line := strings.TrimSpace(raw)

		if match := createTableRE.FindStringSubmatch(line); match != nil {
			table = match[1]
			s.Tables++
			continue
		}
		if line == "})" {
			table = ""
			continue
		}

		switch {
		case strings.HasPrefix(line, "table.index("):
			s.Indexes++
		case strings.HasPrefix(line, "table.unique("):
			s.Uniques++
		case strings.HasPrefix(line, "table.foreign("):
			s.ForeignKeys++
		case strings.HasPrefix(line, "table.check("):
			s.OpaqueChecks++
		case strings.HasPrefix(line, "table.primary("):
			// composite key declaration, not a column
		case strings.HasPrefix(line, "table.enum("):
			s.EnumColumns++
			if table != "" {
				s.PerTableColumns[table]++
				s.Columns++
			}
		case strings.HasPrefix(line, "table.") && table != "":
			s.PerTableColumns[table]++
			s.Columns++
		}
	}
	return s
}
