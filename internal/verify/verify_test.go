package verify

import (
	"strings"
	"testing"

	"pgknex/internal/generate"
	"pgknex/internal/schema"
)

func buildModel(t *testing.T) *schema.Model {
	t.Helper()
	m := schema.NewModel()

	users := &schema.Table{Name: "users", PK: []string{"id"}}
	users.AddColumn(schema.Column{Name: "id", Type: "integer", NotNull: true})
	users.AddColumn(schema.Column{Name: "email", Type: "character varying", Params: []int{255}, NotNull: true})
	m.AddTable(users)

	jobs := &schema.Table{Name: "jobs", PK: []string{"id"}}
	jobs.AddColumn(schema.Column{Name: "id", Type: "integer", NotNull: true})
	jobs.AddColumn(schema.Column{Name: "user_id", Type: "integer", NotNull: true})
	jobs.AddColumn(schema.Column{Name: "status", Type: "text", Enum: []string{"a", "b"}})
	m.AddTable(jobs)

	m.AddIndex(&schema.Index{Name: "jobs_status_idx", Table: "jobs", Columns: []string{"status"}})
	m.AddIndex(&schema.Index{Name: "users_email_uidx", Table: "users", Columns: []string{"email"}, Unique: true})
	m.AddUnique(&schema.UniqueConstraint{Name: "users_email_key", Table: "users", Columns: []string{"email"}})
	m.AddForeignKey(&schema.ForeignKey{Name: "jobs_user_id_fkey", Table: "jobs",
		Columns: []string{"user_id"}, RefTable: "users", OnDelete: schema.FKNoAction})
	m.AddCheck(&schema.CheckConstraint{Name: "jobs_status_check", Table: "jobs",
		Class: schema.CheckEnum, EnumColumn: "status", EnumValues: []string{"a", "b"}})
	m.AddCheck(&schema.CheckConstraint{Name: "jobs_sane_check", Table: "jobs",
		Class: schema.CheckOpaque, Expr: "(user_id > 0)"})
	return m
}

func TestRunPassesOnGeneratedProgram(t *testing.T) {
	m := buildModel(t)
	program := generate.New(generate.Options{}).Generate(m)

	r := Run(m, program)
	if !r.Passed {
		t.Fatalf("verification failed:\n%s", r.Text())
	}
	if len(r.Discrepancies) != 0 {
		t.Errorf("Discrepancies = %v, want none", r.Discrepancies)
	}
}

func TestModelStatsMergesUniques(t *testing.T) {
	m := buildModel(t)
	s := ModelStats(m)
	if s.Uniques != 2 {
		t.Errorf("Uniques = %d, want 2 (unique index + unique constraint)", s.Uniques)
	}
	if s.Indexes != 1 {
		t.Errorf("Indexes = %d, want 1 (plain index only)", s.Indexes)
	}
	if s.EnumColumns != 1 || s.OpaqueChecks != 1 {
		t.Errorf("EnumColumns = %d OpaqueChecks = %d, want 1 and 1", s.EnumColumns, s.OpaqueChecks)
	}
	if s.Columns != 5 {
		t.Errorf("Columns = %d, want 5", s.Columns)
	}
}

func TestRunDetectsMissingColumn(t *testing.T) {
	m := buildModel(t)
	program := generate.New(generate.Options{}).Generate(m)

	mutated := strings.Replace(program, "table.string(\"email\", 255).notNullable()\n", "", 1)
	if mutated == program {
		t.Fatal("mutation did not apply")
	}
	r := Run(m, mutated)
	if r.Passed {
		t.Fatal("verification passed on mutated program")
	}
	found := false
	for _, d := range r.Discrepancies {
		if d.Category == "columns" && d.Table == "users" && d.Expected == 2 && d.Actual == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("no per-table column discrepancy for users: %v", r.Discrepancies)
	}
}

func TestRunDetectsMissingForeignKey(t *testing.T) {
	m := buildModel(t)
	program := generate.New(generate.Options{}).Generate(m)

	mutated := strings.Replace(program, "table.foreign(", "// table.foreign(", 1)
	r := Run(m, mutated)
	if r.Passed {
		t.Fatal("verification passed without the foreign key")
	}
}

func TestRunFailsOnUnmappedType(t *testing.T) {
	m := buildModel(t)
	users, _ := m.Table("users")
	users.AddColumn(schema.Column{Name: "search", Type: "tsvector", Unmapped: true})
	program := generate.New(generate.Options{}).Generate(m)

	r := Run(m, program)
	if r.Passed {
		t.Fatal("verification passed with an unmapped type")
	}
	found := false
	for _, d := range r.Discrepancies {
		if d.Category == "unmapped_types" && d.Actual == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("no unmapped_types discrepancy: %v", r.Discrepancies)
	}
}

func TestRunFailsOnDroppedEntities(t *testing.T) {
	m := buildModel(t)
	m.Drop("table widgets aborted: unsupported table element")
	program := generate.New(generate.Options{}).Generate(m)

	r := Run(m, program)
	if r.Passed {
		t.Fatal("verification passed despite a dropped entity")
	}
	found := false
	for _, d := range r.Discrepancies {
		if d.Category == "dropped_entities" && d.Actual == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("no dropped_entities discrepancy: %v", r.Discrepancies)
	}
}

func TestRunIgnoresDownSection(t *testing.T) {
	m := buildModel(t)
	program := generate.New(generate.Options{}).Generate(m)

	// the rollback phase repeats table names; they must not inflate counts
	r := Run(m, program)
	if r.Program.Tables != 2 {
		t.Errorf("Program.Tables = %d, want 2", r.Program.Tables)
	}
}

func TestReportText(t *testing.T) {
	m := buildModel(t)
	program := generate.New(generate.Options{}).Generate(m)
	r := Run(m, program)

	text := r.Text()
	if !strings.Contains(text, "result: PASSED") {
		t.Errorf("report missing PASSED:\n%s", text)
	}

	r = Run(m, strings.Replace(program, "table.index(", "// table.index(", 1))
	text = r.Text()
	if !strings.Contains(text, "result: FAILED") {
		t.Errorf("report missing FAILED:\n%s", text)
	}
	if !strings.Contains(text, "indexes") {
		t.Errorf("report missing the mismatched category:\n%s", text)
	}
}

func TestReportYAML(t *testing.T) {
	m := buildModel(t)
	program := generate.New(generate.Options{}).Generate(m)
	r := Run(m, program)

	out, err := r.YAML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "passed: true") {
		t.Errorf("yaml report missing passed flag:\n%s", out)
	}
}
