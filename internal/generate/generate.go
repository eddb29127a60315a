// Package generate emits the consolidated baseline migration: an Adonis
// BaseSchema class whose up() creates every table in dependency order and
// whose down() undoes the run in reverse.
package generate

import (
	"fmt"
	"regexp"
	"strings"

	"pgknex/internal/schema"
	"pgknex/internal/typemap"
)

type Options struct {
	ClassName string // migration class name, BaselineMigration when empty
}

type Generator struct {
	opts Options
}

func New(opts Options) *Generator {
	if opts.ClassName == "" {
		opts.ClassName = "BaselineMigration"
	}
	return &Generator{opts: opts}
}

// Generate renders the full migration file. Emission walks the model in a
// fixed order, so identical input produces byte-identical output.
func (g *Generator) Generate(m *schema.Model) string {
	tables := DependencyOrder(m)

	var up, drops, alters, downAlters []string

	// Phase 1: table creation in dependency order. Phase 2: one grouped
	// alteration block per table carrying all of its indexes, unique
	// constraints and foreign keys.
	for _, t := range tables {
		up = append(up, g.createTable(m, t))
		drops = append([]string{fmt.Sprintf("this.schema.dropTableIfExists(%q)", t.Name)}, drops...)

		upOps, downOps := g.alterOps(m, t)
		if len(upOps) == 0 {
			continue
		}
		alters = append(alters, alterBlock(t.Name, upOps))
		downAlters = append([]string{alterBlock(t.Name, downOps)}, downAlters...)
	}
	up = append(up, alters...)

	// Rollback: undo the alteration blocks in reverse creation order, then
	// drop tables newest first, so nothing is dropped while still referenced.
	down := append(downAlters, drops...)

	var b strings.Builder
	b.WriteString("import { BaseSchema } from \"@adonisjs/lucid/schema\"\n\n")
	fmt.Fprintf(&b, "export default class %s extends BaseSchema {\n", g.opts.ClassName)
	b.WriteString("  async up() {\n")
	b.WriteString(indent(strings.Join(up, "\n\n"), 4))
	b.WriteString("\n  }\n\n")
	b.WriteString("  async down() {\n")
	b.WriteString(indent(strings.Join(down, "\n\n"), 4))
	b.WriteString("\n  }\n}\n")
	return b.String()
}

func (g *Generator) createTable(m *schema.Model, t *schema.Table) string {
	lines := []string{fmt.Sprintf("this.schema.createTable(%q, (table) => {", t.Name)}
	for i := range t.Columns {
		lines = append(lines, "  "+g.columnCall(t, &t.Columns[i]))
	}
	if len(t.PK) > 1 {
		lines = append(lines, fmt.Sprintf("  table.primary([%s])", quoteJoin(t.PK)))
	}
	for _, cc := range m.Checks {
		if cc.Table != t.Name || cc.Class != schema.CheckOpaque {
			continue
		}
		lines = append(lines, fmt.Sprintf("  table.check(%q, undefined, %q)", cc.Expr, cc.Name))
	}
	lines = append(lines, "})")
	return strings.Join(lines, "\n")
}

func (g *Generator) columnCall(t *schema.Table, c *schema.Column) string {
	singlePK := len(t.PK) == 1 && t.PK[0] == c.Name
	auto := singlePK && autoIncrement(c)

	var code string
	switch {
	case auto:
		code = fmt.Sprintf("table.%s(%q).primary()", incrementsMethod(c), c.Name)
		if c.Comment != "" {
			code += fmt.Sprintf(".comment(%q)", c.Comment)
		}
		return code
	case len(c.Enum) > 0:
		code = fmt.Sprintf("table.enum(%q, [%s])", c.Name, singleQuoteJoin(c.Enum))
	case c.Unmapped:
		code = fmt.Sprintf("table.specificType(%q, %q)", c.Name, rawType(c))
	default:
		mp, _ := typemap.Map(c.Type, c.Params, c.Array)
		if mp.Args != "" {
			code = fmt.Sprintf("table.%s(%q, %s)", mp.Method, c.Name, mp.Args)
		} else {
			code = fmt.Sprintf("table.%s(%q)", mp.Method, c.Name)
		}
	}

	if singlePK {
		code += ".primary()"
	} else if c.NotNull {
		code += ".notNullable()"
	} else {
		code += ".nullable()"
	}
	if d := renderDefault(c.Default); d != "" {
		code += ".defaultTo(" + d + ")"
	}
	if c.Comment != "" {
		code += fmt.Sprintf(".comment(%q)", c.Comment)
	}
	return code
}

// alterOps collects the grouped alteration operations for one table. The up
// slice lists indexes, uniques and foreign keys; the down slice lists the
// inverses with foreign key removals first, because referential constraints
// must go before the constructs they reference.
func (g *Generator) alterOps(m *schema.Model, t *schema.Table) (up, down []string) {
	var downIdx, downUq, downFK []string

	for _, ix := range m.Indexes {
		if ix.Table != t.Name {
			continue
		}
		if ix.Unique {
			up = append(up, fmt.Sprintf("table.unique([%s], %q)", quoteJoin(ix.Columns), ix.Name))
		} else {
			up = append(up, fmt.Sprintf("table.index([%s], %q)", quoteJoin(ix.Columns), ix.Name))
		}
		downIdx = append(downIdx, fmt.Sprintf("table.dropIndex([], %q)", ix.Name))
	}
	for _, uc := range m.Uniques {
		if uc.Table != t.Name {
			continue
		}
		up = append(up, fmt.Sprintf("table.unique([%s], %q)", quoteJoin(uc.Columns), uc.Name))
		downUq = append(downUq, fmt.Sprintf("table.dropUnique([], %q)", uc.Name))
	}
	for _, fk := range m.ForeignKeys {
		if fk.Table != t.Name {
			continue
		}
		up = append(up, g.foreignKeyCall(m, fk))
		downFK = append(downFK, fmt.Sprintf("table.dropForeign([%s])", quoteJoin(fk.Columns)))
	}

	down = append(down, downFK...)
	down = append(down, downUq...)
	down = append(down, downIdx...)
	return up, down
}

func (g *Generator) foreignKeyCall(m *schema.Model, fk *schema.ForeignKey) string {
	refCols := fk.RefColumns
	if len(refCols) == 0 {
		// REFERENCES without a column list targets the primary key
		if ref, ok := m.Table(fk.RefTable); ok {
			refCols = ref.PK
		}
		if len(refCols) == 0 {
			refCols = []string{"id"}
		}
	}

	var code string
	if len(fk.Columns) == 1 && len(refCols) == 1 {
		code = fmt.Sprintf("table.foreign(%q).references(%q).inTable(%q)", fk.Columns[0], refCols[0], fk.RefTable)
	} else {
		code = fmt.Sprintf("table.foreign([%s]).references([%s]).inTable(%q)",
			quoteJoin(fk.Columns), quoteJoin(refCols), fk.RefTable)
	}
	if fk.OnDelete != "" && fk.OnDelete != schema.FKNoAction {
		code += fmt.Sprintf(".onDelete(%q)", fk.OnDelete)
	}
	return code
}

func alterBlock(table string, ops []string) string {
	lines := []string{fmt.Sprintf("this.schema.alterTable(%q, (table) => {", table)}
	for _, op := range ops {
		lines = append(lines, "  "+op)
	}
	lines = append(lines, "})")
	return strings.Join(lines, "\n")
}

// autoIncrement reports whether a primary key column is the auto-increment
// kind: a serial type, or the integer-plus-nextval-default form pg_dump
// writes serials as.
func autoIncrement(c *schema.Column) bool {
	switch c.Type {
	case "serial", "serial4", "bigserial", "serial8":
		return true
	case "integer", "int4", "int", "bigint", "int8", "smallint", "int2":
		return true
	}
	return false
}

func incrementsMethod(c *schema.Column) string {
	switch c.Type {
	case "bigserial", "serial8", "bigint", "int8":
		return "bigIncrements"
	}
	return "increments"
}

var castRE = regexp.MustCompile(`::[a-zA-Z_]+(?: [a-zA-Z_]+)*(?:\(\d+(?:, ?\d+)?\))?(?:\[\])?`)
var numberRE = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)

// renderDefault turns a deparsed SQL default into the defaultTo argument:
// numbers and booleans pass through, string literals become JS strings, and
// everything else (function calls, arrays) is wrapped in this.raw. The quoted
// literal is parsed before casts are stripped, so a cast-like substring
// inside the value survives intact.
func renderDefault(expr string) string {
	v := strings.TrimSpace(expr)
	if v == "" {
		return ""
	}

	if lit, rest, ok := leadingLiteral(v); ok {
		if rest = strings.TrimSpace(castRE.ReplaceAllString(rest, "")); rest == "" {
			return "'" + strings.ReplaceAll(lit, `'`, `\'`) + "'"
		}
		return "this.raw(`" + v + "`)"
	}

	bare := strings.TrimSpace(castRE.ReplaceAllString(v, ""))
	switch strings.ToLower(bare) {
	case "true", "false", "null":
		return strings.ToLower(bare)
	}
	if numberRE.MatchString(bare) {
		return bare
	}
	return "this.raw(`" + v + "`)"
}

// leadingLiteral parses a SQL string literal at the start of the expression,
// unescaping doubled quotes, and returns the text after the closing quote.
func leadingLiteral(s string) (lit, rest string, ok bool) {
	if !strings.HasPrefix(s, "'") {
		return "", "", false
	}
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		return b.String(), s[i+1:], true
	}
	return "", "", false
}

func rawType(c *schema.Column) string {
	s := c.Type
	if len(c.Params) == 1 {
		s = fmt.Sprintf("%s(%d)", s, c.Params[0])
	} else if len(c.Params) >= 2 {
		s = fmt.Sprintf("%s(%d,%d)", s, c.Params[0], c.Params[1])
	}
	if c.Array {
		s += "[]"
	}
	return s
}

func quoteJoin(items []string) string {
	var qs []string
	for _, it := range items {
		qs = append(qs, fmt.Sprintf("%q", it))
	}
	return strings.Join(qs, ", ")
}

func singleQuoteJoin(items []string) string {
	var qs []string
	for _, it := range items {
		qs = append(qs, "'"+strings.ReplaceAll(it, "'", `\'`)+"'")
	}
	return strings.Join(qs, ", ")
}

func indent(text string, spaces int) string {
	pad := strings.Repeat(" ", spaces)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}
