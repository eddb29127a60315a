package extract

import (
	"encoding/json"
	"fmt"

	"pgknex/internal/schema"
	"pgknex/internal/typemap"
)

// TableExtractor recognizes CREATE TABLE statements. Column entries are
// matched against the column-definition grammar; anything inside the table
// body it cannot recognize aborts that table (the drop is recorded so the
// verifier surfaces it). Partitioned tables and tables on the exclusion list
// are skipped whole and never counted.
type TableExtractor struct {
	Exclude map[string]bool
}

func (e *TableExtractor) Match(kind string) bool { return kind == "CreateStmt" }

func (e *TableExtractor) Extract(st Statement, m *schema.Model) (bool, error) {
	var node struct {
		Relation  json.RawMessage              `json:"relation"`
		TableElts []map[string]json.RawMessage `json:"tableElts"`
		Partspec  json.RawMessage              `json:"partspec"`
	}
	if err := json.Unmarshal(st.Node, &node); err != nil {
		err = fmt.Errorf("%w: %v", ErrRecognition, err)
		m.Drop("%v", err)
		return true, err
	}
	_, name := rangeVar(node.Relation)
	if name == "" {
		err := fmt.Errorf("%w: %s", ErrRecognition, summarize(st.SQL))
		m.Drop("%v", err)
		return true, err
	}
	if e.Exclude[name] {
		return true, nil
	}
	if len(node.Partspec) > 0 && string(node.Partspec) != "null" {
		return true, nil // partitioned tables are unsupported, skipped whole
	}

	// Entities are staged locally and committed only when the whole table
	// body parsed, so an aborted table leaves nothing behind.
	t := &schema.Table{Name: name}
	var uniques []*schema.UniqueConstraint
	var fks []*schema.ForeignKey
	var checks []*schema.CheckConstraint
	checkN := 0

	for _, elt := range node.TableElts {
		if colRaw, ok := elt["ColumnDef"]; ok {
			if err := e.columnDef(colRaw, t, &uniques, &fks, &checks, &checkN); err != nil {
				m.Drop("table %s aborted: %v", name, err)
				return true, fmt.Errorf("table %s: %w", name, err)
			}
			continue
		}
		if cstRaw, ok := elt["Constraint"]; ok {
			if err := e.tableConstraint(cstRaw, t, &uniques, &fks, &checks, &checkN); err != nil {
				m.Drop("table %s aborted: %v", name, err)
				return true, fmt.Errorf("table %s: %w", name, err)
			}
			continue
		}
		m.Drop("table %s aborted: unsupported table element", name)
		return true, fmt.Errorf("%w: table %s: unsupported table element", ErrRecognition, name)
	}

	if err := m.AddTable(t); err != nil {
		m.Drop("%v", err)
		return true, err
	}
	for _, uc := range uniques {
		if err := m.AddUnique(uc); err != nil {
			m.Drop("%v", err)
		}
	}
	for _, fk := range fks {
		if err := m.AddForeignKey(fk); err != nil {
			m.Drop("%v", err)
		}
	}
	for _, cc := range checks {
		if err := m.AddCheck(cc); err != nil {
			m.Drop("%v", err)
		}
	}
	return true, nil
}

// columnDef parses one entry of the column list:
//
//	name type[(params)] [ARRAY] [NOT NULL] [DEFAULT expr] [inline constraints]
func (e *TableExtractor) columnDef(raw json.RawMessage, t *schema.Table,
	uniques *[]*schema.UniqueConstraint, fks *[]*schema.ForeignKey,
	checks *[]*schema.CheckConstraint, checkN *int) error {

	var col map[string]any
	if err := json.Unmarshal(raw, &col); err != nil {
		return fmt.Errorf("%w: %v", ErrRecognition, err)
	}
	name, _ := col["colname"].(string)
	if name == "" {
		return fmt.Errorf("%w: column without a name", ErrRecognition)
	}
	ti, ok := decodeTypeName(asNode(col["typeName"]))
	if !ok {
		return fmt.Errorf("%w: column %s has no type", ErrRecognition, name)
	}

	c := schema.Column{Name: name, Type: ti.Name, Params: ti.Params, Array: ti.Array}
	if nn, _ := col["is_not_null"].(bool); nn {
		c.NotNull = true
	}
	if rd, ok := col["raw_default"]; ok {
		c.Default = deparse(rd)
	}

	constraints, _ := col["constraints"].([]any)
	for _, wrap := range constraints {
		cst, ok := asNode(wrap)["Constraint"].(map[string]any)
		if !ok {
			return fmt.Errorf("%w: column %s: malformed constraint", ErrRecognition, name)
		}
		contype, _ := cst["contype"].(string)
		conname, _ := cst["conname"].(string)
		switch contype {
		case "CONSTR_NOTNULL":
			c.NotNull = true
		case "CONSTR_NULL":
			c.NotNull = false
		case "CONSTR_DEFAULT":
			if expr := deparse(cst["raw_expr"]); expr != "" {
				c.Default = expr
			}
		case "CONSTR_PRIMARY":
			t.PK = appendUnique(t.PK, name)
		case "CONSTR_UNIQUE":
			if conname == "" {
				conname = fmt.Sprintf("%s_%s_key", t.Name, name)
			}
			*uniques = append(*uniques, &schema.UniqueConstraint{Name: conname, Table: t.Name, Columns: []string{name}})
		case "CONSTR_CHECK":
			if conname == "" {
				conname = fmt.Sprintf("%s_%s_check", t.Name, name)
			}
			*checks = append(*checks, &schema.CheckConstraint{
				Name:  conname,
				Table: t.Name,
				Expr:  deparse(cst["raw_expr"]),
				Node:  asNode(cst["raw_expr"]),
			})
			*checkN++
		case "CONSTR_FOREIGN":
			fk := &schema.ForeignKey{Table: t.Name, Columns: []string{name}}
			if conname == "" {
				conname = fmt.Sprintf("%s_%s_fkey", t.Name, name)
			}
			fk.Name = conname
			_, fk.RefTable = rangeVarAny(cst["pktable"])
			fk.RefColumns = stringList(cst["pk_attrs"])
			if code, ok := cst["fk_del_action"].(string); ok {
				fk.OnDelete = fkAction(code)
			}
			*fks = append(*fks, fk)
		case "CONSTR_IDENTITY":
			// GENERATED AS IDENTITY is the modern serial spelling
			switch c.Type {
			case "bigint":
				c.Type = "bigserial"
			default:
				c.Type = "serial"
			}
		default:
			return fmt.Errorf("%w: column %s: constraint kind %s", ErrRecognition, name, contype)
		}
	}

	if _, ok := typemap.Map(c.Type, c.Params, c.Array); !ok {
		c.Unmapped = true
	}
	return t.AddColumn(c)
}

func (e *TableExtractor) tableConstraint(raw json.RawMessage, t *schema.Table,
	uniques *[]*schema.UniqueConstraint, fks *[]*schema.ForeignKey,
	checks *[]*schema.CheckConstraint, checkN *int) error {

	var cst map[string]any
	if err := json.Unmarshal(raw, &cst); err != nil {
		return fmt.Errorf("%w: %v", ErrRecognition, err)
	}
	contype, _ := cst["contype"].(string)
	conname, _ := cst["conname"].(string)
	switch contype {
	case "CONSTR_PRIMARY":
		t.PK = stringList(cst["keys"])
	case "CONSTR_UNIQUE":
		cols := stringList(cst["keys"])
		if len(cols) == 0 {
			return fmt.Errorf("%w: unique constraint without columns", ErrRecognition)
		}
		if conname == "" {
			conname = fmt.Sprintf("%s_%s_key", t.Name, cols[0])
		}
		*uniques = append(*uniques, &schema.UniqueConstraint{Name: conname, Table: t.Name, Columns: cols})
	case "CONSTR_FOREIGN":
		fk := &schema.ForeignKey{Table: t.Name, Name: conname}
		fk.Columns = stringList(cst["fk_attrs"])
		if len(fk.Columns) == 0 {
			fk.Columns = stringList(cst["keys"])
		}
		_, fk.RefTable = rangeVarAny(cst["pktable"])
		fk.RefColumns = stringList(cst["pk_attrs"])
		if code, ok := cst["fk_del_action"].(string); ok {
			fk.OnDelete = fkAction(code)
		}
		if len(fk.Columns) == 0 || fk.RefTable == "" {
			return fmt.Errorf("%w: malformed foreign key %s", ErrRecognition, conname)
		}
		if fk.Name == "" {
			fk.Name = fmt.Sprintf("%s_%s_fkey", t.Name, fk.Columns[0])
		}
		*fks = append(*fks, fk)
	case "CONSTR_CHECK":
		if conname == "" {
			*checkN++
			conname = fmt.Sprintf("%s_check_%d", t.Name, *checkN)
		}
		*checks = append(*checks, &schema.CheckConstraint{
			Name:  conname,
			Table: t.Name,
			Expr:  deparse(cst["raw_expr"]),
			Node:  asNode(cst["raw_expr"]),
		})
	default:
		return fmt.Errorf("%w: table constraint kind %s", ErrRecognition, contype)
	}
	return nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
