package extract

import (
	"encoding/json"
	"fmt"

	"pgknex/internal/schema"
)

// AlterExtractor recognizes ALTER TABLE statements and routes each ADD
// CONSTRAINT command to the recognizer for its constraint family. Ownership
// changes and column-default tweaks from pg_dump are consumed without
// producing entities; anything else is a recognition failure.
type AlterExtractor struct {
	Exclude map[string]bool

	fk     ForeignKeyExtractor
	unique UniqueConstraintExtractor
	check  CheckExtractor
	pk     PrimaryKeyExtractor
}

func (e *AlterExtractor) Match(kind string) bool { return kind == "AlterTableStmt" }

func (e *AlterExtractor) Extract(st Statement, m *schema.Model) (bool, error) {
	var node struct {
		Relation json.RawMessage `json:"relation"`
		Cmds     []struct {
			AlterTableCmd struct {
				Subtype string          `json:"subtype"`
				Name    string          `json:"name"`
				Def     json.RawMessage `json:"def"`
			} `json:"AlterTableCmd"`
		} `json:"cmds"`
	}
	if err := json.Unmarshal(st.Node, &node); err != nil {
		err = fmt.Errorf("%w: %v", ErrRecognition, err)
		m.Drop("%v", err)
		return true, err
	}
	_, table := rangeVar(node.Relation)
	if table == "" {
		err := fmt.Errorf("%w: %s", ErrRecognition, summarize(st.SQL))
		m.Drop("%v", err)
		return true, err
	}
	if e.Exclude[table] {
		return true, nil
	}

	for _, c := range node.Cmds {
		cmd := c.AlterTableCmd
		switch cmd.Subtype {
		case "AT_AddConstraint":
			var wrap map[string]any
			if err := json.Unmarshal(cmd.Def, &wrap); err != nil {
				err = fmt.Errorf("%w: %v", ErrRecognition, err)
				m.Drop("%v", err)
				return true, err
			}
			cst, ok := wrap["Constraint"].(map[string]any)
			if !ok {
				err := fmt.Errorf("%w: %s", ErrRecognition, summarize(st.SQL))
				m.Drop("%v", err)
				return true, err
			}
			contype, _ := cst["contype"].(string)
			var err error
			switch contype {
			case "CONSTR_FOREIGN":
				err = e.fk.Extract(table, cst, m)
			case "CONSTR_UNIQUE":
				err = e.unique.Extract(table, cst, m)
			case "CONSTR_CHECK":
				err = e.check.Extract(table, cst, m)
			case "CONSTR_PRIMARY":
				err = e.pk.Extract(table, cst, m)
			default:
				err = fmt.Errorf("%w: constraint kind %s on table %s", ErrRecognition, contype, table)
			}
			if err != nil {
				m.Drop("%v", err)
				return true, err
			}
		case "AT_ColumnDefault":
			// pg_dump emits serial columns as integer plus a nextval default
			var def any
			_ = json.Unmarshal(cmd.Def, &def)
			if expr := deparse(def); expr != "" {
				m.AddDefault(schema.DefaultDecl{Table: table, Column: cmd.Name, Expr: expr})
			}
		case "AT_ChangeOwner", "AT_SetNotNull", "AT_DropNotNull", "AT_SetStatistics",
			"AT_SetStorage", "AT_ClusterOn", "AT_EnableTrigAll", "AT_DisableTrigAll":
			// no schema content we model
		default:
			err := fmt.Errorf("%w: alter subtype %s on table %s", ErrRecognition, cmd.Subtype, table)
			m.Drop("%v", err)
			return true, err
		}
	}
	return true, nil
}

// ForeignKeyExtractor recognizes ADD CONSTRAINT ... FOREIGN KEY commands.
// The on-delete action defaults to NO ACTION when omitted.
type ForeignKeyExtractor struct{}

func (ForeignKeyExtractor) Extract(table string, cst map[string]any, m *schema.Model) error {
	fk := &schema.ForeignKey{Table: table}
	fk.Name, _ = cst["conname"].(string)
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
		return fmt.Errorf("%w: malformed foreign key %s on table %s", ErrRecognition, fk.Name, table)
	}
	if fk.Name == "" {
		fk.Name = fmt.Sprintf("%s_%s_fkey", table, fk.Columns[0])
	}
	return m.AddForeignKey(fk)
}

// UniqueConstraintExtractor recognizes ADD CONSTRAINT ... UNIQUE commands.
// Modeled apart from unique indexes even though PostgreSQL backs both with
// the same construct.
type UniqueConstraintExtractor struct{}

func (UniqueConstraintExtractor) Extract(table string, cst map[string]any, m *schema.Model) error {
	uc := &schema.UniqueConstraint{Table: table}
	uc.Name, _ = cst["conname"].(string)
	uc.Columns = stringList(cst["keys"])
	if len(uc.Columns) == 0 {
		return fmt.Errorf("%w: unique constraint %s on table %s has no columns", ErrRecognition, uc.Name, table)
	}
	if uc.Name == "" {
		uc.Name = fmt.Sprintf("%s_%s_key", table, uc.Columns[0])
	}
	return m.AddUnique(uc)
}

// CheckExtractor recognizes ADD CONSTRAINT ... CHECK commands. The raw
// expression node is kept for the classifier; classification itself happens
// during linking.
type CheckExtractor struct{}

func (CheckExtractor) Extract(table string, cst map[string]any, m *schema.Model) error {
	cc := &schema.CheckConstraint{Table: table}
	cc.Name, _ = cst["conname"].(string)
	cc.Node = asNode(cst["raw_expr"])
	cc.Expr = deparse(cst["raw_expr"])
	if cc.Node == nil {
		return fmt.Errorf("%w: check %s on table %s has no expression", ErrRecognition, cc.Name, table)
	}
	if cc.Name == "" {
		cc.Name = fmt.Sprintf("%s_check", table)
	}
	return m.AddCheck(cc)
}

// PrimaryKeyExtractor recognizes ADD CONSTRAINT ... PRIMARY KEY commands,
// which is how pg_dump declares every primary key. The declaration is staged
// on the model and applied during linking, so it resolves even when the dump
// orders it ahead of the table.
type PrimaryKeyExtractor struct{}

func (PrimaryKeyExtractor) Extract(table string, cst map[string]any, m *schema.Model) error {
	keys := stringList(cst["keys"])
	if len(keys) == 0 {
		return fmt.Errorf("%w: primary key on table %s has no columns", ErrRecognition, table)
	}
	m.AddPKDecl(schema.PKDecl{Table: table, Columns: keys})
	return nil
}
