package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolvedReference marks an entity pointing at a table or column that
// was never extracted. The entity is dropped from the model and the drop is
// recorded so the verifier can surface it.
var ErrUnresolvedReference = errors.New("unresolved reference")

// Fixed set of ON DELETE actions.
const (
	FKNoAction = "NO ACTION"
	FKCascade  = "CASCADE"
	FKSetNull  = "SET NULL"
	FKRestrict = "RESTRICT"
)

type Column struct {
	Name     string
	Type     string // normalized source type name, e.g. "varchar", "numeric"
	Params   []int  // length, or precision and scale
	Array    bool
	NotNull  bool
	Default  string // deparsed default expression, empty when none
	Comment  string
	Enum     []string // literal values copied from a classified check during Link
	Unmapped bool     // no type-mapper entry; emitted in degraded form
}

type Table struct {
	Name    string
	Columns []Column
	PK      []string

	colPos map[string]int
}

func (t *Table) AddColumn(c Column) error {
	if t.colPos == nil {
		t.colPos = map[string]int{}
	}
	if _, ok := t.colPos[c.Name]; ok {
		return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
	}
	t.colPos[c.Name] = len(t.Columns)
	t.Columns = append(t.Columns, c)
	return nil
}

func (t *Table) Column(name string) (*Column, bool) {
	if i, ok := t.colPos[name]; ok {
		return &t.Columns[i], true
	}
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

type Index struct {
	Name    string
	Table   string
	Columns []string // column names, or deparsed expressions for expression indexes
	Unique  bool
}

type UniqueConstraint struct {
	Name    string
	Table   string
	Columns []string
}

type ForeignKey struct {
	Name       string
	Table      string
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   string // one of the FK* constants
}

// CheckClass is the cached classification of a check constraint.
type CheckClass int

const (
	CheckUnclassified CheckClass = iota
	CheckEnum                    // single-column literal membership, rendered as table.enum
	CheckOpaque                  // anything else, rendered as table.check
)

type CheckConstraint struct {
	Name  string
	Table string
	Expr  string         // deparsed expression text
	Node  map[string]any // decoded parse node of the expression

	Class      CheckClass
	EnumColumn string
	EnumValues []string
}

type Comment struct {
	Table  string
	Column string
	Text   string
}

// PKDecl is a primary key declared through ALTER TABLE. Held until Link so
// extraction order never matters.
type PKDecl struct {
	Table   string
	Columns []string
}

// DefaultDecl is a column default declared through ALTER TABLE.
type DefaultDecl struct {
	Table  string
	Column string
	Expr   string
}

// Classifier decides whether a check expression is a literal membership test.
// Keeping it a plain function parameter keeps the model free of parsing
// concerns and the classification independent of extraction order.
type Classifier func(expr map[string]any) (column string, values []string, ok bool)

// Model is the single owner of everything one conversion run extracts.
// Declaration order is preserved everywhere; the maps only serve lookups.
type Model struct {
	Tables      []*Table
	Indexes     []*Index
	Uniques     []*UniqueConstraint
	ForeignKeys []*ForeignKey
	Checks      []*CheckConstraint
	Comments    []Comment
	PKDecls     []PKDecl
	Defaults    []DefaultDecl

	// Dropped records every entity discarded during extraction or linking,
	// one note per drop. The verifier turns each note into a discrepancy so
	// local recoveries never mask a global accounting error.
	Dropped []string

	tablePos  map[string]int
	usedNames map[string]bool // index, unique and fk constraint names share a namespace
}

func NewModel() *Model {
	return &Model{tablePos: map[string]int{}, usedNames: map[string]bool{}}
}

func (m *Model) AddTable(t *Table) error {
	if _, ok := m.tablePos[t.Name]; ok {
		return fmt.Errorf("duplicate table %s", t.Name)
	}
	m.tablePos[t.Name] = len(m.Tables)
	m.Tables = append(m.Tables, t)
	return nil
}

func (m *Model) Table(name string) (*Table, bool) {
	if i, ok := m.tablePos[name]; ok {
		return m.Tables[i], true
	}
	return nil, false
}

func (m *Model) AddIndex(ix *Index) error {
	if err := m.claimName(ix.Name); err != nil {
		return err
	}
	m.Indexes = append(m.Indexes, ix)
	return nil
}

func (m *Model) AddUnique(uc *UniqueConstraint) error {
	if err := m.claimName(uc.Name); err != nil {
		return err
	}
	m.Uniques = append(m.Uniques, uc)
	return nil
}

func (m *Model) AddForeignKey(fk *ForeignKey) error {
	if err := m.claimName(fk.Name); err != nil {
		return err
	}
	if fk.OnDelete == "" {
		fk.OnDelete = FKNoAction
	}
	m.ForeignKeys = append(m.ForeignKeys, fk)
	return nil
}

func (m *Model) AddCheck(cc *CheckConstraint) error {
	if err := m.claimName(cc.Name); err != nil {
		return err
	}
	m.Checks = append(m.Checks, cc)
	return nil
}

func (m *Model) AddComment(c Comment) {
	m.Comments = append(m.Comments, c)
}

func (m *Model) AddPKDecl(d PKDecl) {
	m.PKDecls = append(m.PKDecls, d)
}

func (m *Model) AddDefault(d DefaultDecl) {
	m.Defaults = append(m.Defaults, d)
}

func (m *Model) claimName(name string) error {
	if name == "" {
		return nil
	}
	if m.usedNames[name] {
		return fmt.Errorf("duplicate constraint or index name %s", name)
	}
	m.usedNames[name] = true
	return nil
}

// Drop records the loss of one entity.
func (m *Model) Drop(format string, args ...any) {
	m.Dropped = append(m.Dropped, fmt.Sprintf(format, args...))
}

// Link is the second pass: with all entities present it validates
// cross-references, attaches comments, and classifies check constraints.
// Entities that fail validation are removed and recorded via Drop; the
// returned errors describe each removal.
func (m *Model) Link(classify Classifier) []error {
	var errs []error
	fail := func(err error) {
		errs = append(errs, err)
		m.Drop("%v", err)
	}

	for _, d := range m.PKDecls {
		t, ok := m.Table(d.Table)
		if !ok {
			fail(fmt.Errorf("%w: primary key on table %s", ErrUnresolvedReference, d.Table))
			continue
		}
		// a table gets exactly one primary key; the first declaration wins
		if len(t.PK) > 0 {
			fail(fmt.Errorf("duplicate primary key declaration on table %s", d.Table))
			continue
		}
		t.PK = d.Columns
	}
	for _, d := range m.Defaults {
		t, ok := m.Table(d.Table)
		if !ok {
			fail(fmt.Errorf("%w: default on %s.%s", ErrUnresolvedReference, d.Table, d.Column))
			continue
		}
		c, ok := t.Column(d.Column)
		if !ok {
			fail(fmt.Errorf("%w: default on %s.%s", ErrUnresolvedReference, d.Table, d.Column))
			continue
		}
		c.Default = d.Expr
	}

	// PK columns are implicitly not null.
	for _, t := range m.Tables {
		for _, pk := range t.PK {
			if c, ok := t.Column(pk); ok {
				c.NotNull = true
			}
		}
	}

	keptIx := m.Indexes[:0]
	for _, ix := range m.Indexes {
		if err := m.checkColumns(ix.Table, ix.Columns, "index "+ix.Name, true); err != nil {
			fail(err)
			continue
		}
		keptIx = append(keptIx, ix)
	}
	m.Indexes = keptIx

	kept := m.Uniques[:0]
	for _, uc := range m.Uniques {
		if err := m.checkColumns(uc.Table, uc.Columns, "unique constraint "+uc.Name, false); err != nil {
			fail(err)
			continue
		}
		kept = append(kept, uc)
	}
	m.Uniques = kept

	keptFK := m.ForeignKeys[:0]
	for _, fk := range m.ForeignKeys {
		if err := m.checkColumns(fk.Table, fk.Columns, "foreign key "+fk.Name, false); err != nil {
			fail(err)
			continue
		}
		if _, ok := m.Table(fk.RefTable); !ok {
			fail(fmt.Errorf("%w: foreign key %s references table %s", ErrUnresolvedReference, fk.Name, fk.RefTable))
			continue
		}
		keptFK = append(keptFK, fk)
	}
	m.ForeignKeys = keptFK

	keptCC := m.Checks[:0]
	for _, cc := range m.Checks {
		t, ok := m.Table(cc.Table)
		if !ok {
			fail(fmt.Errorf("%w: check %s on table %s", ErrUnresolvedReference, cc.Name, cc.Table))
			continue
		}
		cc.Class = CheckOpaque
		if classify != nil && cc.Node != nil {
			if col, values, ok := classify(cc.Node); ok {
				if c, found := t.Column(col); found {
					cc.Class = CheckEnum
					cc.EnumColumn = col
					cc.EnumValues = values
					c.Enum = values
				}
			}
		}
		if cc.Class == CheckOpaque && cc.Expr == "" {
			// nothing renderable survives for table.check
			fail(fmt.Errorf("check %s on table %s has an expression we cannot render", cc.Name, cc.Table))
			continue
		}
		keptCC = append(keptCC, cc)
	}
	m.Checks = keptCC

	keptCm := m.Comments[:0]
	for _, cm := range m.Comments {
		t, ok := m.Table(cm.Table)
		if !ok {
			fail(fmt.Errorf("%w: comment on %s.%s", ErrUnresolvedReference, cm.Table, cm.Column))
			continue
		}
		c, ok := t.Column(cm.Column)
		if !ok {
			fail(fmt.Errorf("%w: comment on %s.%s", ErrUnresolvedReference, cm.Table, cm.Column))
			continue
		}
		c.Comment = cm.Text
		keptCm = append(keptCm, cm)
	}
	m.Comments = keptCm

	return errs
}

// checkColumns verifies every referenced column exists on the owning table.
// Expression entries (anything that is not a bare identifier) are allowed
// when allowExpr is set, for expression indexes.
func (m *Model) checkColumns(table string, cols []string, what string, allowExpr bool) error {
	t, ok := m.Table(table)
	if !ok {
		return fmt.Errorf("%w: %s on table %s", ErrUnresolvedReference, what, table)
	}
	for _, col := range cols {
		if allowExpr && strings.ContainsAny(col, "() ") {
			continue
		}
		if _, ok := t.Column(col); !ok {
			return fmt.Errorf("%w: %s: column %s not on table %s", ErrUnresolvedReference, what, col, table)
		}
	}
	return nil
}
