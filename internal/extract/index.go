package extract

import (
	"encoding/json"
	"fmt"

	"pgknex/internal/schema"
)

// IndexExtractor recognizes CREATE [UNIQUE] INDEX statements. A unique index
// is surfaced as an Index with the uniqueness flag set, never as a
// UniqueConstraint; the two are merged for reporting only in the verifier.
type IndexExtractor struct {
	Exclude map[string]bool
}

func (e *IndexExtractor) Match(kind string) bool { return kind == "IndexStmt" }

func (e *IndexExtractor) Extract(st Statement, m *schema.Model) (bool, error) {
	var node struct {
		Unique      bool             `json:"unique"`
		Idxname     string           `json:"idxname"`
		Relation    json.RawMessage  `json:"relation"`
		IndexParams []map[string]any `json:"indexParams"`
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

	var cols []string
	for _, p := range node.IndexParams {
		ie, ok := p["IndexElem"].(map[string]any)
		if !ok {
			err := fmt.Errorf("%w: index %s: malformed element", ErrRecognition, node.Idxname)
			m.Drop("%v", err)
			return true, err
		}
		if n, ok := ie["name"].(string); ok && n != "" {
			cols = append(cols, n)
			continue
		}
		if sql := deparse(ie["expr"]); sql != "" {
			cols = append(cols, sql)
			continue
		}
		err := fmt.Errorf("%w: index %s: unsupported element", ErrRecognition, node.Idxname)
		m.Drop("%v", err)
		return true, err
	}
	if len(cols) == 0 {
		err := fmt.Errorf("%w: index %s has no columns", ErrRecognition, node.Idxname)
		m.Drop("%v", err)
		return true, err
	}

	name := node.Idxname
	if name == "" {
		name = fmt.Sprintf("%s_%s_index", table, cols[0])
	}
	if err := m.AddIndex(&schema.Index{Name: name, Table: table, Columns: cols, Unique: node.Unique}); err != nil {
		m.Drop("%v", err)
		return true, err
	}
	return true, nil
}
