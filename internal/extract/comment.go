package extract

import (
	"encoding/json"
	"fmt"

	"pgknex/internal/schema"
)

// CommentExtractor recognizes COMMENT ON COLUMN statements. Comments on
// anything but a column (tables, views, extensions) are out of scope and
// consumed silently. Attachment to the column happens during linking.
type CommentExtractor struct {
	Exclude map[string]bool
}

func (e *CommentExtractor) Match(kind string) bool { return kind == "CommentStmt" }

func (e *CommentExtractor) Extract(st Statement, m *schema.Model) (bool, error) {
	var node struct {
		Objtype string          `json:"objtype"`
		Object  json.RawMessage `json:"object"`
		Comment string          `json:"comment"`
	}
	if err := json.Unmarshal(st.Node, &node); err != nil {
		err = fmt.Errorf("%w: %v", ErrRecognition, err)
		m.Drop("%v", err)
		return true, err
	}
	if node.Objtype != "OBJECT_COLUMN" {
		return true, nil
	}

	var object map[string]any
	if err := json.Unmarshal(node.Object, &object); err != nil {
		err = fmt.Errorf("%w: %v", ErrRecognition, err)
		m.Drop("%v", err)
		return true, err
	}
	var parts []string
	if l, ok := object["List"].(map[string]any); ok {
		parts = stringList(l["items"])
	} else {
		parts = stringList(object["items"])
	}

	// qualified name: [schema,] table, column
	var table, column string
	switch len(parts) {
	case 2:
		table, column = parts[0], parts[1]
	case 3:
		table, column = parts[1], parts[2]
	default:
		err := fmt.Errorf("%w: %s", ErrRecognition, summarize(st.SQL))
		m.Drop("%v", err)
		return true, err
	}
	if e.Exclude[table] {
		return true, nil
	}
	m.AddComment(schema.Comment{Table: table, Column: column, Text: node.Comment})
	return true, nil
}
