// Package classify decides whether a check constraint is a disguised
// enumeration: a test that one column's value is a member of a fixed list of
// string literals. Everything else is opaque and stays a generic check.
package classify

// Enum inspects the decoded parse node of a check expression. It recognizes
//
//	col = ANY (ARRAY['a', 'b', ...])
//	col IN ('a', 'b', ...)
//
// with type casts tolerated around the column, the array and the elements,
// which is how pg_dump writes them. Values come back in source order. Any
// deviation (a second column, a non-literal element, OR chains, range
// comparisons) returns ok == false.
//
// The function is stateless: the same expression classifies identically
// regardless of where it appeared in the dump.
func Enum(expr map[string]any) (column string, values []string, ok bool) {
	ae, ok := uncast(expr)["A_Expr"].(map[string]any)
	if !ok {
		return "", nil, false
	}
	kind, _ := ae["kind"].(string)
	if kind != "AEXPR_OP_ANY" && kind != "AEXPR_IN" {
		return "", nil, false
	}
	if op := operatorName(ae["name"]); op != "=" {
		return "", nil, false
	}

	column = columnRef(ae["lexpr"])
	if column == "" {
		return "", nil, false
	}

	var elements []any
	switch kind {
	case "AEXPR_OP_ANY":
		arr, ok := uncast(asNode(ae["rexpr"]))["A_ArrayExpr"].(map[string]any)
		if !ok {
			return "", nil, false
		}
		elements, _ = arr["elements"].([]any)
	case "AEXPR_IN":
		elements = listItems(ae["rexpr"])
	}
	if len(elements) == 0 {
		return "", nil, false
	}

	for _, el := range elements {
		v, ok := stringConst(asNode(el))
		if !ok {
			return "", nil, false
		}
		values = append(values, v)
	}
	return column, values, true
}

// asNode narrows an any-typed child to a node map.
func asNode(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// uncast strips any number of TypeCast wrappers.
func uncast(node map[string]any) map[string]any {
	for {
		tc, ok := node["TypeCast"].(map[string]any)
		if !ok {
			return node
		}
		node = asNode(tc["arg"])
	}
}

// columnRef returns the column name when the node is a single bare column
// reference, empty otherwise.
func columnRef(v any) string {
	cr, ok := uncast(asNode(v))["ColumnRef"].(map[string]any)
	if !ok {
		return ""
	}
	fields, _ := cr["fields"].([]any)
	if len(fields) != 1 {
		return ""
	}
	return nodeString(asNode(fields[0]))
}

// operatorName reads the operator from an A_Expr name list.
func operatorName(v any) string {
	items, _ := v.([]any)
	if len(items) != 1 {
		return ""
	}
	return nodeString(asNode(items[0]))
}

// listItems flattens the rexpr of an IN expression, which arrives either as
// a List node or as a plain array depending on the parser version.
func listItems(v any) []any {
	if items, ok := v.([]any); ok {
		return items
	}
	if l, ok := asNode(v)["List"].(map[string]any); ok {
		items, _ := l["items"].([]any)
		return items
	}
	return nil
}

// nodeString reads a String node, accepting both the sval and the legacy
// str spelling.
func nodeString(node map[string]any) string {
	s, ok := node["String"].(map[string]any)
	if !ok {
		return ""
	}
	if v, ok := s["sval"].(string); ok && v != "" {
		return v
	}
	if v, ok := s["str"].(string); ok {
		return v
	}
	return ""
}

// stringConst reads a string literal A_Const, accepting both the current
// {"sval":{"sval":...}} shape and the legacy {"val":{"String":...}} one.
func stringConst(node map[string]any) (string, bool) {
	ac, ok := uncast(node)["A_Const"].(map[string]any)
	if !ok {
		return "", false
	}
	if sv, ok := ac["sval"].(map[string]any); ok {
		if v, ok := sv["sval"].(string); ok {
			return v, true
		}
		if v, ok := sv["str"].(string); ok {
			return v, true
		}
	}
	if val, ok := ac["val"].(map[string]any); ok {
		if v := nodeString(val); v != "" {
			return v, true
		}
	}
	return "", false
}
