package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseResult mirrors the top level of pg_query's JSON output.
type parseResult struct {
	Version int `json:"version"`
	Stmts   []struct {
		Stmt map[string]json.RawMessage `json:"stmt"`
	} `json:"stmts"`
}

func asNode(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// rangeVar reads schemaname and relname from a RangeVar node, flat or wrapped.
func rangeVar(raw json.RawMessage) (schemaName, name string) {
	if len(raw) == 0 {
		return "", ""
	}
	var flat struct {
		Schemaname string `json:"schemaname"`
		Relname    string `json:"relname"`
	}
	if err := json.Unmarshal(raw, &flat); err == nil && flat.Relname != "" {
		return flat.Schemaname, flat.Relname
	}
	var wrapped struct {
		RangeVar struct {
			Schemaname string `json:"schemaname"`
			Relname    string `json:"relname"`
		} `json:"RangeVar"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.RangeVar.Relname != "" {
		return wrapped.RangeVar.Schemaname, wrapped.RangeVar.Relname
	}
	return "", ""
}

func rangeVarAny(v any) (schemaName, name string) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", ""
	}
	return rangeVar(b)
}

// nodeString reads a String node, accepting both sval and the legacy str key.
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

// stringList extracts identifiers from a pg_query list of String nodes.
func stringList(raw any) []string {
	var out []string
	items, _ := raw.([]any)
	for _, it := range items {
		if s := nodeString(asNode(it)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// intConst reads an integer constant, used for type modifiers.
func intConst(node map[string]any) (int, bool) {
	ac, ok := node["A_Const"].(map[string]any)
	if !ok {
		return 0, false
	}
	if iv, ok := ac["ival"].(map[string]any); ok {
		if f, ok := iv["ival"].(float64); ok {
			return int(f), true
		}
		return 0, true // ival omitted when zero
	}
	if val, ok := ac["val"].(map[string]any); ok {
		if iv, ok := val["Integer"].(map[string]any); ok {
			if f, ok := iv["ival"].(float64); ok {
				return int(f), true
			}
		}
	}
	return 0, false
}

// typeInfo is the decoded shape of a TypeName node.
type typeInfo struct {
	Name   string
	Params []int
	Array  bool
}

// decodeTypeName recovers a readable type name plus modifiers from a TypeName
// node. pg_catalog aliases are normalized to the names pg_dump writes.
func decodeTypeName(node map[string]any) (typeInfo, bool) {
	if inner, ok := node["TypeName"].(map[string]any); ok {
		node = inner
	}
	names, _ := node["names"].([]any)
	var parts []string
	for _, it := range names {
		if s := nodeString(asNode(it)); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return typeInfo{}, false
	}
	ti := typeInfo{Name: normalizeTypeName(parts)}

	if mods, ok := node["typmods"].([]any); ok {
		for _, mod := range mods {
			if n, ok := intConst(asNode(mod)); ok {
				ti.Params = append(ti.Params, n)
			}
		}
	}
	if bounds, ok := node["arrayBounds"].([]any); ok && len(bounds) > 0 {
		ti.Array = true
	}
	return ti, true
}

// normalizeTypeName collapses qualified catalog names to the spelling
// pg_dump uses, and otherwise keeps the last identifier.
func normalizeTypeName(parts []string) string {
	switch strings.Join(parts, ".") {
	case "pg_catalog.int2":
		return "smallint"
	case "pg_catalog.int4":
		return "integer"
	case "pg_catalog.int8":
		return "bigint"
	case "pg_catalog.varchar":
		return "character varying"
	case "pg_catalog.bpchar":
		return "character"
	case "pg_catalog.text":
		return "text"
	case "pg_catalog.bool":
		return "boolean"
	case "pg_catalog.numeric":
		return "numeric"
	case "pg_catalog.timestamp":
		return "timestamp without time zone"
	case "pg_catalog.timestamptz":
		return "timestamp with time zone"
	case "pg_catalog.time":
		return "time"
	case "pg_catalog.timetz":
		return "time with time zone"
	case "pg_catalog.float4":
		return "real"
	case "pg_catalog.float8":
		return "double precision"
	}
	return parts[len(parts)-1]
}

// fkAction converts the parse-tree single-letter action codes to SQL
// keywords. The output carries a fixed action set; omitted, SET DEFAULT and
// unknown codes all clamp to NO ACTION.
func fkAction(code string) string {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "r":
		return "RESTRICT"
	case "c":
		return "CASCADE"
	case "n":
		return "SET NULL"
	default:
		return "NO ACTION"
	}
}

// deparse renders the limited expression vocabulary we meet in defaults,
// index definitions and check constraints back to SQL text. Unknown node
// kinds render as the empty string so callers can refuse them.
func deparse(node any) string {
	m := asNode(node)
	if m == nil {
		return ""
	}

	if tc, ok := m["TypeCast"].(map[string]any); ok {
		arg := deparse(tc["arg"])
		if arg == "" {
			return ""
		}
		if ti, ok := decodeTypeName(asNode(tc["typeName"])); ok {
			suffix := ""
			if ti.Array {
				suffix = "[]"
			}
			return fmt.Sprintf("%s::%s%s", arg, ti.Name, suffix)
		}
		return arg
	}

	if ac, ok := m["A_Const"].(map[string]any); ok {
		return deparseConst(ac)
	}

	if cr, ok := m["ColumnRef"].(map[string]any); ok {
		fields, _ := cr["fields"].([]any)
		var parts []string
		for _, f := range fields {
			if s := nodeString(asNode(f)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ".")
	}

	if fc, ok := m["FuncCall"].(map[string]any); ok {
		names, _ := fc["funcname"].([]any)
		name := ""
		if len(names) > 0 {
			name = nodeString(asNode(names[len(names)-1]))
		}
		if name == "" {
			return ""
		}
		var args []string
		if list, ok := fc["args"].([]any); ok {
			for _, a := range list {
				args = append(args, deparse(a))
			}
		}
		return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
	}

	if ae, ok := m["A_Expr"].(map[string]any); ok {
		return deparseAExpr(ae)
	}

	if be, ok := m["BoolExpr"].(map[string]any); ok {
		op := ""
		switch be["boolop"] {
		case "AND_EXPR":
			op = " AND "
		case "OR_EXPR":
			op = " OR "
		case "NOT_EXPR":
			arg := ""
			if args, ok := be["args"].([]any); ok && len(args) == 1 {
				arg = deparse(args[0])
			}
			if arg == "" {
				return ""
			}
			return fmt.Sprintf("NOT (%s)", arg)
		default:
			return ""
		}
		args, _ := be["args"].([]any)
		var parts []string
		for _, a := range args {
			s := deparse(a)
			if s == "" {
				return ""
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, op) + ")"
	}

	if nt, ok := m["NullTest"].(map[string]any); ok {
		arg := deparse(nt["arg"])
		if arg == "" {
			return ""
		}
		if nt["nulltesttype"] == "IS_NOT_NULL" {
			return arg + " IS NOT NULL"
		}
		return arg + " IS NULL"
	}

	if arr, ok := m["A_ArrayExpr"].(map[string]any); ok {
		elements, _ := arr["elements"].([]any)
		var parts []string
		for _, el := range elements {
			s := deparse(el)
			if s == "" {
				return ""
			}
			parts = append(parts, s)
		}
		return "ARRAY[" + strings.Join(parts, ", ") + "]"
	}

	if l, ok := m["List"].(map[string]any); ok {
		items, _ := l["items"].([]any)
		var parts []string
		for _, it := range items {
			s := deparse(it)
			if s == "" {
				return ""
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}

	return ""
}

func deparseAExpr(ae map[string]any) string {
	op := ""
	if names, ok := ae["name"].([]any); ok && len(names) > 0 {
		op = nodeString(asNode(names[0]))
	}
	lex := deparse(ae["lexpr"])
	rex := deparse(ae["rexpr"])
	if rex == "" {
		// IN lists arrive as a bare item array
		if items, ok := ae["rexpr"].([]any); ok {
			var parts []string
			for _, it := range items {
				s := deparse(it)
				if s == "" {
					return ""
				}
				parts = append(parts, s)
			}
			rex = "(" + strings.Join(parts, ", ") + ")"
		}
	}
	if op == "" || lex == "" || rex == "" {
		return ""
	}
	switch ae["kind"] {
	case "AEXPR_OP_ANY":
		return fmt.Sprintf("(%s %s ANY (%s))", lex, op, rex)
	case "AEXPR_OP_ALL":
		return fmt.Sprintf("(%s %s ALL (%s))", lex, op, rex)
	case "AEXPR_IN":
		if op == "=" {
			return fmt.Sprintf("(%s IN %s)", lex, rex)
		}
		return fmt.Sprintf("(%s NOT IN %s)", lex, rex)
	case "AEXPR_BETWEEN":
		return ""
	}
	return fmt.Sprintf("(%s %s %s)", lex, op, rex)
}

func deparseConst(ac map[string]any) string {
	if isNull, _ := ac["isnull"].(bool); isNull {
		return "NULL"
	}
	if sv, ok := ac["sval"].(map[string]any); ok {
		s, _ := sv["sval"].(string)
		return quoteLiteral(s)
	}
	if iv, ok := ac["ival"].(map[string]any); ok {
		f, _ := iv["ival"].(float64)
		return fmt.Sprintf("%d", int64(f))
	}
	if fv, ok := ac["fval"].(map[string]any); ok {
		if s, ok := fv["fval"].(string); ok {
			return s
		}
	}
	if bv, ok := ac["boolval"].(map[string]any); ok {
		if b, _ := bv["boolval"].(bool); b {
			return "true"
		}
		return "false"
	}
	// legacy wrapper
	if val, ok := ac["val"].(map[string]any); ok {
		if s := nodeString(val); s != "" {
			return quoteLiteral(s)
		}
		if iv, ok := val["Integer"].(map[string]any); ok {
			if f, ok := iv["ival"].(float64); ok {
				return fmt.Sprintf("%d", int64(f))
			}
		}
	}
	return ""
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
