// Package typemap resolves PostgreSQL column types to Knex builder calls.
package typemap

import (
	"fmt"
	"strings"
)

// Mapping is one Knex column builder call: table.Method("name", Args).
type Mapping struct {
	Method string
	Args   string // rendered arguments after the column name, empty when none
}

// AutoIncrement reports whether the method is one of the dedicated
// auto-increment kinds, which fold the primary key into the column.
func (m Mapping) AutoIncrement() bool {
	return m.Method == "increments" || m.Method == "bigIncrements"
}

// base maps parameterless type names. Catalog aliases (int4, bool, ...) are
// listed alongside their spelled-out forms so the mapper accepts both the
// parse-tree names and the ones pg_dump writes.
var base = map[string]string{
	"smallint": "integer",
	"int2":     "integer",
	"integer":  "integer",
	"int4":     "integer",
	"int":      "integer",
	"bigint":   "bigInteger",
	"int8":     "bigInteger",

	"serial":    "increments",
	"serial4":   "increments",
	"bigserial": "bigIncrements",
	"serial8":   "bigIncrements",

	"boolean": "boolean",
	"bool":    "boolean",

	"text": "text",

	"date": "date",
	"time": "time",

	"json":  "json",
	"jsonb": "jsonb",
	"uuid":  "uuid",

	"bytea": "binary",

	"real":             "float",
	"float4":           "float",
	"double precision": "double",
	"float8":           "double",
}

// Map resolves (type name, parameters, array flag) to a Knex builder call.
// It is a pure function: same input, same output, no state. ok is false for
// anything outside the supported set; callers must surface that as a mapping
// gap, never pass the raw type through silently.
func Map(name string, params []int, array bool) (Mapping, bool) {
	name = strings.ToLower(strings.TrimSpace(name))

	if array {
		if _, ok := mapScalar(name, params); !ok {
			return Mapping{}, false
		}
		return Mapping{Method: "specificType", Args: fmt.Sprintf("`%s ARRAY`", strings.ToUpper(name))}, true
	}
	return mapScalar(name, params)
}

func mapScalar(name string, params []int) (Mapping, bool) {
	switch name {
	case "character varying", "varchar", "character", "bpchar", "char":
		if len(params) >= 1 {
			return Mapping{Method: "string", Args: fmt.Sprintf("%d", params[0])}, true
		}
		return Mapping{Method: "string"}, true

	case "numeric", "decimal":
		if len(params) >= 2 {
			return Mapping{Method: "decimal", Args: fmt.Sprintf("%d, %d", params[0], params[1])}, true
		}
		return Mapping{Method: "decimal"}, true

	case "timestamp with time zone", "timestamptz":
		return Mapping{Method: "timestamp", Args: "{ useTz: true }"}, true
	case "timestamp without time zone", "timestamp":
		return Mapping{Method: "timestamp"}, true
	case "time with time zone", "timetz", "time without time zone":
		return Mapping{Method: "time"}, true
	}

	if method, ok := base[name]; ok {
		return Mapping{Method: method}, true
	}
	return Mapping{}, false
}
