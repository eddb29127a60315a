// Package extract turns raw DDL text into a populated schema model. The dump
// is split into top-level statements with pg_query's parser-backed splitter,
// each statement is parsed once, and the decoded tree is dispatched by node
// kind to the extractor owning that statement family.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pgquery "github.com/pganalyze/pg_query_go/v6"

	"pgknex/internal/schema"
)

// ErrRecognition marks a statement that was routed to a family whose grammar
// it does not match. Fatal for the statement only; extraction continues.
var ErrRecognition = errors.New("unrecognized statement")

// Statement is one top-level statement plus its decoded parse tree.
type Statement struct {
	SQL  string
	Kind string          // top-level node kind, e.g. "CreateStmt"
	Node json.RawMessage // payload of that node
}

// Extractor recognizes one statement family. Extract reports whether the
// statement was consumed; a matched statement no extractor consumes is a
// recognition error.
type Extractor interface {
	Match(kind string) bool
	Extract(st Statement, m *schema.Model) (bool, error)
}

// Options controls one extraction pass.
type Options struct {
	Exclude  map[string]bool // table names filtered out before modeling
	Progress func()          // called once per statement
}

// skipKinds lists statement families outside the supported grammar. They are
// recognized only enough to be skipped and never enter any count.
var skipKinds = map[string]bool{
	"ViewStmt":                   true,
	"CreateTrigStmt":             true,
	"CreateFunctionStmt":         true,
	"CreateExtensionStmt":        true,
	"CreateEnumStmt":             true,
	"CreateDomainStmt":           true,
	"CompositeTypeStmt":          true,
	"CreateSeqStmt":              true,
	"AlterSeqStmt":               true,
	"CreateSchemaStmt":           true,
	"CreateRoleStmt":             true,
	"AlterRoleStmt":              true,
	"GrantStmt":                  true,
	"GrantRoleStmt":              true,
	"AlterDefaultPrivilegesStmt": true,
	"AlterOwnerStmt":             true,
	"AlterObjectSchemaStmt":      true,
	"RuleStmt":                   true,
	"CreatePolicyStmt":           true,
	"DoStmt":                     true,
	"DropStmt":                   true,
	"TruncateStmt":               true,
	"TransactionStmt":            true,
	"VariableSetStmt":            true,
	"SelectStmt":                 true,
	"InsertStmt":                 true,
	"UpdateStmt":                 true,
	"DeleteStmt":                 true,
	"CopyStmt":                   true,
	"RenameStmt":                 true,
	"ClusterStmt":                true,
	"DefineStmt":                 true,
	"CreateCastStmt":             true,
	"NotifyStmt":                 true,
	"LockStmt":                   true,
}

// CountStatements reports how many top-level statements the dump splits into,
// so callers can size a progress bar before the extraction pass.
func CountStatements(src string) (int, error) {
	stmts, err := pgquery.SplitWithParser(src, true)
	if err != nil {
		return 0, fmt.Errorf("split statements: %w", err)
	}
	return len(stmts), nil
}

// Parse runs every extractor over the full statement set and returns the
// populated (but not yet linked) model. The error slice carries per-statement
// recognition failures; the final error is fatal (unsplittable input).
func Parse(src string, opts Options) (*schema.Model, []error, error) {
	stmts, err := pgquery.SplitWithParser(src, true)
	if err != nil {
		return nil, nil, fmt.Errorf("split statements: %w", err)
	}

	m := schema.NewModel()
	exs := []Extractor{
		&TableExtractor{Exclude: opts.Exclude},
		&IndexExtractor{Exclude: opts.Exclude},
		&AlterExtractor{Exclude: opts.Exclude},
		&CommentExtractor{Exclude: opts.Exclude},
	}

	var warns []error
	for _, sql := range stmts {
		if opts.Progress != nil {
			opts.Progress()
		}
		st, err := parseStatement(sql)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrRecognition, err)
			warns = append(warns, err)
			m.Drop("%v", err)
			continue
		}
		if st == nil || skipKinds[st.Kind] {
			continue
		}

		matched, handled := false, false
		var stErr error
		for _, ex := range exs {
			if !ex.Match(st.Kind) {
				continue
			}
			matched = true
			ok, err := ex.Extract(*st, m)
			if err != nil {
				stErr = err
			}
			handled = handled || ok
		}
		switch {
		case stErr != nil:
			// extractors record their own drops
			warns = append(warns, stErr)
		case matched && !handled, !matched:
			err := fmt.Errorf("%w: %s", ErrRecognition, summarize(sql))
			warns = append(warns, err)
			m.Drop("%v", err)
		}
	}
	return m, warns, nil
}

func parseStatement(sql string) (*Statement, error) {
	parsed, err := pgquery.ParseToJSON(sql)
	if err != nil {
		return nil, err
	}
	var pr parseResult
	if err := json.Unmarshal([]byte(parsed), &pr); err != nil {
		return nil, err
	}
	for _, st := range pr.Stmts {
		for kind, payload := range st.Stmt {
			return &Statement{SQL: sql, Kind: kind, Node: payload}, nil
		}
	}
	return nil, nil
}

func summarize(sql string) string {
	s := strings.Join(strings.Fields(sql), " ")
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
