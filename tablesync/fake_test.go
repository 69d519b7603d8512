package tablesync

import (
	"fmt"
	"strings"

	"github.com/sysprog/idmcore/sqlsession"
)

// fakeSession is an in-memory sqlsession.Session: it serves a fixed result
// set for SELECTs and records every mutation in order.
type fakeSession struct {
	cols     []sqlsession.Column
	typeInfo map[int][]string
	rows     [][]any

	autocommit []bool // AutoCommit call history
	commits    int
	rollbacks  int
	ops        []string // "INSERT [...]" / "DELETE [...]" in execution order
	execErr    error    // injected failure for mutations
}

func (s *fakeSession) Prepare(sql string) (sqlsession.Query, error) {
	return &fakeQuery{s: s, sql: sql}, nil
}

func (s *fakeSession) AutoCommit(on bool) error {
	s.autocommit = append(s.autocommit, on)
	return nil
}

func (s *fakeSession) Commit() error {
	s.commits++
	return nil
}

func (s *fakeSession) Rollback() error {
	s.rollbacks++
	return nil
}

func (s *fakeSession) QuoteString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func (s *fakeSession) TypeInfo() map[int][]string { return s.typeInfo }

func (s *fakeSession) Close() error { return nil }

type fakeQuery struct {
	s        *fakeSession
	sql      string
	pos      int
	open     bool
	affected int64
}

func (q *fakeQuery) Exec(args ...any) error {
	head := strings.ToLower(strings.TrimSpace(q.sql))
	switch {
	case strings.HasPrefix(head, "select") && strings.Contains(head, "where 1=0"):
		// introspection probe; columns only
	case strings.HasPrefix(head, "select"):
		q.open = true
		q.pos = 0
	case strings.HasPrefix(head, "insert"):
		if q.s.execErr != nil {
			return q.s.execErr
		}
		q.s.ops = append(q.s.ops, "INSERT "+fmt.Sprintf("%v", args))
		q.affected = 1
	case strings.HasPrefix(head, "delete"):
		if q.s.execErr != nil {
			return q.s.execErr
		}
		q.s.ops = append(q.s.ops, "DELETE "+fmt.Sprintf("%v", args))
		q.affected = 1
	}
	return nil
}

func (q *fakeQuery) Columns() []sqlsession.Column { return q.s.cols }

func (q *fakeQuery) FetchRow() ([]any, error) {
	if !q.open || q.pos >= len(q.s.rows) {
		return nil, nil
	}
	row := q.s.rows[q.pos]
	q.pos++
	return row, nil
}

func (q *fakeQuery) RowsAffected() int64 { return q.affected }

func (q *fakeQuery) Close() error { return nil }

// two-column schema used throughout: numeric id, string val.
func twoColSession(rows [][]any) *fakeSession {
	return &fakeSession{
		cols: []sqlsession.Column{
			{Name: "id", TypeCode: 2},
			{Name: "val", TypeCode: 1},
		},
		typeInfo: map[int][]string{
			1: {"VARCHAR"},
			2: {"NUMBER"},
		},
		rows: rows,
	}
}
