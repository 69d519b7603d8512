package tablesync

import (
	"strconv"

	"github.com/sysprog/idmcore/sqlsession"
)

// Dialect captures everything that differs between database engines: the
// statement text only, never the algorithm.
type Dialect interface {
	Name() string

	// QuoteIdent quotes a column identifier.
	QuoteIdent(col string) string

	// SortExpr returns the ORDER BY expression(s) for one quoted column,
	// placing NULLs first.
	SortExpr(col string) []string

	// LongEqExpr returns the equality predicate for a LONG/CLOB column
	// against the given placeholder, or "" when plain equality applies.
	LongEqExpr(col, placeholder string) string

	// LimitOneSuffix is appended to a DELETE to bound it to a single row;
	// "" when the engine offers no such clause.
	LimitOneSuffix() string

	// MaskAlias aliases a quoted string literal to a column name in a
	// select list.
	MaskAlias(lit, col string) string

	// Placeholder returns the n-th (1-based) bind marker of a statement.
	Placeholder(n int) string

	// ExtraStringTypes lists driver type-name fragments classified as
	// string beyond the common rules.
	ExtraStringTypes() []string

	// OnSessionOpen runs engine-specific session setup.
	OnSessionOpen(s sqlsession.Session) error
}

// MySQL is the MySQL dialect.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) QuoteIdent(col string) string { return "`" + col + "`" }

// MySQL has no NULLS FIRST clause; the engine sorts on the null test ahead
// of the column itself.
func (MySQL) SortExpr(col string) []string {
	return []string{col + " IS NULL", col}
}

func (MySQL) LongEqExpr(col, placeholder string) string { return "" }

func (MySQL) LimitOneSuffix() string { return " LIMIT 1" }

func (MySQL) MaskAlias(lit, col string) string { return lit + " as " + col }

func (MySQL) Placeholder(n int) string { return "?" }

// BLOB values compare as strings under this engine.
func (MySQL) ExtraStringTypes() []string { return []string{"BLOB"} }

func (MySQL) OnSessionOpen(sqlsession.Session) error { return nil }

// Oracle is the Oracle dialect.
type Oracle struct{}

func (Oracle) Name() string { return "oracle" }

func (Oracle) QuoteIdent(col string) string { return col }

// Oracle's NULL ordering default already agrees with the comparator for the
// ascending keys the engine generates.
func (Oracle) SortExpr(col string) []string { return []string{col} }

func (Oracle) LongEqExpr(col, placeholder string) string {
	return "dbms_lob.compare(" + col + ", " + placeholder + ") = 0"
}

func (Oracle) LimitOneSuffix() string { return " AND rownum = 1" }

func (Oracle) MaskAlias(lit, col string) string { return lit + " " + col }

func (Oracle) Placeholder(n int) string { return "?" }

func (Oracle) ExtraStringTypes() []string { return nil }

// Oracle sessions need deterministic date/timestamp rendering so the
// comparator sees the same text on both sides. Blank-chopping and CLOB
// placeholder binding have no SQL form; the Oracle Session implementation
// must set those connection attributes before handing the session over.
func (Oracle) OnSessionOpen(s sqlsession.Session) error {
	for _, pragma := range []string{
		"alter session set NLS_DATE_FORMAT='YYYY-MM-DD HH24:MI:SS'",
		"alter session set NLS_TIMESTAMP_FORMAT='YYYY-MM-DD HH24:MI:SS.FF'",
	} {
		q, err := s.Prepare(pragma)
		if err != nil {
			return err
		}
		if err := q.Exec(); err != nil {
			_ = q.Close()
			return err
		}
		if err := q.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Postgres adapts the engine to PostgreSQL via the pgx session.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) QuoteIdent(col string) string { return `"` + col + `"` }

func (Postgres) SortExpr(col string) []string { return []string{col + " NULLS FIRST"} }

func (Postgres) LongEqExpr(col, placeholder string) string { return "" }

// PostgreSQL has no DELETE ... LIMIT; duplicate rows are removed together.
func (Postgres) LimitOneSuffix() string { return "" }

func (Postgres) MaskAlias(lit, col string) string { return lit + " as " + col }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) ExtraStringTypes() []string {
	return []string{"TEXT", "BYTEA", "BOOL", "UUID", "JSON", "NAME", "OID"}
}

func (Postgres) OnSessionOpen(sqlsession.Session) error { return nil }

