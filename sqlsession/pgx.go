package sqlsession

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// PgxSession implements Session over a single pgx connection.
type PgxSession struct {
	ctx        context.Context
	conn       *pgx.Conn
	tx         pgx.Tx
	autocommit bool
}

// NewPgx connects to PostgreSQL. The returned session starts in autocommit
// mode, matching driver defaults.
func NewPgx(ctx context.Context, connString string) (*PgxSession, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &PgxSession{ctx: ctx, conn: conn, autocommit: true}, nil
}

func (s *PgxSession) Prepare(sql string) (Query, error) {
	return &pgxQuery{s: s, sql: sql}, nil
}

func (s *PgxSession) AutoCommit(on bool) error {
	if on && s.tx != nil {
		if err := s.Commit(); err != nil {
			return err
		}
	}
	s.autocommit = on
	return nil
}

func (s *PgxSession) Commit() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit(s.ctx)
	s.tx = nil
	return err
}

func (s *PgxSession) Rollback() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback(s.ctx)
	s.tx = nil
	return err
}

func (s *PgxSession) QuoteString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func (s *PgxSession) Close() error {
	if s.tx != nil {
		_ = s.tx.Rollback(s.ctx)
		s.tx = nil
	}
	return s.conn.Close(s.ctx)
}

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error)
}

// querier returns the open transaction when autocommit is off, starting one
// if needed.
func (s *PgxSession) querier() (pgxQuerier, error) {
	if s.autocommit {
		return pgxConnAdapter{s.conn}, nil
	}
	if s.tx == nil {
		tx, err := s.conn.Begin(s.ctx)
		if err != nil {
			return nil, fmt.Errorf("begin: %w", err)
		}
		s.tx = tx
	}
	return pgxTxAdapter{s.tx}, nil
}

// pgconnCommandTag narrows pgconn.CommandTag to what we read from it.
type pgconnCommandTag interface {
	RowsAffected() int64
}

type pgxConnAdapter struct{ c *pgx.Conn }

func (a pgxConnAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.c.Query(ctx, sql, args...)
}

func (a pgxConnAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error) {
	tag, err := a.c.Exec(ctx, sql, args...)
	return tag, err
}

type pgxTxAdapter struct{ tx pgx.Tx }

func (a pgxTxAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.tx.Query(ctx, sql, args...)
}

func (a pgxTxAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error) {
	tag, err := a.tx.Exec(ctx, sql, args...)
	return tag, err
}

type pgxQuery struct {
	s        *PgxSession
	sql      string
	rows     pgx.Rows
	cols     []Column
	affected int64
}

func (q *pgxQuery) Exec(args ...any) error {
	if q.rows != nil {
		q.rows.Close()
		q.rows = nil
	}

	qr, err := q.s.querier()
	if err != nil {
		return err
	}

	if returnsRows(q.sql) {
		rows, err := qr.Query(q.s.ctx, q.sql, args...)
		if err != nil {
			return err
		}
		q.rows = rows
		q.cols = q.cols[:0]
		for _, fd := range rows.FieldDescriptions() {
			prec, scale := numericTypmod(fd.TypeModifier)
			q.cols = append(q.cols, Column{
				Name:      string(fd.Name),
				TypeCode:  int(fd.DataTypeOID),
				Precision: prec,
				Scale:     scale,
			})
		}
		return nil
	}

	tag, err := qr.Exec(q.s.ctx, q.sql, args...)
	if err != nil {
		return err
	}
	q.affected = tag.RowsAffected()
	return nil
}

func (q *pgxQuery) Columns() []Column { return q.cols }

func (q *pgxQuery) FetchRow() ([]any, error) {
	if q.rows == nil {
		return nil, nil
	}
	if q.rows.Next() {
		return q.rows.Values()
	}
	err := q.rows.Err()
	q.rows.Close()
	q.rows = nil
	return nil, err
}

func (q *pgxQuery) RowsAffected() int64 { return q.affected }

func (q *pgxQuery) Close() error {
	if q.rows != nil {
		q.rows.Close()
		q.rows = nil
	}
	return nil
}

func returnsRows(sql string) bool {
	head := strings.ToLower(strings.TrimSpace(sql))
	return strings.HasPrefix(head, "select") || strings.HasPrefix(head, "with")
}

// numericTypmod unpacks precision/scale from a numeric type modifier.
func numericTypmod(mod int32) (int, int) {
	if mod < 4 {
		return 0, 0
	}
	mod -= 4
	return int(mod >> 16 & 0xFFFF), int(mod & 0xFFFF)
}

// TypeInfo reports the PostgreSQL type names the sync engine classifies on.
// The names follow the server catalogue, uppercased the way column
// classification expects.
func (s *PgxSession) TypeInfo() map[int][]string {
	return map[int][]string{
		pgtype.BoolOID:        {"BOOL"},
		pgtype.ByteaOID:       {"BYTEA"},
		pgtype.NameOID:        {"NAME"},
		pgtype.Int8OID:        {"INT8"},
		pgtype.Int2OID:        {"INT2"},
		pgtype.Int4OID:        {"INT4"},
		pgtype.TextOID:        {"TEXT"},
		pgtype.OIDOID:         {"OID"},
		pgtype.JSONOID:        {"JSON"},
		pgtype.JSONBOID:       {"JSONB"},
		pgtype.Float4OID:      {"FLOAT4"},
		pgtype.Float8OID:      {"FLOAT8"},
		pgtype.BPCharOID:      {"BPCHAR"},
		pgtype.VarcharOID:     {"VARCHAR"},
		pgtype.DateOID:        {"DATE"},
		pgtype.TimeOID:        {"TIME"},
		pgtype.TimestampOID:   {"TIMESTAMP"},
		pgtype.TimestamptzOID: {"TIMESTAMPTZ"},
		pgtype.NumericOID:     {"NUMERIC"},
		pgtype.UUIDOID:        {"UUID"},
	}
}
