// Package tablesync makes a destination table equal to a source table (or a
// projection of one) by streaming both sides in a deterministic order and
// emitting the minimal inserts and deletes, under configurable caps. Engine
// differences live entirely in the Dialect hooks.
package tablesync

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sysprog/idmcore/audit"
	"github.com/sysprog/idmcore/sqlsession"
)

// MaxPending bounds uncommitted mutations on the destination; CheckPending
// commits past it when the run is forced.
const MaxPending = 500

// typeCodeCLOB is the driver type code some drivers report for CLOB columns
// in place of a LONG-ish type name.
const typeCodeCLOB = 40

// Role distinguishes the reading side from the mutated side.
type Role int

const (
	RoleSource Role = iota
	RoleDest
)

func (r Role) String() string {
	if r == RoleDest {
		return "dest"
	}
	return "source"
}

// Config is the construction record for a TableClient.
type Config struct {
	Role  Role
	Read  sqlsession.Session
	Write sqlsession.Session // nil: same as Read
	Table string
	Alias string
	Where string
	Args  []any // bind values for Where

	// UniqueKeys lists column sets for the keyed delete statements.
	UniqueKeys [][]string
	// ExcludeCols drops columns from the projection entirely.
	ExcludeCols []string
	// MaskCols replaces a source column with a fixed literal; the
	// destination always reads the stored value.
	MaskCols map[string]string

	MaxInserts int
	MaxDeletes int
	Force      bool
	DryRun     bool
	NoDups     bool
	Debug      bool

	Logger *zap.SugaredLogger
	Audit  audit.Sink
}

type column struct {
	name   string
	typ    ColType
	long   bool
	masked bool
	mask   string
}

// TableClient introspects one table, owns its prepared statements, and
// executes the row-level operations the Reconciler decides on.
type TableClient struct {
	cfg     Config
	dialect Dialect
	read    sqlsession.Session
	write   sqlsession.Session
	log     *zap.SugaredLogger
	audit   audit.Sink

	cols      []column
	colnames  []string
	coltypes  []ColType
	longFlags []bool
	skipped   []string

	selectSQL     string
	insertSQL     string
	deleteSQL     string
	deleteUniqSQL []string
	deleteUniqIdx [][]int

	selectQ     sqlsession.Query
	insertQ     sqlsession.Query
	deleteQ     sqlsession.Query
	deleteUniqQ []sqlsession.Query

	autocommitOff bool

	pending       int
	commits       int
	inserts       int
	deletes       int
	hitMaxInserts bool
	hitMaxDeletes bool
}

// Stats is a point-in-time snapshot of the mutation counters.
type Stats struct {
	Inserts       int
	Deletes       int
	Commits       int
	Pending       int
	HitMaxInserts bool
	HitMaxDeletes bool
}

// NewTableClient introspects the table, classifies its columns and builds
// every statement the sync run will need. For a destination that is not a
// dry run, autocommit is switched off on the write session.
func NewTableClient(d Dialect, cfg Config) (*TableClient, error) {
	if cfg.Read == nil {
		return nil, &Error{Kind: KindInvalidArgument, Op: "init", Err: fmt.Errorf("read session is required")}
	}
	if cfg.Table == "" {
		return nil, &Error{Kind: KindInvalidArgument, Op: "init", Err: fmt.Errorf("table is required")}
	}
	if cfg.Write == nil {
		cfg.Write = cfg.Read
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Nop{}
	}

	c := &TableClient{
		cfg:     cfg,
		dialect: d,
		read:    cfg.Read,
		write:   cfg.Write,
		log:     cfg.Logger,
		audit:   cfg.Audit,
	}

	if err := d.OnSessionOpen(c.read); err != nil {
		return nil, driverError("session open", err)
	}
	if c.write != c.read {
		if err := d.OnSessionOpen(c.write); err != nil {
			return nil, driverError("session open", err)
		}
	}

	if err := c.introspect(); err != nil {
		return nil, err
	}
	if err := c.buildQueries(); err != nil {
		return nil, err
	}

	if cfg.Role == RoleDest {
		if err := c.prepareMutations(); err != nil {
			return nil, err
		}
		if !cfg.DryRun {
			if err := c.write.AutoCommit(false); err != nil {
				return nil, driverError("autocommit off", err)
			}
			c.autocommitOff = true
		}
	}

	return c, nil
}

// introspect probes the table with an empty result set and classifies every
// column.
func (c *TableClient) introspect() error {
	probe := "select * from " + c.cfg.Table
	if c.cfg.Alias != "" {
		probe += " " + c.cfg.Alias
	}
	probe += " where 1=0"

	q, err := c.read.Prepare(probe)
	if err != nil {
		return driverError("probe", err)
	}
	defer q.Close()
	if err := q.Exec(); err != nil {
		return driverError("probe", err)
	}

	typeNames := c.read.TypeInfo()
	excl := toSet(c.cfg.ExcludeCols)
	masks := make(map[string]string, len(c.cfg.MaskCols))
	for k, v := range c.cfg.MaskCols {
		masks[strings.ToLower(k)] = v
	}
	extra := c.dialect.ExtraStringTypes()

	for _, pc := range q.Columns() {
		name := strings.ToLower(pc.Name)
		if excl[name] {
			c.skipped = append(c.skipped, name)
			continue
		}

		typeName := ""
		if names := typeNames[pc.TypeCode]; len(names) > 0 {
			typeName = strings.ToUpper(names[0])
		}

		if lit, ok := masks[name]; ok {
			c.cols = append(c.cols, column{name: name, typ: TypeString, masked: true, mask: lit})
			continue
		}

		col, ok, err := classify(name, typeName, pc.TypeCode, extra)
		if err != nil {
			return err
		}
		if !ok {
			c.skipped = append(c.skipped, name)
			continue
		}
		c.cols = append(c.cols, col)
	}

	if len(c.cols) == 0 {
		return &Error{Kind: KindInit, Op: "introspect",
			Err: fmt.Errorf("no usable columns in %s", c.cfg.Table)}
	}

	for _, col := range c.cols {
		c.colnames = append(c.colnames, col.name)
		c.coltypes = append(c.coltypes, col.typ)
		c.longFlags = append(c.longFlags, col.long)
	}

	for _, key := range c.cfg.UniqueKeys {
		for _, member := range key {
			if c.indexOf(member) < 0 {
				return &Error{Kind: KindInvalidArgument, Op: "introspect",
					Err: fmt.Errorf("unique key column %q is not in the projection", member)}
			}
		}
	}

	if c.cfg.Debug {
		c.log.Debugf("columns for %s:\n%s", c.cfg.Table, c.DumpColinfo())
	}
	return nil
}

// classify applies the type-name rules. ok=false marks a column skipped
// (RAW/BFILE); an error means the type is not supported at all.
func classify(name, typeName string, typeCode int, extraString []string) (column, bool, error) {
	switch {
	case containsAny(typeName, "CHAR", "TIME", "DATE", "BIN") || containsAny(typeName, extraString...):
		return column{name: name, typ: TypeString}, true, nil
	case containsAny(typeName, "RAW", "BFILE"):
		return column{}, false, nil
	case strings.Contains(typeName, "LONG") || typeCode == typeCodeCLOB:
		return column{name: name, typ: TypeString, long: true}, true, nil
	case containsAny(typeName, "DEC", "INT", "NUM", "DOUBLE", "FLOAT"):
		return column{name: name, typ: TypeNumeric}, true, nil
	}
	return column{}, false, &Error{Kind: KindUnsupported, Op: "introspect",
		Err: fmt.Errorf("column %s has unsupported type %q (code %d)", name, typeName, typeCode)}
}

func (c *TableClient) buildQueries() error {
	d := c.dialect

	var selectCols, sortCols []string
	for _, col := range c.cols {
		quoted := d.QuoteIdent(col.name)
		if col.masked && c.cfg.Role == RoleSource {
			selectCols = append(selectCols, d.MaskAlias(c.read.QuoteString(col.mask), quoted))
		} else {
			selectCols = append(selectCols, quoted)
		}
		if !col.long {
			sortCols = append(sortCols, d.SortExpr(quoted)...)
		}
	}

	sel := "SELECT "
	if c.cfg.NoDups {
		sel += "DISTINCT "
	}
	sel += strings.Join(selectCols, ", ") + " FROM " + c.cfg.Table
	if c.cfg.Alias != "" {
		sel += " " + c.cfg.Alias
	}
	if c.cfg.Where != "" {
		sel += " WHERE " + c.cfg.Where
	}
	sel += " ORDER BY " + strings.Join(sortCols, ", ")
	c.selectSQL = sel

	if c.cfg.Role != RoleDest {
		return nil
	}

	var names, markers []string
	for i, col := range c.cols {
		names = append(names, d.QuoteIdent(col.name))
		markers = append(markers, d.Placeholder(i+1))
	}
	c.insertSQL = "INSERT INTO " + c.cfg.Table + " (" + strings.Join(names, ", ") +
		") VALUES (" + strings.Join(markers, ", ") + ")"

	all := make([]int, len(c.cols))
	for i := range all {
		all[i] = i
	}
	c.deleteSQL = c.buildDelete(all)

	for _, key := range c.cfg.UniqueKeys {
		idx := make([]int, 0, len(key))
		for _, member := range key {
			idx = append(idx, c.indexOf(member))
		}
		c.deleteUniqSQL = append(c.deleteUniqSQL, c.buildDelete(idx))
		c.deleteUniqIdx = append(c.deleteUniqIdx, idx)
	}
	return nil
}

// buildDelete renders a delete keyed on the given columns. Every column
// contributes two bind parameters — the value and a null sentinel — so that
// NULL cells match NULL cells.
func (c *TableClient) buildDelete(colIdx []int) string {
	d := c.dialect
	n := 0
	var clauses []string
	for _, i := range colIdx {
		col := c.cols[i]
		quoted := d.QuoteIdent(col.name)
		value := d.Placeholder(n + 1)
		sentinel := d.Placeholder(n + 2)
		n += 2

		eq := quoted + " = " + value
		if col.long {
			if long := d.LongEqExpr(quoted, value); long != "" {
				eq = long
			}
		}
		clauses = append(clauses, "("+eq+" OR ("+sentinel+" IS NULL AND "+quoted+" IS NULL))")
	}

	sql := "DELETE FROM " + c.cfg.Table + " WHERE " + strings.Join(clauses, " AND ")
	if c.cfg.NoDups {
		sql += d.LimitOneSuffix()
	}
	return sql
}

func (c *TableClient) prepareMutations() error {
	var err error
	if c.insertQ, err = c.write.Prepare(c.insertSQL); err != nil {
		return driverError("prepare insert", err)
	}
	if c.deleteQ, err = c.write.Prepare(c.deleteSQL); err != nil {
		return driverError("prepare delete", err)
	}
	for _, sql := range c.deleteUniqSQL {
		q, err := c.write.Prepare(sql)
		if err != nil {
			return driverError("prepare unique delete", err)
		}
		c.deleteUniqQ = append(c.deleteUniqQ, q)
	}
	return nil
}

// Open starts the streaming SELECT. Fetch returns its rows in order.
func (c *TableClient) Open() error {
	q, err := c.read.Prepare(c.selectSQL)
	if err != nil {
		return driverError("prepare select", err)
	}
	if err := q.Exec(c.cfg.Args...); err != nil {
		_ = q.Close()
		return driverError("select", err)
	}
	c.selectQ = q
	return nil
}

// Fetch returns the next row of the streaming SELECT, nil at end of set.
func (c *TableClient) Fetch() ([]any, error) {
	if c.selectQ == nil {
		return nil, &Error{Kind: KindInvalidArgument, Op: "fetch", Err: fmt.Errorf("select not open")}
	}
	row, err := c.selectQ.FetchRow()
	if err != nil {
		return nil, driverError("fetch", err)
	}
	return row, nil
}

// Insert writes one row positioned by the projection, honoring the insert
// cap first. Dry runs count but do not execute.
func (c *TableClient) Insert(row []any) error {
	if err := c.checkInsertCap(); err != nil {
		return err
	}

	if !c.cfg.DryRun {
		if err := c.insertQ.Exec(row...); err != nil {
			return driverError("insert", err)
		}
	}
	c.inserts++
	c.pending++
	if c.cfg.Debug {
		c.log.Debugw("insert", "table", c.cfg.Table, "row", row)
	}
	return nil
}

// Delete removes one row via the generic all-columns delete, honoring the
// delete cap first.
func (c *TableClient) Delete(row []any) error {
	if err := c.checkDeleteCap(); err != nil {
		return err
	}

	if !c.cfg.DryRun {
		if err := c.deleteQ.Exec(doubleParams(row, nil)...); err != nil {
			return driverError("delete", err)
		}
	}
	c.deletes++
	c.pending++
	if c.cfg.Debug {
		c.log.Debugw("delete", "table", c.cfg.Table, "row", row)
	}
	return nil
}

// DeleteUnique removes rows through every configured unique-key statement
// and reports the total rows affected.
func (c *TableClient) DeleteUnique(row []any) (int64, error) {
	if err := c.checkDeleteCap(); err != nil {
		return 0, err
	}

	var affected int64
	for i, q := range c.deleteUniqQ {
		if c.cfg.DryRun {
			continue
		}
		if err := q.Exec(doubleParams(row, c.deleteUniqIdx[i])...); err != nil {
			return affected, driverError("unique delete", err)
		}
		affected += q.RowsAffected()
	}
	c.deletes++
	c.pending++
	return affected, nil
}

func (c *TableClient) checkInsertCap() error {
	if c.cfg.MaxInserts > 0 && c.inserts >= c.cfg.MaxInserts && !c.cfg.Force {
		c.hitMaxInserts = true
		if !c.cfg.DryRun {
			_ = c.RollBack()
		}
		return &Error{Kind: KindMaxInserts, Op: "insert",
			Err: fmt.Errorf("insert cap %d reached", c.cfg.MaxInserts)}
	}
	return nil
}

func (c *TableClient) checkDeleteCap() error {
	if c.cfg.MaxDeletes > 0 && c.deletes >= c.cfg.MaxDeletes && !c.cfg.Force {
		c.hitMaxDeletes = true
		if !c.cfg.DryRun {
			_ = c.RollBack()
		}
		return &Error{Kind: KindMaxDeletes, Op: "delete",
			Err: fmt.Errorf("delete cap %d reached", c.cfg.MaxDeletes)}
	}
	return nil
}

// doubleParams lays out delete parameters: value then null sentinel per
// column, in recorded statement order. idx selects a key subset; nil means
// the whole projection.
func doubleParams(row []any, idx []int) []any {
	if idx == nil {
		idx = make([]int, len(row))
		for i := range idx {
			idx[i] = i
		}
	}
	out := make([]any, 0, len(idx)*2)
	for _, i := range idx {
		out = append(out, row[i], row[i])
	}
	return out
}

// CheckPending commits once the uncommitted batch exceeds MaxPending on a
// forced run. Counters move identically on dry runs.
func (c *TableClient) CheckPending() error {
	if c.pending <= MaxPending || !c.cfg.Force {
		return nil
	}
	if !c.cfg.DryRun {
		if err := c.write.Commit(); err != nil {
			return driverError("commit", err)
		}
	}
	c.pending = 0
	c.commits++
	c.recordBatch("commit batch")
	return nil
}

// CloseQueries commits outstanding changes (dry runs excepted), closes every
// prepared statement including the unique deletes, and restores autocommit.
func (c *TableClient) CloseQueries() error {
	var firstErr error

	if c.cfg.Role == RoleDest && !c.cfg.DryRun {
		if err := c.write.Commit(); err != nil {
			firstErr = driverError("commit", err)
		} else if c.pending > 0 {
			c.commits++
			c.pending = 0
			c.recordBatch("final commit")
		}
	}

	if err := c.closeStatements(); err != nil && firstErr == nil {
		firstErr = err
	}

	if c.autocommitOff {
		if err := c.write.AutoCommit(true); err != nil && firstErr == nil {
			firstErr = driverError("autocommit restore", err)
		}
		c.autocommitOff = false
	}
	return firstErr
}

// closeStatements releases every prepared statement without committing.
func (c *TableClient) closeStatements() error {
	var firstErr error
	closeQ := func(q sqlsession.Query) {
		if q == nil {
			return
		}
		if err := q.Close(); err != nil && firstErr == nil {
			firstErr = driverError("close", err)
		}
	}
	closeQ(c.selectQ)
	closeQ(c.insertQ)
	closeQ(c.deleteQ)
	for _, q := range c.deleteUniqQ {
		closeQ(q)
	}
	c.selectQ, c.insertQ, c.deleteQ, c.deleteUniqQ = nil, nil, nil, nil
	return firstErr
}

// RollBack abandons the destination transaction.
func (c *TableClient) RollBack() error {
	if c.cfg.Role != RoleDest {
		return nil
	}
	if err := c.write.Rollback(); err != nil {
		return driverError("rollback", err)
	}
	return nil
}

// Colnames returns the ordered, lower-cased projection.
func (c *TableClient) Colnames() []string { return c.colnames }

// Coltypes returns the classification aligned with Colnames.
func (c *TableClient) Coltypes() []ColType { return c.coltypes }

// Stats snapshots the counters.
func (c *TableClient) Stats() Stats {
	return Stats{
		Inserts:       c.inserts,
		Deletes:       c.deletes,
		Commits:       c.commits,
		Pending:       c.pending,
		HitMaxInserts: c.hitMaxInserts,
		HitMaxDeletes: c.hitMaxDeletes,
	}
}

// DumpColinfo renders the projection for schema-mismatch diagnostics.
func (c *TableClient) DumpColinfo() string {
	var b strings.Builder
	for i, col := range c.cols {
		b.WriteString("  ")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(": ")
		b.WriteString(col.name)
		b.WriteString(" ")
		b.WriteString(col.typ.String())
		if col.long {
			b.WriteString(" long")
		}
		if col.masked {
			b.WriteString(" masked")
		}
		b.WriteString("\n")
	}
	for _, name := range c.skipped {
		b.WriteString("  skipped: ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	return b.String()
}

func (c *TableClient) indexOf(name string) int {
	name = strings.ToLower(name)
	for i, col := range c.cols {
		if col.name == name {
			return i
		}
	}
	return -1
}

func (c *TableClient) recordBatch(op string) {
	e := audit.NewEvent("", op, c.cfg.Table)
	e.Fields["inserts"] = strconv.Itoa(c.inserts)
	e.Fields["deletes"] = strconv.Itoa(c.deletes)
	e.Fields["commits"] = strconv.Itoa(c.commits)
	if c.cfg.DryRun {
		e.Fields["dry_run"] = "true"
	}
	c.audit.Record(e)
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set
}

func containsAny(s string, fragments ...string) bool {
	for _, f := range fragments {
		if f != "" && strings.Contains(s, f) {
			return true
		}
	}
	return false
}
