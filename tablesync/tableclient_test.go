package tablesync

import (
	"errors"
	"testing"

	"github.com/sysprog/idmcore/sqlsession"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		typeName string
		typeCode int
		extra    []string
		wantType ColType
		wantLong bool
		wantSkip bool
		wantErr  bool
	}{
		{typeName: "VARCHAR2", wantType: TypeString},
		{typeName: "NVARCHAR", wantType: TypeString},
		{typeName: "DATETIME", wantType: TypeString},
		{typeName: "TIMESTAMP", wantType: TypeString},
		{typeName: "BINARY", wantType: TypeString},
		{typeName: "NUMBER", wantType: TypeNumeric},
		{typeName: "DECIMAL", wantType: TypeNumeric},
		{typeName: "INT4", wantType: TypeNumeric},
		{typeName: "DOUBLE", wantType: TypeNumeric},
		{typeName: "FLOAT", wantType: TypeNumeric},
		{typeName: "LONG", wantType: TypeString, wantLong: true},
		{typeName: "CLOB", typeCode: typeCodeCLOB, wantType: TypeString, wantLong: true},
		{typeName: "LONG RAW", wantSkip: true},
		{typeName: "RAW", wantSkip: true},
		{typeName: "BFILE", wantSkip: true},
		{typeName: "BLOB", extra: []string{"BLOB"}, wantType: TypeString}, // MySQL
		{typeName: "BLOB", wantErr: true},                                // Oracle
		{typeName: "WEIRD", wantErr: true},
	}

	for _, test := range tests {
		col, ok, err := classify("c", test.typeName, test.typeCode, test.extra)
		if test.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", test.typeName)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: classify failed: %v", test.typeName, err)
		}
		if test.wantSkip {
			if ok {
				t.Errorf("%s: expected skip", test.typeName)
			}
			continue
		}
		if !ok || col.typ != test.wantType || col.long != test.wantLong {
			t.Errorf("%s: got (%v, long=%v), want (%v, long=%v)",
				test.typeName, col.typ, col.long, test.wantType, test.wantLong)
		}
	}
}

func TestUnsupportedColumnFailsInit(t *testing.T) {
	s := &fakeSession{
		cols:     []sqlsession.Column{{Name: "blob_col", TypeCode: 9}},
		typeInfo: map[int][]string{9: {"BLOB"}},
	}
	_, err := NewTableClient(Oracle{}, Config{Role: RoleSource, Read: s, Table: "t"})
	var serr *Error
	if !errors.As(err, &serr) || serr.Kind != KindUnsupported {
		t.Fatalf("expected KindUnsupported, got %v", err)
	}
}

func TestMySQLQueries(t *testing.T) {
	s := twoColSession(nil)
	c, err := NewTableClient(MySQL{}, Config{
		Role:       RoleDest,
		Read:       s,
		Table:      "accounts",
		Alias:      "a",
		Where:      "campus = 'rolla'",
		NoDups:     true,
		UniqueKeys: [][]string{{"id"}},
	})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	wantSelect := "SELECT DISTINCT `id`, `val` FROM accounts a WHERE campus = 'rolla' " +
		"ORDER BY `id` IS NULL, `id`, `val` IS NULL, `val`"
	if c.selectSQL != wantSelect {
		t.Errorf("select:\n got %s\nwant %s", c.selectSQL, wantSelect)
	}

	wantInsert := "INSERT INTO accounts (`id`, `val`) VALUES (?, ?)"
	if c.insertSQL != wantInsert {
		t.Errorf("insert:\n got %s\nwant %s", c.insertSQL, wantInsert)
	}

	wantDelete := "DELETE FROM accounts WHERE (`id` = ? OR (? IS NULL AND `id` IS NULL)) " +
		"AND (`val` = ? OR (? IS NULL AND `val` IS NULL)) LIMIT 1"
	if c.deleteSQL != wantDelete {
		t.Errorf("delete:\n got %s\nwant %s", c.deleteSQL, wantDelete)
	}

	wantUniq := "DELETE FROM accounts WHERE (`id` = ? OR (? IS NULL AND `id` IS NULL)) LIMIT 1"
	if len(c.deleteUniqSQL) != 1 || c.deleteUniqSQL[0] != wantUniq {
		t.Errorf("unique delete:\n got %v\nwant %s", c.deleteUniqSQL, wantUniq)
	}

	// destination, not a dry run: autocommit switched off
	if len(s.autocommit) != 1 || s.autocommit[0] != false {
		t.Errorf("autocommit calls = %v, want [false]", s.autocommit)
	}
}

func TestOracleQueriesWithLong(t *testing.T) {
	s := &fakeSession{
		cols: []sqlsession.Column{
			{Name: "id", TypeCode: 2},
			{Name: "memo", TypeCode: typeCodeCLOB},
		},
		typeInfo: map[int][]string{
			2:            {"NUMBER"},
			typeCodeCLOB: {"CLOB"},
		},
	}
	c, err := NewTableClient(Oracle{}, Config{Role: RoleDest, Read: s, Table: "notes", NoDups: true})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	// LONG columns ride in the projection but never in the sort keys.
	wantSelect := "SELECT DISTINCT id, memo FROM notes ORDER BY id"
	if c.selectSQL != wantSelect {
		t.Errorf("select:\n got %s\nwant %s", c.selectSQL, wantSelect)
	}

	wantDelete := "DELETE FROM notes WHERE (id = ? OR (? IS NULL AND id IS NULL)) " +
		"AND (dbms_lob.compare(memo, ?) = 0 OR (? IS NULL AND memo IS NULL)) AND rownum = 1"
	if c.deleteSQL != wantDelete {
		t.Errorf("delete:\n got %s\nwant %s", c.deleteSQL, wantDelete)
	}
}

func TestMaskedColumnSourceOnly(t *testing.T) {
	mask := map[string]string{"val": "masked"}

	src, err := NewTableClient(MySQL{}, Config{
		Role: RoleSource, Read: twoColSession(nil), Table: "accounts", MaskCols: mask,
	})
	if err != nil {
		t.Fatalf("source init failed: %v", err)
	}
	wantSrc := "SELECT `id`, 'masked' as `val` FROM accounts " +
		"ORDER BY `id` IS NULL, `id`, `val` IS NULL, `val`"
	if src.selectSQL != wantSrc {
		t.Errorf("source select:\n got %s\nwant %s", src.selectSQL, wantSrc)
	}

	dst, err := NewTableClient(MySQL{}, Config{
		Role: RoleDest, Read: twoColSession(nil), Table: "accounts", MaskCols: mask, DryRun: true,
	})
	if err != nil {
		t.Fatalf("dest init failed: %v", err)
	}
	wantDst := "SELECT `id`, `val` FROM accounts ORDER BY `id` IS NULL, `id`, `val` IS NULL, `val`"
	if dst.selectSQL != wantDst {
		t.Errorf("dest select:\n got %s\nwant %s", dst.selectSQL, wantDst)
	}
}

func TestExcludedColumns(t *testing.T) {
	c, err := NewTableClient(MySQL{}, Config{
		Role: RoleSource, Read: twoColSession(nil), Table: "accounts",
		ExcludeCols: []string{"VAL"},
	})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if len(c.Colnames()) != 1 || c.Colnames()[0] != "id" {
		t.Errorf("colnames = %v, want [id]", c.Colnames())
	}
}

func TestUniqueKeyMustBeInProjection(t *testing.T) {
	_, err := NewTableClient(MySQL{}, Config{
		Role: RoleSource, Read: twoColSession(nil), Table: "accounts",
		UniqueKeys: [][]string{{"nope"}},
	})
	var serr *Error
	if !errors.As(err, &serr) || serr.Kind != KindInvalidArgument {
		t.Fatalf("expected KindInvalidArgument, got %v", err)
	}
}

func TestPostgresPlaceholders(t *testing.T) {
	s := twoColSession(nil)
	s.typeInfo = map[int][]string{1: {"TEXT"}, 2: {"NUMERIC"}}
	c, err := NewTableClient(Postgres{}, Config{Role: RoleDest, Read: s, Table: "accounts", DryRun: true})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	wantInsert := `INSERT INTO accounts ("id", "val") VALUES ($1, $2)`
	if c.insertSQL != wantInsert {
		t.Errorf("insert:\n got %s\nwant %s", c.insertSQL, wantInsert)
	}
	wantDelete := `DELETE FROM accounts WHERE ("id" = $1 OR ($2 IS NULL AND "id" IS NULL)) ` +
		`AND ("val" = $3 OR ($4 IS NULL AND "val" IS NULL))`
	if c.deleteSQL != wantDelete {
		t.Errorf("delete:\n got %s\nwant %s", c.deleteSQL, wantDelete)
	}
}

func TestDryRunCountsWithoutExecuting(t *testing.T) {
	s := twoColSession(nil)
	c, err := NewTableClient(MySQL{}, Config{Role: RoleDest, Read: s, Table: "accounts", DryRun: true})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if len(s.autocommit) != 0 {
		t.Errorf("dry run touched autocommit: %v", s.autocommit)
	}

	if err := c.Insert([]any{1, "a"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := c.Delete([]any{2, "b"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(s.ops) != 0 {
		t.Errorf("dry run executed: %v", s.ops)
	}
	stats := c.Stats()
	if stats.Inserts != 1 || stats.Deletes != 1 || stats.Pending != 2 {
		t.Errorf("stats = %+v", stats)
	}

	if err := c.CloseQueries(); err != nil {
		t.Fatalf("CloseQueries failed: %v", err)
	}
	if s.commits != 0 {
		t.Errorf("dry run committed %d times", s.commits)
	}
}

func TestCheckPendingCommitsWhenForced(t *testing.T) {
	s := twoColSession(nil)
	c, err := NewTableClient(MySQL{}, Config{Role: RoleDest, Read: s, Table: "accounts", Force: true})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	c.pending = MaxPending + 1
	if err := c.CheckPending(); err != nil {
		t.Fatalf("CheckPending failed: %v", err)
	}
	if s.commits != 1 || c.pending != 0 || c.commits != 1 {
		t.Errorf("commits=%d pending=%d counter=%d", s.commits, c.pending, c.commits)
	}

	// Below the threshold nothing happens.
	c.pending = MaxPending
	if err := c.CheckPending(); err != nil {
		t.Fatalf("CheckPending failed: %v", err)
	}
	if s.commits != 1 {
		t.Errorf("committed below threshold")
	}
}

func TestInsertCapRollsBack(t *testing.T) {
	s := twoColSession(nil)
	c, err := NewTableClient(MySQL{}, Config{Role: RoleDest, Read: s, Table: "accounts", MaxInserts: 2})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := c.Insert([]any{i, "x"}); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}
	err = c.Insert([]any{3, "x"})
	if !IsMaxInserts(err) {
		t.Fatalf("expected max-inserts error, got %v", err)
	}
	if !c.Stats().HitMaxInserts {
		t.Errorf("hitMaxInserts not set")
	}
	if s.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", s.rollbacks)
	}
	if len(s.ops) != 2 {
		t.Errorf("executed %d inserts, want 2", len(s.ops))
	}
}

func TestForceIgnoresCaps(t *testing.T) {
	s := twoColSession(nil)
	c, err := NewTableClient(MySQL{}, Config{
		Role: RoleDest, Read: s, Table: "accounts", MaxInserts: 1, Force: true,
	})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := c.Insert([]any{i, "x"}); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}
	if len(s.ops) != 5 {
		t.Errorf("executed %d inserts, want 5", len(s.ops))
	}
}
