package tablesync

import (
	"reflect"
	"testing"

	"github.com/sysprog/idmcore/sqlsession"
)

func newPair(t *testing.T, srcRows, dstRows [][]any, dstCfg Config) (*TableClient, *TableClient, *fakeSession) {
	t.Helper()

	src, err := NewTableClient(MySQL{}, Config{
		Role: RoleSource, Read: twoColSession(srcRows), Table: "accounts",
	})
	if err != nil {
		t.Fatalf("source init failed: %v", err)
	}

	dstSession := twoColSession(dstRows)
	dstCfg.Role = RoleDest
	dstCfg.Read = dstSession
	dstCfg.Table = "accounts"
	dst, err := NewTableClient(MySQL{}, dstCfg)
	if err != nil {
		t.Fatalf("dest init failed: %v", err)
	}
	return src, dst, dstSession
}

func TestReconcilerBasic(t *testing.T) {
	// Source (1,a),(2,b),(3,c); dest (1,a),(2,B),(4,d). Bytewise, 'B' < 'b',
	// so the stale (2,B) is deleted before (2,b) is inserted.
	src, dst, session := newPair(t,
		[][]any{{1, "a"}, {2, "b"}, {3, "c"}},
		[][]any{{1, "a"}, {2, "B"}, {4, "d"}},
		Config{},
	)

	r, err := NewReconciler(src, dst)
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}
	if err := r.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{
		"DELETE [2 2 B B]",
		"INSERT [2 b]",
		"INSERT [3 c]",
		"DELETE [4 4 d d]",
	}
	if !reflect.DeepEqual(session.ops, want) {
		t.Errorf("operations:\n got %v\nwant %v", session.ops, want)
	}

	stats := dst.Stats()
	if stats.Inserts != 2 || stats.Deletes != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if session.commits == 0 {
		t.Errorf("destination never committed")
	}
}

func TestReconcilerIdempotent(t *testing.T) {
	rows := [][]any{{1, "a"}, {2, "b"}, {3, "c"}}
	src, dst, session := newPair(t, rows, rows, Config{})

	r, err := NewReconciler(src, dst)
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}
	if err := r.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(session.ops) != 0 {
		t.Errorf("identical tables produced mutations: %v", session.ops)
	}
}

func TestReconcilerNullsFirst(t *testing.T) {
	// A NULL key sorts (and compares) ahead of any value.
	src, dst, session := newPair(t,
		[][]any{{nil, "a"}, {1, "a"}},
		[][]any{{1, "a"}},
		Config{},
	)

	r, err := NewReconciler(src, dst)
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}
	if err := r.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []string{"INSERT [<nil> a]"}
	if !reflect.DeepEqual(session.ops, want) {
		t.Errorf("operations = %v, want %v", session.ops, want)
	}
}

func TestReconcilerCapTrip(t *testing.T) {
	// Fifty missing rows against a cap of ten: ten inserts execute, the
	// eleventh trips the cap and the destination rolls back.
	srcRows := make([][]any, 50)
	for i := range srcRows {
		srcRows[i] = []any{i + 1, "row"}
	}
	src, dst, session := newPair(t, srcRows, nil, Config{MaxInserts: 10})

	r, err := NewReconciler(src, dst)
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}

	err = r.Run()
	if !IsMaxInserts(err) {
		t.Fatalf("expected max-inserts error, got %v", err)
	}
	if len(session.ops) != 10 {
		t.Errorf("executed %d inserts, want 10", len(session.ops))
	}
	if session.rollbacks == 0 {
		t.Errorf("destination not rolled back")
	}
	if session.commits != 0 {
		t.Errorf("destination committed %d times on the error path", session.commits)
	}
	if !dst.Stats().HitMaxInserts {
		t.Errorf("hitMaxInserts not set")
	}
}

func TestReconcilerSchemaMismatch(t *testing.T) {
	src, err := NewTableClient(MySQL{}, Config{
		Role: RoleSource, Read: twoColSession(nil), Table: "accounts",
	})
	if err != nil {
		t.Fatalf("source init failed: %v", err)
	}

	oneCol := &fakeSession{
		cols:     []sqlsession.Column{{Name: "id", TypeCode: 2}},
		typeInfo: map[int][]string{2: {"NUMBER"}},
	}
	dst, err := NewTableClient(MySQL{}, Config{Role: RoleDest, Read: oneCol, Table: "accounts"})
	if err != nil {
		t.Fatalf("dest init failed: %v", err)
	}

	_, err = NewReconciler(src, dst)
	if !IsSchemaMismatch(err) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestReconcilerRollsBackOnDriverError(t *testing.T) {
	src, dst, session := newPair(t,
		[][]any{{1, "a"}},
		nil,
		Config{},
	)
	session.execErr = errTestBoom

	r, err := NewReconciler(src, dst)
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}
	if err := r.Run(); err == nil {
		t.Fatal("expected driver error")
	}
	if session.rollbacks == 0 {
		t.Errorf("destination not rolled back")
	}
	if session.commits != 0 {
		t.Errorf("destination committed after failure")
	}
}

var errTestBoom = &Error{Kind: KindDriver, Op: "test", Err: nil}
