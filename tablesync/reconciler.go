package tablesync

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Reconciler drives the streaming merge between a source and a destination
// TableClient. It holds exactly one row of state per side and releases both
// clients on every exit path.
type Reconciler struct {
	src *TableClient
	dst *TableClient
	log *zap.SugaredLogger
}

// NewReconciler pairs a source with a destination. The projections must
// agree exactly — same columns, same classifications, same order.
func NewReconciler(src, dst *TableClient) (*Reconciler, error) {
	if src.cfg.Role != RoleSource {
		return nil, &Error{Kind: KindInvalidArgument, Op: "reconcile",
			Err: fmt.Errorf("source client has role %s", src.cfg.Role)}
	}
	if dst.cfg.Role != RoleDest {
		return nil, &Error{Kind: KindInvalidArgument, Op: "reconcile",
			Err: fmt.Errorf("destination client has role %s", dst.cfg.Role)}
	}

	if !slices.Equal(src.colnames, dst.colnames) || !slices.Equal(src.coltypes, dst.coltypes) {
		return nil, &Error{Kind: KindSchemaMismatch, Op: "reconcile",
			Err: fmt.Errorf("projections differ\nsource:\n%sdest:\n%s",
				src.DumpColinfo(), dst.DumpColinfo())}
	}

	log := src.log
	if dst.log != nil {
		log = dst.log
	}
	return &Reconciler{src: src, dst: dst, log: log}, nil
}

// Run makes the destination equal to the source. On the first error the
// destination transaction is rolled back and the error returned; on success
// outstanding changes are committed via CloseQueries.
func (r *Reconciler) Run() error {
	if err := r.run(); err != nil {
		_ = r.dst.RollBack()
		_ = r.dst.closeStatements()
		_ = r.src.closeStatements()
		return err
	}

	if err := r.dst.CloseQueries(); err != nil {
		return err
	}
	return r.src.CloseQueries()
}

func (r *Reconciler) run() error {
	if err := r.src.Open(); err != nil {
		return err
	}
	if err := r.dst.Open(); err != nil {
		return err
	}

	s, err := r.src.Fetch()
	if err != nil {
		return err
	}
	d, err := r.dst.Fetch()
	if err != nil {
		return err
	}

	for s != nil || d != nil {
		cmp := 0
		if s != nil && d != nil {
			cmp, err = compareRows(s, d, r.src.coltypes, r.src.longFlags)
			if err != nil {
				return &Error{Kind: KindDriver, Op: "compare", Err: err}
			}
		}

		switch {
		case d == nil || (s != nil && cmp < 0):
			// Source-only row: bring it over.
			if err := r.dst.Insert(s); err != nil {
				return err
			}
			if s, err = r.src.Fetch(); err != nil {
				return err
			}
		case s == nil || cmp > 0:
			// Destination-only row: remove it.
			if err := r.dst.Delete(d); err != nil {
				return err
			}
			if d, err = r.dst.Fetch(); err != nil {
				return err
			}
		default:
			if s, err = r.src.Fetch(); err != nil {
				return err
			}
			if d, err = r.dst.Fetch(); err != nil {
				return err
			}
		}

		if err := r.dst.CheckPending(); err != nil {
			return err
		}
	}

	stats := r.dst.Stats()
	r.log.Debugw("reconcile complete",
		"table", r.dst.cfg.Table,
		"inserts", stats.Inserts,
		"deletes", stats.Deletes,
		"commits", stats.Commits,
	)
	return nil
}
