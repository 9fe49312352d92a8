package dbops

import (
	"context"
	"database/sql"
)

// Stats are the coarse post-migration counts surfaced in the report.
type Stats struct {
	TableCount       int
	ModulesInstalled int
	ModulesTotal     int
	PartnerCount     int
	UserCount        int
}

// CollectStatistics runs a fixed set of count queries. A failing query
// degrades that one statistic to zero with a warning; statistics must never
// sink an otherwise successful migration.
func (b *Bridge) CollectStatistics(ctx context.Context, db *sql.DB) Stats {
	var s Stats
	s.TableCount = b.countQuery(ctx, db, "table count",
		`SELECT count(*) FROM information_schema.tables WHERE table_schema = 'public'`)
	s.ModulesInstalled = b.countQuery(ctx, db, "installed modules",
		`SELECT count(*) FROM ir_module_module WHERE state = 'installed'`)
	s.ModulesTotal = b.countQuery(ctx, db, "total modules",
		`SELECT count(*) FROM ir_module_module`)
	s.PartnerCount = b.countQuery(ctx, db, "partner count",
		`SELECT count(*) FROM res_partner`)
	s.UserCount = b.countQuery(ctx, db, "user count",
		`SELECT count(*) FROM res_users`)
	return s
}

func (b *Bridge) countQuery(ctx context.Context, db *sql.DB, what, query string) int {
	var n int
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		b.log.Warn("statistic unavailable, recording zero", "stat", what, "error", err)
		return 0
	}
	return n
}
