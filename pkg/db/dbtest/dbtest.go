// Package dbtest opens throwaway sqlite databases carrying the full schema.
package dbtest

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/smallbiznis/backoffice/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns an isolated in-memory database with the schema applied.
// One connection is kept so transactions serialize like row locks would.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	StripRowLocks(t, conn)

	if err := migration.ApplySQLite(conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return conn
}

// StripRowLocks removes FOR UPDATE clauses, which sqlite does not parse.
func StripRowLocks(t testing.TB, conn *gorm.DB) {
	t.Helper()

	strip := func(d *gorm.DB) {
		if d.Statement == nil {
			return
		}
		sql := d.Statement.SQL.String()
		if !strings.Contains(sql, "FOR UPDATE") {
			return
		}
		sql = strings.ReplaceAll(sql, " FOR UPDATE SKIP LOCKED", "")
		sql = strings.ReplaceAll(sql, " FOR UPDATE", "")
		d.Statement.SQL.Reset()
		d.Statement.SQL.WriteString(sql)
	}

	if err := conn.Callback().Query().Before("gorm:query").Register("dbtest:strip_for_update_query", strip); err != nil {
		t.Fatalf("register query callback: %v", err)
	}
	if err := conn.Callback().Row().Before("gorm:row").Register("dbtest:strip_for_update_row", strip); err != nil {
		t.Fatalf("register row callback: %v", err)
	}
}
