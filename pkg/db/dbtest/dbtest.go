// Package dbtest opens throwaway SQLite databases carrying the storefront
// schema so repository and service tests can run without Postgres.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/greenline-backend/pkg/config"
	"github.com/angelmondragon/greenline-backend/pkg/db"
)

// Open returns a client bound to a fresh in-memory database with the
// SQLite schema applied.
func Open(t *testing.T) *db.Client {
	t.Helper()

	client, err := db.New(context.Background(), config.DBConfig{
		Driver: db.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString()),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.DB().Exec(db.SQLiteSchema).Error)
	return client
}

// Count returns the number of rows in table matching the optional condition.
func Count(t *testing.T, conn *gorm.DB, table string, query string, args ...any) int64 {
	t.Helper()
	var count int64
	q := conn.Table(table)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&count).Error)
	return count
}
