package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/greenline-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one migration matching %s", pattern)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestCartMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_carts.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS carts",
		"CONSTRAINT carts_user_id_key UNIQUE (user_id)",
		"CREATE TABLE IF NOT EXISTS cart_items",
		"CONSTRAINT cart_items_cart_product_key UNIQUE (cart_id, product_id)",
		"CHECK (quantity > 0)",
		"FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS cart_items",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CONSTRAINT orders_order_number_key UNIQUE (order_number)",
		"CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC)",
		"CREATE TABLE IF NOT EXISTS order_items",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS orders",
	} {
		assert.Contains(t, content, sub)
	}
	// order items carry no link back to the cart they were copied from
	assert.False(t, strings.Contains(content, "REFERENCES cart_items"))
}

func TestOutboxMigrationIndexesUnpublished(t *testing.T) {
	content := readMigration(t, "*_create_outbox_events.sql")
	assert.Contains(t, content, "payload jsonb NOT NULL")
	assert.Contains(t, content, "WHERE published_at IS NULL")
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, migrate.ValidateDir(dir))

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_one.sql"), []byte("-- +goose Up\n"), 0o644))
	assert.ErrorContains(t, migrate.ValidateDir(dir), "goose Down")

	dir = t.TempDir()
	body := []byte("-- +goose Up\n-- +goose Down\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_one.sql"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_two.sql"), body, 0o644))
	assert.ErrorContains(t, migrate.ValidateDir(dir), "duplicate")

	dir = t.TempDir()
	unbalanced := []byte("-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_one.sql"), unbalanced, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000001_two.sql"), []byte("-- +goose Down\n-- +goose Up\n"), 0o644))
	err := migrate.ValidateDir(dir)
	assert.ErrorContains(t, err, "StatementBegin")
	assert.ErrorContains(t, err, "Down section precedes Up")
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Order Notes!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_order_notes.sql"))
	require.NoError(t, migrate.ValidateDir(dir))

	second, err := migrate.CreateSQLMigration(dir, "add order notes")
	require.NoError(t, err)
	assert.NotEqual(t, path, second)
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
	_, err = migrate.CreateSQLMigration("", "x")
	assert.Error(t, err)
}
