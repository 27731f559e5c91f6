package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/tubeaccount/migrations"
)

func TestEmbeddedMigrations_Collectable(t *testing.T) {
	goose.SetBaseFS(migrations.FS)
	t.Cleanup(func() { goose.SetBaseFS(nil) })

	ms, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	require.Equal(t, int64(1), ms[0].Version)
}

func TestInitMigration_HasUpAndDown(t *testing.T) {
	b, err := fs.ReadFile(migrations.FS, "00001_init.sql")
	require.NoError(t, err)
	sql := string(b)

	require.True(t, strings.Contains(sql, "-- +goose Up"))
	require.True(t, strings.Contains(sql, "-- +goose Down"))
	for _, table := range []string{"users", "videos", "subscriptions", "watch_history", "login_attempts"} {
		require.Contains(t, sql, "CREATE TABLE "+table+" (")
	}
	require.Contains(t, sql, "refresh_token text,")
}
