package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFS_ContainsInitMigration(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.Contains(t, names, "00001_init.sql")

	b, err := fs.ReadFile(FS, "00001_init.sql")
	require.NoError(t, err)
	body := string(b)
	require.True(t, strings.Contains(body, "-- +goose Up"))
	require.True(t, strings.Contains(body, "-- +goose Down"))
	require.True(t, strings.Contains(body, "ON DELETE CASCADE"))
	require.True(t, strings.Contains(body, "CHECK (role IN ('admin', 'user'))"))
}
