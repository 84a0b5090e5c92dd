package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	for _, dialect := range []string{"mysql", "postgres"} {
		matches, err := fs.Glob(files, dialect+"/*.sql")
		require.NoError(t, err)
		assert.Len(t, matches, 2, dialect)

		for _, m := range matches {
			body, err := fs.ReadFile(files, m)
			require.NoError(t, err)
			assert.Contains(t, string(body), "-- +goose Up", m)
			assert.Contains(t, string(body), "-- +goose Down", m)
		}
	}
}
