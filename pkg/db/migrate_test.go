package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_Validation(t *testing.T) {
	err := Migrate("", DirectionUp)
	assert.Error(t, err)

	for _, dir := range []string{"", "UP", "sideways"} {
		err := Migrate("postgres://localhost/test", dir)
		assert.Error(t, err, "direction %q", dir)
	}
}

func TestMigrationFS_Paired(t *testing.T) {
	entries, err := fs.ReadDir(MigrationFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}
