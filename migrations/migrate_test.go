package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	t.Parallel()
	src := `-- events
CREATE TABLE a (
  id INT -- trailing comments stay inside the statement
);

-- second
INSERT INTO a VALUES (1);
UPDATE a SET id = 2`

	got := splitStatements(src)
	require.Len(t, got, 3)
	assert.Equal(t, "CREATE TABLE a (\n  id INT -- trailing comments stay inside the statement\n)", got[0])
	assert.Equal(t, "INSERT INTO a VALUES (1)", got[1])
	assert.Equal(t, "UPDATE a SET id = 2", got[2])
	assert.Empty(t, splitStatements("-- nothing\n\n"))
}

func TestEmbeddedMigrationsSplit(t *testing.T) {
	t.Parallel()
	entries, err := migrationFiles.ReadDir(".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := migrationFiles.ReadFile(e.Name())
		require.NoError(t, err)
		assert.NotEmpty(t, splitStatements(string(raw)), e.Name())
	}
}
