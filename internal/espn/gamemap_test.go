package espn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "games.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGameIDs(t *testing.T) {
	ids, err := LoadGameIDs(writeFile(t, "\"401\": East-r1-g1\n\"402\": \" West-r2-g4 \"\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"401": "East-r1-g1", "402": "West-r2-g4"}, ids)
}

func TestLoadGameIDsRejectsBadEntries(t *testing.T) {
	_, err := LoadGameIDs(writeFile(t, "\"401\": first round\n"))
	assert.ErrorContains(t, err, "not a bracket game id")

	_, err = LoadGameIDs(writeFile(t, "- just\n- a list\n"))
	assert.ErrorContains(t, err, "decode")

	_, err = LoadGameIDs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
