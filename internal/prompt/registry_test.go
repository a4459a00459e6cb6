package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	require.Len(t, d, 3)
	assert.Contains(t, d[NameSOD], "START OF DAY")
	assert.Contains(t, d[NameSOD], "OUTPUT FORMAT")
	assert.Contains(t, d[NameIntraday], "INTRADAY")
	assert.NotContains(t, d[NameIntraday], "START OF DAY")
	assert.Contains(t, d[NameVision], "do not trade")
	assert.NotContains(t, d[NameVision], "order_intent")
}

func TestRegistryWithoutOverrides(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)
	text, ok := r.Get(" SOD ")
	require.True(t, ok)
	assert.Equal(t, Defaults()[NameSOD], text)
	assert.Equal(t, []string{NameIntraday, NameSOD, NameVision}, r.Names())

	_, ok = r.Get("unknown")
	assert.False(t, ok)
	assert.Empty(t, r.MustGet("unknown"))
}

func TestRegistryOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prompts:\n  vision: describe only\n  intraday: \"  \"\n"), 0o644))

	r, err := NewRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "describe only", r.MustGet(NameVision))
	assert.Equal(t, Defaults()[NameIntraday], r.MustGet(NameIntraday), "blank override keeps default")
	v1 := r.Snapshot().Version

	t.Run("reload picks up edits", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("prompts:\n  sod: custom sod\n"), 0o644))
		require.NoError(t, r.Reload())
		assert.Equal(t, "custom sod", r.MustGet(NameSOD))
		assert.Equal(t, Defaults()[NameVision], r.MustGet(NameVision))
		assert.Greater(t, r.Snapshot().Version, v1)
	})

	t.Run("invalid file keeps previous snapshot", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("unexpected: true\n"), 0o644))
		assert.Error(t, r.Reload())
		assert.Equal(t, "custom sod", r.MustGet(NameSOD))
	})
}

func TestRegistryMissingFile(t *testing.T) {
	_, err := NewRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSnapshotIsCopy(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)
	snap := r.Snapshot()
	snap.Prompts[NameSOD] = "mutated"
	assert.NotEqual(t, "mutated", r.MustGet(NameSOD))
}
