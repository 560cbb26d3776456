package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "quicktab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesMissingDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "quicktab.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestHistoryRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveHistory([]uint32{30, 10, 20}))

	ids, err := s.LoadHistory()
	require.NoError(t, err)
	assert.Equal(t, []uint32{30, 10, 20}, ids)
}

func TestSaveHistoryReplacesPrevious(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveHistory([]uint32{1, 2, 3}))
	require.NoError(t, s.SaveHistory([]uint32{9}))

	ids, err := s.LoadHistory()
	require.NoError(t, err)
	assert.Equal(t, []uint32{9}, ids)
}

func TestSaveHistoryEmptyClearsAll(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveHistory([]uint32{1, 2}))
	require.NoError(t, s.SaveHistory(nil))

	ids, err := s.LoadHistory()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLoadHistoryEmptyDatabase(t *testing.T) {
	s := openTestStore(t)

	ids, err := s.LoadHistory()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SetSetting("port", "9000"))

	value, ok, err := s.GetSetting("port")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "9000", value)
}

func TestSetSettingOverwrites(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SetSetting("log_level", "info"))
	require.NoError(t, s.SetSetting("log_level", "debug"))

	value, ok, err := s.GetSetting("log_level")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "debug", value)
}

func TestGetSettingMissing(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.GetSetting("nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettingsReturnsAll(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SetSetting("a", "1"))
	require.NoError(t, s.SetSetting("b", "2"))

	settings, err := s.Settings()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, settings)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quicktab.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveHistory([]uint32{5, 6}))
	require.NoError(t, s.SetSetting("history_cap", "25"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	ids, err := s.LoadHistory()
	require.NoError(t, err)
	assert.Equal(t, []uint32{5, 6}, ids)

	value, ok, err := s.GetSetting("history_cap")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "25", value)
}
