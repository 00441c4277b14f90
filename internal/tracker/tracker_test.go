package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopmonkeyus/go-common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker(t *testing.T) {
	dir := t.TempDir()
	tracker, err := New(Config{Logger: logger.NewTestLogger(), Dir: dir})
	require.NoError(t, err)
	require.NotNil(t, tracker)

	_, found, err := tracker.Get("persons", 11)
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, tracker.Put("persons", 11, 999))
	assert.NoError(t, tracker.Put("persons", 12, 1000))
	assert.NoError(t, tracker.Put("organizations", 11, 500))

	remoteID, found, err := tracker.Get("persons", 11)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 999, remoteID)

	persons, err := tracker.Entity("persons")
	assert.NoError(t, err)
	assert.Equal(t, map[int]int{11: 999, 12: 1000}, persons)

	all, err := tracker.All()
	assert.NoError(t, err)
	assert.Equal(t, map[int]int{11: 500}, all["organizations"])

	assert.NoError(t, tracker.Close())
}

func TestTrackerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	tracker, err := New(Config{Logger: logger.NewTestLogger(), Dir: dir})
	require.NoError(t, err)
	require.NoError(t, tracker.Put("deals", 1, 42))
	require.NoError(t, tracker.Close())

	tracker, err = New(Config{Logger: logger.NewTestLogger(), Dir: dir})
	require.NoError(t, err)
	defer tracker.Close()
	remoteID, found, err := tracker.Get("deals", 1)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 42, remoteID)
}

func TestTrackerMirrorLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "mappings.jsonl")
	tracker, err := New(Config{Logger: logger.NewTestLogger(), Dir: dir, LogPath: logPath})
	require.NoError(t, err)
	require.NoError(t, tracker.Put("persons", 11, 999))
	require.NoError(t, tracker.Close())

	buf, err := os.ReadFile(logPath)
	require.NoError(t, err)
	var entry MappingEntry
	require.NoError(t, json.Unmarshal(buf[:len(buf)-1], &entry))
	assert.Equal(t, MappingEntry{Entity: "persons", LocalID: 11, RemoteID: 999}, entry)
}
