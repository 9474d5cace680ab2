package txlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"curricula/application/ports"
)

var entryTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openLog(t *testing.T, dir string) *FileLog {
	t.Helper()
	log, err := Open(dir, false, zap.NewNop())
	require.NoError(t, err)
	return log
}

func appendEntries(t *testing.T, log *FileLog, kinds ...string) {
	t.Helper()
	for i, kind := range kinds {
		require.NoError(t, log.Append(context.Background(), ports.LogEntry{
			Kind:       kind,
			RecordedAt: entryTime.Add(time.Duration(i) * time.Second),
			Payload:    []byte(fmt.Sprintf(`{"n":%d}`, i)),
		}))
	}
}

func collect(t *testing.T, log *FileLog) []ports.LogEntry {
	t.Helper()
	var entries []ports.LogEntry
	require.NoError(t, log.Replay(context.Background(), func(entry ports.LogEntry) error {
		entries = append(entries, entry)
		return nil
	}))
	return entries
}

func TestAppendAssignsMonotonicSequence(t *testing.T) {
	log := openLog(t, t.TempDir())
	defer log.Close()

	appendEntries(t, log, ports.LogKindGraphDelta, ports.LogKindAttempt, ports.LogKindAttempt)

	entries := collect(t, log)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, uint64(i+1), entry.Seq)
	}
	assert.Equal(t, ports.LogKindGraphDelta, entries[0].Kind)

	seq, err := log.LastSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)

	size, err := log.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
}

func TestReopenResumesSequence(t *testing.T) {
	dir := t.TempDir()

	log := openLog(t, dir)
	appendEntries(t, log, ports.LogKindAttempt, ports.LogKindAttempt)
	require.NoError(t, log.Close())

	reopened := openLog(t, dir)
	defer reopened.Close()

	seq, err := reopened.LastSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	appendEntries(t, reopened, ports.LogKindTrajectory)
	entries := collect(t, reopened)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(3), entries[2].Seq)
}

func TestOpenTruncatesCorruptTail(t *testing.T) {
	dir := t.TempDir()

	log := openLog(t, dir)
	appendEntries(t, log, ports.LogKindAttempt, ports.LogKindAttempt)
	require.NoError(t, log.Close())

	// Simulate a crash mid-append: garbage after the last full record.
	path := filepath.Join(dir, logFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"seq":3,"kind":"mastery.att`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := openLog(t, dir)
	defer reopened.Close()

	entries := collect(t, reopened)
	require.Len(t, entries, 2)

	seq, err := reopened.LastSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	// New appends continue cleanly after the truncated tail.
	appendEntries(t, reopened, ports.LogKindWeights)
	entries = collect(t, reopened)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(3), entries[2].Seq)
}

func TestTruncateDropsCoveredEntries(t *testing.T) {
	log := openLog(t, t.TempDir())
	defer log.Close()

	appendEntries(t, log,
		ports.LogKindGraphDelta, ports.LogKindAttempt,
		ports.LogKindAttempt, ports.LogKindTrajectory)

	require.NoError(t, log.Truncate(context.Background(), 2))

	entries := collect(t, log)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(3), entries[0].Seq)
	assert.Equal(t, uint64(4), entries[1].Seq)

	// Sequence numbering survives the truncation.
	appendEntries(t, log, ports.LogKindWeights)
	seq, err := log.LastSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), seq)
}

func TestSyncSeqAdvancesButNeverRewinds(t *testing.T) {
	log := openLog(t, t.TempDir())
	defer log.Close()

	require.NoError(t, log.SyncSeq(10))
	appendEntries(t, log, ports.LogKindAttempt)

	seq, err := log.LastSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(11), seq)

	require.NoError(t, log.SyncSeq(5))
	seq, err = log.LastSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(11), seq)
}

func TestReplayStopsOnCallbackError(t *testing.T) {
	log := openLog(t, t.TempDir())
	defer log.Close()

	appendEntries(t, log, ports.LogKindAttempt, ports.LogKindAttempt)

	calls := 0
	err := log.Replay(context.Background(), func(ports.LogEntry) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	_, found, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.False(t, found)

	saved := ports.Snapshot{Seq: 7, TakenAt: entryTime, State: []byte(`{"version":3}`)}
	require.NoError(t, store.Save(context.Background(), saved))

	loaded, found, err := store.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, saved.Seq, loaded.Seq)
	assert.Equal(t, saved.State, loaded.State)

	// A second save replaces the first.
	require.NoError(t, store.Save(context.Background(), ports.Snapshot{Seq: 9, TakenAt: entryTime, State: []byte(`{}`)}))
	loaded, found, err = store.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(9), loaded.Seq)
}

func TestTornSnapshotReadsAsAbsent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotFileName), []byte(`{"seq":3,"state"`), 0o644))

	_, found, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}
