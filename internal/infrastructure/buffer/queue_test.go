package buffer

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "repairs.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueue_DrainOrder(t *testing.T) {
	q := openTestQueue(t)
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, q.Enqueue(Item{ID: "late", Kind: KindRelationshipRepair, Priority: 2, Timestamp: base.Add(time.Minute)}))
	require.NoError(t, q.Enqueue(Item{ID: "early", Kind: KindRelationshipRepair, Priority: 2, Timestamp: base}))
	require.NoError(t, q.Enqueue(Item{ID: "urgent", Kind: KindRelationshipRepair, Priority: 1, Timestamp: base.Add(time.Hour)}))

	items, err := q.Peek(10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"urgent", "early", "late"}, []string{items[0].ID, items[1].ID, items[2].ID})

	size, err := q.Size()
	require.NoError(t, err)
	assert.Equal(t, 3, size)
}

func TestQueue_RequeueRecordsFailure(t *testing.T) {
	q := openTestQueue(t)
	require.NoError(t, q.Enqueue(Item{ID: "a", Kind: KindRelationshipRepair}))

	items, err := q.Peek(1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Priority)

	require.NoError(t, q.Requeue(items[0], errors.New("store unavailable")))

	items, err = q.Peek(10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Retries)
	assert.Equal(t, "store unavailable", items[0].LastError)

	require.NoError(t, q.Remove(items[0]))
	size, err := q.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestQueue_RemoveByIDAndCleanup(t *testing.T) {
	q := openTestQueue(t)
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, q.Enqueue(Item{ID: "stale", Timestamp: old}))
	require.NoError(t, q.Enqueue(Item{ID: "fresh"}))
	require.NoError(t, q.Enqueue(Item{ID: "gone"}))

	require.NoError(t, q.Remove(Item{ID: "gone"}))

	removed, err := q.Cleanup(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	items, err := q.Peek(10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "fresh", items[0].ID)
}
