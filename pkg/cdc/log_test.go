package cdc

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warrendb/pkg/kv"
	"github.com/cuemby/warrendb/pkg/types"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	store, err := kv.Open(kv.DefaultConfig(filepath.Join(t.TempDir(), "cdc.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestRecordAssignsGapFreeSequence(t *testing.T) {
	l := newTestLog(t)
	e1, err := l.Record(types.ChangeEvent{Type: types.ChangePut, Key: "users:1"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e1.Sequence)

	e2, err := l.Record(types.ChangeEvent{Type: types.ChangePut, Key: "users:2"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e2.Sequence)

	seq, err := l.LatestSequence()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestListFiltersAndOrders(t *testing.T) {
	l := newTestLog(t)
	_, err := l.Record(types.ChangeEvent{Type: types.ChangePut, Key: "users:1"})
	require.NoError(t, err)
	_, err = l.Record(types.ChangeEvent{Type: types.ChangeDelete, Key: "orders:1"})
	require.NoError(t, err)
	_, err = l.Record(types.ChangeEvent{Type: types.ChangePut, Key: "users:2"})
	require.NoError(t, err)

	all, err := l.List(0, 0, "", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{all[0].Sequence, all[1].Sequence, all[2].Sequence})

	usersOnly, err := l.List(0, 0, "users:", "", 0)
	require.NoError(t, err)
	assert.Len(t, usersOnly, 2)

	putsOnly, err := l.List(0, 0, "", types.ChangePut, 0)
	require.NoError(t, err)
	assert.Len(t, putsOnly, 2)

	fromTwo, err := l.List(2, 0, "", "", 0)
	require.NoError(t, err)
	require.Len(t, fromTwo, 1)
	assert.Equal(t, uint64(3), fromTwo[0].Sequence)
}

func TestListLongPollWakesOnRecord(t *testing.T) {
	l := newTestLog(t)
	done := make(chan []types.ChangeEvent, 1)
	go func() {
		events, err := l.List(0, 0, "", "", 2000)
		require.NoError(t, err)
		done <- events
	}()

	time.Sleep(30 * time.Millisecond)
	_, err := l.Record(types.ChangeEvent{Type: types.ChangePut, Key: "users:1"})
	require.NoError(t, err)

	select {
	case events := <-done:
		require.Len(t, events, 1)
		assert.Equal(t, "users:1", events[0].Key)
	case <-time.After(2 * time.Second):
		t.Fatal("List did not wake on Record")
	}
}

func TestListLongPollTimesOut(t *testing.T) {
	l := newTestLog(t)
	start := time.Now()
	events, err := l.List(0, 0, "", "", 50)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDeleteBeforeAndClear(t *testing.T) {
	l := newTestLog(t)
	_, err := l.Record(types.ChangeEvent{Type: types.ChangePut, Key: "a"})
	require.NoError(t, err)
	_, err = l.Record(types.ChangeEvent{Type: types.ChangePut, Key: "b"})
	require.NoError(t, err)
	_, err = l.Record(types.ChangeEvent{Type: types.ChangePut, Key: "c"})
	require.NoError(t, err)

	require.NoError(t, l.DeleteBefore(3))
	remaining, err := l.List(0, 0, "", "", 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "c", remaining[0].Key)

	require.NoError(t, l.Clear())
	remaining, err = l.List(0, 0, "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	seq, err := l.LatestSequence()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq, "sequence counter survives Clear")
}
