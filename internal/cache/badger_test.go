package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nixmate/internal/operation"
)

func openTestBadger(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_PutGetDelete(t *testing.T) {
	s := openTestBadger(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	entry := Entry{
		Key:  `search?query="vim"`,
		Kind: operation.KindSearch,
		Result: operation.Result{
			Kind:    operation.KindSearch,
			Success: true,
			Message: "1 package",
			Data:    &operation.Payload{Packages: []operation.Package{{Attr: "nixos.vim", Name: "vim", Version: "9.1"}}},
		},
		InsertedAt: now,
		TTL:        time.Minute,
	}
	require.NoError(t, s.Put(entry))

	got, found, err := s.Get(entry.Key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry.Result, got.Result)
	assert.True(t, entry.InsertedAt.Equal(got.InsertedAt))
	assert.Equal(t, time.Minute, got.TTL)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete(entry.Key))
	_, found, err = s.Get(entry.Key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBadgerStore_DeleteKind(t *testing.T) {
	s := openTestBadger(t)
	for _, key := range []string{"list_generations", "list_generations?limit=5", `search?query="vim"`, "dry_run"} {
		kind, _, _ := strings.Cut(key, "?")
		require.NoError(t, s.Put(Entry{Key: key, Kind: operation.Kind(kind), TTL: time.Minute}))
	}

	n, err := s.DeleteKind(operation.KindListGenerations)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.Len())
}

func TestCache_WithBadgerStore(t *testing.T) {
	c := New(WithStore(openTestBadger(t)))
	op := mustOp(t, operation.KindListGenerations, nil)
	calls := 0
	compute := func(context.Context) operation.Result {
		calls++
		return generationsResult(op)
	}

	first := c.GetOrCompute(context.Background(), op, compute)
	second := c.GetOrCompute(context.Background(), op, compute)

	assert.Equal(t, 1, calls)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Data, second.Data)

	c.InvalidateAfter(operation.KindRollback)
	_, ok := c.Lookup(op)
	assert.False(t, ok)
}
