package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nixmate/internal/operation"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_AppendAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []Record{
		{OperationID: "a", Kind: operation.KindListGenerations, Success: true, Message: "3 generations, current is 3", DurationMS: 12.5, StartedAt: base},
		{OperationID: "b", Kind: operation.KindInstall, Options: operation.Options{operation.OptPackageName: "hello"}, Success: false, Message: "could not install hello: boom", DurationMS: 40, Executor: "subprocess", StartedAt: base.Add(time.Minute)},
		{OperationID: "c", Kind: operation.KindUpdate, Success: true, RecoveredVia: operation.CategoryDiskSpace, CacheHit: false, StartedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		require.NoError(t, j.Append(ctx, r))
	}

	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []string{"c", "b", "a"}, []string{got[0].OperationID, got[1].OperationID, got[2].OperationID})
	assert.Equal(t, operation.CategoryDiskSpace, got[0].RecoveredVia)
	assert.Equal(t, "hello", got[1].Options[operation.OptPackageName])
	assert.Equal(t, "subprocess", got[1].Executor)
	assert.False(t, got[1].Success)
	assert.True(t, got[2].StartedAt.Equal(base))
	assert.InDelta(t, 12.5, got[2].DurationMS, 0.001)
	assert.Nil(t, got[2].Options)
}

func TestJournal_RecentLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < DefaultLimit+5; i++ {
		require.NoError(t, j.Append(ctx, Record{
			OperationID: string(rune('a' + i)),
			Kind:        operation.KindSearch,
			StartedAt:   base.Add(time.Duration(i) * time.Second),
		}))
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "explicit limit", limit: 2, want: 2},
		{name: "zero uses default", limit: 0, want: DefaultLimit},
		{name: "limit above count", limit: 100, want: DefaultLimit + 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.Recent(ctx, tt.limit)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestJournal_Observe(t *testing.T) {
	j := openTestJournal(t)
	op := operation.New(operation.KindSearch, map[string]any{operation.OptQuery: "firefox"})
	res := operation.Result{OperationID: "op-1", Kind: operation.KindSearch, Success: true, Message: "2 packages match \"firefox\"", CacheHit: true, Executor: "native"}
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j.Observe(ctx, op, res, started)

	got, err := j.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "op-1", got[0].OperationID)
	assert.True(t, got[0].CacheHit)
	assert.Equal(t, "firefox", got[0].Options[operation.OptQuery])
	assert.True(t, got[0].StartedAt.Equal(started))
}

func TestJournal_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(context.Background(), Record{OperationID: "keep", Kind: operation.KindBuild, StartedAt: time.Now()}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	got, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].OperationID)
}
