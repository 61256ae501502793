package operation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
	}{
		{"LIST_GENERATIONS", KindListGenerations},
		{"dry-run", KindDryRun},
		{" update ", KindUpdate},
		{"Search", KindSearch},
	}
	for _, tt := range tests {
		k, err := ParseKind(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, k)
	}

	_, err := ParseKind("format-disk")
	assert.Error(t, err)
}

func TestKindDerivedProperties(t *testing.T) {
	for _, k := range AllKinds {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Kind("teleport").Valid())

	cacheable := map[Kind]bool{KindListGenerations: true, KindSearch: true, KindDryRun: true}
	privileged := map[Kind]bool{KindUpdate: true, KindRollback: true, KindInstall: true, KindRemove: true, KindRepair: true}
	for _, k := range AllKinds {
		assert.Equal(t, cacheable[k], k.IsIdempotentRead(), "cacheable %s", k)
		assert.Equal(t, privileged[k], k.RequiresPrivilege(), "privileged %s", k)
		assert.False(t, k.IsIdempotentRead() && k.RequiresPrivilege(), "%s cannot be both", k)
	}
}

func TestNewCopiesOptions(t *testing.T) {
	opts := map[string]any{OptPackageName: "firefox"}
	op := New(KindInstall, opts)
	opts[OptPackageName] = "chromium"

	assert.Equal(t, "firefox", op.String(OptPackageName))

	got := op.Options()
	got[OptPackageName] = "vim"
	assert.Equal(t, "firefox", op.String(OptPackageName))
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name      string
		kind      Kind
		options   map[string]any
		wantField string
		check     func(t *testing.T, op Operation)
	}{
		{
			name:    "integral float becomes int64",
			kind:    KindRollback,
			options: map[string]any{OptGenerationNumber: 41.0},
			check: func(t *testing.T, op Operation) {
				n, ok := op.Int(OptGenerationNumber)
				require.True(t, ok)
				assert.Equal(t, int64(41), n)
			},
		},
		{
			name:    "json number becomes int64",
			kind:    KindListGenerations,
			options: map[string]any{OptLimit: json.Number("10")},
			check: func(t *testing.T, op Operation) {
				n, _ := op.Int(OptLimit)
				assert.Equal(t, int64(10), n)
			},
		},
		{
			name:    "bool from string",
			kind:    KindUpdate,
			options: map[string]any{OptUpgrade: "true"},
			check: func(t *testing.T, op Operation) {
				assert.True(t, op.Bool(OptUpgrade))
			},
		},
		{name: "unknown key rejected", kind: KindSearch, options: map[string]any{OptQuery: "vim", "fuzzy": true}, wantField: "fuzzy"},
		{name: "missing required", kind: KindInstall, options: map[string]any{}, wantField: OptPackageName},
		{name: "empty required string", kind: KindSearch, options: map[string]any{OptQuery: ""}, wantField: OptQuery},
		{name: "fractional int rejected", kind: KindRollback, options: map[string]any{OptGenerationNumber: 4.5}, wantField: OptGenerationNumber},
		{name: "non-positive generation", kind: KindRollback, options: map[string]any{OptGenerationNumber: 0}, wantField: OptGenerationNumber},
		{name: "wrong type", kind: KindInstall, options: map[string]any{OptPackageName: 12}, wantField: OptPackageName},
		{name: "unsupported kind", kind: Kind("reboot"), options: nil, wantField: "kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := New(tt.kind, tt.options).Canonical()
			if tt.wantField != "" {
				var verr *ValidationError
				require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
				assert.Equal(t, tt.wantField, verr.Field)
				return
			}
			require.NoError(t, err)
			tt.check(t, op)
		})
	}
}

func TestCacheKeyNormalization(t *testing.T) {
	a, err := New(KindSearch, map[string]any{OptQuery: "editor", OptLimit: 5}).Canonical()
	require.NoError(t, err)
	b, err := New(KindSearch, map[string]any{OptLimit: 5.0, OptQuery: "editor"}).Canonical()
	require.NoError(t, err)
	c, err := New(KindSearch, map[string]any{OptLimit: 6, OptQuery: "editor"}).Canonical()
	require.NoError(t, err)

	assert.Equal(t, a.CacheKey(), b.CacheKey())
	assert.NotEqual(t, a.CacheKey(), c.CacheKey())
	assert.Equal(t, `search?limit=5&query="editor"`, a.CacheKey())
	assert.Equal(t, "list_generations", New(KindListGenerations, nil).CacheKey())
}

func TestOperationJSONRoundTrip(t *testing.T) {
	var op Operation
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"ROLLBACK","options":{"generation_number":12,"confirm":true}}`), &op))
	assert.Equal(t, KindRollback, op.Kind())

	canonical, err := op.Canonical()
	require.NoError(t, err)
	n, ok := canonical.Int(OptGenerationNumber)
	require.True(t, ok)
	assert.Equal(t, int64(12), n)

	data, err := json.Marshal(canonical)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"rollback","options":{"generation_number":12,"confirm":true}}`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"explode"}`), &op))
}

func TestDescribe(t *testing.T) {
	op, err := New(KindRollback, map[string]any{OptGenerationNumber: 7}).Canonical()
	require.NoError(t, err)
	assert.Equal(t, "roll back to generation 7", op.Describe())
	assert.Equal(t, "install firefox", New(KindInstall, map[string]any{OptPackageName: "firefox"}).Describe())
}
