package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitNameVersion(t *testing.T) {
	tests := []struct {
		in, name, version string
	}{
		{"vim-9.1.0", "vim", "9.1.0"},
		{"gnome-shell-45.2", "gnome-shell", "45.2"},
		{"python3.11-requests-2.31.0", "python3.11-requests", "2.31.0"},
		{"hello", "hello", ""},
		{"font-awesome-6.5.1", "font-awesome", "6.5.1"},
		{"firefox-unwrapped-121.0-rc1", "firefox-unwrapped", "121.0-rc1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, version := splitNameVersion(tt.in)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.version, version)
		})
	}
}

func TestParseGenerationsJSON(t *testing.T) {
	gens, err := parseGenerationsJSON(generationsJSON)
	require.NoError(t, err)
	require.Len(t, gens, 3)
	assert.Equal(t, []int{42, 41, 40}, []int{gens[0].Number, gens[1].Number, gens[2].Number})

	want := time.Date(2024, 1, 15, 14, 30, 45, 0, time.Local).UTC()
	assert.True(t, want.Equal(gens[0].CreatedAt))
	assert.Equal(t, time.UTC, gens[0].CreatedAt.Location())

	_, err = parseGenerationsJSON("error: unknown action list-generations")
	assert.Error(t, err)
}

func TestParseGenerationsText(t *testing.T) {
	out := "   1   2023-12-01 08:00:00   \n  12   2024-01-15 14:30:45   (current)\nwarning: something\n"
	gens := parseGenerationsText(out, "")
	require.Len(t, gens, 2)
	assert.Equal(t, 12, gens[0].Number)
	assert.True(t, gens[0].IsCurrent)
	assert.Equal(t, 1, gens[1].Number)
	assert.False(t, gens[1].IsCurrent)
	assert.Empty(t, gens[1].Description)
}

func TestProfileSwitchIn(t *testing.T) {
	from, to, ok := profileSwitchIn("building...\nswitching profile from version 7 to 5\n")
	assert.True(t, ok)
	assert.Equal(t, 7, from)
	assert.Equal(t, 5, to)

	_, _, ok = profileSwitchIn("nothing here")
	assert.False(t, ok)
}

func TestSearchPattern(t *testing.T) {
	assert.Equal(t, ".*", searchPattern("  "))
	assert.Equal(t, `.*gtk\+.*`, searchPattern("GTK+ theme"))
}
