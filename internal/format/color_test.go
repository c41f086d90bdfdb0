package format

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPalette(t *testing.T) {
	tests := []struct {
		name string
		fn   func(Palette, ...any) string
		code string
	}{
		{"faint", Palette.Faint, "2"},
		{"red", Palette.Red, "1;31"},
		{"green", Palette.Green, "1;32"},
		{"yellow", Palette.Yellow, "1;33"},
		{"blue", Palette.Blue, "1;34"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, "_1 = copy _2", tt.fn(Plain(), "_1 = copy _2"))
			require.Equal(t, "\033["+tt.code+"m_1 3\033[0m", tt.fn(Forced(), "_1 ", 3))
		})
	}
}

func TestForFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	defer f.Close()

	require.False(t, ForFile(f).Enabled(), "regular files are not terminals")
	require.False(t, ForFile(nil).Enabled())
	require.True(t, Forced().Enabled())
}
