package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	f, err := Decode(strings.NewReader(`
opt-level: 0
workers: 4
build-tags: [integration, linux]
unsafe-pkg: true
`))
	require.NoError(t, err)
	require.NotNil(t, f.OptLevel)
	assert.Equal(t, 0, *f.OptLevel)
	require.NotNil(t, f.Workers)
	assert.Equal(t, 4, *f.Workers)
	assert.Equal(t, []string{"integration", "linux"}, f.BuildTags)
	require.NotNil(t, f.UnsafePkg)
	assert.True(t, *f.UnsafePkg)
	assert.Nil(t, f.JSON)
	assert.Nil(t, f.Verbose)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "unknown key", input: "optlevel: 2\n", want: "field optlevel not found"},
		{name: "wrong type", input: "workers: many\n", want: "cannot unmarshal"},
		{name: "negative workers", input: "workers: -1\n", want: "workers -1 is negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Decode(strings.NewReader("workers: -3\n"))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestDecodeEmpty(t *testing.T) {
	f, err := Decode(strings.NewReader(""))
	require.NoError(t, err)

	c := Default()
	f.Apply(&c, func(string) bool { return false })
	require.Equal(t, Default(), c)
}

func TestApply(t *testing.T) {
	f, err := Decode(strings.NewReader(`
opt-level: 0
workers: 2
json: true
build-tags: [a]
verbose: true
`))
	require.NoError(t, err)

	tests := []struct {
		name    string
		flags   Config
		changed []string
		want    Config
	}{
		{
			name:  "file over defaults",
			flags: Default(),
			want:  Config{OptLevel: 0, Workers: 2, JSON: true, BuildTags: []string{"a"}, Verbose: true},
		},
		{
			name:    "explicit flags win",
			flags:   Config{OptLevel: 3, Workers: 8, BuildTags: []string{"b"}},
			changed: []string{FlagOptLevel, FlagWorkers, FlagJSON, FlagBuildTags},
			want:    Config{OptLevel: 3, Workers: 8, JSON: false, BuildTags: []string{"b"}, Verbose: true},
		},
		{
			name:    "flag set to its default still wins",
			flags:   Default(),
			changed: []string{FlagOptLevel},
			want:    Config{OptLevel: DefaultOptLevel, Workers: 2, JSON: true, BuildTags: []string{"a"}, Verbose: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.flags
			f.Apply(&c, func(flag string) bool {
				for _, ch := range tt.changed {
					if ch == flag {
						return true
					}
				}
				return false
			})
			require.Equal(t, tt.want, c)
		})
	}

	var none *File
	c := Default()
	none.Apply(&c, func(string) bool { return false })
	require.Equal(t, Default(), c)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ptafilter.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unsafe-pkg: true\n"), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, f.UnsafePkg)
	require.True(t, *f.UnsafePkg)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("json: [\n"), 0o600))
	_, err = Load(bad)
	require.ErrorContains(t, err, "load config "+bad)
}
