package gofront

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

func TestDeduplicatePackages(t *testing.T) {
	tests := []struct {
		name     string
		input    []*packages.Package
		expected []string // expected IDs after deduplication, sorted by path
	}{
		{
			name: "regular_and_test_variant",
			input: []*packages.Package{
				{PkgPath: "example.com/pkg", ID: "example.com/pkg"},
				{PkgPath: "example.com/pkg", ID: "example.com/pkg [example.com/pkg.test]"},
			},
			expected: []string{"example.com/pkg [example.com/pkg.test]"},
		},
		{
			name: "test_variant_first",
			input: []*packages.Package{
				{PkgPath: "example.com/pkg", ID: "example.com/pkg [example.com/pkg.test]"},
				{PkgPath: "example.com/pkg", ID: "example.com/pkg"},
			},
			expected: []string{"example.com/pkg [example.com/pkg.test]"},
		},
		{
			name: "test_binary_filtered",
			input: []*packages.Package{
				{PkgPath: "example.com/pkg", ID: "example.com/pkg"},
				{PkgPath: "example.com/pkg", ID: "example.com/pkg.test"},
			},
			expected: []string{"example.com/pkg"},
		},
		{
			name: "external_test_package",
			input: []*packages.Package{
				{PkgPath: "example.com/pkg_test", ID: "example.com/pkg_test [example.com/pkg.test]"},
				{PkgPath: "example.com/pkg", ID: "example.com/pkg"},
			},
			expected: []string{"example.com/pkg", "example.com/pkg_test [example.com/pkg.test]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := deduplicatePackages(tt.input)
			ids := make([]string, len(result))
			for i, pkg := range result {
				ids[i] = pkg.ID
			}
			require.Equal(t, tt.expected, ids)
		})
	}
}

func TestParseDirective(t *testing.T) {
	tests := []struct {
		comment string
		want    DirectiveType
	}{
		{"//ptafilter:unsafe", DirectiveUnsafe},
		{"//ptafilter:unsafe raw pointer walk", DirectiveUnsafe},
		{"//ptafilter:safe", DirectiveSafe},
		{"//go:nocheckptr", DirectiveNocheckptr},
		{"//go:uintptrescapes", DirectiveUintptrescapes},
		{"// ptafilter:unsafe", DirectiveNone},
		{"//ptafilter:unsafely", DirectiveNone},
		{"//go:noinline", DirectiveNone},
		{"/* ptafilter:unsafe */", DirectiveNone},
	}
	for _, tt := range tests {
		t.Run(tt.comment, func(t *testing.T) {
			require.Equal(t, tt.want, ParseDirective(tt.comment))
		})
	}

	require.True(t, DirectiveUnsafe.Unsafe())
	require.True(t, DirectiveNocheckptr.Unsafe())
	require.False(t, DirectiveSafe.Unsafe())
	require.False(t, DirectiveNone.Unsafe())
}

func TestLineDirectives(t *testing.T) {
	idx := lineDirectives{4: DirectiveUnsafe, 9: DirectiveSafe, 10: DirectiveUnsafe}
	require.Equal(t, DirectiveUnsafe, idx.at(5))
	require.Equal(t, DirectiveUnsafe, idx.at(4))
	require.Equal(t, DirectiveUnsafe, idx.at(10), "same line wins")
	require.Equal(t, DirectiveNone, idx.at(7))
}

func TestBuildNoPackages(t *testing.T) {
	_, err := Build(nil, Options{})
	require.ErrorIs(t, err, ErrNoPackages)
	_, err = Build([]*packages.Package{nil}, Options{})
	require.ErrorIs(t, err, ErrNoPackages)
}
