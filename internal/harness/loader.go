package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	yaml "gopkg.in/yaml.v3"

	"github.com/stretchr/testify/require"

	"github.com/715d/ptafilter/pkg/gofront"
	"github.com/715d/ptafilter/pkg/mirfile"
	"github.com/715d/ptafilter/pkg/ptafilter"
)

// InputFile is the mirfile of a SourceMIR case.
const InputFile = "input.yaml"

// LoadUnit loads the bodies of a test case for one configuration. Loading
// and lowering errors are returned so that a case may expect them.
func LoadUnit(t *testing.T, root string, tc *TestCase, cfg Configuration) (ptafilter.Unit, error) {
	t.Helper()
	dir := filepath.Join(root, tc.Dir)

	switch tc.Source {
	case "", SourceMIR:
		f, err := mirfile.Load(filepath.Join(dir, InputFile))
		if err != nil {
			return ptafilter.Unit{}, err
		}
		return ptafilter.Unit{Bodies: f.Bodies, Context: f, Oracle: f}, nil
	case SourceGo:
		t.Logf("Loading packages from %q", dir)
		pkgs, err := gofront.Load(t.Context(), gofront.LoaderOptions{
			Packages:  []string{"./..."},
			BuildTags: cfg.BuildTags,
			Dir:       dir,
			Env:       updateEnv(os.Environ(), "CGO_ENABLED", "0"),
		})
		if err != nil {
			return ptafilter.Unit{}, err
		}
		prog, err := gofront.Build(pkgs, gofront.Options{UnsafePackageScopes: cfg.UnsafePkg})
		if err != nil {
			return ptafilter.Unit{}, err
		}
		return ptafilter.Unit{Bodies: prog.Bodies, Context: prog, Oracle: prog}, nil
	}
	return ptafilter.Unit{}, fmt.Errorf("unknown source %q", tc.Source)
}

// LoadTestCase loads a test case from a directory with a specified testdata root.
func LoadTestCase(t *testing.T, dir, root string) *TestCase {
	t.Helper()
	yamlPath := filepath.Join(dir, "expected.yaml")

	tc := &TestCase{}
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	err = yaml.Unmarshal(data, tc)
	require.NoError(t, err)

	// Use relative path from testdata root if provided.
	if root != "" {
		relPath, err := filepath.Rel(root, dir)
		if err != nil {
			tc.Dir = filepath.Base(dir)
		} else {
			tc.Dir = relPath
		}
		return tc
	}

	tc.Dir = filepath.Base(dir)
	return tc
}

// updateEnv updates or adds an environment variable
func updateEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
