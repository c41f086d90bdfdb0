package gofront

import (
	"log/slog"
	"sync"

	"golang.org/x/tools/go/packages"
)

var getStdLibSet = sync.OnceValue(func() map[string]bool {
	pkgs, _ := packages.Load(&packages.Config{Mode: packages.NeedName}, "std")
	m := make(map[string]bool, len(pkgs)+1)
	for _, p := range pkgs {
		m[p.PkgPath] = true
	}
	m["unsafe"] = true // not in `go list std`
	slog.Debug("loaded std lib packages", "num", len(m))
	return m
})

// isTargetPackage reports whether p's functions are lowered.
func isTargetPackage(p *packages.Package) bool {
	if getStdLibSet()[p.PkgPath] {
		return false
	}
	if p.Module != nil {
		// Modules-on: lower only the main module, skip all deps.
		return p.Module.Main
	}
	// GOPATH fallback: anything outside stdlib is assumed to be user code.
	return true
}
