// Package main implements the CLI driver for the points-to analysis filter.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/715d/ptafilter/internal/config"
)

const (
	exitError = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg = config.Default()

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr *codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func newRootCmd() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "ptafilter <command> [inputs...]",
		Short: "Select the locals a points-to analysis must track",
		Long: `ptafilter finds the locals that unsafe code touches.

Every instruction lexically inside an unsafe scope is marked, and the locals
each marked instruction reads or writes are flagged for precise points-to
tracking. Everything else may be dropped from the analysis.

Inputs ending in .yaml or .yml are mirfiles. Anything else is a Go package
pattern; Go scopes are unsafe when marked with //ptafilter:unsafe or when
their function carries //go:nocheckptr or //go:uintptrescapes.`,
		Example: `  ptafilter filter ./...                 # Tracked locals of every function
  ptafilter filter --unsafe-pkg ./...    # Also treat scopes using package unsafe as unsafe
  ptafilter dump body.yaml               # IR with unsafe instructions highlighted
  ptafilter callgraph --json ./...       # Call graph as JSON
  ptafilter callsites --verify ./...     # Handle table, every handle decoded`,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	// Set custom version template to include build info.
	rootCmd.SetVersionTemplate(fmt.Sprintf("ptafilter version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&cfg.Verbose, config.FlagVerbose, "v", cfg.Verbose, "Enable verbose output")
	flags.BoolVar(&cfg.JSON, config.FlagJSON, cfg.JSON, "Output in JSON format")
	flags.IntVar(&cfg.OptLevel, config.FlagOptLevel, cfg.OptLevel, "Optimization level; the filter is skipped at 0")
	flags.IntVar(&cfg.Workers, config.FlagWorkers, cfg.Workers, "Bodies processed in parallel (0 means one per CPU)")
	flags.StringVar(&cfg.ConfigFile, config.FlagConfig, cfg.ConfigFile, "YAML config file; explicit flags take precedence")
	flags.StringSliceVar(&cfg.BuildTags, config.FlagBuildTags, []string{}, "Build tags to use during package loading")
	flags.BoolVar(&cfg.UnsafePkg, config.FlagUnsafePkg, cfg.UnsafePkg, "Treat Go scopes that refer to package unsafe as unsafe")
	flags.BoolVar(&cfg.Profile, config.FlagProfile, false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")

	rootCmd.AddCommand(newFilterCmd(), newDumpCmd(), newCallGraphCmd(), newCallSitesCmd())
	return rootCmd
}

func newFilterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filter [inputs...]",
		Short: "Print the locals of each body that need precise tracking",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := analyze(cmd, args)
			if err != nil {
				return err
			}
			defer s.report.Release()
			return writeOutput(cmd, s, writeFilter)
		},
	}
}

func newDumpCmd() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "dump [inputs...]",
		Short: "Print the filtered IR with unsafe instructions highlighted",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := analyze(cmd, args)
			if err != nil {
				return err
			}
			defer s.report.Release()
			if asYAML {
				return writeOutput(cmd, s, writeMirfile)
			}
			return writeOutput(cmd, s, writeDump)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Write the filtered bodies as a mirfile")
	return cmd
}

func newCallGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callgraph [inputs...]",
		Short: "Print call edges, bottom-up components and recursion cycles",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := analyze(cmd, args)
			if err != nil {
				return err
			}
			defer s.report.Release()
			return writeOutput(cmd, s, writeCallGraph)
		},
	}
}

func newCallSitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "callsites [inputs...]",
		Short: "Print the call site handle table",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := analyze(cmd, args)
			if err != nil {
				return err
			}
			defer s.report.Release()
			if cfg.Verify {
				if err := s.report.Verify(); err != nil {
					return errWithCode(fmt.Errorf("verify handles: %w", err), exitError)
				}
				slog.Info("verified call site handles", "num", len(s.report.CallSites))
			}
			return writeOutput(cmd, s, writeCallSites)
		},
	}
	cmd.Flags().BoolVar(&cfg.Verify, config.FlagVerify, false, "Decode every handle and check it names its call")
	return cmd
}

// loadConfig merges the config file, if any, under the flags that were not
// set explicitly.
func loadConfig(cmd *cobra.Command) error {
	if cfg.ConfigFile == "" {
		return nil
	}
	f, err := config.Load(cfg.ConfigFile)
	if err != nil {
		return err
	}
	f.Apply(&cfg, cmd.Flags().Changed)
	return nil
}

var cpuProfile *os.File

func setup(cmd *cobra.Command, _ []string) error {
	if err := loadConfig(cmd); err != nil {
		return errWithCode(err, exitError)
	}

	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		logger := slog.New(handler)
		slog.SetDefault(logger)
	}

	if !cfg.Profile {
		return nil
	}

	// Start CPU profiling.
	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}

	// Stop CPU profiling and close file.
	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	cpuProfile = nil
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	// Write memory profile.
	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return &codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e *codedError) Unwrap() error { return e.err }
