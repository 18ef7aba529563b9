package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/axonops/protock/internal/compat"
	"github.com/axonops/protock/internal/config"
	"github.com/axonops/protock/internal/history"
	"github.com/axonops/protock/internal/pbschema"
	"github.com/axonops/protock/internal/pbvisitor"
	"github.com/axonops/protock/internal/protoset"
)

// exitCode carries the process exit status out of RunE, which cobra treats
// as a Go error (and prints accordingly) rather than a plain status code.
// A failed compatibility check is not an error in that sense — it's a
// successful run that found problems — so it's reported via this instead
// of returning a non-nil error from the command.
var exitCode int

type cliFlags struct {
	oldPath    string
	mode       string
	verbose    bool
	configPath string
	importDirs []string
	showVer    bool
}

func newRootCmd() *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:   "protock <proto-file>",
		Short: "Static compatibility checker for protobuf schemas",
		Long: `protock compares a .proto file's current schema against a prior version
(an explicit --old file, or every revision in its git history) and reports
wire-format compatibility findings.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.showVer {
				printVersion()
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one positional argument, the path to the .proto file")
			}
			return run(args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.oldPath, "old", "", "explicit prior version of the .proto file; when omitted, walk repository history instead")
	cmd.Flags().StringVar(&flags.mode, "mode", "", "direction: forward, backward, or both (default from config, else backward)")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "increase diagnostic detail; has no effect on pass/fail outcome")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "path to a protock config file")
	cmd.Flags().StringArrayVarP(&flags.importDirs, "import", "I", nil, "additional proto import directory (repeatable); the target file's own directory is always included")
	cmd.Flags().BoolVar(&flags.showVer, "version", false, "print version information and exit")

	return cmd
}

func run(currentPath string, flags cliFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	setupLogging(cfg, flags.verbose)

	mode := flags.mode
	if mode == "" {
		mode = cfg.Check.DefaultMode
	}
	if mode != "forward" && mode != "backward" && mode != "both" {
		return fmt.Errorf("invalid --mode %q: must be forward, backward, or both", mode)
	}

	importDirs := append([]string{filepath.Dir(currentPath)}, flags.importDirs...)

	currentSchema, err := loadSchema(protoset.Source{Path: currentPath}, importDirs)
	if err != nil {
		return err
	}
	slog.Info("compiled current schema", slog.String("path", currentPath))

	comparisons, err := gatherComparisons(currentPath, flags.oldPath, importDirs)
	if err != nil {
		return err
	}
	if len(comparisons) == 0 {
		slog.Warn("no prior revision found to compare against", slog.String("path", currentPath))
		exitCode = 0
		return nil
	}

	failed := false
	for _, cmp := range comparisons {
		oldSchema, err := loadSchema(cmp.source, importDirs)
		if err != nil {
			return fmt.Errorf("compiling %s: %w", cmp.label, err)
		}

		if runDirection(mode, "backward") {
			if checkAndReport(currentSchema, oldSchema, "current", cmp.label, flags.verbose) {
				failed = true
			}
		}
		if runDirection(mode, "forward") {
			if checkAndReport(oldSchema, currentSchema, cmp.label, "current", flags.verbose) {
				failed = true
			}
		}
	}

	// Per spec, exit is 0 iff no check appended an error record — warnings
	// never flip this, regardless of check.warnings_as_errors. That knob
	// only controls how loudly warnings are surfaced below.
	if cfg.Check.WarningsAsErr && anyWarningsSeen && !failed {
		slog.Warn("warnings were reported and check.warnings_as_errors is set, but only error-severity records affect the exit code")
	}
	if failed {
		exitCode = 1
	} else {
		exitCode = 0
	}
	return nil
}

func runDirection(mode, direction string) bool {
	return mode == direction || mode == "both"
}

// anyWarningsSeen tracks whether any comparison produced a warning-severity
// record, for --config check.warnings_as_errors.
var anyWarningsSeen bool

type comparison struct {
	label  string
	source protoset.Source
}

// gatherComparisons resolves what "old" means for this run: either the
// single --old file, or every historical revision of the target path.
func gatherComparisons(currentPath, oldPath string, importDirs []string) ([]comparison, error) {
	if oldPath != "" {
		return []comparison{{label: oldPath, source: protoset.Source{Path: oldPath}}}, nil
	}

	repoRoot, relPath, err := findRepoRoot(currentPath)
	if err != nil {
		return nil, fmt.Errorf("locating git repository for %s: %w", currentPath, err)
	}

	revisions, err := history.Walk(repoRoot, relPath)
	if err != nil {
		return nil, fmt.Errorf("walking history of %s: %w", relPath, err)
	}

	comparisons := make([]comparison, 0, len(revisions))
	for _, rev := range revisions {
		comparisons = append(comparisons, comparison{
			label:  rev.Label,
			source: protoset.Source{Path: currentPath, Content: rev.Content},
		})
		slog.Debug("found historical revision", slog.String("commit", rev.Label))
	}
	return comparisons, nil
}

func loadSchema(src protoset.Source, importDirs []string) (*pbschema.Schema, error) {
	set, err := protoset.Compile(src, importDirs)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", src.Path, err)
	}
	schema, err := pbvisitor.Visit(set)
	if err != nil {
		return nil, fmt.Errorf("ingesting descriptor for %s: %w", src.Path, err)
	}
	return schema, nil
}

// checkAndReport runs one directional check and prints its diagnostics.
// Returns true if the check failed (appended at least one error record).
func checkAndReport(reader, writer *pbschema.Schema, readerName, writerName string, verbose bool) bool {
	var log compat.Log
	compat.Check(reader, writer, readerName, writerName, &log)

	for _, d := range log.Records() {
		if d.Severity == compat.Warning {
			anyWarningsSeen = true
		}
		if verbose || d.Severity == compat.Error {
			fmt.Fprintf(os.Stderr, "[%s] %s -> %s: %s\n", d.Severity, readerName, writerName, d.String())
		}
	}

	status := "pass"
	if log.Failed() {
		status = "fail"
	}
	slog.Info("check complete",
		slog.String("reader", readerName),
		slog.String("writer", writerName),
		slog.String("result", status),
		slog.Int("records", len(log.Records())),
	)
	return log.Failed()
}

func setupLogging(cfg *config.Config, verbose bool) {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
