package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"machlink/internal/diagfmt"
	"machlink/internal/driver"
	"machlink/internal/trace"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <manifest.toml>",
	Short: "Resolve the symbol tables of a link manifest",
	Long: `Load a manifest describing pre-parsed link inputs, run parallel symbol
resolution, and print the deferred duplicate/undefined diagnostics.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().Int("jobs", 0, "parallel ingestion workers (0 = GOMAXPROCS)")
	resolveCmd.Flags().Bool("json", false, "emit diagnostics as JSON")
	resolveCmd.Flags().String("cache-dir", "", "write a resolution snapshot keyed by manifest hash")
	resolveCmd.Flags().String("trace", "", "stream trace events to a file (\"-\" for stderr)")
	resolveCmd.Flags().String("trace-level", "phase", "trace verbosity (off|phase|detail|debug)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	manifestPath := args[0]

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	m, err := driver.DecodeManifest(data)
	if err != nil {
		return err
	}

	tracer, closeTrace, err := buildTracer(cmd)
	if err != nil {
		return err
	}
	defer closeTrace()

	jobs, _ := cmd.Flags().GetInt("jobs")
	maxDiags, _ := cmd.Flags().GetInt("max-diagnostics")
	l, err := driver.NewLink(m, driver.Options{
		Jobs:           jobs,
		Tracer:         tracer,
		MaxDiagnostics: maxDiags,
	})
	if err != nil {
		return err
	}
	if err := l.Run(context.Background()); err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	colorMode, _ := cmd.Flags().GetString("color")
	quiet, _ := cmd.Flags().GetBool("quiet")
	if asJSON {
		if err := diagfmt.JSON(os.Stdout, l.Bag, diagfmt.JSONOpts{IncludeNotes: true}); err != nil {
			return err
		}
	} else {
		diagfmt.Pretty(os.Stderr, l.Bag, diagfmt.PrettyOpts{
			Color:     useColor(colorMode, os.Stderr),
			ShowNotes: true,
		})
		if !quiet {
			fmt.Fprintf(os.Stdout, "resolved %d symbols from %d inputs\n",
				len(l.Table.Symbols()), l.Files.Len())
		}
	}

	if dir, _ := cmd.Flags().GetString("cache-dir"); dir != "" {
		snap := l.Snapshot(driver.ManifestHash(data))
		path, err := driver.WriteSnapshot(dir, snap)
		if err != nil {
			return err
		}
		if !quiet && !asJSON {
			fmt.Fprintf(os.Stdout, "snapshot: %s\n", path)
		}
	}

	if timings, _ := cmd.Flags().GetBool("timings"); timings {
		fmt.Fprint(os.Stderr, l.Timer.Summary())
	}

	if l.Bag.HasErrors() {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return fmt.Errorf("link failed with %d diagnostics", l.Bag.Len())
	}
	return nil
}

func buildTracer(cmd *cobra.Command) (trace.Tracer, func(), error) {
	dest, _ := cmd.Flags().GetString("trace")
	if dest == "" {
		return trace.Nop, func() {}, nil
	}
	levelStr, _ := cmd.Flags().GetString("trace-level")
	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, nil, err
	}
	if dest == "-" {
		return trace.New(os.Stderr, level), func() {}, nil
	}
	f, err := os.Create(dest)
	if err != nil {
		return nil, nil, err
	}
	return trace.New(f, level), func() { _ = f.Close() }, nil
}
