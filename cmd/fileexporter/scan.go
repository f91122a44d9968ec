package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/michaelswisa/FileExporter/internal/filesystem"
	"github.com/michaelswisa/FileExporter/internal/scanner"
)

func newScanCmd() *cobra.Command {
	var (
		noColor bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "scan [tenant]",
		Short: "Run one scan cycle and print a summary",
		Long: `Scan runs the failure, zombie and transcoded scans once and exits.
With a tenant argument only that tenant is scanned; otherwise every landing
directory of the configured env is discovered and scanned. Failure reason
snapshots are written exactly as the server writes them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant := ""
			if len(args) > 0 {
				tenant = args[0]
			}
			if noColor || !isatty.IsTerminal(os.Stdout.Fd()) {
				color.NoColor = true
			}
			return runScan(cmd.OutOrStdout(), tenant, output)
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also write the scan runs as JSON to this file")
	return cmd
}

func runScan(out io.Writer, tenant, output string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logManager, logger := setupLogging(cfg.Logging)
	defer logManager.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newCore(cfg, logger)
	start := time.Now()

	if tenant != "" {
		res := c.scanner.ScanAll(ctx, tenant)
		if !res.Any() {
			return fmt.Errorf("tenant %q in env %q: %w", tenant, cfg.Scan.Env, scanner.ErrNotFound)
		}
	} else if n := c.scanner.DiscoverAndScanAll(ctx); n == 0 {
		fmt.Fprintf(out, "No landing directories for env %s under %s\n", cfg.Scan.Env, cfg.Scan.RootPath)
		return nil
	}

	runs := c.scanner.Status()
	printSummary(out, runs, time.Since(start))
	if output != "" {
		return writeRuns(output, runs)
	}
	return nil
}

// writeRuns stores runs as an indented JSON array at path.
func writeRuns(path string, runs []scanner.Run) error {
	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding runs: %w", err)
	}
	if err := filesystem.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

var (
	bold = color.New(color.Bold).SprintFunc()
	red  = color.New(color.FgRed).SprintFunc()
)

// printSummary aligns the plain table first and styles whole lines after,
// since tabwriter counts escape sequences as cell width.
func printSummary(out io.Writer, runs []scanner.Run, elapsed time.Duration) {
	var table bytes.Buffer
	tw := tabwriter.NewWriter(&table, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tSCAN\tSTATUS\tTOTAL\tRECENT\tPATH")

	// Status is newest first; print in start order.
	ordered := make([]scanner.Run, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		ordered = append(ordered, r)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.Tenant, r.Kind, r.Status, r.Total, r.Recent, r.ScanPath)
	}
	_ = tw.Flush()

	failed := 0
	lines := strings.Split(strings.TrimSuffix(table.String(), "\n"), "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			line = bold(line)
		case ordered[i-1].Status == scanner.StatusFailed:
			line = red(line)
			failed++
		}
		fmt.Fprintln(out, line)
	}

	summary := fmt.Sprintf("%d scans in %s", len(runs), elapsed.Round(time.Millisecond))
	if failed > 0 {
		fmt.Fprintf(out, "\n%s, %s\n", summary, red(fmt.Sprintf("%d failed", failed)))
		return
	}
	fmt.Fprintf(out, "\n%s\n", summary)
}
