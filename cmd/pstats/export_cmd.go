package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/railmon/powerstats/internal/archive"
)

var (
	exportArchivePath string
	exportFrom        string
	exportTo          string
	exportKind        string
	exportFormat      string
	exportOutput      string
)

func init() {
	exportCmd.Flags().StringVar(&exportArchivePath, "archive", "",
		"path to the daemon's archive database (required)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "",
		"start of the export window (RFC 3339 or YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "",
		"end of the export window (RFC 3339 or YYYY-MM-DD, default now)")
	exportCmd.Flags().StringVar(&exportKind, "kind", "",
		"reading kind: meter or consumer (default both)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv",
		"output format: csv or json")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"output file (default stdout)")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export archived readings",
	Long: `Export readings from the daemon's archive database, without going
through the daemon. The archive must not be open for writing.`,
	Args: noArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportArchivePath == "" {
			return usagef("--archive is required")
		}
		switch exportFormat {
		case "csv", "json":
		default:
			return usagef("unknown format %q (want csv or json)", exportFormat)
		}
		switch exportKind {
		case "", archive.KindMeter, archive.KindConsumer:
		default:
			return usagef("unknown kind %q (want meter or consumer)", exportKind)
		}
		from, err := parseTimeFlag("from", exportFrom, time.Time{})
		if err != nil {
			return err
		}
		to, err := parseTimeFlag("to", exportTo, time.Now())
		if err != nil {
			return err
		}

		// Stat first: opening a missing path would create an empty
		// database instead of failing.
		if _, err := os.Stat(exportArchivePath); err != nil {
			return fmt.Errorf("archive %s: %w", exportArchivePath, err)
		}

		ctx, stop := commandContext()
		defer stop()

		arch, err := archive.Open(exportArchivePath)
		if err != nil {
			return err
		}
		defer func() { _ = arch.Close() }()

		total, err := arch.Count(ctx, from, to, exportKind)
		if err != nil {
			return err
		}

		var out io.Writer = os.Stdout
		var outFile *os.File
		if exportOutput != "" {
			outFile, err = os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOutput, err)
			}
			out = outFile
		}

		// Progress renders on stderr so piped stdout stays clean.
		var opts []archive.ExportOption
		var progress *mpb.Progress
		var bar *mpb.Bar
		if total > 0 && isTerminal(os.Stderr) {
			progress = mpb.New(
				mpb.WithOutput(os.Stderr),
				mpb.WithRefreshRate(120*time.Millisecond),
			)
			bar = progress.AddBar(total,
				mpb.PrependDecorators(
					decor.Name("exporting ", decor.WC{W: len("exporting "), C: decor.DindentRight}),
					decor.CountersNoUnit("(%d/%d)", decor.WCSyncWidth),
				),
				mpb.AppendDecorators(
					decor.NewPercentage("%.1f", decor.WCSyncSpace),
				),
			)
			opts = append(opts, archive.WithProgress(func(rows int64) {
				bar.SetCurrent(rows)
			}))
		}

		switch exportFormat {
		case "json":
			err = arch.ExportJSON(ctx, out, from, to, exportKind, opts...)
		default:
			err = arch.ExportCSV(ctx, out, from, to, exportKind, opts...)
		}
		if progress != nil {
			bar.SetTotal(bar.Current(), true)
			progress.Wait()
		}
		if err != nil {
			return err
		}

		if outFile != nil {
			if err := outFile.Close(); err != nil {
				return fmt.Errorf("close %s: %w", exportOutput, err)
			}
		}
		fmt.Fprintf(os.Stderr, "exported %d readings\n", total)
		return nil
	},
}

// parseTimeFlag reads a time flag as RFC 3339, or as a bare date at
// midnight UTC. An empty value yields fallback.
func parseTimeFlag(name, v string, fallback time.Time) (time.Time, error) {
	if v == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Time{}, usagef("invalid --%s %q: want RFC 3339 or YYYY-MM-DD", name, v)
}

func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}
