// Command pstats is a hub client for inspecting device power telemetry
// from the command line: energy meters, energy consumers, power entity
// state residency, live power draw and offline archive exports.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	powerstats "github.com/railmon/powerstats"
	"github.com/railmon/powerstats/internal/config"
	"github.com/railmon/powerstats/internal/ipc"
	"github.com/railmon/powerstats/internal/version"
)

// Global flags shared by every subcommand.
var (
	flagHub     string
	flagBackend string
	flagTimeout time.Duration
	flagJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "pstats",
	Short: "Inspect device power telemetry",
	Long: `pstats talks to the device power hub and prints energy meters, energy
consumers and power entity state residency, as tables or as JSON. It
can also watch live power draw and export the daemon's reading
archive.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, version.Commit, version.Date)

	rootCmd.PersistentFlags().StringVar(&flagHub, "hub",
		config.ParseString("POWERSTATS_HUB_ADDR", "unix:///tmp/powerhub.sock"),
		"hub socket address (unix:// or tcp://)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "auto",
		"telemetry backend: auto, hal or system")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 10*time.Second,
		"per-request timeout")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false,
		"print JSON instead of tables")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	rootCmd.AddCommand(metersCmd, consumersCmd, entitiesCmd, readCmd,
		residencyCmd, watchCmd, servicesCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pstats: %v\n", err)
		var ue *usageError
		if errors.As(err, &ue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// usageError marks a bad invocation so main exits 2 instead of 1.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return &usageError{err: err}
	}
	return nil
}

// commandContext is the base context for a command invocation; it ends
// on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, flagTimeout)
}

// dialConn connects to the hub without selecting a backend.
func dialConn(ctx context.Context) (*ipc.Conn, error) {
	dialCtx, cancel := withTimeout(ctx)
	defer cancel()

	conn, err := ipc.DialContext(dialCtx, flagHub)
	if err != nil {
		return nil, fmt.Errorf("connect to hub at %s: %w", flagHub, err)
	}
	return conn, nil
}

// dialHub connects to the hub and selects the telemetry backend per the
// global flags. The caller owns the returned connection.
func dialHub(ctx context.Context) (*ipc.Conn, *powerstats.PowerStats, error) {
	conn, err := dialConn(ctx)
	if err != nil {
		return nil, nil, err
	}

	setupCtx, cancel := withTimeout(ctx)
	defer cancel()

	var ps *powerstats.PowerStats
	switch flagBackend {
	case "auto":
		ps, err = powerstats.New(setupCtx, conn)
	case "hal":
		ps, err = powerstats.NewWithBackend(setupCtx, conn, powerstats.BackendVendorHAL)
	case "system":
		ps, err = powerstats.NewWithBackend(setupCtx, conn, powerstats.BackendSystemService)
	default:
		_ = conn.Close()
		return nil, nil, usagef("unknown backend %q (want auto, hal or system)", flagBackend)
	}
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ps, nil
}

// runWithClient dials the hub, runs fn and closes the connection.
func runWithClient(fn func(ctx context.Context, ps *powerstats.PowerStats) error) error {
	ctx, stop := commandContext()
	defer stop()

	conn, ps, err := dialHub(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	return fn(ctx, ps)
}

// parseIDs converts positional arguments to int32 ids.
func parseIDs(args []string) ([]int32, error) {
	if len(args) == 0 {
		return nil, nil
	}
	ids := make([]int32, len(args))
	for i, arg := range args {
		v, err := strconv.ParseInt(arg, 10, 32)
		if err != nil {
			return nil, usagef("invalid id %q", arg)
		}
		ids[i] = int32(v)
	}
	return ids, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}
