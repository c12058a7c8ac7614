package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	powerstats "github.com/railmon/powerstats"
)

var watchInterval time.Duration

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second,
		"time between samples")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch live power draw",
	Long: `Sample all meters and consumers repeatedly and print the average power
draw between samples, derived from the cumulative energy counters.
Stops on interrupt.`,
	Args: noArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchInterval <= 0 {
			return usagef("interval must be positive")
		}
		return runWithClient(func(ctx context.Context, ps *powerstats.PowerStats) error {
			return runWatch(ctx, ps, watchInterval, os.Stdout)
		})
	},
}

func runWatch(ctx context.Context, ps *powerstats.PowerStats, interval time.Duration, out io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var prev *powerstats.Snapshot
	for {
		opCtx, cancel := withTimeout(ctx)
		snap, err := ps.Snapshot(opCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		sample := buildWatchSample(snap, prev)
		if flagJSON {
			if err := printWatchJSON(out, sample); err != nil {
				return err
			}
		} else if err := printWatchTable(out, sample); err != nil {
			return err
		}
		prev = snap

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// railSample is one meter or consumer in a watch sample. PowerUW is
// nil on the first sample, before a delta exists.
type railSample struct {
	Kind      string   `json:"kind"`
	ID        int32    `json:"id"`
	Name      string   `json:"name"`
	EnergyUWs int64    `json:"energy_uws"`
	PowerUW   *float64 `json:"power_uw,omitempty"`
}

type watchSample struct {
	TakenAt time.Time    `json:"taken_at"`
	Backend string       `json:"backend"`
	Rails   []railSample `json:"rails"`
}

// buildWatchSample derives average power per rail from two successive
// snapshots. prev may be nil for the first sample.
func buildWatchSample(cur, prev *powerstats.Snapshot) watchSample {
	out := watchSample{
		TakenAt: cur.TakenAt,
		Backend: string(cur.Backend),
	}

	var wallDt time.Duration
	prevMeters := map[int32]powerstats.MeterSnapshot{}
	prevConsumers := map[int32]powerstats.ConsumerSnapshot{}
	if prev != nil {
		wallDt = cur.TakenAt.Sub(prev.TakenAt)
		for _, m := range prev.Meters {
			prevMeters[m.Meter.ID] = m
		}
		for _, c := range prev.Consumers {
			prevConsumers[c.Consumer.ID] = c
		}
	}

	for _, m := range cur.Meters {
		rs := railSample{
			Kind:      "meter",
			ID:        m.Meter.ID,
			Name:      m.Meter.Name,
			EnergyUWs: m.Reading.EnergyUWs,
		}
		if p, ok := prevMeters[m.Meter.ID]; ok {
			power := powerDelta(p.Reading.EnergyUWs, m.Reading.EnergyUWs,
				p.Reading.Timestamp, m.Reading.Timestamp, wallDt)
			rs.PowerUW = &power
		}
		out.Rails = append(out.Rails, rs)
	}
	for _, c := range cur.Consumers {
		rs := railSample{
			Kind:      "consumer",
			ID:        c.Consumer.ID,
			Name:      c.Consumer.Name,
			EnergyUWs: c.Reading.EnergyUWs,
		}
		if p, ok := prevConsumers[c.Consumer.ID]; ok {
			power := powerDelta(p.Reading.EnergyUWs, c.Reading.EnergyUWs,
				p.Reading.Timestamp, c.Reading.Timestamp, wallDt)
			rs.PowerUW = &power
		}
		out.Rails = append(out.Rails, rs)
	}
	return out
}

// powerDelta computes average power in µW between two cumulative
// readings. The monotonic reading timestamps win when they advance;
// wall time between the snapshots covers backends whose timestamps
// stall. A negative energy delta means the counter reset (device
// reboot); the new value then counts from zero.
func powerDelta(prevE, curE int64, prevTS, curTS time.Duration, wallDt time.Duration) float64 {
	dE := curE - prevE
	if dE < 0 {
		dE = curE
	}
	dt := curTS - prevTS
	if dt <= 0 {
		dt = wallDt
	}
	if dt <= 0 {
		return 0
	}
	return float64(dE) / dt.Seconds()
}

// printWatchJSON emits one JSON object per sample, newline-delimited.
func printWatchJSON(out io.Writer, s watchSample) error {
	return json.NewEncoder(out).Encode(s)
}

func printWatchTable(out io.Writer, s watchSample) error {
	fmt.Fprintf(out, "%s  backend=%s\n", s.TakenAt.Format("15:04:05"), s.Backend)
	tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tNAME\tENERGY_UWS\tPOWER_UW")
	for _, r := range s.Rails {
		power := "-"
		if r.PowerUW != nil {
			power = strconv.FormatFloat(*r.PowerUW, 'f', 1, 64)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", r.Kind, r.ID, r.Name, r.EnergyUWs, power)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out)
	return err
}
