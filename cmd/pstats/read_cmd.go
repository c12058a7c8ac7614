package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	powerstats "github.com/railmon/powerstats"
)

var readCmd = &cobra.Command{
	Use:   "read meters|consumers [id...]",
	Short: "Read cumulative energy",
	Long: `Read cumulative energy from meters or consumers. Without ids every
meter (or consumer) the backend exposes is read.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return usagef("expected meters or consumers")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[1:])
		if err != nil {
			return err
		}
		switch args[0] {
		case "meters":
			return runWithClient(func(ctx context.Context, ps *powerstats.PowerStats) error {
				return readMeters(ctx, ps, ids)
			})
		case "consumers":
			return runWithClient(func(ctx context.Context, ps *powerstats.PowerStats) error {
				return readConsumers(ctx, ps, ids)
			})
		default:
			return usagef("unknown read target %q (want meters or consumers)", args[0])
		}
	},
}

func readMeters(ctx context.Context, ps *powerstats.PowerStats, ids []int32) error {
	listCtx, cancel := withTimeout(ctx)
	all, err := ps.EnergyMeters(listCtx)
	cancel()
	if err != nil {
		return err
	}

	targets := selectMeters(all, ids)
	reqIDs := make([]int32, len(targets))
	for i, m := range targets {
		reqIDs[i] = m.ID
	}

	readCtx, cancel := withTimeout(ctx)
	readings, err := ps.ReadEnergyMeters(readCtx, reqIDs)
	cancel()
	if err != nil {
		return err
	}
	if len(readings) != len(targets) {
		return fmt.Errorf("hub returned %d readings for %d meters", len(readings), len(targets))
	}

	if flagJSON {
		out := make([]powerstats.MeterSnapshot, len(targets))
		for i := range targets {
			out[i] = powerstats.MeterSnapshot{Meter: targets[i], Reading: readings[i]}
		}
		return printJSON(out)
	}

	tw := newTable()
	fmt.Fprintln(tw, "ID\tNAME\tENERGY_UWS\tTIMESTAMP\tDURATION")
	for i, m := range targets {
		r := readings[i]
		dur := "-"
		if r.Duration != nil {
			dur = r.Duration.String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", m.ID, m.Name, r.EnergyUWs, r.Timestamp, dur)
	}
	return tw.Flush()
}

func readConsumers(ctx context.Context, ps *powerstats.PowerStats, ids []int32) error {
	listCtx, cancel := withTimeout(ctx)
	all, err := ps.EnergyConsumers(listCtx)
	cancel()
	if err != nil {
		return err
	}

	targets := selectConsumers(all, ids)
	reqIDs := make([]int32, len(targets))
	for i, c := range targets {
		reqIDs[i] = c.ID
	}

	readCtx, cancel := withTimeout(ctx)
	readings, err := ps.ReadEnergyConsumers(readCtx, reqIDs)
	cancel()
	if err != nil {
		return err
	}
	if len(readings) != len(targets) {
		return fmt.Errorf("hub returned %d readings for %d consumers", len(readings), len(targets))
	}

	if flagJSON {
		out := make([]powerstats.ConsumerSnapshot, len(targets))
		for i := range targets {
			out[i] = powerstats.ConsumerSnapshot{Consumer: targets[i], Reading: readings[i]}
		}
		return printJSON(out)
	}

	tw := newTable()
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tENERGY_UWS\tTIMESTAMP\tATTRIBUTED_UIDS")
	for i, c := range targets {
		r := readings[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%d\n",
			c.ID, c.Name, c.Type, r.EnergyUWs, r.Timestamp, len(r.Attribution))
	}
	return tw.Flush()
}

// selectMeters resolves requested ids against the enumerated meters,
// keeping enumeration order when the request is empty. Unknown ids get
// a placeholder descriptor so the row still shows up.
func selectMeters(all []powerstats.EnergyMeter, ids []int32) []powerstats.EnergyMeter {
	if len(ids) == 0 {
		return all
	}
	byID := make(map[int32]powerstats.EnergyMeter, len(all))
	for _, m := range all {
		byID[m.ID] = m
	}
	out := make([]powerstats.EnergyMeter, len(ids))
	for i, id := range ids {
		m, ok := byID[id]
		if !ok {
			m = powerstats.EnergyMeter{ID: id, Name: "?"}
		}
		out[i] = m
	}
	return out
}

func selectConsumers(all []powerstats.EnergyConsumer, ids []int32) []powerstats.EnergyConsumer {
	if len(ids) == 0 {
		return all
	}
	byID := make(map[int32]powerstats.EnergyConsumer, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}
	out := make([]powerstats.EnergyConsumer, len(ids))
	for i, id := range ids {
		c, ok := byID[id]
		if !ok {
			c = powerstats.EnergyConsumer{ID: id, Name: "?"}
		}
		out[i] = c
	}
	return out
}
