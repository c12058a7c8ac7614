package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	powerstats "github.com/railmon/powerstats"
)

var metersCmd = &cobra.Command{
	Use:   "meters",
	Short: "List energy meters",
	Long:  "List the power rails the device measures directly.",
	Args:  noArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithClient(func(ctx context.Context, ps *powerstats.PowerStats) error {
			opCtx, cancel := withTimeout(ctx)
			defer cancel()

			meters, err := ps.EnergyMeters(opCtx)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(meters)
			}
			tw := newTable()
			fmt.Fprintln(tw, "ID\tNAME\tSUBSYSTEM")
			for _, m := range meters {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", m.ID, m.Name, m.Subsystem)
			}
			return tw.Flush()
		})
	},
}

var consumersCmd = &cobra.Command{
	Use:   "consumers",
	Short: "List energy consumers",
	Long:  "List the aggregated energy consumers, e.g. CPU clusters and the display.",
	Args:  noArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithClient(func(ctx context.Context, ps *powerstats.PowerStats) error {
			opCtx, cancel := withTimeout(ctx)
			defer cancel()

			consumers, err := ps.EnergyConsumers(opCtx)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(consumers)
			}
			tw := newTable()
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tORDINAL")
			for _, c := range consumers {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", c.ID, c.Name, c.Type, c.Ordinal)
			}
			return tw.Flush()
		})
	},
}

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List power entities",
	Long: `List the platform power entities and their states. Entities are only
available on the vendor HAL backend.`,
	Args: noArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithClient(func(ctx context.Context, ps *powerstats.PowerStats) error {
			opCtx, cancel := withTimeout(ctx)
			defer cancel()

			entities, err := ps.PowerEntities(opCtx)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(entities)
			}
			tw := newTable()
			fmt.Fprintln(tw, "ID\tNAME\tSTATES")
			for _, e := range entities {
				names := make([]string, len(e.States))
				for i, s := range e.States {
					names[i] = s.Name
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", e.ID, e.Name, strings.Join(names, ","))
			}
			return tw.Flush()
		})
	},
}
