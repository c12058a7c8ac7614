package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	powerstats "github.com/railmon/powerstats"
)

var residencyCmd = &cobra.Command{
	Use:   "residency [entity-id...]",
	Short: "Show power entity state residency",
	Long: `Show how long each power entity spent in each of its states. Without
ids every entity is shown. Vendor HAL backend only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return runWithClient(func(ctx context.Context, ps *powerstats.PowerStats) error {
			return showResidency(ctx, ps, ids)
		})
	},
}

func showResidency(ctx context.Context, ps *powerstats.PowerStats, ids []int32) error {
	listCtx, cancel := withTimeout(ctx)
	entities, err := ps.PowerEntities(listCtx)
	cancel()
	if err != nil {
		return err
	}

	readCtx, cancel := withTimeout(ctx)
	results, err := ps.StateResidency(readCtx, ids)
	cancel()
	if err != nil {
		return err
	}

	byID := make(map[int32]powerstats.PowerEntity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	if flagJSON {
		out := make([]powerstats.EntityResidency, 0, len(results))
		for _, res := range results {
			e, ok := byID[res.EntityID]
			if !ok {
				e = powerstats.PowerEntity{ID: res.EntityID}
			}
			out = append(out, powerstats.EntityResidency{Entity: e, Residency: res.Residency})
		}
		return printJSON(out)
	}

	tw := newTable()
	fmt.Fprintln(tw, "ENTITY\tSTATE\tTIME\tENTRIES\tLAST_ENTRY")
	for _, res := range results {
		entityName := fmt.Sprintf("entity-%d", res.EntityID)
		stateNames := map[int32]string{}
		if e, ok := byID[res.EntityID]; ok {
			entityName = e.Name
			for _, s := range e.States {
				stateNames[s.ID] = s.Name
			}
		}
		for _, sr := range res.Residency {
			stateName, ok := stateNames[sr.StateID]
			if !ok {
				stateName = fmt.Sprintf("state-%d", sr.StateID)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				entityName, stateName, sr.TotalTime, sr.TotalEntryCount, sr.LastEntryTimestamp)
		}
	}
	return tw.Flush()
}
