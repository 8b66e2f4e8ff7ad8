package main

import (
	"fmt"

	"cell-tracer/internal/persist"
	"cell-tracer/internal/table"

	"github.com/spf13/cobra"
)

func newMergeCSVCmd(a *app) *cobra.Command {
	var (
		idCol      string
		clusterCol string
		key        string
		out        string
	)
	cmd := &cobra.Command{
		Use:   "mergecsv <entities> <assignments.csv>",
		Short: "Merge cluster assignments from a CSV file into entity scalars",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := a.newLedger()
			if _, err := a.loadEntities(ctx, args[0], l, persist.Options{}); err != nil {
				return err
			}

			r, err := a.store.Open(ctx, args[1])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[1], err)
			}
			assignments, err := table.ReadAssignments(r, idCol, clusterCol)
			r.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			if key == "" {
				key = a.cfg.Render.Key
			}
			applied, missing := table.Apply(l, assignments, key)
			if len(missing) > 0 {
				a.log.Warn().Ints("object_ids", missing).Msg("assignments without an active entity")
			}

			if out == "" {
				out = args[0]
			}
			if err := a.saveEntities(ctx, out, l, isLegacyPath(out)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d assignments merged into %s\n", applied, len(assignments), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&idCol, "id-col", "object_id", "Column holding the object id")
	cmd.Flags().StringVar(&clusterCol, "cluster-col", "cluster", "Column holding the cluster label")
	cmd.Flags().StringVar(&key, "key", "", "Scalar key to store the label under (default from config)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output entity file (default: overwrite the input)")
	return cmd
}
