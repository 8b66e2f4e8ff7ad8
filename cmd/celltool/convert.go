package main

import (
	"fmt"

	"cell-tracer/internal/persist"

	"github.com/spf13/cobra"
)

func newConvertCmd(a *app) *cobra.Command {
	var (
		to       string
		strict   bool
		reassign bool
	)
	cmd := &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Convert an entity file between the current and legacy formats",
		Long: `Read an entity file in either format and write it in the format chosen
by --to, or by the output extension (.json is legacy) when --to is empty.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var legacy bool
			switch to {
			case "":
				legacy = isLegacyPath(args[1])
			case "legacy":
				legacy = true
			case "current":
			default:
				return fmt.Errorf("unknown format %q (current or legacy)", to)
			}

			l := a.newLedger()
			loaded, err := a.loadEntities(ctx, args[0], l, persist.Options{Strict: strict, Reassign: reassign})
			if err != nil {
				return err
			}
			if err := a.saveEntities(ctx, args[1], l, legacy); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d entities converted\n", len(loaded))
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Output format: current|legacy")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject unknown fields")
	cmd.Flags().BoolVar(&reassign, "reassign", false, "Reassign colliding eids and object ids")
	return cmd
}
