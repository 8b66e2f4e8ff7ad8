package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"cell-tracer/internal/features"
	cellimage "cell-tracer/internal/image"
	"cell-tracer/internal/persist"
	"cell-tracer/internal/project"
	"cell-tracer/internal/table"

	"github.com/spf13/cobra"
)

// parseChannelArg splits "path:key=value,key=value" into a path and its
// metadata. The suffix is metadata only if every part contains '='.
func parseChannelArg(arg string) (string, map[string]string, error) {
	meta := make(map[string]string)
	i := strings.LastIndex(arg, ":")
	if i < 0 || !strings.Contains(arg[i+1:], "=") {
		return arg, meta, nil
	}
	for _, kv := range strings.Split(arg[i+1:], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return "", nil, fmt.Errorf("bad channel metadata %q in %q", kv, arg)
		}
		meta[k] = v
	}
	return arg[:i], meta, nil
}

func isSQLitePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

func newExtractCmd(a *app) *cobra.Command {
	var (
		groupBy     string
		reducers    []string
		policy      string
		out         string
		tableName   string
		save        string
		projectPath string
	)
	cmd := &cobra.Command{
		Use:   "extract <entities> [channel[:key=value,...]]...",
		Short: "Measure channel intensities per entity and write a feature table",
		Long: `Reduce each channel's pixels under every active entity's mask and store
the results as scalars named {groupBy}_{value}_{reducer}. The table is
written as CSV, or to SQLite when --out ends in .db or .sqlite.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := features.Options{
				GroupBy: a.cfg.Features.GroupBy,
				Workers: a.cfg.Features.Workers,
				Logger:  a.log,
				Metrics: a.metrics,
			}
			if cmd.Flags().Changed("group-by") {
				opts.GroupBy = groupBy
			}
			names := a.cfg.Features.Reducers
			if cmd.Flags().Changed("reducers") {
				names = reducers
			}
			fns, err := features.Lookup(names)
			if err != nil {
				return err
			}
			opts.Reducers = fns
			policyName := a.cfg.Features.Policy
			if cmd.Flags().Changed("policy") {
				policyName = policy
			}
			if opts.Policy, err = features.ParsePolicy(policyName); err != nil {
				return err
			}

			var stack cellimage.Stack
			loadOpts := persist.Options{}
			if projectPath != "" {
				p, err := project.Load(projectPath)
				if err != nil {
					return err
				}
				loadOpts.Ref = p.Ref
				for i, path := range p.ChannelPaths(projectPath) {
					ch, err := cellimage.Load(path, p.Channels[i].Meta)
					if err != nil {
						return err
					}
					stack = append(stack, ch)
				}
			}
			for _, arg := range args[1:] {
				path, meta, err := parseChannelArg(arg)
				if err != nil {
					return err
				}
				ch, err := cellimage.Load(path, meta)
				if err != nil {
					return err
				}
				stack = append(stack, ch)
			}
			if len(stack) == 0 {
				return fmt.Errorf("no channels given")
			}

			l := a.newLedger()
			if _, err := a.loadEntities(ctx, args[0], l, loadOpts); err != nil {
				return err
			}
			res, err := features.Extract(ctx, l, stack, opts)
			if err != nil {
				return err
			}
			tbl := table.FromLedger(l, res.Keys...)

			switch {
			case out == "":
				err = table.WriteCSV(cmd.OutOrStdout(), tbl)
			case isSQLitePath(out):
				err = writeSQLite(cmd, out, tableName, tbl)
			default:
				err = a.store.Write(ctx, out, func(w io.Writer) error {
					return table.WriteCSV(w, tbl)
				})
			}
			if err != nil {
				return err
			}
			if save != "" {
				if err := a.saveEntities(ctx, save, l, isLegacyPath(save)); err != nil {
					return err
				}
			}
			a.log.Info().Int("rows", len(tbl.Rows)).Int("columns", len(tbl.Columns)).Msg("feature table written")
			return nil
		},
	}
	cmd.Flags().StringVar(&groupBy, "group-by", "", "Channel metadata key used to name features")
	cmd.Flags().StringSliceVar(&reducers, "reducers", nil, "Reducers: mean,sum,median,std,min,max,area")
	cmd.Flags().StringVar(&policy, "policy", "", "Out-of-bounds policy: ignore|crop|raise")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output table (.csv, .db, .sqlite); stdout when empty")
	cmd.Flags().StringVar(&tableName, "table", "features", "SQLite table name")
	cmd.Flags().StringVar(&save, "save", "", "Also write the measured entities to this entity file")
	cmd.Flags().StringVar(&projectPath, "project", "", "Session file (.cellproj) supplying channels")
	return cmd
}

func writeSQLite(cmd *cobra.Command, path, name string, tbl table.Table) error {
	db, err := table.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return table.WriteSQLite(cmd.Context(), db, name, tbl)
}
