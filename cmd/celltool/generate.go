package main

import (
	"fmt"
	"strings"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/generate"
	cellimage "cell-tracer/internal/image"
	"cell-tracer/internal/project"

	"github.com/spf13/cobra"
)

func parseEType(s string) (entity.EType, error) {
	for _, t := range []entity.EType{entity.Cell, entity.Artifact, entity.Semantic} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return entity.Undefined, fmt.Errorf("unknown entity type %q (cell, artifact or semantic)", s)
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		workers      int
		searchWindow int
		etype        string
		projectPath  string
		legacy       bool
	)
	cmd := &cobra.Command{
		Use:   "generate [pixmap] [entities]",
		Short: "Trace a label pixmap into an entity file",
		Long: `Trace every nonzero label of a pixmap (PNG or TIFF) into one entity
whose object id is the label value. With --project the pixmap and entity
file default to the session's paths.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in, out string
			if len(args) > 0 {
				in = args[0]
			}
			if len(args) > 1 {
				out = args[1]
			}
			var proj *project.File
			if projectPath != "" {
				p, err := project.Load(projectPath)
				if err != nil {
					return err
				}
				proj = p
				if in == "" {
					in = p.GetPixmapPath(projectPath)
				}
				if out == "" {
					out = p.GetEntitiesPath(projectPath)
				}
			}
			if in == "" || out == "" {
				return fmt.Errorf("generate needs a pixmap and an entity file")
			}

			opts := generate.DefaultOptions()
			opts.Workers = a.cfg.Generate.Workers
			opts.SearchWindow = a.cfg.Generate.SearchWindow
			if cmd.Flags().Changed("workers") {
				opts.Workers = workers
			}
			if cmd.Flags().Changed("search-window") {
				opts.SearchWindow = searchWindow
			}
			t, err := parseEType(etype)
			if err != nil {
				return err
			}
			opts.EType = t
			opts.Logger = a.log
			opts.Metrics = a.metrics

			labels, err := cellimage.LoadLabels(in)
			if err != nil {
				return err
			}
			l := a.newLedger()
			made, err := generate.FromPixmap(cmd.Context(), l, labels, opts)
			if err != nil {
				return err
			}
			if proj != nil {
				for _, e := range made {
					e.Ref = proj.Ref
				}
			}
			if err := a.saveEntities(cmd.Context(), out, l, legacy || isLegacyPath(out)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d entities written to %s\n", len(made), out)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel tracers (0 = all CPUs)")
	cmd.Flags().IntVar(&searchWindow, "search-window", 0, "Bounding-box search window in pixels (0 = exact)")
	cmd.Flags().StringVar(&etype, "etype", "cell", "Entity type: cell|artifact|semantic")
	cmd.Flags().StringVar(&projectPath, "project", "", "Session file (.cellproj) supplying default paths")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "Write the legacy entity format")
	return cmd
}
