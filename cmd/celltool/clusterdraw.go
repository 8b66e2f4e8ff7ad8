package main

import (
	"fmt"
	"image/color"
	"image/png"
	"io"

	"cell-tracer/internal/persist"
	"cell-tracer/internal/render"
	"cell-tracer/pkg/colorutil"

	"github.com/spf13/cobra"
)

func backgroundColor(name string) (color.RGBA, error) {
	switch name {
	case "black":
		return colorutil.Black, nil
	case "white":
		return colorutil.White, nil
	case "transparent":
		return color.RGBA{}, nil
	}
	return color.RGBA{}, fmt.Errorf("unknown background %q", name)
}

func newClusterDrawCmd(a *app) *cobra.Command {
	var (
		width, height  int
		key            string
		alpha          int
		background     string
		skipUnassigned bool
	)
	cmd := &cobra.Command{
		Use:   "clusterdraw <entities> <out.png>",
		Short: "Draw entities filled by cluster color",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			l := a.newLedger()
			if _, err := a.loadEntities(ctx, args[0], l, persist.Options{}); err != nil {
				return err
			}
			w, h := extent(l)
			if width > 0 {
				w = width
			}
			if height > 0 {
				h = height
			}

			opts := render.Options{Key: a.cfg.Render.Key, SkipUnassigned: skipUnassigned}
			if key != "" {
				opts.Key = key
			}
			if !cmd.Flags().Changed("alpha") {
				alpha = a.cfg.Render.Alpha
			}
			if alpha < 0 || alpha > 255 {
				return fmt.Errorf("alpha %d out of range 0-255", alpha)
			}
			opts.Alpha = uint8(alpha)
			if background == "" {
				background = a.cfg.Render.Background
			}
			if opts.Background, err = backgroundColor(background); err != nil {
				return err
			}

			img, err := render.ClusterDraw(activeEntities(l), w, h, opts)
			if err != nil {
				return err
			}
			return a.store.Write(ctx, args[1], func(w io.Writer) error {
				return png.Encode(w, img)
			})
		},
	}
	cmd.Flags().IntVar(&width, "width", 0, "Image width (default: entity extent)")
	cmd.Flags().IntVar(&height, "height", 0, "Image height (default: entity extent)")
	cmd.Flags().StringVar(&key, "key", "", "Scalar holding the cluster label (default from config)")
	cmd.Flags().IntVar(&alpha, "alpha", 255, "Fill alpha 0-255")
	cmd.Flags().StringVar(&background, "background", "", "black, white or transparent (default from config)")
	cmd.Flags().BoolVar(&skipUnassigned, "skip-unassigned", false, "Leave entities without a label undrawn")
	return cmd
}
