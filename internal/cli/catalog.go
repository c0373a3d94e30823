package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/llehouerou/wavelet/internal/app"
	"github.com/llehouerou/wavelet/internal/catalog"
	"github.com/llehouerou/wavelet/internal/errmsg"
	"github.com/llehouerou/wavelet/internal/render"
)

const cellWidth = 32

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the tracks found in the library sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, closeLog, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			var loader app.CatalogLoader
			return runOneShot(cmd.Context(), cfg, log, func(ctx context.Context) error {
				tracks, err := loader.Load(ctx)
				if err != nil {
					return errors.New(errmsg.Format(errmsg.OpCatalogLoad, err))
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(tracks)
				}
				printTracks(cmd, tracks,
					"No tracks found. Add directories to library_sources in the config.")
				return nil
			}, CatalogModule, fx.Populate(&loader))
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tracks as JSON")
	return cmd
}

func printTracks(cmd *cobra.Command, tracks []catalog.Track, empty string) {
	out := cmd.OutOrStdout()
	if len(tracks) == 0 {
		fmt.Fprintln(out, empty)
		return
	}

	var total time.Duration
	rows := make([][]string, 0, len(tracks))
	for i, t := range tracks {
		total += t.Duration
		rows = append(rows, []string{
			strconv.Itoa(i),
			t.DisplayTitle(),
			t.DisplayArtist(),
			t.DisplayAlbum(),
			formatDuration(t.Duration),
		})
	}

	fmt.Fprintln(out, render.Table(
		[]string{"#", "Title", "Artist", "Album", "Length"}, rows, cellWidth))
	fmt.Fprintf(out, "%s tracks, %s\n", humanize.Comma(int64(len(tracks))), formatDuration(total))
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
