package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/llehouerou/wavelet/internal/app"
	"github.com/llehouerou/wavelet/internal/control"
	"github.com/llehouerou/wavelet/internal/errmsg"
	"github.com/llehouerou/wavelet/internal/playlists"
	"github.com/llehouerou/wavelet/internal/render"
)

func newPlaylistCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "playlist",
		Aliases: []string{"pl"},
		Short:   "Manage playlists",
	}
	cmd.AddCommand(
		newPlaylistListCmd(opts),
		newPlaylistShowCmd(opts),
		newPlaylistCreateCmd(opts),
		newPlaylistAddCmd(opts),
		newPlaylistRemoveCmd(opts),
		newPlaylistRenameCmd(opts),
		newPlaylistDeleteCmd(opts),
	)
	return cmd
}

// withStore runs fn against the loaded playlist store.
func withStore(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *playlists.Store) error) error {
	cfg, log, closeLog, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	var store *playlists.Store
	return runOneShot(cmd.Context(), cfg, log, func(ctx context.Context) error {
		if _, err := store.Load(ctx); err != nil {
			return errors.New(errmsg.Format(errmsg.OpPlaylistLoad, err))
		}
		return fn(ctx, store)
	}, StorageModule, fx.Populate(&store))
}

// withEditor runs fn against the running daemon when there is one, so the
// daemon sees the change. Otherwise it edits storage directly; loadCatalog
// reads the library first for commands that reference catalog tracks.
func withEditor(cmd *cobra.Command, opts *rootOptions, loadCatalog bool, fn func(context.Context, control.Editor) error) error {
	cfg, log, closeLog, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx := cmd.Context()
	if cfg.ControlEnabled() {
		client, err := control.Dial(ctx)
		switch {
		case err == nil:
			defer func() { _ = client.Close() }()
			log.Debug("editing through the daemon")
			return fn(ctx, client)
		case !errors.Is(err, control.ErrNoDaemon):
			log.Warn("daemon unreachable, editing storage directly", zap.Error(err))
		}
	}

	var a *app.App
	return runOneShot(ctx, cfg, log, func(ctx context.Context) error {
		if err := a.LoadPlaylists(ctx); err != nil {
			return errors.New(errmsg.Format(errmsg.OpPlaylistLoad, err))
		}
		if loadCatalog {
			if err := a.LoadCatalog(ctx); err != nil {
				return errors.New(errmsg.Format(errmsg.OpCatalogLoad, err))
			}
		}
		return fn(ctx, control.NewService(a, log.Named("control")))
	}, StorageModule, CatalogModule, fx.Provide(newEditorApp), fx.Populate(&a))
}

// newEditorApp is an App without a session: nothing plays in a one-shot
// command.
func newEditorApp(loader app.CatalogLoader, store *playlists.Store, log *zap.Logger) *app.App {
	return app.New(loader, store, nil, log.Named("app"))
}

func newPlaylistListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List playlists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(_ context.Context, store *playlists.Store) error {
				printPlaylists(cmd, store.List())
				return nil
			})
		},
	}
}

func printPlaylists(cmd *cobra.Command, list []playlists.Playlist) {
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No playlists. Create one with 'wavelet playlist create <title>'.")
		return
	}

	rows := make([][]string, 0, len(list))
	for _, p := range list {
		rows = append(rows, []string{
			p.ID,
			p.Title,
			humanize.Comma(int64(len(p.Tracks))),
			humanize.Time(time.Unix(p.CreatedAt, 0)),
		})
	}
	fmt.Fprintln(out, render.Table([]string{"ID", "Title", "Tracks", "Created"}, rows, 0))
}

func newPlaylistShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <playlist-id>",
		Short: "List the tracks of a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(_ context.Context, store *playlists.Store) error {
				p, err := store.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", p.Title)
				printTracks(cmd, p.Tracks, "The playlist is empty.")
				return nil
			})
		},
	}
}

func newPlaylistCreateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <title>",
		Short: "Create an empty playlist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, opts, false, func(ctx context.Context, ed control.Editor) error {
				id, title, err := ed.CreatePlaylist(ctx, strings.Join(args, " "))
				if err != nil {
					return errors.New(errmsg.Format(errmsg.OpPlaylistCreate, err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %q (%s)\n", title, id)
				return nil
			})
		},
	}
}

// newPlaylistAddCmd adds a catalog track, given by catalog index or id.
func newPlaylistAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <playlist-id> <track>",
		Short: "Add a catalog track by index or id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, opts, true, func(ctx context.Context, ed control.Editor) error {
				title, added, err := ed.AddTrack(ctx, args[0], args[1])
				if err != nil {
					return errors.New(errmsg.Format(errmsg.OpPlaylistAddTrack, err))
				}
				if !added {
					fmt.Fprintf(cmd.OutOrStdout(), "%q is already in the playlist\n", title)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %q\n", title)
				return nil
			})
		},
	}
}

func newPlaylistRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <playlist-id> <track>",
		Short: "Remove a track by position or id",
		Long: `Remove a track by its position in the playlist or its id.

When a daemon is running the change goes through it, and playback stops if
the removed track is the one playing.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, opts, false, func(ctx context.Context, ed control.Editor) error {
				title, _, err := ed.RemoveTrack(ctx, args[0], args[1])
				if err != nil {
					return errors.New(errmsg.Format(errmsg.OpPlaylistRemove, err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %q\n", title)
				return nil
			})
		},
	}
}

func newPlaylistRenameCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <playlist-id> <title>",
		Short: "Rename a playlist",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, opts, false, func(ctx context.Context, ed control.Editor) error {
				title := strings.Join(args[1:], " ")
				if err := ed.RenamePlaylist(ctx, args[0], title); err != nil {
					return errors.New(errmsg.Format(errmsg.OpPlaylistRename, err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed to %q\n", strings.TrimSpace(title))
				return nil
			})
		},
	}
}

func newPlaylistDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <playlist-id>",
		Short: "Delete a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEditor(cmd, opts, false, func(ctx context.Context, ed control.Editor) error {
				if err := ed.DeletePlaylist(ctx, args[0]); err != nil {
					return errors.New(errmsg.Format(errmsg.OpPlaylistDelete, err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Deleted")
				return nil
			})
		},
	}
}
