package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/llehouerou/wavelet/internal/app"
	"github.com/llehouerou/wavelet/internal/catalog"
	"github.com/llehouerou/wavelet/internal/config"
	"github.com/llehouerou/wavelet/internal/control"
	"github.com/llehouerou/wavelet/internal/errmsg"
	"github.com/llehouerou/wavelet/internal/kv"
	"github.com/llehouerou/wavelet/internal/mpris"
	"github.com/llehouerou/wavelet/internal/notify"
	"github.com/llehouerou/wavelet/internal/playback"
	"github.com/llehouerou/wavelet/internal/player"
	"github.com/llehouerou/wavelet/internal/playlists"
)

const appName = "wavelet"

// StorageModule provides the playlist store on the configured backend.
var StorageModule = fx.Module("storage",
	fx.Provide(newKV, newPlaylistStore),
)

// CatalogModule provides the catalog loader over the library sources.
var CatalogModule = fx.Module("catalog",
	fx.Provide(newLoader),
)

// PlaybackModule provides the session and everything that drives it:
// the notification presenter and the MPRIS adapter.
var PlaybackModule = fx.Module("playback",
	fx.Provide(newNotifier, newPresenter, newOpener, newSession),
	fx.Invoke(registerPresenter, registerMPRIS),
)

// DaemonOptions is the full daemon graph. It expects a *config.Config, a
// *zap.Logger and a startRequest to be supplied.
var DaemonOptions = fx.Options(
	StorageModule,
	CatalogModule,
	PlaybackModule,
	fx.Provide(newApp),
	fx.Invoke(logSessionEvents, startApp, registerControl),
)

func newKV(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (kv.Store, error) {
	sc := cfg.GetStorageConfig()

	var store kv.Store
	switch sc.Backend {
	case config.BackendMemory:
		store = kv.NewMemory()
	case config.BackendRedis:
		r := kv.NewRedis(kv.RedisConfig{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
		})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := r.Ping(ctx); err != nil {
					return errors.New(errmsg.FormatWith(errmsg.OpStorage, sc.Redis.Addr, err))
				}
				return nil
			},
		})
		store = r
	default:
		s, err := kv.OpenSQLite(sc.Path)
		if err != nil {
			return nil, errors.New(errmsg.Format(errmsg.OpStorage, err))
		}
		store = s
	}

	log.Debug("storage opened", zap.String("backend", sc.Backend))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func newPlaylistStore(store kv.Store, cfg *config.Config, log *zap.Logger) *playlists.Store {
	return playlists.NewStore(store, cfg.GetStorageConfig().Key, log.Named("playlists"))
}

func newLoader(cfg *config.Config, log *zap.Logger) app.CatalogLoader {
	art := catalog.NewArtworkCache(filepath.Join(xdg.CacheHome, appName, "artwork"), 0)
	lib := catalog.NewDirLibrary(cfg.LibrarySources, log.Named("library")).WithArtworkCache(art)
	return catalog.NewLoader(lib, cfg.GetPageSize(), log.Named("catalog"))
}

func newNotifier(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (notify.Notifier, error) {
	if !*cfg.GetNotificationsConfig().Enabled {
		return notify.Nop{}, nil
	}
	n, err := notify.New(appName, log.Named("notify"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return errors.Join(n.CloseAll(ctx), n.Shutdown())
		},
	})
	return n, nil
}

func newPresenter(n notify.Notifier, cfg *config.Config, log *zap.Logger) (*notify.Presenter, error) {
	nc := cfg.GetNotificationsConfig()
	action, err := notify.ParseDefaultAction(nc.DefaultAction)
	if err != nil {
		return nil, err
	}
	return notify.NewPresenter(n, notify.PresenterOptions{
		SplitPlayPause: nc.SplitPlayPause,
		DefaultAction:  action,
		Timeout:        nc.TimeoutMs,
		Logger:         log.Named("presenter"),
	})
}

func newOpener(log *zap.Logger) player.Opener {
	return player.NewBeepOpener(log.Named("audio"))
}

func policy(cfg *config.Config) playback.Policy {
	pc := cfg.GetPlaybackConfig()
	return playback.Policy{
		ManualAutoAdvance: pc.ManualAutoAdvance,
		WrapQueue:         pc.WrapQueue,
	}
}

func newSession(lc fx.Lifecycle, opener player.Opener, p *notify.Presenter, cfg *config.Config, log *zap.Logger) *playback.Session {
	pc := cfg.GetPlaybackConfig()
	s := playback.New(opener, playback.Options{
		Policy: policy(cfg),
		AudioMode: player.AudioMode{
			Background:       *pc.Background,
			PlayInSilentMode: *pc.PlayInSilentMode,
			DuckOthers:       *pc.DuckOthers,
		},
		Presenter: p,
		Logger:    log.Named("session"),
	})
	p.Attach(s)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return s.Close()
		},
	})
	return s
}

func newApp(loader app.CatalogLoader, store *playlists.Store, s *playback.Session, log *zap.Logger) *app.App {
	return app.New(loader, store, s, log.Named("app"))
}

// registerControl serves playlist edits from one-shot commands while the
// daemon runs.
func registerControl(lc fx.Lifecycle, a *app.App, cfg *config.Config, log *zap.Logger) {
	if !cfg.ControlEnabled() {
		return
	}

	var server *control.Server
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s, err := control.Serve(control.NewService(a, log.Named("control")), log.Named("control"))
			if err != nil {
				// Commands fall back to editing storage directly.
				log.Warn("playlist control unavailable", zap.Error(err))
				return nil
			}
			server = s
			return nil
		},
		OnStop: func(context.Context) error {
			if server == nil {
				return nil
			}
			return server.Close()
		},
	})
}

// registerPresenter forwards notification actions to the session while the
// app runs.
func registerPresenter(lc fx.Lifecycle, p *notify.Presenter, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := p.Run(ctx); err != nil {
					log.Error("notification actions stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func registerMPRIS(lc fx.Lifecycle, s *playback.Session, cfg *config.Config, log *zap.Logger) {
	if !cfg.MPRISEnabled() {
		return
	}

	var adapter *mpris.Adapter
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			a, err := mpris.New(s, policy(cfg), log.Named("mpris"))
			if err != nil {
				// Media keys are optional; keep running without them.
				log.Warn("MPRIS unavailable", zap.Error(err))
				return nil
			}
			adapter = a
			return nil
		},
		OnStop: func(context.Context) error {
			if adapter == nil {
				return nil
			}
			return adapter.Close()
		},
	})
}

// startRequest is what the daemon plays once the catalog is loaded.
// An empty playlist id with a negative index plays nothing.
type startRequest struct {
	PlaylistID string
	Index      int
}

// startApp loads the catalog and playlists in the background, then honors
// the start request.
func startApp(lc fx.Lifecycle, a *app.App, req startRequest, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := a.Start(ctx); err != nil {
					return
				}
				if err := play(ctx, a, req); err != nil {
					log.Error(errmsg.Format(errmsg.OpPlaybackStart, err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func play(ctx context.Context, a *app.App, req startRequest) error {
	switch {
	case req.PlaylistID != "":
		return a.PlayPlaylist(ctx, req.PlaylistID, max(req.Index, 0))
	case req.Index >= 0:
		if err := a.PlayCatalog(ctx, req.Index); err != nil {
			return fmt.Errorf("catalog track %d: %w", req.Index, err)
		}
	}
	return nil
}

// logSessionEvents logs state and track changes until the session closes.
func logSessionEvents(lc fx.Lifecycle, s *playback.Session, log *zap.Logger) {
	log = log.Named("events")
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sub := s.Subscribe()
			go func() {
				for {
					select {
					case <-sub.Done:
						return
					case e := <-sub.StateChanged:
						log.Debug("state",
							zap.Stringer("from", e.Previous),
							zap.Stringer("to", e.Current))
					case e := <-sub.TrackChanged:
						if e.Current != nil {
							log.Info("now playing",
								zap.String("title", e.Current.DisplayTitle()),
								zap.String("artist", e.Current.DisplayArtist()),
								zap.Int("index", e.Index),
								zap.Duration("duration", e.Current.Duration.Round(time.Second)))
						}
					case e := <-sub.Error:
						log.Warn("playback error",
							zap.String("op", e.Operation),
							zap.String("track", e.TrackID),
							zap.Error(e.Err))
					}
				}
			}()
			return nil
		},
	})
}
