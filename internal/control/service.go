package control

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/llehouerou/wavelet/internal/app"
	"github.com/llehouerou/wavelet/internal/catalog"
	"github.com/llehouerou/wavelet/internal/playlists"
)

// callTimeout bounds each edit made for a D-Bus request.
const callTimeout = 10 * time.Second

// Playlists is the part of the app the service edits through.
type Playlists interface {
	Catalog() []catalog.Track
	Playlist(id string) (playlists.Playlist, error)
	CreatePlaylist(ctx context.Context, title string) (playlists.Playlist, error)
	AddTrack(ctx context.Context, playlistID, trackID string) (bool, error)
	RemoveTrack(ctx context.Context, playlistID, trackID string) (bool, error)
	RenamePlaylist(ctx context.Context, playlistID, title string) error
	DeletePlaylist(ctx context.Context, playlistID string) error
	Unsaved() bool
}

// Service implements Editor on top of the app. The daemon exports it with
// Serve; without a daemon, commands use it directly.
type Service struct {
	lists Playlists
	log   *zap.Logger
}

// NewService creates a Service.
func NewService(lists Playlists, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{lists: lists, log: log}
}

// CreatePlaylist creates an empty playlist and returns its id and title.
func (s *Service) CreatePlaylist(ctx context.Context, title string) (string, string, error) {
	p, err := s.lists.CreatePlaylist(ctx, title)
	if err != nil {
		return "", "", err
	}
	return p.ID, p.Title, s.saved()
}

// AddTrack adds the catalog track at ref.
func (s *Service) AddTrack(ctx context.Context, playlistID, ref string) (string, bool, error) {
	t, err := app.LookupTrack(s.lists.Catalog(), ref)
	if err != nil {
		return "", false, err
	}
	added, err := s.lists.AddTrack(ctx, playlistID, t.ID)
	if err != nil {
		return "", false, err
	}
	return t.DisplayTitle(), added, s.saved()
}

// RemoveTrack removes the playlist track at ref.
func (s *Service) RemoveTrack(ctx context.Context, playlistID, ref string) (string, bool, error) {
	p, err := s.lists.Playlist(playlistID)
	if err != nil {
		return "", false, err
	}
	t, err := app.LookupTrack(p.Tracks, ref)
	if err != nil {
		return "", false, err
	}
	removed, err := s.lists.RemoveTrack(ctx, p.ID, t.ID)
	if err != nil {
		return "", false, err
	}
	return t.DisplayTitle(), removed, s.saved()
}

// RenamePlaylist changes a playlist title.
func (s *Service) RenamePlaylist(ctx context.Context, playlistID, title string) error {
	if err := s.lists.RenamePlaylist(ctx, playlistID, title); err != nil {
		return err
	}
	return s.saved()
}

// DeletePlaylist deletes a playlist.
func (s *Service) DeletePlaylist(ctx context.Context, playlistID string) error {
	if err := s.lists.DeletePlaylist(ctx, playlistID); err != nil {
		return err
	}
	return s.saved()
}

func (s *Service) saved() error {
	if s.lists.Unsaved() {
		return ErrNotSaved
	}
	return nil
}

// busObject is what Serve exports. godbus exports every method whose last
// result is *dbus.Error.
type busObject struct {
	svc *Service
}

func (o busObject) CreatePlaylist(title string) (string, string, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	id, created, err := o.svc.CreatePlaylist(ctx, title)
	if err != nil {
		return "", "", o.fail("CreatePlaylist", err)
	}
	return id, created, nil
}

func (o busObject) AddTrack(playlistID, ref string) (string, bool, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	title, added, err := o.svc.AddTrack(ctx, playlistID, ref)
	if err != nil {
		return "", false, o.fail("AddTrack", err)
	}
	return title, added, nil
}

func (o busObject) RemoveTrack(playlistID, ref string) (string, bool, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	title, removed, err := o.svc.RemoveTrack(ctx, playlistID, ref)
	if err != nil {
		return "", false, o.fail("RemoveTrack", err)
	}
	return title, removed, nil
}

func (o busObject) RenamePlaylist(playlistID, title string) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := o.svc.RenamePlaylist(ctx, playlistID, title); err != nil {
		return o.fail("RenamePlaylist", err)
	}
	return nil
}

func (o busObject) DeletePlaylist(playlistID string) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := o.svc.DeletePlaylist(ctx, playlistID); err != nil {
		return o.fail("DeletePlaylist", err)
	}
	return nil
}

func (o busObject) fail(method string, err error) *dbus.Error {
	o.svc.log.Debug("control request failed", zap.String("method", method), zap.Error(err))
	return toDBus(err)
}

// Server owns BusName on the session bus while the daemon runs.
type Server struct {
	conn *dbus.Conn
	log  *zap.Logger
}

// Serve exports svc on the session bus and claims BusName.
func Serve(svc *Service, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	if err := conn.Export(busObject{svc: svc}, ObjectPath, Interface); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("export %s: %w", ObjectPath, err)
	}
	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("request %s: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		_ = conn.Close()
		return nil, ErrNameTaken
	}
	log.Info("serving playlist control", zap.String("name", BusName))
	return &Server{conn: conn, log: log}, nil
}

// Close releases BusName and the connection.
func (s *Server) Close() error {
	if _, err := s.conn.ReleaseName(BusName); err != nil {
		s.log.Debug("release bus name", zap.Error(err))
	}
	return s.conn.Close()
}
