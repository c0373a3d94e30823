package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultPageSize is the number of assets requested per page.
const DefaultPageSize = 100

// ErrPermissionDenied is returned when the media library refuses access.
// It is not fatal: the loader still returns an empty catalog.
var ErrPermissionDenied = errors.New("media library access denied")

// ErrCursorStalled is returned when the library reports more pages but does
// not move its cursor.
var ErrCursorStalled = errors.New("media library cursor did not advance")

// Asset is a raw entry of the media index.
type Asset struct {
	ID       string
	URI      string
	Filename string
	Duration time.Duration
}

// AssetPage is one page of a cursor-paginated asset enumeration.
type AssetPage struct {
	Assets      []Asset
	EndCursor   string
	HasNextPage bool
}

// AssetInfo holds the extended metadata of an asset.
type AssetInfo struct {
	Title      string
	Artist     string
	Album      string
	ArtworkURI string
	// Duration overrides Asset.Duration when non-zero.
	Duration   time.Duration
}

// MediaLibrary is the device media index the loader reads from.
type MediaLibrary interface {
	// RequestAccess asks for permission to read the library.
	RequestAccess(ctx context.Context) (bool, error)
	// Assets returns up to first assets following the after cursor.
	// An empty cursor starts from the beginning.
	Assets(ctx context.Context, after string, first int) (AssetPage, error)
	// AssetInfo resolves extended metadata for one asset.
	AssetInfo(ctx context.Context, a Asset) (AssetInfo, error)
}

// Loader builds the full catalog from a MediaLibrary.
type Loader struct {
	lib      MediaLibrary
	pageSize int
	log      *zap.Logger
}

// NewLoader creates a loader. A pageSize <= 0 uses DefaultPageSize.
func NewLoader(lib MediaLibrary, pageSize int, log *zap.Logger) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{lib: lib, pageSize: pageSize, log: log}
}

// Load enumerates every page of the library and returns all tracks.
// When access is denied it returns an empty catalog and ErrPermissionDenied.
func (l *Loader) Load(ctx context.Context) ([]Track, error) {
	granted, err := l.lib.RequestAccess(ctx)
	if err != nil {
		return []Track{}, fmt.Errorf("request media access: %w", err)
	}
	if !granted {
		l.log.Warn("media library access denied, catalog is empty")
		return []Track{}, ErrPermissionDenied
	}

	tracks := make([]Track, 0, l.pageSize)
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return []Track{}, err
		}

		page, err := l.lib.Assets(ctx, cursor, l.pageSize)
		if err != nil {
			return []Track{}, fmt.Errorf("list assets after %q: %w", cursor, err)
		}

		for _, a := range page.Assets {
			tracks = append(tracks, l.resolve(ctx, a))
		}

		if !page.HasNextPage {
			break
		}
		if page.EndCursor == cursor {
			return []Track{}, fmt.Errorf("%w: stuck at %q", ErrCursorStalled, cursor)
		}
		cursor = page.EndCursor
	}

	l.log.Info("catalog loaded", zap.Int("tracks", len(tracks)))
	return tracks, nil
}

func (l *Loader) resolve(ctx context.Context, a Asset) Track {
	t := Track{
		ID:          a.ID,
		SourceURI:   a.URI,
		DisplayName: a.Filename,
		Duration:    a.Duration,
	}

	info, err := l.lib.AssetInfo(ctx, a)
	if err != nil {
		l.log.Debug("asset metadata unavailable, using filename",
			zap.String("asset", a.ID), zap.Error(err))
		t.Title = a.Filename
		t.Artist = UnknownArtist
		t.Album = UnknownAlbum
		return t
	}

	t.Title = info.Title
	t.Artist = info.Artist
	t.Album = info.Album
	t.ArtworkURI = info.ArtworkURI
	if info.Duration > 0 {
		t.Duration = info.Duration
	}
	return t
}
