package catalog

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// DirLibrary is a MediaLibrary backed by local music directories.
// Asset IDs and URIs are absolute file paths.
type DirLibrary struct {
	sources []string
	art     *ArtworkCache
	log     *zap.Logger

	once  sync.Once
	files []string
}

// NewDirLibrary creates a library over the given source directories.
func NewDirLibrary(sources []string, log *zap.Logger) *DirLibrary {
	if log == nil {
		log = zap.NewNop()
	}
	return &DirLibrary{sources: sources, log: log}
}

// WithArtworkCache makes AssetInfo fall back to thumbnails of embedded
// cover art when a track's directory has no cover file.
func (d *DirLibrary) WithArtworkCache(c *ArtworkCache) *DirLibrary {
	d.art = c
	return d
}

// RequestAccess grants access when at least one source directory is readable.
func (d *DirLibrary) RequestAccess(_ context.Context) (bool, error) {
	for _, src := range d.sources {
		if _, err := os.ReadDir(src); err == nil {
			return true, nil
		}
		d.log.Debug("library source not readable", zap.String("source", src))
	}
	return false, nil
}

// Assets returns a page of music files with their decoded length. The cursor
// is the decimal offset of the first file of the page.
func (d *DirLibrary) Assets(ctx context.Context, after string, first int) (AssetPage, error) {
	d.once.Do(d.discover)

	offset := 0
	if after != "" {
		n, err := strconv.Atoi(after)
		if err != nil || n < 0 {
			return AssetPage{}, &CursorError{Cursor: after}
		}
		offset = n
	}
	if err := ctx.Err(); err != nil {
		return AssetPage{}, err
	}

	end := min(offset+first, len(d.files))
	page := AssetPage{}
	for _, path := range d.files[min(offset, end):end] {
		dur, err := readDuration(path)
		if err != nil {
			d.log.Debug("duration unavailable", zap.String("path", path), zap.Error(err))
		}
		page.Assets = append(page.Assets, Asset{
			ID:       path,
			URI:      path,
			Filename: filepath.Base(path),
			Duration: dur,
		})
	}
	page.HasNextPage = end < len(d.files)
	if page.HasNextPage {
		page.EndCursor = strconv.Itoa(end)
	}
	return page, nil
}

// AssetInfo reads the tags of the file and looks for cover art next to it,
// then inside it.
func (d *DirLibrary) AssetInfo(_ context.Context, a Asset) (AssetInfo, error) {
	info, pic, err := readTags(a.URI)
	if err != nil {
		return AssetInfo{}, err
	}

	switch art := FindAlbumArt(a.URI); {
	case art != "":
		info.ArtworkURI = "file://" + art
	case pic != nil && d.art != nil:
		thumb, err := d.art.Store(pic.Data)
		if err != nil {
			d.log.Debug("embedded artwork unusable", zap.String("asset", a.ID), zap.Error(err))
			break
		}
		info.ArtworkURI = "file://" + thumb
	}
	return info, nil
}

// discover walks the sources once and records every music file, sorted.
func (d *DirLibrary) discover() {
	seen := make(map[string]struct{})
	for _, src := range d.sources {
		_ = filepath.WalkDir(src, func(path string, e fs.DirEntry, walkErr error) error {
			// Skip unreadable entries and keep scanning the rest
			if walkErr != nil {
				return nil //nolint:nilerr // intentionally skipping errors
			}
			if e.IsDir() || !IsMusicFile(path) {
				return nil
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return nil //nolint:nilerr // intentionally skipping errors
			}
			seen[abs] = struct{}{}
			return nil
		})
	}

	d.files = make([]string, 0, len(seen))
	for path := range seen {
		d.files = append(d.files, path)
	}
	slices.Sort(d.files)
	d.log.Debug("library discovered", zap.Int("files", len(d.files)))
}

// CursorError reports a malformed pagination cursor.
type CursorError struct {
	Cursor string
}

func (e *CursorError) Error() string {
	return "invalid asset cursor: " + strconv.Quote(e.Cursor)
}
