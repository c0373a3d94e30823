package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"
)

// fakeLibrary serves a fixed list of assets in pages.
type fakeLibrary struct {
	granted   bool
	accessErr error
	assets    []Asset
	infos     map[string]AssetInfo
	pageErr   error
	stall     bool

	pageCalls []string
	firsts    []int
}

func (f *fakeLibrary) RequestAccess(context.Context) (bool, error) {
	return f.granted, f.accessErr
}

func (f *fakeLibrary) Assets(_ context.Context, after string, first int) (AssetPage, error) {
	f.pageCalls = append(f.pageCalls, after)
	f.firsts = append(f.firsts, first)
	if f.pageErr != nil {
		return AssetPage{}, f.pageErr
	}
	offset := 0
	if after != "" {
		offset, _ = strconv.Atoi(after)
	}
	end := min(offset+first, len(f.assets))
	page := AssetPage{Assets: f.assets[offset:end], HasNextPage: end < len(f.assets)}
	if page.HasNextPage && !f.stall {
		page.EndCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeLibrary) AssetInfo(_ context.Context, a Asset) (AssetInfo, error) {
	info, ok := f.infos[a.ID]
	if !ok {
		return AssetInfo{}, errors.New("no metadata")
	}
	return info, nil
}

func makeAssets(n int) []Asset {
	assets := make([]Asset, n)
	for i := range n {
		id := fmt.Sprintf("asset-%03d", i)
		assets[i] = Asset{ID: id, URI: "file:///music/" + id + ".mp3", Filename: id + ".mp3"}
	}
	return assets
}

func TestLoader_Load_AccumulatesAllPages(t *testing.T) {
	lib := &fakeLibrary{granted: true, assets: makeAssets(250), infos: map[string]AssetInfo{}}
	l := NewLoader(lib, 100, nil)

	tracks, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(tracks) != 250 {
		t.Fatalf("len(tracks) = %d, want 250", len(tracks))
	}
	wantCalls := []string{"", "100", "200"}
	if fmt.Sprint(lib.pageCalls) != fmt.Sprint(wantCalls) {
		t.Errorf("page cursors = %v, want %v", lib.pageCalls, wantCalls)
	}
	for _, first := range lib.firsts {
		if first != 100 {
			t.Errorf("page size = %d, want 100", first)
		}
	}
	if tracks[249].ID != "asset-249" {
		t.Errorf("last track ID = %q, want asset-249", tracks[249].ID)
	}
}

func TestLoader_Load_DefaultPageSize(t *testing.T) {
	lib := &fakeLibrary{granted: true, assets: makeAssets(3)}
	l := NewLoader(lib, 0, nil)

	if _, err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if lib.firsts[0] != DefaultPageSize {
		t.Errorf("page size = %d, want %d", lib.firsts[0], DefaultPageSize)
	}
}

func TestLoader_Load_PermissionDenied(t *testing.T) {
	lib := &fakeLibrary{granted: false, assets: makeAssets(5)}
	l := NewLoader(lib, 10, nil)

	tracks, err := l.Load(context.Background())

	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Load() error = %v, want ErrPermissionDenied", err)
	}
	if tracks == nil || len(tracks) != 0 {
		t.Errorf("tracks = %v, want empty non-nil slice", tracks)
	}
	if len(lib.pageCalls) != 0 {
		t.Error("assets should not be enumerated without access")
	}
}

func TestLoader_Load_MetadataFallback(t *testing.T) {
	assets := makeAssets(2)
	lib := &fakeLibrary{
		granted: true,
		assets:  assets,
		infos: map[string]AssetInfo{
			"asset-000": {Title: "Song", Artist: "Band", Album: "Record", ArtworkURI: "file:///a.jpg"},
		},
	}
	l := NewLoader(lib, 10, nil)

	tracks, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	got := tracks[0]
	if got.Title != "Song" || got.Artist != "Band" || got.Album != "Record" || got.ArtworkURI != "file:///a.jpg" {
		t.Errorf("tracks[0] = %+v, want resolved metadata", got)
	}

	fallback := tracks[1]
	if fallback.Title != "asset-001.mp3" {
		t.Errorf("fallback Title = %q, want filename", fallback.Title)
	}
	if fallback.Artist != UnknownArtist || fallback.Album != UnknownAlbum {
		t.Errorf("fallback artist/album = %q/%q, want Unknown", fallback.Artist, fallback.Album)
	}
}

func TestLoader_Load_PageError(t *testing.T) {
	lib := &fakeLibrary{granted: true, pageErr: errors.New("index unavailable")}
	l := NewLoader(lib, 10, nil)

	tracks, err := l.Load(context.Background())

	if err == nil {
		t.Fatal("Load() should fail when a page cannot be listed")
	}
	if len(tracks) != 0 {
		t.Errorf("len(tracks) = %d, want 0", len(tracks))
	}
}

func TestLoader_Load_CanceledContext(t *testing.T) {
	lib := &fakeLibrary{granted: true, assets: makeAssets(5)}
	l := NewLoader(lib, 10, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestLoader_Load_StalledCursor(t *testing.T) {
	lib := &fakeLibrary{granted: true, assets: makeAssets(5), stall: true}
	l := NewLoader(lib, 2, nil)

	tracks, err := l.Load(context.Background())

	if !errors.Is(err, ErrCursorStalled) {
		t.Fatalf("Load() error = %v, want ErrCursorStalled", err)
	}
	if len(tracks) != 0 {
		t.Errorf("len(tracks) = %d, want 0", len(tracks))
	}
	if len(lib.pageCalls) != 1 {
		t.Errorf("page calls = %v, want one", lib.pageCalls)
	}
}

func TestLoader_Load_DurationFromMetadata(t *testing.T) {
	assets := makeAssets(2)
	assets[1].Duration = 90 * time.Second
	lib := &fakeLibrary{
		granted: true,
		assets:  assets,
		infos: map[string]AssetInfo{
			"asset-000": {Title: "Song", Duration: 3 * time.Minute},
			"asset-001": {Title: "Other"},
		},
	}

	tracks, err := NewLoader(lib, 10, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if tracks[0].Duration != 3*time.Minute {
		t.Errorf("tracks[0].Duration = %v, want 3m", tracks[0].Duration)
	}
	if tracks[1].Duration != 90*time.Second {
		t.Errorf("tracks[1].Duration = %v, want asset duration", tracks[1].Duration)
	}
}
