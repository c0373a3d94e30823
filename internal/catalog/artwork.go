package catalog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder for cover art
	"image/png"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
)

// coverNames lists common album art filenames in priority order.
var coverNames = []string{
	"cover.jpg", "cover.png", "cover.jpeg",
	"folder.jpg", "folder.png", "folder.jpeg",
	"album.jpg", "album.png", "album.jpeg",
	"front.jpg", "front.png", "front.jpeg",
}

// FindAlbumArt looks for album art in the same directory as the track.
// Returns the path to the art file, or empty string if not found.
func FindAlbumArt(trackPath string) string {
	dir := filepath.Dir(trackPath)
	for _, name := range coverNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// DefaultArtworkSize bounds both sides of a cached thumbnail, in pixels.
const DefaultArtworkSize = 256

// ArtworkCache writes PNG thumbnails of embedded cover art to a directory so
// they can be referenced by file URI. Files are named by a hash of the
// source image, so every track of an album shares one thumbnail.
type ArtworkCache struct {
	dir  string
	size uint
}

// NewArtworkCache creates a cache in dir. A size of 0 uses DefaultArtworkSize.
func NewArtworkCache(dir string, size uint) *ArtworkCache {
	if size == 0 {
		size = DefaultArtworkSize
	}
	return &ArtworkCache{dir: dir, size: size}
}

// Store returns the path of the thumbnail for the encoded image data,
// creating it on first use.
func (c *ArtworkCache) Store(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	path := filepath.Join(c.dir, hex.EncodeToString(sum[:12])+".png")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode artwork: %w", err)
	}
	thumb := resize.Thumbnail(c.size, c.size, img, resize.Lanczos3)

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", err
	}
	// Write then rename so a concurrent reader never sees a partial file.
	tmp, err := os.CreateTemp(c.dir, "art-*.png")
	if err != nil {
		return "", err
	}
	if err := png.Encode(tmp, thumb); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("encode artwork: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}
