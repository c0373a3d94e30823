package catalog

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
)

// Supported file extensions.
const (
	ExtMP3  = ".mp3"
	ExtFLAC = ".flac"
	ExtOGG  = ".ogg"
	ExtWAV  = ".wav"
)

// IsMusicFile returns true if the path has a playable extension.
func IsMusicFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtMP3, ExtFLAC, ExtOGG, ExtWAV:
		return true
	}
	return false
}

// readTags reads title, artist and album from a music file, along with its
// embedded cover picture when it has one.
func readTags(path string) (AssetInfo, *tag.Picture, error) {
	f, err := os.Open(path)
	if err != nil {
		return AssetInfo{}, nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		// dhowden/tag has issues with some UTF-16 encoded ID3 tags
		if strings.ToLower(filepath.Ext(path)) == ExtMP3 {
			return readMP3WithID3v2(path)
		}
		return AssetInfo{}, nil, err
	}

	return AssetInfo{
		Title:  strings.TrimSpace(m.Title()),
		Artist: strings.TrimSpace(m.Artist()),
		Album:  strings.TrimSpace(m.Album()),
	}, m.Picture(), nil
}

func readMP3WithID3v2(path string) (AssetInfo, *tag.Picture, error) {
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return AssetInfo{}, nil, err
	}
	defer t.Close()

	var pic *tag.Picture
	for _, f := range t.GetFrames(t.CommonID("Attached picture")) {
		if pf, ok := f.(id3v2.PictureFrame); ok && len(pf.Picture) > 0 {
			pic = &tag.Picture{MIMEType: pf.MimeType, Description: pf.Description, Data: pf.Picture}
			break
		}
	}

	return AssetInfo{
		Title:  strings.TrimSpace(t.Title()),
		Artist: strings.TrimSpace(t.Artist()),
		Album:  strings.TrimSpace(t.Album()),
	}, pic, nil
}
