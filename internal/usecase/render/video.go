package render

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// LatestVideo returns the most recently modified .mp4 under the media/videos
// directory next to script. ok is false when there is none.
func LatestVideo(script string) (path string, ok bool) {
	root := filepath.Join(filepath.Dir(script), "media", "videos")
	var newest time.Time
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".mp4") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !ok || info.ModTime().After(newest) {
			path, newest, ok = p, info.ModTime(), true
		}
		return nil
	})
	return path, ok
}
