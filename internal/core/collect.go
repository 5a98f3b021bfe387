package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PhotoFile is one image queued for upload.
type PhotoFile struct {
	Path string
	Name string
	Size int64
}

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// IsImage reports whether the path has a recognized image extension.
func IsImage(path string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ContentType returns the MIME type for an image path, or a generic octet
// stream for anything unrecognized.
func ContentType(path string) string {
	if ct, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// CollectPhotos expands the parsed paths into the flat list of images to
// upload. Directories are walked recursively; non-image files inside them
// are skipped silently.
func CollectPhotos(paths []ParsedPath) ([]PhotoFile, error) {
	var photos []PhotoFile

	for _, p := range paths {
		switch p.Kind {
		case PathFile:
			info, err := os.Stat(p.FullPath)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", p.FullPath, err)
			}
			photos = append(photos, PhotoFile{
				Path: p.FullPath,
				Name: filepath.Base(p.FullPath),
				Size: info.Size(),
			})
		case PathDir:
			err := filepath.WalkDir(p.FullPath, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !IsImage(path) {
					return nil
				}
				info, err := d.Info()
				if err != nil {
					return err
				}
				photos = append(photos, PhotoFile{
					Path: path,
					Name: filepath.Base(path),
					Size: info.Size(),
				})
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to walk %s: %w", p.FullPath, err)
			}
		}
	}

	if len(photos) == 0 {
		return nil, &ValidationError{Arg: "<paths>", Cause: "no images found"}
	}
	return photos, nil
}
