package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsImage(t *testing.T) {
	cases := map[string]bool{
		"shot.jpg":   true,
		"shot.JPEG":  true,
		"shot.png":   true,
		"shot.webp":  true,
		"shot.heic":  true,
		"notes.txt":  false,
		"archive":    false,
		"shot.jpg.x": false,
	}
	for path, want := range cases {
		if got := IsImage(path); got != want {
			t.Errorf("IsImage(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType("a.PNG"); got != "image/png" {
		t.Errorf("expected image/png, got %s", got)
	}
	if got := ContentType("a.bin"); got != "application/octet-stream" {
		t.Errorf("expected application/octet-stream, got %s", got)
	}
}

func TestCollectPhotos(t *testing.T) {
	t.Run("flattens files and directories", func(t *testing.T) {
		tmpDir := t.TempDir()
		shootDir := filepath.Join(tmpDir, "shoot")
		if err := os.Mkdir(shootDir, 0755); err != nil {
			t.Fatal(err)
		}

		files := map[string]string{
			filepath.Join(tmpDir, "cover.jpg"):   "aa",
			filepath.Join(shootDir, "one.png"):   "bbbb",
			filepath.Join(shootDir, "two.jpeg"):  "cccccc",
			filepath.Join(shootDir, "notes.txt"): "skip me",
		}
		for path, content := range files {
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
		}

		photos, err := CollectPhotos([]ParsedPath{
			{FullPath: filepath.Join(tmpDir, "cover.jpg"), Kind: PathFile},
			{FullPath: shootDir, Kind: PathDir},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(photos) != 3 {
			t.Fatalf("expected 3 photos, got %d", len(photos))
		}
		byName := map[string]PhotoFile{}
		for _, p := range photos {
			byName[p.Name] = p
		}
		if _, ok := byName["notes.txt"]; ok {
			t.Error("non-image file should be skipped")
		}
		if byName["cover.jpg"].Size != 2 {
			t.Errorf("expected size 2 for cover.jpg, got %d", byName["cover.jpg"].Size)
		}
		if byName["two.jpeg"].Size != 6 {
			t.Errorf("expected size 6 for two.jpeg, got %d", byName["two.jpeg"].Size)
		}
	})

	t.Run("empty directory returns error", func(t *testing.T) {
		tmpDir := t.TempDir()

		_, err := CollectPhotos([]ParsedPath{{FullPath: tmpDir, Kind: PathDir}})
		if err == nil {
			t.Fatal("expected error for directory with no images")
		}
	})
}
