// Package sorter optionally rearranges completed downloads into
// audio/image/video/other trees after a run, classifying files by
// content sniffing with an extension fallback.
package sorter

import (
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"github.com/NTFSvolume/hoard/pkg/hoardlib"
)

// Category names the sorted subfolders.
const (
	CategoryAudio = "Audio"
	CategoryImage = "Images"
	CategoryVideo = "Videos"
	CategoryOther = "Other"
)

// Sorter moves completed files out of the scrape-shaped download tree
// into a category tree.
type Sorter struct {
	// Source is the download root to sweep.
	Source string
	// Dest is the sorted root; category folders are created below it.
	Dest string
	// KeepFolderStructure nests each file under its original album
	// folder inside the category.
	KeepFolderStructure bool
	Logger              *log.Logger
}

// Run sweeps the source tree. Partial files are left alone; empty
// folders are pruned afterwards.
func (s *Sorter) Run() error {
	err := filepath.WalkDir(s.Source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, hoardlib.PartExt) {
			return nil
		}
		return s.sortFile(path)
	})
	if err != nil {
		return err
	}
	return PruneEmptyFolders(s.Source, s.Logger)
}

func (s *Sorter) sortFile(path string) error {
	category := Classify(path)
	rel, err := filepath.Rel(s.Source, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	var target string
	if s.KeepFolderStructure {
		target = filepath.Join(s.Dest, category, rel)
	} else {
		target = filepath.Join(s.Dest, category, filepath.Base(path))
	}
	if target == path {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	target = uniquePath(target)
	if err := os.Rename(path, target); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Printf("sort: %s -> %s", path, target)
	}
	return nil
}

// Classify sniffs the file's magic bytes, falling back to the extension
// when the content is unrecognized.
func Classify(path string) string {
	f, err := os.Open(path)
	if err == nil {
		head := make([]byte, 262)
		n, _ := io.ReadFull(f, head)
		f.Close()
		if kind, err := filetype.Match(head[:n]); err == nil && kind != filetype.Unknown {
			switch kind.MIME.Type {
			case "video":
				return CategoryVideo
			case "audio":
				return CategoryAudio
			case "image":
				return CategoryImage
			}
		}
	}
	return classifyByExt(filepath.Ext(path))
}

func classifyByExt(ext string) string {
	ext = strings.ToLower(ext)
	switch {
	case in(hoardlib.VideoExts, ext):
		return CategoryVideo
	case in(hoardlib.AudioExts, ext):
		return CategoryAudio
	case in(hoardlib.ImageExts, ext):
		return CategoryImage
	default:
		return CategoryOther
	}
}

func in(set map[string]struct{}, ext string) bool {
	_, ok := set[ext]
	return ok
}

func uniquePath(path string) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// PruneEmptyFolders removes every empty directory below root, deepest
// first. The root itself is kept.
func PruneEmptyFolders(root string, l *log.Logger) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Deepest first so nested empties cascade.
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err != nil || len(entries) != 0 {
			continue
		}
		if err := os.Remove(dirs[i]); err == nil && l != nil {
			l.Printf("sort: pruned empty folder %s", dirs[i])
		}
	}
	return nil
}

// RemoveStrayPartials deletes leftover .part files below root.
func RemoveStrayPartials(root string, l *log.Logger) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, hoardlib.PartExt) {
			return nil
		}
		if err := os.Remove(path); err == nil && l != nil {
			l.Printf("cleanup: removed stray partial %s", path)
		}
		return nil
	})
}
