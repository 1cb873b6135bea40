package media

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/hbomb79/Iris/pkg/logger"
)

var log = logger.Get("Scanner")

type (
	Kind int

	// File describes a single candidate media file found on a mounted
	// device. Immutable once scanned.
	File struct {
		SourcePath      string
		OriginationDate time.Time
		Kind            Kind
		SizeBytes       int64
	}

	// Scanner walks a mounted device tree and enumerates media files by
	// extension, tagging each with its kind and origination date.
	Scanner struct {
		imageExts map[string]bool
		videoExts map[string]bool
	}
)

const (
	Image Kind = iota
	Video
)

func NewScanner(imageExts map[string]bool, videoExts map[string]bool) *Scanner {
	return &Scanner{imageExts: imageExts, videoExts: videoExts}
}

// Scan walks the tree rooted at mountPath depth-first and returns the
// media files found, in walk order. Unreadable files and directories
// are logged and skipped rather than failing the scan; only an
// unreadable root is an error. Re-invoking Scan on the same tree is
// safe and idempotent.
func (scanner *Scanner) Scan(mountPath string) ([]File, error) {
	found := make([]File, 0)
	err := filepath.WalkDir(mountPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == mountPath {
				return err
			}

			log.Emit(logger.WARNING, "Skipping unreadable entry %s: %s\n", path, err.Error())
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}

		kind, ok := scanner.classify(entry.Name())
		if !ok {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			log.Emit(logger.WARNING, "Skipping unstatable file %s: %s\n", path, err.Error())
			return nil
		}

		found = append(found, File{
			SourcePath:      path,
			OriginationDate: originationDate(path, kind, info.ModTime()),
			Kind:            kind,
			SizeBytes:       info.Size(),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan device tree %s: %w", mountPath, err)
	}

	return found, nil
}

// classify maps a filename to a media kind via its extension
// (case-insensitive). The second return is false for unsupported files.
func (scanner *Scanner) classify(name string) (Kind, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if scanner.imageExts[ext] {
		return Image, true
	}
	if scanner.videoExts[ext] {
		return Video, true
	}

	return 0, false
}

// DateFolder is the archive partition this file belongs to.
func (file File) DateFolder() string {
	return file.OriginationDate.Format("2006-01-02")
}

func (file File) String() string {
	return fmt.Sprintf("File{path=%s kind=%s size=%d date=%s}", file.SourcePath, file.Kind, file.SizeBytes, file.DateFolder())
}

func (k Kind) String() string {
	switch k {
	case Image:
		return "IMAGE"
	case Video:
		return "VIDEO"
	default:
		return fmt.Sprintf("UNKNOWN[%d]", k)
	}
}
