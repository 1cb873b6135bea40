package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Iris/internal/media"
	"github.com/hbomb79/Iris/pkg/logger"
)

var log = logger.Get("Archive")

// ErrDuplicate is returned when a file of the same name and size is
// already present at the destination. The existing bytes are untouched;
// re-archiving is idempotent.
var ErrDuplicate = errors.New("file already archived")

const (
	tempSuffix = ".iris-partial"

	// Temp files older than this are presumed abandoned by an
	// interrupted run and are swept before new writes to the directory.
	staleTempAge = time.Hour
)

type (
	// Entry is the on-disk artifact produced by a successful archive.
	Entry struct {
		Path      string
		Name      string
		Date      string
		Kind      media.Kind
		SizeBytes int64
	}

	// CopyError is a per-file archival failure. The partial temp file
	// has already been cleaned up by the time this is returned.
	CopyError struct {
		Source string
		Dest   string
		Err    error
	}

	// journal receives a best-effort record of every commit and skip.
	// Failures are logged by the implementation and never block archiving.
	journal interface {
		RecordEntry(sessionID uuid.UUID, entry Entry)
		RecordDuplicate(sessionID uuid.UUID, entry Entry)
	}

	// Organizer copies scanned media files into the date-partitioned
	// archive tree. The existence-check-then-atomic-rename sequence is
	// the sole synchronisation discipline for the shared tree; no
	// global lock is held.
	Organizer struct {
		incomingDir string
		journal     journal
	}
)

func (err CopyError) Error() string {
	return fmt.Sprintf("failed to archive %s to %s: %s", err.Source, err.Dest, err.Err.Error())
}

func (err CopyError) Unwrap() error { return err.Err }

func NewOrganizer(incomingDir string, journal journal) *Organizer {
	return &Organizer{incomingDir: incomingDir, journal: journal}
}

// Archive copies the file into `incomingDir/<date>/<name>`. If a file
// of the same name and size already exists there, ErrDuplicate is
// returned and nothing is written. A same-name file of a DIFFERENT size
// is a naming collision: it is surfaced as a prominent warning and the
// new file lands under a uniquified name rather than overwriting.
//
// The copy is written to a temporary name and atomically renamed into
// place only once fully written, so a concurrent reader never observes
// a partial archive entry. An interrupted copy leaves at most a stale
// temp file, swept on a later archive into the same directory.
func (organizer *Organizer) Archive(sessionID uuid.UUID, file media.File) (*Entry, error) {
	destDir := filepath.Join(organizer.incomingDir, file.DateFolder())
	if err := os.MkdirAll(destDir, os.ModeDir|os.ModePerm); err != nil {
		return nil, CopyError{Source: file.SourcePath, Dest: destDir, Err: err}
	}

	sweepStaleTemps(destDir)

	name, dest, err := organizer.resolveDestination(destDir, file)
	if err != nil {
		if errors.Is(err, ErrDuplicate) && organizer.journal != nil {
			organizer.journal.RecordDuplicate(sessionID, Entry{
				Path: dest, Name: name, Date: file.DateFolder(), Kind: file.Kind, SizeBytes: file.SizeBytes,
			})
		}
		return nil, err
	}

	if err := copyFileAtomic(file.SourcePath, dest); err != nil {
		return nil, CopyError{Source: file.SourcePath, Dest: dest, Err: err}
	}

	entry := &Entry{Path: dest, Name: name, Date: file.DateFolder(), Kind: file.Kind, SizeBytes: file.SizeBytes}
	log.Emit(logger.SUCCESS, "Archived %s -> %s\n", file.SourcePath, dest)
	if organizer.journal != nil {
		organizer.journal.RecordEntry(sessionID, *entry)
	}

	return entry, nil
}

// resolveDestination applies the dedup rule: same name and size means
// duplicate; same name and different size means collision, resolved by
// probing uniquified names until a free (or duplicate) slot is found.
func (organizer *Organizer) resolveDestination(destDir string, file media.File) (string, string, error) {
	baseName := filepath.Base(file.SourcePath)
	candidate := baseName

	for attempt := 1; ; attempt++ {
		dest := filepath.Join(destDir, candidate)
		info, err := os.Stat(dest)
		if os.IsNotExist(err) {
			return candidate, dest, nil
		} else if err != nil {
			return "", dest, CopyError{Source: file.SourcePath, Dest: dest, Err: err}
		}

		if info.Size() == file.SizeBytes {
			return candidate, dest, fmt.Errorf("%s (%d bytes) at %s: %w", candidate, file.SizeBytes, dest, ErrDuplicate)
		}

		log.Emit(logger.WARNING, "NAMING COLLISION: %s already exists with a different size (%d != %d); archiving %s under a uniquified name\n",
			dest, info.Size(), file.SizeBytes, file.SourcePath)
		candidate = uniquifiedName(baseName, attempt)
	}
}

// uniquifiedName inserts a counter before the extension ("clip (1).mp4").
func uniquifiedName(baseName string, attempt int) string {
	ext := filepath.Ext(baseName)
	stem := strings.TrimSuffix(baseName, ext)
	return fmt.Sprintf("%s (%d)%s", stem, attempt, ext)
}

// copyFileAtomic copies src into dest's directory under a temporary
// name, syncs, then renames over the final path. On any failure the
// temp file is removed before returning.
func copyFileAtomic(src string, dest string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	tempPath := filepath.Join(filepath.Dir(dest), fmt.Sprintf(".%s.%s%s", filepath.Base(dest), uuid.NewString()[:8], tempSuffix))
	temp, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(temp, source); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return err
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return err
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}

	// Preserve the source's modtime so the archive reflects capture-era
	// timestamps rather than transfer time.
	if info, err := source.Stat(); err == nil {
		os.Chtimes(tempPath, info.ModTime(), info.ModTime())
	}

	if err := os.Rename(tempPath, dest); err != nil {
		os.Remove(tempPath)
		return err
	}

	return nil
}

// sweepStaleTemps removes abandoned partial files from a destination
// directory. Only temps comfortably older than any plausible in-flight
// copy are removed, so concurrent archivers never sweep each other.
func sweepStaleTemps(destDir string) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), tempSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil || time.Since(info.ModTime()) < staleTempAge {
			continue
		}

		stale := filepath.Join(destDir, entry.Name())
		if err := os.Remove(stale); err == nil {
			log.Emit(logger.REMOVE, "Swept stale partial file %s\n", stale)
		}
	}
}
