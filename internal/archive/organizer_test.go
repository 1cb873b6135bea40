package archive_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Iris/internal/archive"
	"github.com/hbomb79/Iris/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journalSpy struct {
	entries    []archive.Entry
	duplicates []archive.Entry
}

func (spy *journalSpy) RecordEntry(sessionID uuid.UUID, entry archive.Entry) {
	spy.entries = append(spy.entries, entry)
}

func (spy *journalSpy) RecordDuplicate(sessionID uuid.UUID, entry archive.Entry) {
	spy.duplicates = append(spy.duplicates, entry)
}

func sourceFile(t *testing.T, name string, contents string) media.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.Nil(t, os.WriteFile(path, []byte(contents), 0644))

	return media.File{
		SourcePath:      path,
		OriginationDate: time.Date(2024, 4, 1, 12, 0, 0, 0, time.Local),
		Kind:            media.Image,
		SizeBytes:       int64(len(contents)),
	}
}

func Test_Organizer_ArchivesIntoDatePartitionedTree(t *testing.T) {
	incoming := t.TempDir()
	spy := &journalSpy{}
	organizer := archive.NewOrganizer(incoming, spy)
	file := sourceFile(t, "photo1.jpg", "jpeg-bytes")

	entry, err := organizer.Archive(uuid.New(), file)
	require.Nil(t, err)

	expectedPath := filepath.Join(incoming, "2024-04-01", "photo1.jpg")
	assert.Equal(t, expectedPath, entry.Path)
	assert.Equal(t, "2024-04-01", entry.Date)

	contents, err := os.ReadFile(expectedPath)
	require.Nil(t, err)
	assert.Equal(t, "jpeg-bytes", string(contents))

	require.Len(t, spy.entries, 1)
	assert.Empty(t, spy.duplicates)
}

func Test_Organizer_SecondArchiveOfSameFileIsSkipped(t *testing.T) {
	incoming := t.TempDir()
	spy := &journalSpy{}
	organizer := archive.NewOrganizer(incoming, spy)
	file := sourceFile(t, "photo1.jpg", "jpeg-bytes")

	first, err := organizer.Archive(uuid.New(), file)
	require.Nil(t, err)

	before, err := os.ReadFile(first.Path)
	require.Nil(t, err)

	entry, err := organizer.Archive(uuid.New(), file)
	assert.Nil(t, entry)
	assert.ErrorIs(t, err, archive.ErrDuplicate)

	after, err := os.ReadFile(first.Path)
	require.Nil(t, err)
	assert.Equal(t, before, after, "duplicate archive must not modify the existing entry")
	assert.Len(t, spy.duplicates, 1)
}

func Test_Organizer_SameNameDifferentSizeIsUniquified(t *testing.T) {
	incoming := t.TempDir()
	organizer := archive.NewOrganizer(incoming, nil)

	original := sourceFile(t, "clip1.mp4", "short")
	colliding := sourceFile(t, "clip1.mp4", "a much longer recording")

	_, err := organizer.Archive(uuid.New(), original)
	require.Nil(t, err)

	entry, err := organizer.Archive(uuid.New(), colliding)
	require.Nil(t, err, "a collision must archive under a new name, not fail or overwrite")
	assert.Equal(t, "clip1 (1).mp4", entry.Name)

	originalContents, err := os.ReadFile(filepath.Join(incoming, "2024-04-01", "clip1.mp4"))
	require.Nil(t, err)
	assert.Equal(t, "short", string(originalContents), "first writer's bytes must survive the collision")
}

func Test_Organizer_LeavesNoPartialFilesBehind(t *testing.T) {
	incoming := t.TempDir()
	organizer := archive.NewOrganizer(incoming, nil)

	_, err := organizer.Archive(uuid.New(), sourceFile(t, "photo1.jpg", "jpeg-bytes"))
	require.Nil(t, err)

	// A missing source is a per-file CopyError, and must not leave a
	// temp file in the destination.
	missing := media.File{
		SourcePath:      filepath.Join(t.TempDir(), "gone.jpg"),
		OriginationDate: time.Date(2024, 4, 1, 12, 0, 0, 0, time.Local),
		Kind:            media.Image,
	}
	_, err = organizer.Archive(uuid.New(), missing)
	var copyErr archive.CopyError
	assert.ErrorAs(t, err, &copyErr)

	entries, err := os.ReadDir(filepath.Join(incoming, "2024-04-01"))
	require.Nil(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasSuffix(entry.Name(), ".iris-partial"),
			"no partial file may remain at the destination, found %s", entry.Name())
	}
}
