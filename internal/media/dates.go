package media

import (
	"os"
	"time"

	"github.com/hbomb79/Iris/pkg/logger"
	"github.com/rwcarlsen/goexif/exif"
)

// originationDate derives the capture timestamp used for archival
// placement. Images are read for an EXIF DateTime; anything without
// usable metadata falls back to the filesystem modification time, which
// cameras set to the capture time on their own storage.
func originationDate(path string, kind Kind, modTime time.Time) time.Time {
	if kind == Image {
		if captured, err := imageCaptureTime(path); err == nil {
			return captured
		} else {
			log.Emit(logger.VERBOSE, "No EXIF capture time for %s (%s), using modtime\n", path, err.Error())
		}
	}

	return modTime
}

func imageCaptureTime(path string) (time.Time, error) {
	file, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer file.Close()

	meta, err := exif.Decode(file)
	if err != nil {
		return time.Time{}, err
	}

	return meta.DateTime()
}
