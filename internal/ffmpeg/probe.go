package ffmpeg

import (
	"fmt"
	"strconv"
	"time"

	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
)

// ProbeFile extracts container/stream metadata from the media file at
// the path provided using ffprobe.
func ProbeFile(config Config, path string) (transcoder.Metadata, error) {
	cfg := ffmpeg.Config{
		FfmpegBinPath:  config.FfmpegBinPath,
		FfprobeBinPath: config.FfprobeBinPath,
	}
	transcoder := ffmpeg.New(&cfg).Input(path)
	metadata, err := transcoder.GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to extract file metadata information using ffprobe: %s", err.Error())
	}

	return metadata, nil
}

// ProbeDuration reads the duration of the media file at the path
// provided. The duration reported by ffprobe is a fractional seconds
// string, which is parsed here so callers deal only in time.Duration.
func ProbeDuration(config Config, path string) (time.Duration, error) {
	metadata, err := ProbeFile(config, path)
	if err != nil {
		return 0, err
	}

	raw := metadata.GetFormat().GetDuration()
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe reported an unparseable duration '%s' for %s: %s", raw, path, err.Error())
	}

	return time.Duration(seconds * float64(time.Second)), nil
}
