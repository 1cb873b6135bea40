package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hbomb79/Iris/pkg/logger"
)

var log = logger.Get("FFmpeg")

// FrameGrabCommand extracts a single still frame from a video file at a
// given offset. The seek is performed on the input side (before decode)
// which keeps extraction fast even deep into long videos.
type FrameGrabCommand struct {
	inputPath  string
	outputPath string
	offset     time.Duration
	config     *Config
}

func NewFrameGrabCmd(input string, output string, offset time.Duration, config *Config) *FrameGrabCommand {
	return &FrameGrabCommand{input, output, offset, config}
}

// Run executes the frame grab, blocking until ffmpeg exits or the
// context is cancelled. ffmpeg's stderr is folded into the returned
// error on failure as it carries the only useful diagnostic output.
func (cmd *FrameGrabCommand) Run(ctx context.Context) error {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", formatSeekOffset(cmd.offset),
		"-i", cmd.inputPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", cmd.outputPath,
	}

	log.Emit(logger.VERBOSE, "Extracting frame at %s from %s\n", cmd.offset, cmd.inputPath)
	execCmd := exec.CommandContext(ctx, cmd.config.FfmpegBinPath, args...)
	if output, err := execCmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf("ffmpeg frame extraction failed for %s at %s: %s (%s)",
			cmd.inputPath, cmd.offset, err.Error(), strings.TrimSpace(string(output)))
	}

	return nil
}

func (cmd *FrameGrabCommand) String() string {
	return fmt.Sprintf("{framegrab in_path=%s | offset=%s | out_path=%s}", cmd.inputPath, cmd.offset, cmd.outputPath)
}

// formatSeekOffset renders a duration as fractional seconds the way
// ffmpeg's -ss flag expects (e.g. 90.000).
func formatSeekOffset(offset time.Duration) string {
	return fmt.Sprintf("%.3f", offset.Seconds())
}
