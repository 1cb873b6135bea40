package ffmpeg

// Config holds the paths of the ffmpeg/ffprobe binaries used for
// probing and frame extraction.
type Config struct {
	FfmpegBinPath  string `yaml:"ffmpeg_binary" env:"FFMPEG_BINARY" env-default:"/usr/bin/ffmpeg"`
	FfprobeBinPath string `yaml:"ffprobe_binary" env:"FFPROBE_BINARY" env-default:"/usr/bin/ffprobe"`
}
