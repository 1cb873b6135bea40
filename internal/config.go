package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Iris/internal/ffmpeg"
	"github.com/ilyakaznacheev/cleanenv"
)

// IrisConfig is the struct used to contain the various user config
// supplied by file (with env overrides), validated once at startup and
// passed by reference to each component. No component reads ambient
// global state.
type IrisConfig struct {
	// IncomingDir is the root of the archive tree; media lands in
	// date-partitioned folders beneath it.
	IncomingDir string `yaml:"incoming_dir" env:"INCOMING_DIR" env-required:"true" validate:"required"`

	// MountPointBase is the directory beneath which the OS mounts
	// removable storage (e.g. /media or /run/media/<user>).
	MountPointBase string `yaml:"mount_point_base" env:"MOUNT_POINT_BASE" env-required:"true" validate:"required"`

	// JournalPath is the location of the sqlite archive journal. Empty
	// defaults to a file inside the incoming directory.
	JournalPath string `yaml:"journal_path" env:"JOURNAL_PATH"`

	// CameraModels is the keyword set matched (case-insensitively) against
	// a device's vendor/model strings. An empty set accepts no devices.
	CameraModels []string `yaml:"camera_models" env:"CAMERA_MODELS" env-required:"true" validate:"min=1"`

	ImageExtensions []string `yaml:"image_extensions" env:"IMAGE_EXTENSIONS" env-default:"jpg,jpeg,png,gif,cr2,nef,arw,dng"`
	VideoExtensions []string `yaml:"video_extensions" env:"VIDEO_EXTENSIONS" env-default:"mp4,mov,avi,mkv,mts"`

	// ScreencapIntervalSeconds is the spacing between extracted still
	// frames when post-processing an archived video.
	ScreencapIntervalSeconds int `yaml:"screencap_interval" env:"SCREENCAP_INTERVAL" env-default:"30" validate:"gt=0"`

	// ScreencapParallelism controls how many archived videos may be
	// post-processed at once across all devices.
	ScreencapParallelism int `yaml:"screencap_parallelism" env:"SCREENCAP_PARALLELISM" env-default:"2" validate:"gt=0"`

	// MountTimeoutSeconds bounds how long the mount resolver will poll
	// for a newly attached device to appear in the mount table.
	MountTimeoutSeconds      int `yaml:"mount_timeout" env:"MOUNT_TIMEOUT" env-default:"30" validate:"gt=0"`
	MountPollIntervalMillis  int `yaml:"mount_poll_interval_ms" env:"MOUNT_POLL_INTERVAL_MS" env-default:"500" validate:"gt=0"`

	Ffmpeg ffmpeg.Config `yaml:"ffmpeg"`
}

// LoadFromFile loads a YAML configuration file (merged with any env
// overrides) in to an IrisConfig, ready to be passed to internal.New.
func (config *IrisConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	return config.Validate()
}

// Validate enforces the structural rules on the config and ensures the
// paths it names are usable. Any error here is fatal; the daemon must
// not start against a config it cannot honour.
func (config *IrisConfig) Validate() error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	if err := ensureWritableDir(config.IncomingDir); err != nil {
		return fmt.Errorf("incoming directory unusable: %w", err)
	}

	if info, err := os.Stat(config.MountPointBase); err != nil {
		return fmt.Errorf("mount point base '%s' could not be accessed: %w", config.MountPointBase, err)
	} else if !info.IsDir() {
		return fmt.Errorf("mount point base '%s' is not a directory", config.MountPointBase)
	}

	return nil
}

// ScreencapInterval returns the configured frame spacing as a Duration.
func (config *IrisConfig) ScreencapInterval() time.Duration {
	return time.Duration(config.ScreencapIntervalSeconds) * time.Second
}

// MountTimeout returns the configured mount-resolution deadline as a Duration.
func (config *IrisConfig) MountTimeout() time.Duration {
	return time.Duration(config.MountTimeoutSeconds) * time.Second
}

// MountPollInterval returns the delay between mount table polls as a Duration.
func (config *IrisConfig) MountPollInterval() time.Duration {
	return time.Duration(config.MountPollIntervalMillis) * time.Millisecond
}

// JournalFilePath returns the configured journal location, falling back
// to a dotfile at the root of the archive tree.
func (config *IrisConfig) JournalFilePath() string {
	if config.JournalPath != "" {
		return config.JournalPath
	}

	return filepath.Join(config.IncomingDir, ".iris-journal.db")
}

// NormalisedExtensions lower-cases and strips leading dots from the
// configured extension lists so lookups downstream are uniform.
func NormalisedExtensions(exts []string) map[string]bool {
	out := make(map[string]bool, len(exts))
	for _, ext := range exts {
		cleaned := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if cleaned != "" {
			out[cleaned] = true
		}
	}

	return out
}

// ensureWritableDir creates the directory (and parents) if missing and
// verifies files can be created inside it.
func ensureWritableDir(path string) error {
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("'%s' is not a directory", path)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(path, os.ModeDir|os.ModePerm); err != nil {
			return fmt.Errorf("could not create '%s': %w", path, err)
		}
	} else {
		return fmt.Errorf("could not access '%s': %w", path, err)
	}

	probe, err := os.CreateTemp(path, ".iris-write-probe-*")
	if err != nil {
		return fmt.Errorf("'%s' is not writable: %w", path, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return nil
}
