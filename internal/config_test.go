package internal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hbomb79/Iris/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) internal.IrisConfig {
	t.Helper()
	return internal.IrisConfig{
		IncomingDir:              filepath.Join(t.TempDir(), "archive"),
		MountPointBase:           t.TempDir(),
		CameraModels:             []string{"canon"},
		ImageExtensions:          []string{"jpg"},
		VideoExtensions:          []string{"mp4"},
		ScreencapIntervalSeconds: 30,
		ScreencapParallelism:     2,
		MountTimeoutSeconds:      30,
		MountPollIntervalMillis:  500,
	}
}

func Test_Config_ValidConfigPassesAndCreatesIncomingDir(t *testing.T) {
	config := validConfig(t)
	require.Nil(t, config.Validate())

	info, err := os.Stat(config.IncomingDir)
	require.Nil(t, err)
	assert.True(t, info.IsDir(), "a missing incoming directory should be created during validation")
}

func Test_Config_RejectsEmptyCameraModels(t *testing.T) {
	config := validConfig(t)
	config.CameraModels = nil

	assert.NotNil(t, config.Validate())
}

func Test_Config_RejectsNonPositiveScreencapInterval(t *testing.T) {
	config := validConfig(t)
	config.ScreencapIntervalSeconds = 0

	assert.NotNil(t, config.Validate())
}

func Test_Config_RejectsMissingMountPointBase(t *testing.T) {
	config := validConfig(t)
	config.MountPointBase = filepath.Join(t.TempDir(), "does-not-exist")

	assert.NotNil(t, config.Validate())
}

func Test_Config_JournalPathDefaultsIntoIncomingDir(t *testing.T) {
	config := validConfig(t)
	assert.Equal(t, filepath.Join(config.IncomingDir, ".iris-journal.db"), config.JournalFilePath())

	config.JournalPath = "/var/lib/iris/journal.db"
	assert.Equal(t, "/var/lib/iris/journal.db", config.JournalFilePath())
}

func Test_NormalisedExtensions_LowercasesAndStripsDots(t *testing.T) {
	exts := internal.NormalisedExtensions([]string{".JPG", "Mp4", " mov ", "", "."})

	assert.Equal(t, map[string]bool{"jpg": true, "mp4": true, "mov": true}, exts)
}
