package device_test

import (
	"testing"

	"github.com/hbomb79/Iris/internal/device"
	"github.com/stretchr/testify/assert"
)

func Test_Filter_EmptyKeywordSet_RejectsEverything(t *testing.T) {
	filter := device.NewFilter([]string{})

	assert.False(t, filter.Accepts("", ""))
	assert.False(t, filter.Accepts("GoPro Inc", "Hero9"))
	assert.False(t, filter.Accepts("Canon", "EOS R5"))
}

func Test_Filter_MatchesKeywordsCaseInsensitively(t *testing.T) {
	filter := device.NewFilter([]string{"gopro", "canon"})

	assert.True(t, filter.Accepts("GoPro Inc", "Hero9"))
	assert.True(t, filter.Accepts("CANON", "EOS R5"))
	assert.True(t, filter.Accepts("Generic", "Canon EOS"), "keyword in model string alone should match")
	assert.False(t, filter.Accepts("", ""))
	assert.False(t, filter.Accepts("SanDisk", "Cruzer"))
}

func Test_Filter_IgnoresBlankKeywords(t *testing.T) {
	filter := device.NewFilter([]string{"  ", "", "nikon"})

	assert.False(t, filter.Accepts("SanDisk", "Cruzer"), "blank keywords must not match everything")
	assert.True(t, filter.Accepts("Nikon Corp", "D850"))
}
