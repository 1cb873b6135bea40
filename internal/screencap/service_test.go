package screencap_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Iris/internal/screencap"
	"github.com/stretchr/testify/assert"
)

func Test_Offsets_CoverWholeVideoWithoutExceedingDuration(t *testing.T) {
	tests := []struct {
		summary  string
		duration time.Duration
		interval time.Duration
		expected []time.Duration
	}{
		{
			summary:  "duration not a multiple of the interval",
			duration: 65 * time.Second,
			interval: 30 * time.Second,
			expected: []time.Duration{0, 30 * time.Second, 60 * time.Second},
		},
		{
			summary:  "duration an exact multiple of the interval",
			duration: 60 * time.Second,
			interval: 30 * time.Second,
			expected: []time.Duration{0, 30 * time.Second, 60 * time.Second},
		},
		{
			summary:  "video shorter than the interval still gets its first frame",
			duration: 10 * time.Second,
			interval: 30 * time.Second,
			expected: []time.Duration{0},
		},
		{
			summary:  "zero-length video yields a single frame at zero",
			duration: 0,
			interval: 30 * time.Second,
			expected: []time.Duration{0},
		},
		{
			summary:  "non-positive interval yields nothing",
			duration: 60 * time.Second,
			interval: 0,
			expected: nil,
		},
	}

	for _, test := range tests {
		t.Run(test.summary, func(t *testing.T) {
			assert.Equal(t, test.expected, screencap.Offsets(test.duration, test.interval))
		})
	}
}

func Test_FrameFileName_DerivesFromVideoStemAndOffset(t *testing.T) {
	assert.Equal(t, "clip1_00s.jpg", screencap.FrameFileName("/archive/2024-04-01/clip1.mp4", 0))
	assert.Equal(t, "clip1_30s.jpg", screencap.FrameFileName("/archive/2024-04-01/clip1.mp4", 30*time.Second))
	assert.Equal(t, "clip1 (1)_90s.jpg", screencap.FrameFileName("clip1 (1).mov", 90*time.Second))
}

func Test_CancelSession_OnlyCancelsMatchingJobs(t *testing.T) {
	service := screencap.New(screencap.Config{Parallelism: 1}, nil)

	sessionA := uuid.New()
	sessionB := uuid.New()
	jobA := screencap.NewJob(sessionA, "/archive/a.mp4", "/archive/screencaps", 30*time.Second)
	jobB := screencap.NewJob(sessionB, "/archive/b.mp4", "/archive/screencaps", 30*time.Second)
	service.Queue(jobA)
	service.Queue(jobB)

	service.CancelSession(sessionA)

	assert.Equal(t, screencap.Cancelled, jobA.State())
	assert.True(t, jobA.IsCancelled())
	assert.Equal(t, screencap.Idle, jobB.State())
	assert.False(t, jobB.IsCancelled())
}
