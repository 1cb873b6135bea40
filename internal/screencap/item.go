package screencap

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type (
	JobState int

	// Job is a single video post-processing request: extract a still
	// frame every Interval from the archived video at VideoPath into
	// OutputDir. Created per archived video, discarded on completion.
	Job struct {
		ID        uuid.UUID
		SessionID uuid.UUID
		VideoPath string
		OutputDir string
		Interval  time.Duration

		state     JobState
		trouble   error
		cancelled atomic.Bool
	}
)

const (
	Idle JobState = iota
	Processing
	Complete
	Troubled
	Cancelled
)

func NewJob(sessionID uuid.UUID, videoPath string, outputDir string, interval time.Duration) *Job {
	return &Job{
		ID:        uuid.New(),
		SessionID: sessionID,
		VideoPath: videoPath,
		OutputDir: outputDir,
		Interval:  interval,
	}
}

// Cancel flags the job. A queued job will never start; a job already
// extracting frames finishes its current frame write and then stops.
func (job *Job) Cancel() { job.cancelled.Store(true) }

func (job *Job) IsCancelled() bool { return job.cancelled.Load() }

// State reports the job's lifecycle state. Only meaningful under the
// owning service's lock, except for terminal states.
func (job *Job) State() JobState { return job.state }

// Trouble returns the failure recorded against this job, if any.
func (job *Job) Trouble() error { return job.trouble }

func (job *Job) String() string {
	return fmt.Sprintf("ScreencapJob{ID=%s video=%s state=%s}", job.ID, job.VideoPath, job.state)
}

func (s JobState) String() string {
	switch s {
	case Idle:
		return fmt.Sprintf("IDLE[%d]", s)
	case Processing:
		return fmt.Sprintf("PROCESSING[%d]", s)
	case Complete:
		return fmt.Sprintf("COMPLETE[%d]", s)
	case Troubled:
		return fmt.Sprintf("TROUBLED[%d]", s)
	case Cancelled:
		return fmt.Sprintf("CANCELLED[%d]", s)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", s)
	}
}
