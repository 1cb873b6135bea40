package screencap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Iris/internal/event"
	"github.com/hbomb79/Iris/internal/ffmpeg"
	"github.com/hbomb79/Iris/pkg/logger"
	"github.com/hbomb79/Iris/pkg/worker"
)

var log = logger.Get("Screencap")

const frameExtension = ".jpg"

type (
	// DecodeError is a per-video failure: the video could not be probed
	// or decoded. The source video remains archived regardless.
	DecodeError struct {
		VideoPath string
		Err       error
	}

	Config struct {
		Parallelism int
		Ffmpeg      ffmpeg.Config
	}

	// Service consumes screencap jobs from its queue using a worker
	// pool, so frame extraction for one device never blocks the
	// controller's event dispatch or another device's transfers.
	Service struct {
		*sync.Mutex

		config   Config
		eventBus event.EventCoordinator

		jobs       []*Job
		workerPool *worker.WorkerPool
	}
)

func (err DecodeError) Error() string {
	return fmt.Sprintf("failed to decode video %s: %s", err.VideoPath, err.Err.Error())
}

func (err DecodeError) Unwrap() error { return err.Err }

func New(config Config, eventBus event.EventCoordinator) *Service {
	service := &Service{
		Mutex:      &sync.Mutex{},
		config:     config,
		eventBus:   eventBus,
		jobs:       make([]*Job, 0),
		workerPool: worker.NewWorkerPool(),
	}

	parallelism := config.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	for i := 0; i < parallelism; i++ {
		label := fmt.Sprintf("screencap-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.performJobs))
	}

	return service
}

// Run starts the worker pool and blocks until the provided context is
// cancelled. Queued-but-unstarted jobs are abandoned on shutdown; a
// worker mid-frame finishes that frame before exiting.
func (service *Service) Run(ctx context.Context) error {
	if err := service.workerPool.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	service.cancelAll()
	service.workerPool.Close()
	return nil
}

// Queue adds a job for an archived video and wakes the worker pool.
func (service *Service) Queue(job *Job) {
	service.Lock()
	service.jobs = append(service.jobs, job)
	service.Unlock()

	log.Emit(logger.NEW, "Queued %s\n", job)
	service.workerPool.WakeupWorkers()
}

// CancelSession cancels all jobs belonging to the device session
// provided. Queued jobs will never start; an in-flight job stops after
// its current frame write.
func (service *Service) CancelSession(sessionID uuid.UUID) {
	service.Lock()
	defer service.Unlock()

	for _, job := range service.jobs {
		if job.SessionID == sessionID {
			job.Cancel()
			if job.state == Idle {
				job.state = Cancelled
			}
		}
	}
}

// AllJobs returns the jobs known to this service, including completed ones.
func (service *Service) AllJobs() []*Job {
	service.Lock()
	defer service.Unlock()

	out := make([]*Job, len(service.jobs))
	copy(out, service.jobs)
	return out
}

func (service *Service) cancelAll() {
	service.Lock()
	defer service.Unlock()

	for _, job := range service.jobs {
		job.Cancel()
	}
}

// performJobs is the worker task: claim and process idle jobs until the
// queue is drained, then sleep until woken. A closed wakeup channel
// means the pool is shutting down.
func (service *Service) performJobs(w worker.Worker) error {
	for {
		for job := service.claimIdleJob(); job != nil; job = service.claimIdleJob() {
			service.processJob(job)
		}

		if !w.Sleep() {
			return nil
		}
	}
}

// claimIdleJob finds an idle job and marks it processing so no other
// worker claims it once the lock is released.
func (service *Service) claimIdleJob() *Job {
	service.Lock()
	defer service.Unlock()

	for _, job := range service.jobs {
		if job.state == Idle && !job.IsCancelled() {
			job.state = Processing
			return job
		}
	}

	return nil
}

// processJob extracts the frames for a single job. Failures never
// propagate: a decode failure troubles the job and is logged, leaving
// the archived source untouched.
func (service *Service) processJob(job *Job) {
	defer service.eventBus.Dispatch(event.ScreencapCompleteEvent, job.ID)

	outcome := service.extractFrames(job)

	service.Lock()
	defer service.Unlock()
	switch {
	case outcome != nil:
		job.state = Troubled
		job.trouble = outcome
		log.Emit(logger.ERROR, "Screencap extraction failed for %s: %s\n", job.VideoPath, outcome.Error())
	case job.IsCancelled():
		job.state = Cancelled
		log.Emit(logger.REMOVE, "Screencap job %s cancelled\n", job.ID)
	default:
		job.state = Complete
		log.Emit(logger.SUCCESS, "Screencaps complete for %s\n", job.VideoPath)
	}
}

func (service *Service) extractFrames(job *Job) error {
	duration, err := ffmpeg.ProbeDuration(service.config.Ffmpeg, job.VideoPath)
	if err != nil {
		return DecodeError{VideoPath: job.VideoPath, Err: err}
	}

	if err := os.MkdirAll(job.OutputDir, os.ModeDir|os.ModePerm); err != nil {
		return fmt.Errorf("could not create screencap directory %s: %w", job.OutputDir, err)
	}

	var firstFrameErr error
	for _, offset := range Offsets(duration, job.Interval) {
		// Cancellation is only honoured between frames; a frame write
		// already begun runs to completion so no corrupt output is left.
		if job.IsCancelled() {
			return firstFrameErr
		}

		if err := service.extractFrame(job, offset); err != nil {
			log.Emit(logger.ERROR, "Failed to extract frame at %s from %s: %s\n", offset, job.VideoPath, err.Error())
			if firstFrameErr == nil {
				firstFrameErr = DecodeError{VideoPath: job.VideoPath, Err: err}
			}
		}
	}

	return firstFrameErr
}

// extractFrame writes a single frame, skipping work if the output
// already exists (re-processing an archived video is idempotent). The
// frame is decoded to a temp name and renamed into place so an
// interrupted run never leaves a corrupt screenshot.
func (service *Service) extractFrame(job *Job, offset time.Duration) error {
	finalPath := filepath.Join(job.OutputDir, FrameFileName(job.VideoPath, offset))
	if _, err := os.Stat(finalPath); err == nil {
		log.Emit(logger.VERBOSE, "Screencap %s already exists, skipping\n", finalPath)
		return nil
	}

	tempPath := filepath.Join(job.OutputDir, fmt.Sprintf(".%s.partial%s", filepath.Base(finalPath), frameExtension))
	cmd := ffmpeg.NewFrameGrabCmd(job.VideoPath, tempPath, offset, &service.config.Ffmpeg)
	if err := cmd.Run(context.Background()); err != nil {
		os.Remove(tempPath)
		return err
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return err
	}

	return nil
}

// Offsets returns the frame offsets for a video: 0, interval,
// 2*interval, ... up to (and never exceeding) the duration. A video of
// duration D therefore yields floor(D/I)+1 frames.
func Offsets(duration time.Duration, interval time.Duration) []time.Duration {
	if interval <= 0 || duration < 0 {
		return nil
	}

	offsets := make([]time.Duration, 0, int(duration/interval)+1)
	for offset := time.Duration(0); offset <= duration; offset += interval {
		offsets = append(offsets, offset)
	}

	return offsets
}

// FrameFileName derives the screenshot filename from the source video
// name and the frame offset, e.g. clip1.mp4 at 30s -> clip1_30s.jpg.
func FrameFileName(videoPath string, offset time.Duration) string {
	base := filepath.Base(videoPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_%02ds%s", stem, int(offset.Seconds()), frameExtension)
}
