package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Iris/internal/archive"
	"github.com/hbomb79/Iris/internal/device"
	"github.com/hbomb79/Iris/internal/event"
	"github.com/hbomb79/Iris/internal/media"
	"github.com/hbomb79/Iris/internal/screencap"
	"github.com/hbomb79/Iris/pkg/logger"
)

var log = logger.Get("Daemon")

const screencapDirName = "screencaps"

type (
	deviceFilter interface {
		Accepts(vendor string, model string) bool
	}

	mountResolver interface {
		Resolve(ctx context.Context, deviceNode string) (string, error)
	}

	fileScanner interface {
		Scan(mountPath string) ([]media.File, error)
	}

	archiveOrganizer interface {
		Archive(sessionID uuid.UUID, file media.File) (*archive.Entry, error)
	}

	screencapQueue interface {
		Queue(job *screencap.Job)
		CancelSession(sessionID uuid.UUID)
	}

	Config struct {
		ScreencapInterval time.Duration
	}

	// Controller owns the event loop: it consumes device notifications,
	// classifies them, and drives each accepted device through
	// mount resolution, scanning, archiving and screencap queueing.
	// Work for one device runs in its own goroutine (serialized
	// internally in scan order); the dispatch loop itself never blocks
	// on device work.
	Controller struct {
		*sync.Mutex

		config   Config
		filter   deviceFilter
		notifier device.Notifier
		resolver mountResolver
		scanner  fileScanner
		archiver archiveOrganizer
		caps     screencapQueue
		eventBus event.EventCoordinator

		sessions  map[string]*session
		sessionWg sync.WaitGroup
	}
)

func New(
	config Config,
	filter deviceFilter,
	notifier device.Notifier,
	resolver mountResolver,
	scanner fileScanner,
	archiver archiveOrganizer,
	caps screencapQueue,
	eventBus event.EventCoordinator,
) *Controller {
	return &Controller{
		Mutex:    &sync.Mutex{},
		config:   config,
		filter:   filter,
		notifier: notifier,
		resolver: resolver,
		scanner:  scanner,
		archiver: archiver,
		caps:     caps,
		eventBus: eventBus,
		sessions: make(map[string]*session),
	}
}

// Run is the controller's dispatch loop. It blocks until the provided
// context is cancelled, at which point no further device events are
// accepted; per-device goroutines notice the cancellation between
// files, finish their in-flight copy, and are waited for before Run
// returns.
func (controller *Controller) Run(ctx context.Context) error {
	log.Emit(logger.NEW, "Device event loop started\n")
	for {
		select {
		case ev := <-controller.notifier.Events():
			controller.handleEvent(ctx, ev)
		case <-ctx.Done():
			log.Emit(logger.STOP, "Shutting down; waiting for in-flight device work to settle\n")
			controller.sessionWg.Wait()
			return nil
		}
	}
}

// ActiveSessions reports how many devices currently have in-flight work.
func (controller *Controller) ActiveSessions() int {
	controller.Lock()
	defer controller.Unlock()
	return len(controller.sessions)
}

func (controller *Controller) handleEvent(ctx context.Context, ev device.Event) {
	switch ev.Action {
	case device.Attached:
		controller.handleAttached(ctx, ev)
	case device.Detached:
		controller.handleDetached(ev)
	default:
		log.Emit(logger.WARNING, "Ignoring device event with unknown action %s\n", ev.Action)
	}
}

func (controller *Controller) handleAttached(ctx context.Context, ev device.Event) {
	controller.Lock()
	defer controller.Unlock()

	// The notification source may deliver duplicate attach events; an
	// active session for the node makes this one a no-op.
	if _, ok := controller.sessions[ev.DeviceNode]; ok {
		log.Emit(logger.VERBOSE, "Duplicate attach event for %s ignored\n", ev.DeviceNode)
		return
	}

	if !controller.filter.Accepts(ev.Vendor, ev.Model) {
		log.Emit(logger.INFO, "Device %s (%s %s) is not a recognised camera\n", ev.DeviceNode, ev.Vendor, ev.Model)
		return
	}

	cam := device.NewCameraDevice(ev)
	sess := newSession(ctx, cam)
	controller.sessions[ev.DeviceNode] = sess

	log.Emit(logger.NEW, "Camera attached: %s\n", cam)
	controller.eventBus.Dispatch(event.DeviceAttachedEvent, cam.SessionID)

	controller.sessionWg.Add(1)
	go func() {
		defer controller.sessionWg.Done()
		controller.runSession(sess)
	}()
}

func (controller *Controller) handleDetached(ev device.Event) {
	controller.Lock()
	sess, ok := controller.sessions[ev.DeviceNode]
	if ok {
		delete(controller.sessions, ev.DeviceNode)
	}
	controller.Unlock()

	if !ok {
		log.Emit(logger.VERBOSE, "Detach event for unknown device %s ignored\n", ev.DeviceNode)
		return
	}

	log.Emit(logger.REMOVE, "Camera detached: %s; cancelling in-flight work\n", sess.device)
	sess.cancel()
	controller.caps.CancelSession(sess.device.SessionID)
	controller.eventBus.Dispatch(event.DeviceDetachedEvent, sess.device.SessionID)
}

// runSession drives one device from mount resolution through archiving.
// All failures in here are per-device: they are logged and end the
// session without disturbing the dispatch loop or other devices.
func (controller *Controller) runSession(sess *session) {
	defer controller.releaseSession(sess)

	cam := sess.device
	mountPath, err := controller.resolver.Resolve(sess.ctx, cam.DeviceNode)
	if err != nil {
		var timeout device.MountTimeoutError
		switch {
		case errors.As(err, &timeout):
			log.Emit(logger.ERROR, "Skipping %s: %s\n", cam, timeout.Error())
		case sess.ctx.Err() != nil:
			log.Emit(logger.REMOVE, "Mount resolution for %s abandoned (session cancelled)\n", cam)
		default:
			log.Emit(logger.ERROR, "Mount resolution for %s failed: %s\n", cam, err.Error())
		}

		controller.transition(sess, Cancelled)
		return
	}

	cam.MountPath = mountPath
	controller.transition(sess, Scanning)

	files, err := controller.scanner.Scan(mountPath)
	if err != nil {
		log.Emit(logger.ERROR, "Scan of %s at %s failed: %s\n", cam, mountPath, err.Error())
		controller.transition(sess, Cancelled)
		return
	}
	log.Emit(logger.INFO, "Found %d media files on %s\n", len(files), cam)

	controller.transition(sess, Archiving)
	for _, file := range files {
		// Cancellation (detach or shutdown) is honoured between files;
		// the copy below is never interrupted once begun.
		if sess.ctx.Err() != nil {
			log.Emit(logger.REMOVE, "Abandoning remaining transfers for %s (session cancelled)\n", cam)
			controller.transition(sess, Cancelled)
			return
		}

		controller.archiveFile(sess, file)
	}

	controller.transition(sess, PostProcessing)
	controller.eventBus.Dispatch(event.ArchiveCompleteEvent, cam.SessionID)
	controller.transition(sess, Complete)
}

func (controller *Controller) archiveFile(sess *session, file media.File) {
	cam := sess.device
	entry, err := controller.archiver.Archive(cam.SessionID, file)
	switch {
	case errors.Is(err, archive.ErrDuplicate):
		log.Emit(logger.INFO, "Skipping %s from %s: already archived\n", file.SourcePath, cam.DeviceNode)
		return
	case err != nil:
		log.Emit(logger.ERROR, "Failed to archive %s from %s: %s\n", file.SourcePath, cam.DeviceNode, err.Error())
		return
	}

	controller.eventBus.Dispatch(event.MediaArchivedEvent, cam.SessionID)

	// Videos are handed to the screencap service so frame extraction
	// never blocks the remaining transfers; the job is only created
	// here, after the archive copy has committed.
	if entry.Kind == media.Video {
		outputDir := filepath.Join(filepath.Dir(entry.Path), screencapDirName)
		controller.caps.Queue(screencap.NewJob(cam.SessionID, entry.Path, outputDir, controller.config.ScreencapInterval))
	}
}

func (controller *Controller) transition(sess *session, state SessionState) {
	controller.Lock()
	defer controller.Unlock()

	log.Emit(logger.DEBUG, "%s -> %s\n", sess, state)
	sess.state = state
}

// releaseSession removes a finished session from the controller, unless
// a detach already removed it (or a re-attach installed a fresh one).
func (controller *Controller) releaseSession(sess *session) {
	controller.Lock()
	defer controller.Unlock()

	if current, ok := controller.sessions[sess.device.DeviceNode]; ok && current == sess {
		delete(controller.sessions, sess.device.DeviceNode)
	}
}
