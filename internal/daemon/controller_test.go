package daemon_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Iris/internal/archive"
	"github.com/hbomb79/Iris/internal/daemon"
	"github.com/hbomb79/Iris/internal/device"
	"github.com/hbomb79/Iris/internal/event"
	"github.com/hbomb79/Iris/internal/media"
	"github.com/hbomb79/Iris/internal/screencap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	path string
	err  error
}

func (resolver *stubResolver) Resolve(ctx context.Context, deviceNode string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return resolver.path, resolver.err
}

type stubScanner struct {
	files []media.File
}

func (scanner *stubScanner) Scan(mountPath string) ([]media.File, error) {
	return scanner.files, nil
}

// recordingArchiver records each archived file in call order. When a
// proceed channel is set, every Archive call blocks on it after
// recording, letting a test interleave detach events with the copy loop.
type recordingArchiver struct {
	mu       sync.Mutex
	archived []media.File
	proceed  chan struct{}
}

func (archiver *recordingArchiver) Archive(sessionID uuid.UUID, file media.File) (*archive.Entry, error) {
	archiver.mu.Lock()
	archiver.archived = append(archiver.archived, file)
	archiver.mu.Unlock()

	if archiver.proceed != nil {
		<-archiver.proceed
	}

	name := filepath.Base(file.SourcePath)
	return &archive.Entry{
		Path:      filepath.Join("/archive", file.DateFolder(), name),
		Name:      name,
		Date:      file.DateFolder(),
		Kind:      file.Kind,
		SizeBytes: file.SizeBytes,
	}, nil
}

func (archiver *recordingArchiver) archivedCount() int {
	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	return len(archiver.archived)
}

type recordingCapQueue struct {
	mu        sync.Mutex
	queued    []*screencap.Job
	cancelled []uuid.UUID
}

func (caps *recordingCapQueue) Queue(job *screencap.Job) {
	caps.mu.Lock()
	defer caps.mu.Unlock()
	caps.queued = append(caps.queued, job)
}

func (caps *recordingCapQueue) CancelSession(sessionID uuid.UUID) {
	caps.mu.Lock()
	defer caps.mu.Unlock()
	caps.cancelled = append(caps.cancelled, sessionID)
}

func mediaFile(name string, kind media.Kind) media.File {
	return media.File{
		SourcePath:      filepath.Join("/media/canon0/DCIM", name),
		OriginationDate: time.Date(2024, 4, 1, 12, 0, 0, 0, time.Local),
		Kind:            kind,
		SizeBytes:       128,
	}
}

func attachEvent() device.Event {
	return device.Event{Action: device.Attached, Vendor: "Canon", Model: "EOS R5", DeviceNode: "/dev/sdb1"}
}

func startController(t *testing.T, resolver *stubResolver, scanner *stubScanner, archiver *recordingArchiver, caps *recordingCapQueue, eventBus event.EventCoordinator) (*daemon.Controller, *device.ChannelNotifier) {
	t.Helper()

	notifier := device.NewChannelNotifier(4)
	controller := daemon.New(
		daemon.Config{ScreencapInterval: 30 * time.Second},
		device.NewFilter([]string{"canon", "gopro"}),
		notifier,
		resolver,
		scanner,
		archiver,
		caps,
		eventBus,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = controller.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return controller, notifier
}

func Test_Controller_ArchivesDeviceAndQueuesVideoScreencaps(t *testing.T) {
	files := []media.File{
		mediaFile("photo1.jpg", media.Image),
		mediaFile("clip1.mp4", media.Video),
		mediaFile("photo2.jpg", media.Image),
	}

	archiver := &recordingArchiver{}
	caps := &recordingCapQueue{}
	eventBus := event.New()
	completions := make(event.HandlerChannel, 4)
	eventBus.RegisterHandlerChannel(completions, event.ArchiveCompleteEvent)

	_, notifier := startController(t, &stubResolver{path: "/media/canon0"}, &stubScanner{files: files}, archiver, caps, eventBus)
	notifier.Announce(attachEvent())

	select {
	case handlerEvent := <-completions:
		_, isUUID := handlerEvent.Payload.(uuid.UUID)
		assert.True(t, isUUID, "archive completion payload should be the session ID")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for device archive to complete")
	}

	assert.Equal(t, files, archiver.archived, "files must be archived in scan order")

	require.Len(t, caps.queued, 1, "only the video should be queued for screencaps")
	job := caps.queued[0]
	assert.Equal(t, filepath.Join("/archive", "2024-04-01", "clip1.mp4"), job.VideoPath)
	assert.Equal(t, filepath.Join("/archive", "2024-04-01", "screencaps"), job.OutputDir)
	assert.Equal(t, 30*time.Second, job.Interval)
}

func Test_Controller_UnrecognisedDeviceIsIgnored(t *testing.T) {
	archiver := &recordingArchiver{}
	controller, notifier := startController(t, &stubResolver{path: "/media/usb0"}, &stubScanner{}, archiver, &recordingCapQueue{}, event.New())

	notifier.Announce(device.Event{Action: device.Attached, Vendor: "SanDisk", Model: "Cruzer", DeviceNode: "/dev/sdc1"})
	// Detach for a device with no session must also be a harmless no-op.
	notifier.Announce(device.Event{Action: device.Detached, DeviceNode: "/dev/sdc1"})

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Zero(c, controller.ActiveSessions())
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, archiver.archivedCount())
}

func Test_Controller_MountTimeoutEndsSessionWithoutArchiving(t *testing.T) {
	resolver := &stubResolver{err: device.MountTimeoutError{DeviceNode: "/dev/sdb1", Waited: 30 * time.Second}}
	archiver := &recordingArchiver{}
	controller, notifier := startController(t, resolver, &stubScanner{files: []media.File{mediaFile("photo1.jpg", media.Image)}}, archiver, &recordingCapQueue{}, event.New())

	notifier.Announce(attachEvent())

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Zero(c, controller.ActiveSessions())
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, archiver.archivedCount(), "no files may be archived when the device never mounts")
}

func Test_Controller_DetachAbandonsRemainingTransfers(t *testing.T) {
	files := []media.File{
		mediaFile("photo1.jpg", media.Image),
		mediaFile("photo2.jpg", media.Image),
		mediaFile("photo3.jpg", media.Image),
	}

	archiver := &recordingArchiver{proceed: make(chan struct{})}
	caps := &recordingCapQueue{}
	controller, notifier := startController(t, &stubResolver{path: "/media/canon0"}, &stubScanner{files: files}, archiver, caps, event.New())

	notifier.Announce(attachEvent())

	// Wait for the first copy to begin, detach the device while it is
	// still in flight, then let the copy finish.
	require.Eventually(t, func() bool { return archiver.archivedCount() == 1 }, time.Second, 5*time.Millisecond)
	notifier.Announce(device.Event{Action: device.Detached, DeviceNode: "/dev/sdb1"})

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		caps.mu.Lock()
		defer caps.mu.Unlock()
		assert.Len(c, caps.cancelled, 1, "detach must cancel the session's screencap jobs")
	}, time.Second, 10*time.Millisecond)

	archiver.proceed <- struct{}{}

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Zero(c, controller.ActiveSessions())
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, archiver.archivedCount(), "the in-flight copy completes but no further files are transferred")
}

func Test_Controller_DuplicateAttachIsIgnoredWhileSessionActive(t *testing.T) {
	archiver := &recordingArchiver{proceed: make(chan struct{})}
	controller, notifier := startController(t, &stubResolver{path: "/media/canon0"}, &stubScanner{files: []media.File{mediaFile("photo1.jpg", media.Image)}}, archiver, &recordingCapQueue{}, event.New())

	notifier.Announce(attachEvent())
	require.Eventually(t, func() bool { return archiver.archivedCount() == 1 }, time.Second, 5*time.Millisecond)

	notifier.Announce(attachEvent())
	time.Sleep(50 * time.Millisecond) // give the dispatch loop a chance to mishandle it
	assert.Equal(t, 1, controller.ActiveSessions(), "a second attach for the same node must not open a second session")

	archiver.proceed <- struct{}{}
	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Zero(c, controller.ActiveSessions())
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, archiver.archivedCount())
}
