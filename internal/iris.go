package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/hbomb79/Iris/internal/archive"
	"github.com/hbomb79/Iris/internal/daemon"
	"github.com/hbomb79/Iris/internal/device"
	"github.com/hbomb79/Iris/internal/event"
	"github.com/hbomb79/Iris/internal/journal"
	"github.com/hbomb79/Iris/internal/media"
	"github.com/hbomb79/Iris/internal/screencap"
	"github.com/hbomb79/Iris/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	// Iris is the top-level object for the daemon, responsible for
	// constructing and wiring the services, stores and event handling,
	// and for supervising their lifecycles.
	irisImpl struct {
		eventBus event.EventCoordinator
		config   IrisConfig

		journalStore     *journal.Store
		notifier         *device.ChannelNotifier
		resolver         *device.Resolver
		mountWatcher     *device.MountWatcher
		screencapService *screencap.Service
		controller       *daemon.Controller
	}
)

// New wires up the Iris services using the (already validated) config
// provided. The archive journal is opened here so an unusable journal
// path aborts startup rather than surfacing mid-transfer.
func New(config IrisConfig) (*irisImpl, error) {
	iris := &irisImpl{
		eventBus: event.New(),
		config:   config,
	}

	store, err := journal.Open(config.JournalFilePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open archive journal: %w", err)
	}
	iris.journalStore = store

	iris.notifier = device.NewChannelNotifier(16)
	iris.resolver = device.NewResolver(&device.ProcMountTable{}, config.MountPollInterval(), config.MountTimeout())
	iris.mountWatcher = device.NewMountWatcher(config.MountPointBase, iris.resolver.Nudge)

	iris.screencapService = screencap.New(screencap.Config{
		Parallelism: config.ScreencapParallelism,
		Ffmpeg:      config.Ffmpeg,
	}, iris.eventBus)

	iris.controller = daemon.New(
		daemon.Config{ScreencapInterval: config.ScreencapInterval()},
		device.NewFilter(config.CameraModels),
		iris.notifier,
		iris.resolver,
		media.NewScanner(NormalisedExtensions(config.ImageExtensions), NormalisedExtensions(config.VideoExtensions)),
		archive.NewOrganizer(config.IncomingDir, iris.journalStore),
		iris.screencapService,
		iris.eventBus,
	)

	return iris, nil
}

// Notifier exposes the device-event channel so the platform's hotplug
// glue (or a test harness) can feed attach/detach events in.
func (iris *irisImpl) Notifier() *device.ChannelNotifier {
	return iris.notifier
}

// Run brings up all Iris services and blocks until the provided context
// is cancelled, or until a service crashes with an error Iris cannot
// recover from.
func (iris *irisImpl) Run(parent context.Context) error {
	defer iris.journalStore.Close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	wg := &sync.WaitGroup{}
	iris.spawnAsyncService(ctx, wg, iris.screencapService, "screencap-service", crashHandler)
	iris.spawnAsyncService(ctx, wg, serviceFunc(iris.mountWatcher.Run), "mount-watcher", crashHandler)
	iris.spawnAsyncService(ctx, wg, iris.controller, "daemon-controller", crashHandler)
	log.Emit(logger.SUCCESS, "Iris services spawned!\n")

	wg.Wait()
	iris.logShutdownSummary()
	return nil
}

// spawnAsyncService will run the provided service as it's own
// go-routine, ensuring that the Iris service waitgroup is updated correctly
func (iris *irisImpl) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}

func (iris *irisImpl) logShutdownSummary() {
	records, err := iris.journalStore.RecentEntries(10)
	if err != nil {
		log.Emit(logger.WARNING, "Could not read journal for shutdown summary: %s\n", err.Error())
		return
	}

	log.Emit(logger.INFO, "Shutdown complete; %d most recent archive journal entries:\n", len(records))
	for _, record := range records {
		log.Emit(logger.INFO, "  %s/%s (%d bytes, duplicate=%t)\n", record.DateFolder, record.Filename, record.SizeBytes, record.Duplicate)
	}
}

// serviceFunc adapts a bare Run function to the RunnableService interface.
type serviceFunc func(context.Context) error

func (fn serviceFunc) Run(ctx context.Context) error { return fn(ctx) }
