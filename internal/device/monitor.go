package device

import (
	"context"
	"path/filepath"

	"github.com/hbomb79/Iris/pkg/logger"
	"github.com/rjeczalik/notify"
)

var watcherLog = logger.Get("MountWatch")

// Notifier is the contract for the OS device-notification source. The
// production implementation sits over the platform's hotplug subsystem;
// tests inject synthetic events on the channel directly.
type Notifier interface {
	Events() <-chan Event
}

// ChannelNotifier is the trivial Notifier over a plain channel, used
// both by the platform glue feeding real events in and by tests.
type ChannelNotifier struct {
	events chan Event
}

func NewChannelNotifier(buffer int) *ChannelNotifier {
	return &ChannelNotifier{events: make(chan Event, buffer)}
}

func (notifier *ChannelNotifier) Events() <-chan Event { return notifier.events }

// Announce delivers an event to the consumer. Blocks if the consumer's
// buffer is full.
func (notifier *ChannelNotifier) Announce(event Event) { notifier.events <- event }

// MountWatcher watches the mount-point base directory and invokes the
// supplied callback whenever new entries appear beneath it. It pairs
// with the resolver's poll loop the same way a filesystem watcher pairs
// with a force-sync poll: the poll remains authoritative, the watcher
// just removes latency.
type MountWatcher struct {
	base     string
	onChange func()
}

func NewMountWatcher(base string, onChange func()) *MountWatcher {
	return &MountWatcher{base: base, onChange: onChange}
}

// Run subscribes to create/rename events beneath the mount base and
// dispatches the callback for each, returning when the context is
// cancelled. A watch setup failure is returned to the caller; the
// resolver still functions without the watcher, only more slowly.
func (watcher *MountWatcher) Run(ctx context.Context) error {
	fsEvents := make(chan notify.EventInfo, 8)
	if err := notify.Watch(filepath.Join(watcher.base, "..."), fsEvents, notify.Create, notify.Rename); err != nil {
		return err
	}
	defer notify.Stop(fsEvents)

	watcherLog.Emit(logger.NEW, "Watching %s for new mount points\n", watcher.base)
	for {
		select {
		case ev := <-fsEvents:
			watcherLog.Emit(logger.VERBOSE, "Mount base changed: %s\n", ev.Path())
			watcher.onChange()
		case <-ctx.Done():
			return nil
		}
	}
}
