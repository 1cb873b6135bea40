package device

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hbomb79/Iris/pkg/logger"
)

var log = logger.Get("Mount")

type (
	// MountTable abstracts reading the OS mount table so the resolver
	// can be tested against a fake.
	MountTable interface {
		// MountPathFor returns the filesystem path the device node is
		// mounted at, or an empty string if it is not (yet) mounted.
		MountPathFor(deviceNode string) (string, error)
	}

	// Clock abstracts time for the resolver's poll loop.
	Clock interface {
		After(d time.Duration) <-chan time.Time
		Now() time.Time
	}

	// Resolver polls the mount table until a newly attached device's
	// mount path appears, or a bounded timeout elapses. A path is only
	// returned once it has been observed twice in a row, guarding
	// against a transient mount-in-progress state.
	Resolver struct {
		table        MountTable
		clock        Clock
		pollInterval time.Duration
		timeout      time.Duration
		nudge        chan struct{}
	}

	// MountTimeoutError indicates a device never appeared in the mount
	// table within the configured window. It is per-device and never
	// fatal; the controller logs it and skips the device.
	MountTimeoutError struct {
		DeviceNode string
		Waited     time.Duration
	}
)

func (err MountTimeoutError) Error() string {
	return fmt.Sprintf("device %s did not mount within %s", err.DeviceNode, err.Waited)
}

type systemClock struct{}

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (systemClock) Now() time.Time                         { return time.Now() }

func NewResolver(table MountTable, pollInterval time.Duration, timeout time.Duration) *Resolver {
	return NewResolverWithClock(table, systemClock{}, pollInterval, timeout)
}

func NewResolverWithClock(table MountTable, clock Clock, pollInterval time.Duration, timeout time.Duration) *Resolver {
	return &Resolver{
		table:        table,
		clock:        clock,
		pollInterval: pollInterval,
		timeout:      timeout,
		nudge:        make(chan struct{}, 1),
	}
}

// Nudge asks the resolver to re-poll immediately rather than waiting
// out the current poll interval. Used by the mount watcher when it sees
// new entries appear beneath the mount base.
func (resolver *Resolver) Nudge() {
	select {
	case resolver.nudge <- struct{}{}:
	default:
	}
}

// Resolve blocks until the device node appears (stably) in the mount
// table, the timeout elapses, or the context is cancelled.
func (resolver *Resolver) Resolve(ctx context.Context, deviceNode string) (string, error) {
	deadline := resolver.clock.Now().Add(resolver.timeout)
	lastObserved := ""

	for {
		path, err := resolver.table.MountPathFor(deviceNode)
		if err != nil {
			log.Emit(logger.WARNING, "Failed to read mount table while resolving %s: %s\n", deviceNode, err.Error())
		} else if path != "" {
			if path == lastObserved {
				log.Emit(logger.SUCCESS, "Device %s mounted at %s\n", deviceNode, path)
				return path, nil
			}

			lastObserved = path
		} else {
			lastObserved = ""
		}

		if resolver.clock.Now().After(deadline) {
			return "", MountTimeoutError{DeviceNode: deviceNode, Waited: resolver.timeout}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-resolver.nudge:
		case <-resolver.clock.After(resolver.pollInterval):
		}
	}
}

// ProcMountTable reads the kernel's mount table. The default source is
// /proc/mounts; an alternate path can be supplied for testing.
type ProcMountTable struct {
	Path string
}

func (table *ProcMountTable) MountPathFor(deviceNode string) (string, error) {
	source := table.Path
	if source == "" {
		source = "/proc/mounts"
	}

	file, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("could not open mount table %s: %w", source, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		if fields[0] == deviceNode {
			return unescapeMountPath(fields[1]), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("could not read mount table %s: %w", source, err)
	}

	return "", nil
}

// unescapeMountPath decodes the octal escapes the kernel uses for
// whitespace in mount paths (e.g. "\040" for space).
func unescapeMountPath(path string) string {
	replacer := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return replacer.Replace(path)
}
