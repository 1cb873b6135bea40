package device

import (
	"fmt"

	"github.com/google/uuid"
)

type (
	EventAction int

	// Event is the ephemeral record delivered by the device-notification
	// source when removable storage is attached or detached. The source
	// may deliver duplicate or out-of-order events; consumers must
	// tolerate both.
	Event struct {
		Action     EventAction
		Vendor     string
		Model      string
		DeviceNode string
	}

	// CameraDevice represents a recognised camera for the lifetime of a
	// single attachment. A detach ends the device; a re-attach of the
	// same node yields a fresh CameraDevice with a new session ID, and
	// the old mount path is never reused.
	CameraDevice struct {
		SessionID   uuid.UUID
		DeviceNode  string
		DisplayName string
		MountPath   string
	}
)

const (
	Attached EventAction = iota
	Detached
)

// NewCameraDevice builds a CameraDevice for a freshly accepted attach event.
func NewCameraDevice(event Event) *CameraDevice {
	return &CameraDevice{
		SessionID:   uuid.New(),
		DeviceNode:  event.DeviceNode,
		DisplayName: fmt.Sprintf("%s %s", event.Vendor, event.Model),
	}
}

func (device *CameraDevice) String() string {
	return fmt.Sprintf("CameraDevice{session=%s node=%s name=%q}", device.SessionID, device.DeviceNode, device.DisplayName)
}

func (a EventAction) String() string {
	switch a {
	case Attached:
		return fmt.Sprintf("ATTACHED[%d]", a)
	case Detached:
		return fmt.Sprintf("DETACHED[%d]", a)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", a)
	}
}
