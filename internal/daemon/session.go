package daemon

import (
	"context"
	"fmt"

	"github.com/hbomb79/Iris/internal/device"
)

type (
	SessionState int

	// session tracks one attachment of one camera from arrival to
	// completion. The controller owns the session for its lifetime;
	// in-flight work references it via the session context only.
	session struct {
		device *device.CameraDevice
		state  SessionState

		// cancelling the context abandons queued work for this device;
		// an operation already writing runs to completion first.
		ctx    context.Context
		cancel context.CancelFunc
	}
)

const (
	AwaitingMount SessionState = iota
	Scanning
	Archiving
	PostProcessing
	Complete
	Cancelled
)

func newSession(parent context.Context, cam *device.CameraDevice) *session {
	ctx, cancel := context.WithCancel(parent)
	return &session{
		device: cam,
		state:  AwaitingMount,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (sess *session) String() string {
	return fmt.Sprintf("Session{%s state=%s}", sess.device, sess.state)
}

func (s SessionState) String() string {
	switch s {
	case AwaitingMount:
		return fmt.Sprintf("AWAITING_MOUNT[%d]", s)
	case Scanning:
		return fmt.Sprintf("SCANNING[%d]", s)
	case Archiving:
		return fmt.Sprintf("ARCHIVING[%d]", s)
	case PostProcessing:
		return fmt.Sprintf("POST_PROCESSING[%d]", s)
	case Complete:
		return fmt.Sprintf("COMPLETE[%d]", s)
	case Cancelled:
		return fmt.Sprintf("CANCELLED[%d]", s)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", s)
	}
}
