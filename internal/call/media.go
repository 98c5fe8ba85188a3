package call

import (
	"context"
	"errors"
	"fmt"
)

// Constraints describe the capture the user asked for. FallbackOf returns
// the relaxed variant used for the automatic overconstrained retry.
type Constraints struct {
	Audio bool
	Video bool
	// HighQuality requests the full capture resolution; the relaxed
	// retry clears it.
	HighQuality bool
}

func (c Constraints) FallbackOf() Constraints {
	c.HighQuality = false
	return c
}

// LocalMedia is an acquired set of capture devices. Stop must release every
// underlying device handle and is idempotent.
type LocalMedia interface {
	Stop()
}

// MediaDevices is the OS capture collaborator. Acquire may block on an OS
// permission prompt, so it takes a context.
type MediaDevices interface {
	Acquire(ctx context.Context, c Constraints) (LocalMedia, error)
}

// Media acquisition failure classes. Device implementations wrap one of
// these sentinels so the session can decide between giving up and retrying
// with relaxed constraints.
var (
	// ErrPermissionDenied is terminal for the attempt: the user must
	// re-grant access and retry manually, never automatically.
	ErrPermissionDenied = errors.New("media permission denied")
	// ErrDeviceBusy and ErrDeviceNotFound are terminal for the attempt
	// but retryable on explicit user action.
	ErrDeviceBusy     = errors.New("media device busy")
	ErrDeviceNotFound = errors.New("media device not found")
	// ErrOverconstrained triggers one automatic retry with relaxed
	// constraints.
	ErrOverconstrained = errors.New("media constraints not satisfiable")
	// ErrUnsupported means this environment has no capture support.
	ErrUnsupported = errors.New("media capture not supported")
)

// maxMediaAttempts bounds the acquire loop: the original constraints plus
// one relaxed retry.
const maxMediaAttempts = 2

// acquireMedia runs the bounded acquire loop. Only an overconstrained
// failure is retried, once, with relaxed constraints; every other class is
// returned to the caller as-is.
func acquireMedia(ctx context.Context, devices MediaDevices, c Constraints) (LocalMedia, error) {
	var lastErr error
	for attempt := 0; attempt < maxMediaAttempts; attempt++ {
		media, err := devices.Acquire(ctx, c)
		if err == nil {
			return media, nil
		}
		lastErr = err
		if !errors.Is(err, ErrOverconstrained) {
			return nil, err
		}
		c = c.FallbackOf()
	}
	return nil, lastErr
}

func mediaErrorText(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Camera/microphone access was denied. Grant access and try again."
	case errors.Is(err, ErrDeviceBusy):
		return "Camera/microphone is in use by another application."
	case errors.Is(err, ErrDeviceNotFound):
		return "No camera or microphone was found."
	case errors.Is(err, ErrUnsupported):
		return "This environment does not support audio/video capture."
	default:
		return fmt.Sprintf("Could not start camera/microphone: %v", err)
	}
}

// NoCapture is a MediaDevices that acquires nothing. Sessions using it
// negotiate receive-only media; useful for headless clients and tests.
type NoCapture struct{}

func (NoCapture) Acquire(context.Context, Constraints) (LocalMedia, error) {
	return noMedia{}, nil
}

type noMedia struct{}

func (noMedia) Stop() {}
