package hellocube

import "errors"

var (
	// ErrNotInitialized is returned by Render before Initialize succeeds.
	ErrNotInitialized = errors.New("hellocube: not initialized")

	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("hellocube: already initialized")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("hellocube: closed")

	// ErrDeviceFailed is returned by every Render after a fatal device
	// error. It wraps the original error.
	ErrDeviceFailed = errors.New("hellocube: device failed")
)
