// Package errs defines the error kinds the ADB core surfaces to callers
// (spec §7), as sentinel values usable with errors.Is/errors.As.
package errs

import "errors"

var (
	// ErrInvalidLocalPath: local path validation failed before any USB I/O.
	ErrInvalidLocalPath = errors.New("invalid local path")
	// ErrInvalidRemotePath: remote path validation/normalization failed.
	ErrInvalidRemotePath = errors.New("invalid remote path")
	// ErrDeviceNotFound: USB enumeration found no candidate ADB interface.
	ErrDeviceNotFound = errors.New("no ADB device found")
	// ErrMultipleDevices: USB enumeration found more than one candidate.
	ErrMultipleDevices = errors.New("multiple ADB devices found")
	// ErrUsb: low-level USB transfer or claim failure.
	ErrUsb = errors.New("usb error")
	// ErrAuthTimeout: a handshake read exceeded its deadline.
	ErrAuthTimeout = errors.New("auth timeout")
	// ErrUnexpectedCommand: a packet arrived that the state machine does
	// not accept in its current state.
	ErrUnexpectedCommand = errors.New("unexpected command")
	// ErrInvalidHeader: a decoded packet's magic did not match ^command.
	ErrInvalidHeader = errors.New("invalid packet header")
	// ErrBadChecksum: a decoded non-AUTH packet's payload checksum mismatched.
	ErrBadChecksum = errors.New("bad payload checksum")
	// ErrStreamRefused: an OPEN was answered with CLSE instead of OKAY.
	ErrStreamRefused = errors.New("stream refused")
	// ErrIo: a local filesystem operation failed.
	ErrIo = errors.New("io error")
)

// AdbRequestFailedError wraps a device-reported failure message, e.g. a
// sync FAIL frame or a STAT/SEND rejection that isn't recognized as a
// benign "file absent" case.
type AdbRequestFailedError struct {
	Message string
}

func (e *AdbRequestFailedError) Error() string {
	return "adb request failed: " + e.Message
}

// NewAdbRequestFailed constructs an AdbRequestFailedError.
func NewAdbRequestFailed(message string) error {
	return &AdbRequestFailedError{Message: message}
}
