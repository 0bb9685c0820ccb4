package coordinator

import "errors"

var (
	// ErrPollFailed wraps every failed poll cycle, transport or otherwise.
	// The caller keeps the last known record available while this is
	// returned.
	ErrPollFailed = errors.New("poll failed")

	// ErrDataUnavailable marks the silent-failure case: the device client
	// returned without a transport error but the record carries the Unknown
	// sentinel, meaning no real data arrived.
	ErrDataUnavailable = errors.New("no valid data received from device")

	errAddressRequired = errors.New("device address is required")
	errClientRequired  = errors.New("device client is required")
)
