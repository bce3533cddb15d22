package devices

import (
	"errors"
	"fmt"
)

// Error kinds shared by all drivers. Drivers wrap them with context so that
// callers can branch with errors.Is.
var (
	ErrBus                = errors.New("bus transaction failed")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnexpectedDeviceID = errors.New("unexpected device id")
	ErrNotReady           = errors.New("data not ready")
)

// Status is the flat two-valued result some callers (e.g. sampling loops) only care about.
type Status int

const (
	Success Status = iota
	Failure
)

func (s Status) String() string {
	if s == Success {
		return "SUCCESS"
	}
	return "FAILURE"
}

// StatusOf collapses an error into Status.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}
	return Failure
}

// Kind returns the sentinel error kind wrapped by err or nil when err does not
// wrap any known kind.
func Kind(err error) error {
	for _, k := range []error{ErrInvalidArgument, ErrUnexpectedDeviceID, ErrNotReady, ErrBus} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// BusError wraps a transport failure with ErrBus unless it already carries a kind.
func BusError(err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBus, err)
}
