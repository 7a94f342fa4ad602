package state

import "errors"

var (
	// ErrUnknownPort is returned for a logical port name not in the registry
	ErrUnknownPort = errors.New("unknown port")

	// ErrUnknownPhysicalPath is returned for a topology path not in the registry
	ErrUnknownPhysicalPath = errors.New("unknown physical path")

	// ErrDeviceBusy is returned when a live worker already owns the device
	ErrDeviceBusy = errors.New("device already has an active worker")

	// ErrDuplicatePhysicalPath is returned when two ports share a topology path
	ErrDuplicatePhysicalPath = errors.New("duplicate physical path")
)
