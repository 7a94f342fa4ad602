// Package types provides the core vocabulary shared across Pyromaniac
package types

import (
	"fmt"
	"strings"
)

// Phase is the session's global operating mode
type Phase string

const (
	PhaseWaitInsert   Phase = "wait-insert"
	PhaseBurning      Phase = "burning"
	PhaseAwaitRemoval Phase = "await-removal"
)

// String returns the phase name
func (p Phase) String() string {
	return string(p)
}

// Mount sentinels. Any other mount value is a block device base path.
const (
	MountNone    = "none"
	MountPending = "pending"
)

// IsDevicePath reports whether a mount value is a bound block device path
func IsDevicePath(mount string) bool {
	return mount != MountNone && mount != MountPending && mount != ""
}

// Port status sentinels
const (
	StatusInsert   = "Insert drive..."
	StatusSkipped  = "[skipped]"
	StatusStarting = "Starting burn..."
	StatusFinished = "FINISHED"
)

// MediaFoundStatus is the status shown when a port is bound to a device
func MediaFoundStatus(devicePath string) string {
	return fmt.Sprintf("Media found at %s", devicePath)
}

// ErrorStatus is the status shown when a worker aborts
func ErrorStatus(msg string) string {
	return "ERROR: " + msg
}

// IsErrorStatus reports whether a status line reports a worker failure
func IsErrorStatus(status string) bool {
	return strings.HasPrefix(status, "ERROR: ")
}

// Operator prompts
const (
	PromptWaitInsert   = "Insert drives, then press B to start mass burn, or q to quit..."
	PromptBurning      = "Burning, please wait..."
	PromptSyncing      = "Syncing buffers..."
	PromptAwaitRemoval = "Burn complete. Remove all drives to start the next batch..."
	PromptBePatient    = "Please be patient..."
)

// Action is a hotplug action
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// DeviceKind classifies the device an event concerns
type DeviceKind string

const (
	KindInterface DeviceKind = "interface"
	KindPartition DeviceKind = "partition"
	KindOther     DeviceKind = "other"
)

// Device is the subset of a hotplug device the correlator needs
type Device struct {
	Kind        DeviceKind
	SysName     string
	DevicePath  string
	DriverBound bool
}

// HotplugEvent is one kernel device event
type HotplugEvent struct {
	Action Action
	Device Device
}

// String renders the event the way the dashboard header shows it
func (e HotplugEvent) String() string {
	dev := e.Device.DevicePath
	if dev == "" {
		dev = "-"
	}
	return fmt.Sprintf("%s %s %s (%s)", e.Action, e.Device.SysName, dev, e.Device.Kind)
}

// Command is an operator command delivered to the session
type Command int

const (
	CommandStartBurn Command = iota + 1
	CommandQuit
)

// String returns the command name
func (c Command) String() string {
	switch c {
	case CommandStartBurn:
		return "start-burn"
	case CommandQuit:
		return "quit"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// ParseCommand maps an operator keystroke or word to a Command.
// Only an upper case B starts a burn; a lower case b is ordinary input.
func ParseCommand(input string) (Command, bool) {
	switch strings.TrimSpace(input) {
	case "B", "burn":
		return CommandStartBurn, true
	case "q", "Q", "quit":
		return CommandQuit, true
	}
	return 0, false
}
