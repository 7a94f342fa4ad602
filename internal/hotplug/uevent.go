// Package hotplug turns kernel uevents into the station's hotplug events.
package hotplug

import (
	"bytes"
	"path"
	"strings"

	"github.com/pyromaniac/pyromaniac/pkg/types"
)

// UEventBufferSize is large enough for any single kernel uevent
const UEventBufferSize = 8192

// UEvent is a decoded kernel uevent
type UEvent struct {
	Action    string
	DevPath   string
	Subsystem string
	DevType   string
	DevName   string
	Driver    string
}

// ParseUEvent decodes a NUL separated kernel uevent message. The first
// record is "action@devpath"; the rest are KEY=VALUE pairs.
func ParseUEvent(data []byte) UEvent {
	var evt UEvent

	for _, field := range bytes.Split(data, []byte{0}) {
		if len(field) == 0 {
			continue
		}
		s := string(field)

		key, value, found := strings.Cut(s, "=")
		if !found {
			if action, devpath, ok := strings.Cut(s, "@"); ok && evt.Action == "" {
				evt.Action = action
				evt.DevPath = devpath
			}
			continue
		}

		switch key {
		case "ACTION":
			evt.Action = value
		case "DEVPATH":
			evt.DevPath = value
		case "SUBSYSTEM":
			evt.Subsystem = value
		case "DEVTYPE":
			evt.DevType = value
		case "DEVNAME":
			evt.DevName = value
		case "DRIVER":
			evt.Driver = value
		}
	}

	return evt
}

// HotplugEvent maps the uevent onto the correlator's vocabulary. Only add and
// remove actions on the usb and block subsystems are kept.
func (u UEvent) HotplugEvent() (types.HotplugEvent, bool) {
	var action types.Action
	switch u.Action {
	case "add":
		action = types.ActionAdd
	case "remove":
		action = types.ActionRemove
	default:
		return types.HotplugEvent{}, false
	}

	if u.Subsystem != "usb" && u.Subsystem != "block" {
		return types.HotplugEvent{}, false
	}

	dev := types.Device{
		Kind:        types.KindOther,
		SysName:     path.Base(u.DevPath),
		DriverBound: u.Driver != "",
	}

	switch {
	case u.Subsystem == "usb" && u.DevType == "usb_interface":
		dev.Kind = types.KindInterface
	case u.Subsystem == "block" && u.DevType == "partition":
		dev.Kind = types.KindPartition
	}

	if u.DevName != "" {
		if strings.HasPrefix(u.DevName, "/") {
			dev.DevicePath = u.DevName
		} else {
			dev.DevicePath = "/dev/" + u.DevName
		}
	}

	return types.HotplugEvent{Action: action, Device: dev}, true
}
