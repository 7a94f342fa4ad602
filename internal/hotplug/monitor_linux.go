//go:build linux

package hotplug

import (
	"context"
	"errors"
	"fmt"

	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/types"
	"golang.org/x/sys/unix"
)

// pollTimeoutMs bounds how long Run waits before rechecking its context
const pollTimeoutMs = 250

// Monitor reads kernel uevents from a netlink socket
type Monitor struct {
	fd     int
	buf    [UEventBufferSize]byte
	logger logger.Logger
}

// NewMonitor opens a netlink socket bound to the kernel uevent broadcast group
func NewMonitor(log logger.Logger) (*Monitor, error) {
	fd, err := unix.Socket(
		unix.AF_NETLINK,
		unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
		unix.NETLINK_KOBJECT_UEVENT,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open uevent socket: %w", err)
	}

	addr := unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: 1,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind uevent socket: %w", err)
	}

	return &Monitor{fd: fd, logger: log}, nil
}

// Run delivers events on out until ctx is cancelled. It owns out's sending
// side but does not close it.
func (m *Monitor) Run(ctx context.Context, out chan<- types.HotplugEvent) error {
	fds := []unix.PollFd{{Fd: int32(m.fd), Events: unix.POLLIN}}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll uevent socket: %w", err)
		}
		if n == 0 {
			continue
		}

		for {
			evt, ok, err := m.read()
			if err != nil {
				return err
			}
			if !ok {
				break
			}

			hp, keep := evt.HotplugEvent()
			if !keep {
				continue
			}
			m.logger.Debug("Hotplug event", logger.WithField("event", hp.String()))

			select {
			case out <- hp:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// read returns the next queued uevent, or ok=false when the socket is drained
func (m *Monitor) read() (UEvent, bool, error) {
	n, err := unix.Read(m.fd, m.buf[:])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return UEvent{}, false, nil
		}
		if errors.Is(err, unix.ENOBUFS) {
			m.logger.Warn("Uevent socket overrun, events were lost")
			return UEvent{}, false, nil
		}
		return UEvent{}, false, fmt.Errorf("read uevent socket: %w", err)
	}
	if n <= 0 {
		return UEvent{}, false, nil
	}
	return ParseUEvent(m.buf[:n]), true, nil
}

// Close releases the socket. Call it after Run has returned.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}
