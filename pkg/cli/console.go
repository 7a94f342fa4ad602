package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pyromaniac/pyromaniac/internal/dashboard"
	"github.com/pyromaniac/pyromaniac/internal/state"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

// console is the headless operator surface: commands in on one stream,
// status out on another
type console struct {
	station  dashboard.Station
	in       io.Reader
	out      io.Writer
	interval time.Duration
}

func newConsole(station dashboard.Station, in io.Reader, out io.Writer, interval time.Duration) *console {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &console{station: station, in: in, out: out, interval: interval}
}

func (c *console) run(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	snap := c.station.Snapshot()
	c.printSnapshot(snap)
	lastPhase := snap.Phase
	lastStatus := statuses(snap)
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return

		case line, ok := <-lines:
			if !ok {
				// stdin closed: keep reporting until a signal stops the station
				lines = nil
				continue
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			cmd, ok := types.ParseCommand(line)
			if !ok {
				fmt.Fprintf(c.out, "unknown command %q (B = start burn, q = quit)\n", strings.TrimSpace(line))
				continue
			}
			c.station.Submit(cmd)
			dirty = true

		case <-ticker.C:
			snap := c.station.Snapshot()
			if snap.Phase != lastPhase || dirty {
				c.printSnapshot(snap)
				lastPhase = snap.Phase
				dirty = false
			} else {
				c.printChanges(lastStatus, snap)
			}
			lastStatus = statuses(snap)
		}
	}
}

func statuses(snap state.Snapshot) map[string]string {
	out := make(map[string]string, len(snap.Ports))
	for _, p := range snap.Ports {
		out[p.Name] = p.Status
	}
	return out
}

// printChanges prints ports whose status moved, skipping copy progress samples
func (c *console) printChanges(last map[string]string, snap state.Snapshot) {
	for _, p := range snap.Ports {
		if last[p.Name] == p.Status || strings.Contains(p.Status, "copied") {
			continue
		}
		fmt.Fprintf(c.out, "%s: %s\n", p.Name, p.Status)
	}
}

func (c *console) printSnapshot(snap state.Snapshot) {
	fmt.Fprintf(c.out, "[%s] %s\n", snap.Phase, snap.Prompt)
	if snap.Alert != "" {
		fmt.Fprintf(c.out, "! %s\n", snap.Alert)
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	for _, p := range snap.Ports {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", p.Name, p.Mount, p.Status)
	}
	w.Flush()
}
