package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pyromaniac/pyromaniac/internal/engine"
	"github.com/pyromaniac/pyromaniac/internal/hotplug"
	"github.com/pyromaniac/pyromaniac/pkg/config"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/types"
	"github.com/spf13/cobra"
)

func (c *CLI) newPortsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "Inspect or build the port map",
		Long:  `The port map names each physical USB port a station burns on.`,
	}

	cmd.AddCommand(c.newPortsValidateCmd())
	cmd.AddCommand(c.newPortsLearnCmd())
	return cmd
}

func (c *CLI) newPortsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the port map and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.viper.GetString("usb_map")
			m, err := config.LoadPortMap(path)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PORT\tPHYSICAL PATH")
			for _, name := range m.Names() {
				fmt.Fprintf(w, "%s\t%s\n", name, m[name])
			}
			w.Flush()

			c.console.Success(fmt.Sprintf("%s: %d ports", path, len(m)))
			return nil
		},
	}
}

func (c *CLI) newPortsLearnCmd() *cobra.Command {
	var (
		count   int
		output  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Build a port map by plugging a drive into each port in turn",
		Long: `Listen for USB devices and name them USB0, USB1, ... in the order they are
plugged in. Plug one drive into each port, left to right, then the map is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			if output == "" {
				output = c.viper.GetString("usb_map")
			}

			log := logger.CreateLogger("", c.viper.GetString("verbosity"))
			monitor, err := hotplug.NewMonitor(log)
			if err != nil {
				return fmt.Errorf("failed to open hotplug monitor: %w", err)
			}
			defer monitor.Close()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			c.console.Info(fmt.Sprintf("Plug a drive into each of the %d ports, in order", count))
			m, err := learnPorts(ctx, monitor, count, c.output)
			if err != nil {
				return err
			}
			if err := config.SavePortMap(output, m); err != nil {
				return err
			}
			c.console.Success(fmt.Sprintf("Wrote %s", output))
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of ports to learn")
	cmd.Flags().StringVarP(&output, "output", "o", "", "port map to write (default: the configured usb_map)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (default: wait forever)")

	return cmd
}

// learnPorts names the first count distinct USB interfaces added
func learnPorts(ctx context.Context, source engine.EventSource, count int, out io.Writer) (config.PortMap, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan types.HotplugEvent, 16)
	sourceErr := make(chan error, 1)
	go func() { sourceErr <- source.Run(ctx, events) }()

	m := make(config.PortMap, count)
	seen := make(map[string]bool, count)

	for len(m) < count {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("learned %d of %d ports: %w", len(m), count, ctx.Err())
		case err := <-sourceErr:
			if err == nil {
				err = context.Canceled
			}
			return nil, fmt.Errorf("hotplug monitor stopped: %w", err)
		case ev := <-events:
			if ev.Action != types.ActionAdd || ev.Device.Kind != types.KindInterface || seen[ev.Device.SysName] {
				continue
			}
			seen[ev.Device.SysName] = true
			name := fmt.Sprintf("USB%d", len(m))
			m[name] = ev.Device.SysName
			fmt.Fprintf(out, "%s -> %s\n", name, ev.Device.SysName)
		}
	}

	return m, nil
}
