package cli

import (
	"context"
	"fmt"

	"github.com/pyromaniac/pyromaniac/internal/dashboard"
	"github.com/pyromaniac/pyromaniac/internal/engine"
	"github.com/pyromaniac/pyromaniac/internal/state"
	"github.com/pyromaniac/pyromaniac/pkg/config"
	"github.com/pyromaniac/pyromaniac/pkg/disk"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/process"
	"github.com/pyromaniac/pyromaniac/pkg/types"
	"github.com/spf13/cobra"
)

// ImagesChangedAlert is shown when the reference set changes under a running station
const ImagesChangedAlert = "reference images changed on disk; restart to reload"

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the burn station",
		Long: `Start the burn station. Drives are tracked as they are plugged in; press B
to burn every inserted drive, q to quit.

With --headless, commands are read line by line from stdin and status is
printed instead of drawing the dashboard.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStation(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.Bool("headless", false, "line-oriented console instead of the dashboard")
	flags.Duration("stagger", 0, "delay between worker starts")
	flags.String("system-disk", "", "protected disk that is never written")
	flags.Bool("notifications", false, "desktop notification when a burn completes")

	_ = c.viper.BindPFlag("headless", flags.Lookup("headless"))
	_ = c.viper.BindPFlag("stagger", flags.Lookup("stagger"))
	_ = c.viper.BindPFlag("system_disk", flags.Lookup("system-disk"))
	_ = c.viper.BindPFlag("notifications", flags.Lookup("notifications"))

	return cmd
}

// runStation loads everything a burn needs, failing before the event loop
// starts if anything is missing
func (c *CLI) runStation(ctx context.Context) error {
	st, err := c.station()
	if err != nil {
		return err
	}

	portMap, err := config.LoadPortMap(st.USBMap)
	if err != nil {
		return err
	}

	descriptor, warnings, err := disk.LoadDescriptor(st.GeometryPath())
	if err != nil {
		return err
	}

	var log logger.Logger
	if st.Headless {
		log = logger.CreateLogger(st.LogFile, st.Verbosity)
	} else {
		// the dashboard owns the terminal
		log, err = logger.CreateFileLogger(st.LogFile, st.Verbosity)
		if err != nil {
			return err
		}
	}

	for _, w := range warnings {
		log.Warn("Geometry file irregularity", logger.WithField("warning", w.String()))
	}
	log.Info("Reference geometry loaded", logger.WithField("descriptor", descriptor.Summary()))

	registry, err := state.NewRegistry(portMap, log)
	if err != nil {
		return err
	}

	deps, err := engine.NewDependencyFactory(st, descriptor, log).CreateDefaults()
	if err != nil {
		return err
	}

	station := engine.NewStation(registry, deps, engine.SessionConfig{
		Stagger:       st.Stagger,
		AlertInterval: st.AlertInterval,
		Tick:          st.Tick,
	}, log)

	watcher := config.NewImageWatcher(st.ImageDir, st.ReferenceFiles(), log)
	watcher.AddCallback(func(change config.ImageChange) {
		log.Warn("Reference file changed while running",
			logger.WithField("path", change.Path),
			logger.WithField("change", change.Type))
		registry.SetAlert(ImagesChangedAlert)
	})
	if err := watcher.Start(); err != nil {
		log.Warn("Reference image watcher unavailable", logger.WithField("error", err))
	} else {
		defer watcher.Stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	pm := process.NewManager(log)
	pm.RegisterShutdownHandler(func() { station.Submit(types.CommandQuit) })
	pm.Start(ctx)
	defer func() {
		cancel()
		pm.Stop()
	}()

	log.Info(fmt.Sprintf("Station ready with %d ports", len(portMap)))

	if st.Headless {
		return c.runHeadless(ctx, station, st)
	}
	return c.runDashboard(ctx, station, st)
}

func (c *CLI) runHeadless(ctx context.Context, station *engine.Station, st *config.Station) error {
	stationErr := make(chan error, 1)
	go func() { stationErr <- station.Run(ctx) }()

	consoleCtx, stop := context.WithCancel(ctx)
	defer stop()
	go newConsole(station, c.input, c.output, st.Tick).run(consoleCtx)

	return <-stationErr
}

func (c *CLI) runDashboard(ctx context.Context, station *engine.Station, st *config.Station) error {
	stationErr := make(chan error, 1)
	go func() { stationErr <- station.Run(ctx) }()

	dashCtx, stop := context.WithCancel(ctx)
	defer stop()
	dashErr := make(chan error, 1)
	go func() {
		dashErr <- dashboard.Run(dashCtx, station, "Pyromaniac v"+c.config.Version, st.Tick)
	}()

	select {
	case err := <-stationErr:
		stop()
		<-dashErr
		return err
	case err := <-dashErr:
		if err != nil {
			station.Submit(types.CommandQuit)
		}
		c.console.Info("Waiting for running burns to finish...")
		return <-stationErr
	}
}
