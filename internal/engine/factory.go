package engine

import (
	"context"
	"fmt"

	"github.com/pyromaniac/pyromaniac/internal/hotplug"
	"github.com/pyromaniac/pyromaniac/pkg/burner"
	"github.com/pyromaniac/pyromaniac/pkg/config"
	"github.com/pyromaniac/pyromaniac/pkg/disk"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/notifier"
)

// Dependencies are the station's pluggable collaborators
type Dependencies struct {
	Source  EventSource
	Burner  Burner
	Alerter Alerter
	Syncer  Syncer
}

// DependencyFactory creates the production implementations of Dependencies
type DependencyFactory struct {
	config     *config.Station
	descriptor *disk.Descriptor
	logger     logger.Logger
}

// NewDependencyFactory creates a new dependency factory
func NewDependencyFactory(cfg *config.Station, descriptor *disk.Descriptor, log logger.Logger) *DependencyFactory {
	return &DependencyFactory{
		config:     cfg,
		descriptor: descriptor,
		logger:     log,
	}
}

// CreateDefaults creates every dependency
func (f *DependencyFactory) CreateDefaults() (Dependencies, error) {
	return f.CreateWithOverrides(Dependencies{})
}

// CreateWithOverrides uses the non-nil fields of overrides and creates the rest
func (f *DependencyFactory) CreateWithOverrides(overrides Dependencies) (Dependencies, error) {
	deps := overrides

	if deps.Burner == nil {
		b, err := f.createBurner()
		if err != nil {
			return Dependencies{}, err
		}
		deps.Burner = b
	}
	if deps.Alerter == nil {
		deps.Alerter = f.createAlerter()
	}
	if deps.Syncer == nil {
		deps.Syncer = RunnerSyncer(burner.ExecRunner{})
	}
	// last, so a failure above never leaves a socket open
	if deps.Source == nil {
		source, err := hotplug.NewMonitor(f.logger)
		if err != nil {
			return Dependencies{}, fmt.Errorf("failed to open hotplug monitor: %w", err)
		}
		deps.Source = source
	}

	return deps, nil
}

func (f *DependencyFactory) createBurner() (*burner.Burner, error) {
	b, err := burner.New(burner.ExecRunner{}, f.descriptor, burner.Options{
		SystemDisk:    f.config.SystemDisk,
		DevicePattern: f.config.DevicePattern,
		Part1Image:    f.config.Part1ImagePath(),
		Part2Image:    f.config.Part2ImagePath(),
		BlockSize:     f.config.CopyBlockSize,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create burner: %w", err)
	}
	return b, nil
}

func (f *DependencyFactory) createAlerter() *notifier.StationNotifier {
	return notifier.New(notifier.Config{Enabled: f.config.Notifications}, f.logger)
}

// RunnerSyncer flushes buffers by running sync(1) through runner
func RunnerSyncer(runner burner.CommandRunner) Syncer {
	return SyncFunc(func(ctx context.Context) error {
		res, err := runner.Run(ctx, burner.Command{Name: "sync"})
		if err != nil {
			return fmt.Errorf("sync: %w (%s)", err, res.LastLine)
		}
		return nil
	})
}
