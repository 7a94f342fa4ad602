// Package burner runs the provisioning pipeline for a single drive: wipe,
// partition, patch the disk signature, copy both partition images, check and
// grow the second filesystem.
package burner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	pcontext "github.com/pyromaniac/pyromaniac/pkg/context"
	"github.com/pyromaniac/pyromaniac/pkg/disk"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

// Pipeline step names, used in logs and StepError
const (
	StepGuard     = "guard"
	StepWipe      = "wipe"
	StepPart1     = "partition-1"
	StepPart2     = "partition-2"
	StepSignature = "signature"
	StepCopy1     = "copy-1"
	StepCopy2     = "copy-2"
	StepFsck      = "fsck"
	StepResize    = "resize"
)

const (
	// DefaultFsckAttempts bounds the e2fsck loop
	DefaultFsckAttempts = 4
	// DefaultFsckFailureLimit aborts the loop after this many failed runs,
	// so the last allowed attempt is never reached
	DefaultFsckFailureLimit = 3
)

// Reporter receives every status line a burn produces
type Reporter func(status string)

// Options configures a Burner
type Options struct {
	SystemDisk       string
	DevicePattern    string
	Part1Image       string
	Part2Image       string
	BlockSize        string
	FsckAttempts     int
	FsckFailureLimit int
}

// Burner provisions drives from one reference descriptor. It is safe to use
// from several workers at once.
type Burner struct {
	runner     CommandRunner
	descriptor *disk.Descriptor
	opts       Options
	pattern    *regexp.Regexp
	openDevice DeviceOpener
	logger     logger.Logger
}

// New creates a Burner
func New(runner CommandRunner, descriptor *disk.Descriptor, opts Options, log logger.Logger) (*Burner, error) {
	if descriptor == nil {
		return nil, fmt.Errorf("no disk descriptor")
	}
	for i, part := range []disk.PartitionSpec{descriptor.Part1, descriptor.Part2} {
		if part.FSType == "" {
			return nil, fmt.Errorf("%w: part%d type code 0x%02x has no filesystem", disk.ErrMalformedLine, i+1, part.TypeCode)
		}
	}
	pattern, err := regexp.Compile(opts.DevicePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid device pattern: %w", err)
	}
	if opts.BlockSize == "" {
		opts.BlockSize = "4M"
	}
	if opts.FsckAttempts <= 0 {
		opts.FsckAttempts = DefaultFsckAttempts
	}
	if opts.FsckFailureLimit <= 0 {
		opts.FsckFailureLimit = DefaultFsckFailureLimit
	}

	return &Burner{
		runner:     runner,
		descriptor: descriptor,
		opts:       opts,
		pattern:    pattern,
		openDevice: OpenRawDevice,
		logger:     log,
	}, nil
}

// SetDeviceOpener replaces how the raw device is opened for the signature patch
func (b *Burner) SetDeviceOpener(open DeviceOpener) {
	b.openDevice = open
}

// Burn runs the whole pipeline against device, reporting progress through
// report. The final status is FINISHED on success or an ERROR line naming the
// failed step; the returned error is the same *StepError.
func (b *Burner) Burn(ctx context.Context, device string, report Reporter) error {
	err := b.run(ctx, device, report)
	if err != nil {
		report(types.ErrorStatus(err.Error()))
		logCtx := ctx
		var se *StepError
		if errors.As(err, &se) {
			logCtx = pcontext.WithStep(ctx, se.Step)
		}
		b.log(logCtx).Error("Burn aborted", logger.WithField("device", device), logger.WithField("error", err))
		return err
	}

	report(types.StatusFinished)
	b.log(ctx).Success(fmt.Sprintf("Burned %s", device))
	return nil
}

// log scopes the burner's logger to the port and tracing values carried by ctx
func (b *Burner) log(ctx context.Context) logger.Logger {
	log := b.logger
	if port := pcontext.GetPort(ctx); pcontext.IsKnown(port) {
		log = log.WithPort(port)
	}
	return logger.WithContext(ctx, log)
}

func (b *Burner) run(ctx context.Context, device string, report Reporter) error {
	d := b.descriptor

	if err := b.guard(device); err != nil {
		return err
	}

	report("Wiping partition table...")
	if res, err := b.exec(ctx, StepWipe, "wipefs", "--all", "--force", device); err != nil {
		return stepError(StepWipe, ErrPartitionCommit, res.LastLine)
	}
	if res, err := b.exec(ctx, StepWipe, "parted", "--script", device, "mklabel", "msdos"); err != nil {
		return stepError(StepWipe, ErrPartitionCommit, res.LastLine)
	}

	report("Creating partition 1...")
	if err := b.mkpart(ctx, StepPart1, device, d.Part1, d.Part1.End); err != nil {
		return err
	}

	report("Creating partition 2...")
	sectors, err := b.deviceSectors(ctx, device)
	if err != nil {
		return err
	}
	last := sectors - 1
	if last < d.Part2.End {
		return stepError(StepPart2, ErrPartitionCommit,
			fmt.Sprintf("device has %d sectors, reference needs %d", sectors, d.Part2.End+1))
	}
	if err := b.mkpart(ctx, StepPart2, device, d.Part2, last); err != nil {
		return err
	}
	if res, err := b.exec(ctx, StepPart2, "partprobe", device); err != nil {
		return stepError(StepPart2, ErrPartitionCommit, res.LastLine)
	}

	report("Writing disk signature...")
	if err := b.patchSignature(device, d.Signature); err != nil {
		return stepError(StepSignature, ErrSignaturePatch, err.Error())
	}

	part1 := PartitionNode(device, 1)
	part2 := PartitionNode(device, 2)

	if err := b.copyImage(ctx, StepCopy1, 1, b.opts.Part1Image, part1, report); err != nil {
		return err
	}
	if err := b.copyImage(ctx, StepCopy2, 2, b.opts.Part2Image, part2, report); err != nil {
		return err
	}

	if err := b.checkFilesystem(ctx, part2, report); err != nil {
		return err
	}

	report("Resizing filesystem...")
	if res, err := b.exec(ctx, StepResize, "resize2fs", part2); err != nil {
		return stepError(StepResize, ErrResize, res.LastLine)
	}

	return nil
}

// guard refuses anything but a whole removable disk other than the system disk
func (b *Burner) guard(device string) error {
	clean := filepath.Clean(device)
	if device == b.opts.SystemDisk || clean == filepath.Clean(b.opts.SystemDisk) {
		return stepError(StepGuard, ErrDeviceGuardViolation, device)
	}
	if !b.pattern.MatchString(device) {
		return stepError(StepGuard, ErrInvalidMountpoint, device)
	}
	return nil
}

func (b *Burner) mkpart(ctx context.Context, step, device string, spec disk.PartitionSpec, end uint64) error {
	if spec.FSType == "" {
		return stepError(step, ErrPartitionCommit, fmt.Sprintf("no filesystem for type code 0x%02x", spec.TypeCode))
	}

	res, err := b.exec(ctx, step, "parted", "--script", device,
		"unit", "s",
		"mkpart", "primary", string(spec.FSType),
		fmt.Sprintf("%ds", spec.Start),
		fmt.Sprintf("%ds", end),
	)
	if err != nil {
		return stepError(step, ErrPartitionCommit, res.LastLine)
	}
	return nil
}

// deviceSectors returns the device length in 512-byte sectors
func (b *Burner) deviceSectors(ctx context.Context, device string) (uint64, error) {
	res, err := b.exec(ctx, StepPart2, "blockdev", "--getsz", device)
	if err != nil {
		return 0, stepError(StepPart2, ErrPartitionCommit, res.LastLine)
	}

	n, perr := strconv.ParseUint(strings.TrimSpace(string(res.Output)), 10, 64)
	if perr != nil || n == 0 {
		return 0, stepError(StepPart2, ErrPartitionCommit, fmt.Sprintf("unreadable device size %q", strings.TrimSpace(string(res.Output))))
	}
	return n, nil
}

func (b *Burner) patchSignature(device string, sig uint32) error {
	f, err := b.openDevice(device)
	if err != nil {
		return err
	}
	if err := PatchSignature(f, sig); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (b *Burner) copyImage(ctx context.Context, step string, index int, image, target string, report Reporter) error {
	report(fmt.Sprintf("Copying partition %d...", index))

	res, err := b.runner.Run(pcontext.WithStep(ctx, step), Command{
		Name: "dd",
		Args: []string{
			"if=" + image,
			"of=" + target,
			"bs=" + b.opts.BlockSize,
			"conv=fsync",
			"status=progress",
		},
		OnLine: func(line string) {
			if progress, ok := ProgressLine(line); ok {
				report(fmt.Sprintf("P%d: %s", index, progress))
			}
		},
	})
	if err != nil || res.ExitCode != 0 {
		return stepError(step, ErrImageCopy, res.LastLine)
	}
	return nil
}

// checkFilesystem runs e2fsck with repair until it exits cleanly. It gives up
// after FsckFailureLimit failed runs, and never runs more than FsckAttempts times.
func (b *Burner) checkFilesystem(ctx context.Context, part string, report Reporter) error {
	failures := 0
	lastLine := ""

	for attempt := 1; attempt <= b.opts.FsckAttempts; attempt++ {
		report(fmt.Sprintf("Checking filesystem (attempt %d)...", attempt))

		res, err := b.exec(ctx, StepFsck, "e2fsck", "-f", "-y", part)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return stepError(StepFsck, ErrFilesystemCheckExhausted, ctx.Err().Error())
		}

		failures++
		lastLine = res.LastLine
		b.log(pcontext.WithStep(ctx, StepFsck)).Warn("Filesystem check failed",
			logger.WithField("attempt", attempt),
			logger.WithField("exit_code", res.ExitCode),
			logger.WithField("output", res.LastLine))

		if failures >= b.opts.FsckFailureLimit {
			break
		}
	}

	return stepError(StepFsck, ErrFilesystemCheckExhausted, lastLine)
}

// exec runs a tool and folds a non-zero exit into the error
func (b *Burner) exec(ctx context.Context, step, name string, args ...string) (Result, error) {
	stepCtx := pcontext.WithStep(ctx, step)
	cmd := Command{Name: name, Args: args}

	b.log(stepCtx).Debug("Running " + cmd.String())
	res, err := b.runner.Run(stepCtx, cmd)
	if err == nil && res.ExitCode != 0 {
		err = fmt.Errorf("%s exited with status %d", name, res.ExitCode)
	}
	if err != nil && name != "e2fsck" {
		b.log(stepCtx).Warn("Tool failed",
			logger.WithField("command", name),
			logger.WithField("exit_code", res.ExitCode),
			logger.WithField("output", res.LastLine))
	}
	return res, err
}

// PartitionNode returns the device node of partition n on device
func PartitionNode(device string, n int) string {
	if device != "" {
		last := device[len(device)-1]
		if last >= '0' && last <= '9' {
			return fmt.Sprintf("%sp%d", device, n)
		}
	}
	return fmt.Sprintf("%s%d", device, n)
}

// ProgressLine reports whether a dd output line is a progress sample
func ProgressLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, "copied") {
		return "", false
	}
	return line, true
}
