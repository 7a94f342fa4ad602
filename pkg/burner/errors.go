package burner

import (
	"errors"
	"fmt"
)

// Sentinel errors for each way a burn can abort. The message doubles as the
// port status shown to the operator.
var (
	// ErrDeviceGuardViolation is returned when asked to burn the protected system disk
	ErrDeviceGuardViolation = errors.New("refusing to operate on protected disk")

	// ErrInvalidMountpoint is returned when the device path is not a removable block device
	ErrInvalidMountpoint = errors.New("invalid mountpoint")

	// ErrPartitionCommit is returned when wiping or partitioning the device fails
	ErrPartitionCommit = errors.New("partition commit failed")

	// ErrSignaturePatch is returned when the MBR disk signature cannot be written
	ErrSignaturePatch = errors.New("disk signature patch failed")

	// ErrImageCopy is returned when a partition image copy exits non-zero
	ErrImageCopy = errors.New("image copy failed")

	// ErrFilesystemCheckExhausted is returned when fsck keeps failing
	ErrFilesystemCheckExhausted = errors.New("filesystem check exhausted")

	// ErrResize is returned when growing the second filesystem fails
	ErrResize = errors.New("filesystem resize failed")
)

// StepError records which pipeline step failed and the last line the tool printed
type StepError struct {
	Step     string
	Err      error
	LastLine string
}

func (e *StepError) Error() string {
	if e.LastLine == "" {
		return fmt.Sprintf("%v (%s)", e.Err, e.Step)
	}
	return fmt.Sprintf("%v (%s): %s", e.Err, e.Step, e.LastLine)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(step string, err error, lastLine string) *StepError {
	return &StepError{Step: step, Err: err, LastLine: lastLine}
}
