package burner

//go:generate mockgen -destination=../mocks/mock_runner.go -package=mocks github.com/pyromaniac/pyromaniac/pkg/burner CommandRunner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Command is one external tool invocation
type Command struct {
	Name string
	Args []string

	// OnLine, when set, receives every output line as it is produced.
	// Lines are split on both \n and \r so progress meters arrive one update at a time.
	OnLine func(line string)
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is what a finished command left behind
type Result struct {
	Output   []byte
	LastLine string
	ExitCode int
}

// CommandRunner runs external tools. A non-nil error means the tool did not
// run to a zero exit; ExitCode is 127 when it could not be started.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner executes commands on the local host
type ExecRunner struct{}

// Run implements CommandRunner with os/exec, merging stdout and stderr
func (ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)

	pr, pw := io.Pipe()
	c.Stdout = pw
	c.Stderr = pw

	var (
		output   bytes.Buffer
		lastLine string
		wg       sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(io.TeeReader(pr, &output))
		scanner.Split(scanLines)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			lastLine = line
			if cmd.OnLine != nil {
				cmd.OnLine(line)
			}
		}
		// drain so the tool never blocks on a full pipe
		_, _ = io.Copy(io.Discard, pr)
	}()

	err := c.Start()
	if err == nil {
		err = c.Wait()
	}
	pw.Close()
	wg.Wait()

	res := Result{Output: output.Bytes(), LastLine: lastLine}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	var execErr *exec.Error
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case errors.As(err, &execErr):
		res.ExitCode = 127
	default:
		res.ExitCode = 1
	}
	if res.LastLine == "" {
		res.LastLine = err.Error()
	}
	return res, err
}

// scanLines is bufio.ScanLines that also breaks on carriage returns
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
