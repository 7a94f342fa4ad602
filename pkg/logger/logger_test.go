package logger_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	pcontext "github.com/pyromaniac/pyromaniac/pkg/context"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
)

func TestCreateLogger(t *testing.T) {
	log := logger.CreateLogger("", "info")
	if log == nil {
		t.Fatal("expected logger to be created")
	}
}

func TestCreateFileLogger(t *testing.T) {
	path := t.TempDir() + "/pyromaniac.log"

	log, err := logger.CreateFileLogger(path, "info")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Info("written to file")

	if _, err := logger.CreateFileLogger(t.TempDir()+"/missing/dir.log", "info"); err == nil {
		t.Error("expected error for unwritable log path")
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"bogus", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.CreateLoggerWithOutput(tt.level, &buf)

			log.Debug("debug-line")
			log.Info("info-line")

			output := buf.String()
			if got := strings.Contains(output, "debug-line"); got != tt.wantDebug {
				t.Errorf("debug visible = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(output, "info-line"); got != tt.wantInfo {
				t.Errorf("info visible = %v, want %v", got, tt.wantInfo)
			}
		})
	}
}

func TestLogger_WithPort(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.WithPort("USB2").Info("media found")

	output := buf.String()
	if !strings.Contains(output, "[USB2] media found") {
		t.Errorf("expected port prefix in log output, got %q", output)
	}
}

func TestLogger_FieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.Info("event",
		logger.WithField("zeta", 1),
		logger.WithField("alpha", "a"),
	)

	if !strings.Contains(buf.String(), "{alpha=a, zeta=1}") {
		t.Errorf("expected sorted fields, got %q", buf.String())
	}
}

func TestLogger_Success(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.Success("burn completed")

	if !strings.Contains(buf.String(), "✅ burn completed") {
		t.Error("expected success message in log output")
	}
}

func TestLogger_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("error", &buf)

	log.Warn("should not appear")
	log.Error("should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") {
		t.Error("lower level logs should not appear with error level")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("error level log should appear")
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	base := logger.CreateLoggerWithOutput("info", &buf)

	ctx := pcontext.WithCycleID(context.Background(), "cyc_test")
	ctx = pcontext.WithWorkerID(ctx, "wrk_test")
	ctx = pcontext.WithStep(ctx, "fsck")

	logger.WithContext(ctx, base).WithPort("USB0").Warn("retrying")

	output := buf.String()
	for _, want := range []string{"[USB0]", "cycle_id=cyc_test", "worker_id=wrk_test", "step=fsck", "retrying"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output %q", want, output)
		}
	}
}

func TestNopLogger(t *testing.T) {
	log := logger.NewNopLogger()
	log.WithPort("USB0").Error("ignored")
}

func TestConsoleLogger(t *testing.T) {
	var out, errOut bytes.Buffer
	console := logger.NewConsoleLogger(&out, &errOut)

	console.Info("hello")
	console.Error("boom")

	if !strings.Contains(out.String(), "hello") {
		t.Error("expected info on stdout writer")
	}
	if !strings.Contains(errOut.String(), "boom") {
		t.Error("expected error on stderr writer")
	}
}
