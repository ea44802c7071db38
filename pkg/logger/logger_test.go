package logger_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	wcontext "github.com/wholebody/wbc/pkg/context"
	"github.com/wholebody/wbc/pkg/logger"
)

func TestCreateLogger(t *testing.T) {
	log := logger.CreateLogger("", "info")
	if log == nil {
		t.Fatal("expected logger to be created")
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.WithComponent("scene").Info("configured")

	output := buf.String()
	if !strings.Contains(output, "[scene]") {
		t.Errorf("expected component prefix in log output, got %q", output)
	}
}

func TestLogger_FieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.Info("cycle",
		logger.WithField("zeta", 1),
		logger.WithField("alpha", 2),
	)

	output := buf.String()
	if !strings.Contains(output, "{alpha=2, zeta=1}") {
		t.Errorf("expected sorted fields, got %q", output)
	}
}

func TestLogger_ErrorField(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.Error("solve failed", logger.WithError(errors.New("infeasible")))

	if !strings.Contains(buf.String(), "error=infeasible") {
		t.Errorf("expected error field, got %q", buf.String())
	}
}

func TestLogger_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("error", &buf)

	log.Debug("should not appear")
	log.Info("should not appear")
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

func TestLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("loud", &buf)

	log.Debug("hidden")
	log.Info("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") || !strings.Contains(output, "shown") {
		t.Errorf("expected info level behaviour, got %q", output)
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	base := logger.CreateLoggerWithOutput("info", &buf)

	ctx := wcontext.WithRunID(context.Background(), "run_1")
	ctx = wcontext.WithCycleID(ctx, "cyc_7")

	logger.WithContext(ctx, base).WithComponent("engine").Info("cycle done")

	output := buf.String()
	for _, want := range []string{"run_id=run_1", "cycle_id=cyc_7", "[engine]"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in %q", want, output)
		}
	}
}
