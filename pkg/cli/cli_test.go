package cli_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/wholebody/wbc/pkg/cli"
	"github.com/wholebody/wbc/pkg/config"
	"github.com/wholebody/wbc/pkg/types"
)

const armScene = `version: "1.0"
scene:
  type: velocity
  integration_dt: 0.1
robot_model:
  file: %s
constraints:
  - name: joint_posture
    type: joint
    priority: 0
    joint_names: [shoulder, elbow]
    activation: 1
state:
  joints:
    shoulder: {position: 0.3}
    elbow: {position: 0.8}
references:
  joint_posture:
    joints:
      shoulder: {speed: 0.1}
      elbow: {speed: -0.2}
`

func writeArmScene(t *testing.T, dir string) string {
	t.Helper()
	urdf, err := filepath.Abs(filepath.Join("..", "robotmodel", "testdata", "arm.urdf"))
	if err != nil {
		t.Fatalf("failed to resolve urdf: %v", err)
	}
	path := filepath.Join(dir, "arm.yaml")
	if err := os.WriteFile(path, []byte(fmt.Sprintf(armScene, urdf)), 0o644); err != nil {
		t.Fatalf("failed to write scene: %v", err)
	}
	return path
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cfg := cli.NewConfig()
	cfg.Version = "1.2.3"
	c := cli.NewCLIWithOutput(cfg, &out, &errOut)
	err := c.ExecuteContext(ctx, args)
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, context.Background(), "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "wbc v1.2.3") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")

	if _, _, err := execute(t, context.Background(), "init", path, "--type", "acceleration_reduced_tsid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := config.NewManager().LoadConfig(path)
	if err != nil {
		t.Fatalf("generated scene does not load: %v", err)
	}
	if cfg.Scene.Type != types.SceneTypeAccelerationReducedTSID {
		t.Errorf("expected tsid scene, got %s", cfg.Scene.Type)
	}

	if _, _, err := execute(t, context.Background(), "init", path); err == nil {
		t.Error("expected error for existing file")
	}
	if _, _, err := execute(t, context.Background(), "init", path, "--force"); err != nil {
		t.Errorf("unexpected error with --force: %v", err)
	}
	if _, _, err := execute(t, context.Background(), "init", filepath.Join(dir, "bad.yaml"), "--type", "position"); err == nil {
		t.Error("expected error for unknown scene type")
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	valid := writeArmScene(t, dir)
	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("version: \"2.0\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write scene: %v", err)
	}

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		wantOut string
	}{
		{"valid scene", []string{"validate", valid}, false, "1 constraints, 2 joints (2 actuated)"},
		{"invalid scene", []string{"validate", valid, invalid}, true, "1 constraints"},
		{"no arguments", []string{"validate"}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, context.Background(), tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("expected output to contain %q, got %q", tt.wantOut, out)
			}
		})
	}
}

func TestSolveCommand(t *testing.T) {
	path := writeArmScene(t, t.TempDir())

	out, _, err := execute(t, context.Background(), "solve", path, "--cycles", "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"2 cycles solved", "shoulder", "elbow", "joint_posture"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}

func TestSolveCommand_Settings(t *testing.T) {
	dir := t.TempDir()
	path := writeArmScene(t, dir)
	settings := filepath.Join(dir, "wbc.yaml")
	if err := os.WriteFile(settings, []byte("cycles: 3\nlog_level: error\n"), 0o644); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}

	out, _, err := execute(t, context.Background(), "--settings", settings, "solve", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "3 cycles solved") {
		t.Errorf("expected settings file cycles, got %q", out)
	}

	t.Setenv("WBC_CYCLES", "4")
	out, _, err = execute(t, context.Background(), "solve", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "4 cycles solved") {
		t.Errorf("expected environment cycles, got %q", out)
	}

	out, _, err = execute(t, context.Background(), "solve", path, "-n", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "5 cycles solved") {
		t.Errorf("expected flag to win over environment, got %q", out)
	}
}

func TestSolveCommand_RecordAndHistory(t *testing.T) {
	dir := t.TempDir()
	path := writeArmScene(t, dir)
	db := filepath.Join(dir, "cycles.db")

	out, _, err := execute(t, context.Background(), "solve", path, "--cycles", "2", "--record", db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := regexp.MustCompile(`Recorded run (\S+)`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("expected run id in output, got %q", out)
	}

	out, _, err = execute(t, context.Background(), "history", m[1], "--db", db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "2 cycles, 0 failed") {
		t.Errorf("unexpected history output %q", out)
	}

	out, _, err = execute(t, context.Background(), "history", "missing", "--db", db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No cycles recorded") {
		t.Errorf("expected empty history warning, got %q", out)
	}
}

func TestModelCommand(t *testing.T) {
	path := writeArmScene(t, t.TempDir())

	out, _, err := execute(t, context.Background(), "model", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"World frame: world", "shoulder", "elbow"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}

func TestWatchCommand_SolvesOnStart(t *testing.T) {
	path := writeArmScene(t, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	out, _, err := execute(t, ctx, "watch", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Watching", "Loaded arm.yaml (modified", "1 cycles solved", "Stopped watching"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}
