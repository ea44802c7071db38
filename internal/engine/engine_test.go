package engine_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/wholebody/wbc/internal/engine"
	"github.com/wholebody/wbc/pkg/config"
	"github.com/wholebody/wbc/pkg/logger"
	"github.com/wholebody/wbc/pkg/notifier"
	"github.com/wholebody/wbc/pkg/recorder"
	"github.com/wholebody/wbc/pkg/robotmodel"
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
joint_weights:
  shoulder: 0.5
state:
  joints:
    shoulder: {position: 0.3}
%s
references:
  joint_posture:
    joints:
      shoulder: {speed: 0.1}
      elbow: {speed: -0.2}
`

const elbowState = `    elbow: {position: 0.8}`

func armURDF(t *testing.T) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("..", "..", "pkg", "robotmodel", "testdata", "arm.urdf"))
	if err != nil {
		t.Fatalf("failed to resolve urdf path: %v", err)
	}
	return path
}

func writeScene(t *testing.T, state string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arm.yaml")
	content := fmt.Sprintf(armScene, armURDF(t), state)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write scene: %v", err)
	}
	return path
}

func newController(t *testing.T, state string) *engine.Controller {
	t.Helper()
	mgr := config.NewManager()
	file, err := mgr.LoadConfig(writeScene(t, state))
	if err != nil {
		t.Fatalf("failed to load scene: %v", err)
	}
	ctrl, err := engine.NewDependencyFactory(mgr, logger.NewNopLogger()).CreateController(file)
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}
	return ctrl
}

type capture struct {
	mu     sync.Mutex
	titles []string
}

func (c *capture) send(title, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	return nil
}

func TestCreateController(t *testing.T) {
	ctrl := newController(t, elbowState)

	if ctrl.Model.NoOfJoints() != 2 {
		t.Errorf("expected 2 joints, got %d", ctrl.Model.NoOfJoints())
	}
	if !ctrl.Scene.HasConstraint("joint_posture") {
		t.Error("expected joint_posture constraint")
	}
	w, err := ctrl.Scene.JointWeights().Get("shoulder")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != 0.5 {
		t.Errorf("expected shoulder weight 0.5, got %v", w)
	}
	if got := ctrl.Solver.Options().MaxIterations; got != 100 {
		t.Errorf("expected default max iterations 100, got %d", got)
	}
}

func TestCreateController_UnknownJoint(t *testing.T) {
	mgr := config.NewManager()
	file, err := mgr.LoadConfig(writeScene(t, elbowState))
	if err != nil {
		t.Fatalf("failed to load scene: %v", err)
	}
	file.Constraints[0].JointNames = []string{"shoulder", "wrist"}

	if _, err := engine.NewDependencyFactory(mgr, nil).CreateController(file); err == nil {
		t.Fatal("expected error for unknown joint")
	}
}

func TestCreateNotifier(t *testing.T) {
	ctrl := newController(t, elbowState)
	factory := engine.NewDependencyFactory(nil, nil)

	if n := factory.CreateNotifier(ctrl.File); n != nil {
		t.Error("expected no notifier when notifications are disabled")
	}
	enabled := true
	ctrl.File.Notifications.Enabled = &enabled
	if n := factory.CreateNotifier(ctrl.File); n == nil {
		t.Error("expected a notifier when notifications are enabled")
	}
}

func TestRunner_IntegratesCommands(t *testing.T) {
	ctrl := newController(t, elbowState)
	runner := engine.NewRunner(ctrl, engine.RunnerOptions{}, nil)

	summary, err := runner.Run(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Cycles != 3 || summary.Failures != 0 {
		t.Errorf("expected 3 cycles without failures, got %+v", summary)
	}
	if !strings.HasPrefix(summary.RunID, "run_") {
		t.Errorf("expected generated run id, got %q", summary.RunID)
	}

	want := map[string]float64{"shoulder": 0.3 + 3*0.01, "elbow": 0.8 - 3*0.02}
	state := runner.Joints()
	for name, pos := range want {
		s, err := state.Get(name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(s.Position-pos) > 1e-9 {
			t.Errorf("%s: expected position %v, got %v", name, pos, s.Position)
		}
	}

	status := ctrl.Scene.TasksStatus()
	if status.Len() != 1 || status.Names[0] != "joint_posture" {
		t.Errorf("unexpected task status %v", status.Names)
	}
}

func TestRunner_RunCycleReturnsCommand(t *testing.T) {
	ctrl := newController(t, elbowState)
	runner := engine.NewRunner(ctrl, engine.RunnerOptions{}, nil)

	cmd, err := runner.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := cmd.Get("elbow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(s.Speed+0.2) > 1e-9 {
		t.Errorf("expected elbow speed -0.2, got %v", s.Speed)
	}
	if !math.IsNaN(s.Effort) {
		t.Errorf("expected unset effort, got %v", s.Effort)
	}
}

func TestRunner_Records(t *testing.T) {
	rec, err := recorder.Open(filepath.Join(t.TempDir(), "cycles.db"))
	if err != nil {
		t.Fatalf("failed to open recorder: %v", err)
	}
	defer rec.Close()

	ctrl := newController(t, elbowState)
	runner := engine.NewRunner(ctrl, engine.RunnerOptions{Recorder: rec}, nil)
	summary, err := runner.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cycles, err := rec.Cycles(summary.RunID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cycles) != 2 {
		t.Fatalf("expected 2 recorded cycles, got %d", len(cycles))
	}
	for i, c := range cycles {
		if !c.Solved {
			t.Errorf("cycle %d: expected solved, got error %q", i, c.Error)
		}
		if c.Seq != i+1 {
			t.Errorf("cycle %d: expected seq %d, got %d", i, i+1, c.Seq)
		}
	}

	tasks, err := rec.TaskStatus(cycles[0].CycleID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "joint_posture" {
		t.Errorf("unexpected task records %+v", tasks)
	}
}

func TestRunner_Failures(t *testing.T) {
	tests := []struct {
		name        string
		stopOnError bool
		wantCycles  int
		wantErr     bool
	}{
		{"continue", false, 3, false},
		{"stop on error", true, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newController(t, "")
			sink := &capture{}
			n := notifier.NewWithSender(notifier.Config{Enabled: true}, nil, sink.send)
			runner := engine.NewRunner(ctrl, engine.RunnerOptions{Notifier: n, StopOnError: tt.stopOnError}, nil)

			summary, err := runner.Run(context.Background(), 3)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, robotmodel.ErrMissingState) {
				t.Errorf("expected missing state error, got %v", err)
			}
			if summary.Cycles != tt.wantCycles || summary.Failures != tt.wantCycles {
				t.Errorf("expected %d failed cycles, got %+v", tt.wantCycles, summary)
			}
			if !errors.Is(summary.LastErr, robotmodel.ErrMissingState) {
				t.Errorf("expected last error to be missing state, got %v", summary.LastErr)
			}

			want := []string{"Solve failed", "Cycles finished with failures"}
			if len(sink.titles) != len(want) {
				t.Fatalf("expected notifications %v, got %v", want, sink.titles)
			}
			for i := range want {
				if sink.titles[i] != want[i] {
					t.Errorf("notification %d: expected %q, got %q", i, want[i], sink.titles[i])
				}
			}
		})
	}
}

func TestRunner_InvalidInput(t *testing.T) {
	ctrl := newController(t, elbowState)
	runner := engine.NewRunner(ctrl, engine.RunnerOptions{}, nil)

	if _, err := runner.Run(context.Background(), 0); !errors.Is(err, engine.ErrNoCycles) {
		t.Errorf("expected ErrNoCycles, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := runner.Run(ctx, 5)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if summary.Cycles != 0 {
		t.Errorf("expected no cycles, got %d", summary.Cycles)
	}
}

func TestValidateAll(t *testing.T) {
	valid := writeScene(t, elbowState)
	broken := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(broken, []byte("version: \"1.0\"\nscene:\n  type: nope\n"), 0o644); err != nil {
		t.Fatalf("failed to write scene: %v", err)
	}
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	reports, err := engine.ValidateAll(context.Background(), []string{valid, broken, missing}, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}

	if reports[0].Err != nil {
		t.Errorf("expected valid scene, got %v", reports[0].Err)
	}
	if reports[0].Constraints != 1 || reports[0].Joints != 2 || reports[0].Actuated != 2 {
		t.Errorf("unexpected report %+v", reports[0])
	}
	if !errors.Is(reports[1].Err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", reports[1].Err)
	}
	if !errors.Is(reports[2].Err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", reports[2].Err)
	}
	for i, r := range reports {
		if r.Path == "" {
			t.Errorf("report %d has no path", i)
		}
	}
}

func TestSafeGroup_RecoversPanic(t *testing.T) {
	group, _ := engine.NewSafeGroup(context.Background(), nil)
	group.Go(func() error {
		panic("boom")
	})
	group.Go(func() error {
		return nil
	})

	err := group.Wait()
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected panic error, got %v", err)
	}
}
