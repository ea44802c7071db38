package velocity_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/wholebody/wbc/pkg/logger"
	"github.com/wholebody/wbc/pkg/robotmodel"
	"github.com/wholebody/wbc/pkg/scenes/velocity"
	"github.com/wholebody/wbc/pkg/solvers/hls"
	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/spatial/r3"
)

var testdata = filepath.Join("..", "..", "robotmodel", "testdata")

func newArm(t *testing.T) *robotmodel.Model {
	t.Helper()
	m := robotmodel.New(logger.NewNopLogger())
	if err := m.Configure(types.RobotModelConfig{File: filepath.Join(testdata, "arm.urdf")}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	js := types.Joints{}
	js.Append("shoulder", types.JointState{Position: 0.3})
	js.Append("elbow", types.JointState{Position: 0.8})
	if err := m.Update(js, nil); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	return m
}

func run(t *testing.T, scene *velocity.Scene) {
	t.Helper()
	if err := scene.Update(); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := scene.Solve(scene.HierarchicalQP()); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
}

func TestVelocityScene_JointTask(t *testing.T) {
	model := newArm(t)
	scene := velocity.New(model, hls.New(hls.Options{}, nil), velocity.Options{IntegrationDt: 0.1}, nil)
	err := scene.Configure([]types.ConstraintConfig{{
		Name:       "joint_position",
		Type:       types.ConstraintTypeJoint,
		JointNames: []string{"shoulder", "elbow"},
		Weights:    []float64{1, 1},
		Activation: 1,
	}})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	ref := types.Joints{}
	ref.Append("elbow", types.JointState{Speed: -0.2})
	ref.Append("shoulder", types.JointState{Speed: 0.1})
	if err := scene.SetReference("joint_position", ref); err != nil {
		t.Fatalf("set reference failed: %v", err)
	}
	run(t, scene)

	out := scene.SolverOutput()
	want := map[string][2]float64{
		"shoulder": {0.1, 0.3 + 0.01},
		"elbow":    {-0.2, 0.8 - 0.02},
	}
	for name, w := range want {
		cmd, err := out.Get(name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(cmd.Speed-w[0]) > 1e-9 {
			t.Errorf("%s: expected speed %v, got %v", name, w[0], cmd.Speed)
		}
		if math.Abs(cmd.Position-w[1]) > 1e-9 {
			t.Errorf("%s: expected position %v, got %v", name, w[1], cmd.Position)
		}
		if !math.IsNaN(cmd.Effort) {
			t.Errorf("%s: expected unset effort, got %v", name, cmd.Effort)
		}
	}
}

func TestVelocityScene_CartesianTask(t *testing.T) {
	model := newArm(t)
	scene := velocity.New(model, hls.New(hls.Options{}, nil), velocity.Options{}, nil)
	err := scene.Configure([]types.ConstraintConfig{{
		Name:       "tool",
		Type:       types.ConstraintTypeCartesian,
		Root:       "world",
		Tip:        "tool",
		RefFrame:   "world",
		Weights:    []float64{1, 0, 1, 0, 0, 0},
		Activation: 1,
	}})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	ref := types.NewRigidBodyState()
	ref.Twist.Linear = r3.Vec{X: 0.1, Z: -0.05}
	if err := scene.SetReference("tool", ref); err != nil {
		t.Fatalf("set reference failed: %v", err)
	}
	run(t, scene)
	scene.UpdateTasksStatus()

	status, err := scene.TasksStatus().Get("tool")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(status.YSolution[0]-0.1) > 1e-6 || math.Abs(status.YSolution[2]+0.05) > 1e-6 {
		t.Errorf("expected linear velocity (0.1, _, -0.05), got %v", status.YSolution[:3])
	}
	if math.Abs(status.Residual[0]) > 1e-6 {
		t.Errorf("expected zero residual in x, got %v", status.Residual[0])
	}
}

func TestVelocityScene_ContactsHoldStill(t *testing.T) {
	contacts := types.ActiveContacts{}
	contacts.Append("FL_SupportCenter", types.ActiveContact{Active: true, Mu: 0.6})
	contacts.Append("FR_SupportCenter", types.ActiveContact{Active: true, Mu: 0.6})

	model := robotmodel.New(nil)
	err := model.Configure(types.RobotModelConfig{
		File:          filepath.Join(testdata, "biped.urdf"),
		Submechanism:  filepath.Join(testdata, "biped_submechanism.yml"),
		FloatingBase:  true,
		ContactPoints: contacts,
	})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	js := types.Joints{}
	q := []float64{0, 0, -0.35, 0.64, 0, -0.27}
	for _, side := range []string{"LL_", "RL_"} {
		for i, j := range []string{"HipYaw", "HipRoll", "HipPitch", "Knee", "AnkleRoll", "AnklePitch"} {
			js.Append(side+j, types.JointState{Position: q[i]})
		}
	}
	base := types.NewRigidBodyState()
	base.Pose.Position = r3.Vec{Z: 0.876}
	if err := model.Update(js, &base); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	scene := velocity.New(model, hls.New(hls.Options{}, nil), velocity.Options{}, nil)
	err = scene.Configure([]types.ConstraintConfig{{
		Name:       "body",
		Type:       types.ConstraintTypeCartesian,
		Root:       "world",
		Tip:        "Root_Link",
		RefFrame:   "world",
		Weights:    []float64{1, 1, 1, 1, 1, 1},
		Activation: 1,
	}})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	ref := types.NewRigidBodyState()
	ref.Twist.Linear = r3.Vec{X: 0.05, Z: -0.02}
	ref.Twist.Angular = r3.Vec{Z: 0.1}
	if err := scene.SetReference("body", ref); err != nil {
		t.Fatalf("set reference failed: %v", err)
	}
	run(t, scene)

	raw := scene.SolverOutputRaw()
	if hqp := scene.HierarchicalQP(); hqp.Levels[0].NumEqualities() != 12 {
		t.Errorf("expected 12 contact rows, got %d", hqp.Levels[0].NumEqualities())
	}
	for _, name := range contacts.Names {
		jac, err := model.BodyJacobian(model.WorldFrame(), name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for l := 0; l < 6; l++ {
			var v float64
			for k := range raw {
				v += jac.At(l, k) * raw[k]
			}
			if math.Abs(v) > 1e-6 {
				t.Errorf("%s: velocity %d is %v", name, l, v)
			}
		}
	}

	scene.UpdateTasksStatus()
	status, err := scene.TasksStatus().Get("body")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, w := range ref.TwistVector() {
		if math.Abs(status.YSolution[i]-w) > 1e-6 {
			t.Errorf("twist %d: expected %v, got %v", i, w, status.YSolution[i])
		}
	}
}
