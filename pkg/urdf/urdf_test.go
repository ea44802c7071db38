package urdf_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wholebody/wbc/pkg/urdf"
)

const twoLink = `<?xml version="1.0"?>
<robot name="arm">
  <link name="base"/>
  <link name="upper">
    <inertial>
      <origin xyz="0 0 0.2" rpy="0 0 0"/>
      <mass value="2.5"/>
      <inertia ixx="0.1" ixy="0" ixz="0" iyy="0.1" iyz="0" izz="0.02"/>
    </inertial>
    <visual><geometry><box size="0.1 0.1 0.4"/></geometry></visual>
  </link>
  <link name="tool"/>
  <joint name="shoulder" type="revolute">
    <parent link="base"/>
    <child link="upper"/>
    <origin xyz="0 0 0.1" rpy="0 0 1.5707963"/>
    <axis xyz="0 1 0"/>
    <limit lower="-1.5" upper="1.5" effort="40" velocity="3"/>
  </joint>
  <joint name="tool_joint" type="fixed">
    <parent link="upper"/>
    <child link="tool"/>
    <origin xyz="0 0 0.4"/>
  </joint>
</robot>`

func TestParse(t *testing.T) {
	robot, err := urdf.Parse(strings.NewReader(twoLink))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if robot.Name != "arm" {
		t.Errorf("expected name arm, got %s", robot.Name)
	}
	if len(robot.Links) != 3 || len(robot.Joints) != 2 {
		t.Fatalf("expected 3 links and 2 joints, got %d and %d", len(robot.Links), len(robot.Joints))
	}

	root, err := robot.Root()
	if err != nil || root != "base" {
		t.Errorf("expected root base, got %s (%v)", root, err)
	}

	upper, ok := robot.Link("upper")
	if !ok || upper.Inertial == nil {
		t.Fatal("expected upper link with inertial")
	}
	if upper.Inertial.Mass != 2.5 || upper.Inertial.Origin.XYZ.Z != 0.2 || upper.Inertial.Inertia[5] != 0.02 {
		t.Errorf("unexpected inertial %+v", upper.Inertial)
	}

	shoulder := robot.Joints[0]
	if shoulder.Type != urdf.JointRevolute || shoulder.Axis.Y != 1 {
		t.Errorf("unexpected joint %+v", shoulder)
	}
	if math.Abs(shoulder.Origin.RPY.Z-1.5707963) > 1e-12 {
		t.Errorf("unexpected origin %+v", shoulder.Origin)
	}
	if shoulder.Limit == nil || shoulder.Limit.Effort != 40 {
		t.Errorf("unexpected limit %+v", shoulder.Limit)
	}

	fixed := robot.Joints[1]
	if fixed.Axis.X != 1 {
		t.Errorf("expected default axis, got %+v", fixed.Axis)
	}

	children := robot.ChildJoints("base")
	if len(children) != 1 || children[0].Name != "shoulder" {
		t.Errorf("unexpected children %+v", children)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name:    "not xml",
			doc:     "robot",
			wantErr: urdf.ErrInvalidRobot,
		},
		{
			name:    "no links",
			doc:     `<robot name="r"></robot>`,
			wantErr: urdf.ErrInvalidRobot,
		},
		{
			name: "floating joint",
			doc: `<robot name="r"><link name="a"/><link name="b"/>
				<joint name="j" type="floating"><parent link="a"/><child link="b"/></joint></robot>`,
			wantErr: urdf.ErrUnsupportedJoint,
		},
		{
			name: "unknown link",
			doc: `<robot name="r"><link name="a"/>
				<joint name="j" type="fixed"><parent link="a"/><child link="b"/></joint></robot>`,
			wantErr: urdf.ErrInvalidRobot,
		},
		{
			name:    "two roots",
			doc:     `<robot name="r"><link name="a"/><link name="b"/></robot>`,
			wantErr: urdf.ErrInvalidRobot,
		},
		{
			name: "bad vector",
			doc: `<robot name="r"><link name="a"/><link name="b"/>
				<joint name="j" type="fixed"><parent link="a"/><child link="b"/><origin xyz="1 2"/></joint></robot>`,
			wantErr: urdf.ErrInvalidRobot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := urdf.Parse(strings.NewReader(tt.doc))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	if _, err := urdf.Load(twoLink); err != nil {
		t.Fatalf("inline document: %v", err)
	}

	path := filepath.Join(t.TempDir(), "arm.urdf")
	if err := os.WriteFile(path, []byte(twoLink), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := urdf.Load(path); err != nil {
		t.Fatalf("file: %v", err)
	}

	if _, err := urdf.Load(filepath.Join(t.TempDir(), "missing.urdf")); err == nil {
		t.Error("expected error for missing file")
	}
}
