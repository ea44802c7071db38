// Package robotmodel implements the robot model used by the scenes on top of a URDF description.
// Floating-base robots get six virtual joints ahead of the URDF joints.
package robotmodel

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wholebody/wbc/pkg/logger"
	"github.com/wholebody/wbc/pkg/spatial"
	"github.com/wholebody/wbc/pkg/types"
	"github.com/wholebody/wbc/pkg/urdf"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrNotConfigured indicates use of a model before a successful Configure
	ErrNotConfigured = errors.New("robot model is not configured")
	// ErrNotUpdated indicates a state dependent query before the first Update
	ErrNotUpdated = errors.New("robot model has not been updated")
	// ErrUnknownFrame indicates a frame that is not part of the model
	ErrUnknownFrame = errors.New("unknown frame")
	// ErrUnknownJoint indicates a joint that is not part of the model
	ErrUnknownJoint = errors.New("unknown joint")
	// ErrMissingState indicates an update sample that lacks a joint or the floating base
	ErrMissingState = errors.New("missing state")
)

// FloatingBaseJointNames are the virtual joints of a floating base, in index order
var FloatingBaseJointNames = []string{
	"floating_base_trans_x", "floating_base_trans_y", "floating_base_trans_z",
	"floating_base_rot_x", "floating_base_rot_y", "floating_base_rot_z",
}

// DefaultWorldFrame is used when the config names none
const DefaultWorldFrame = "world"

type jointKind int

const (
	kindFixed jointKind = iota
	kindRevolute
	kindPrismatic
)

type body struct {
	name   string
	frame  bool
	parent int
	kind   jointKind
	joint  string
	qi     int
	origin r3.Vec
	rot0   spatial.Rotation
	axis   r3.Vec

	mass    float64
	com     r3.Vec
	inertia inertia

	// state in world coordinates; alpha and acc assume zero joint acceleration
	rot   spatial.Rotation
	pos   r3.Vec
	omega r3.Vec
	vel   r3.Vec
	alpha r3.Vec
	acc   r3.Vec
	jv    []r3.Vec
	jw    []r3.Vec
}

// Model is a kinematic tree with rigid body dynamics. Not safe for concurrent use.
type Model struct {
	logger logger.Logger

	configured   bool
	updated      bool
	floatingBase bool
	worldFrame   string
	robotName    string

	bodies     []body
	frameIndex map[string]int
	jointNames []string
	jointIndex map[string]int
	actuated   []string
	contacts   types.ActiveContacts

	q, qd, qdd, effort []float64
	updatedAt          time.Time

	dyn *dynamicsCache
}

// New creates an unconfigured model
func New(log logger.Logger) *Model {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Model{logger: log.WithComponent("robot_model")}
}

// Configure loads the URDF and optional sub-mechanism description. On error the
// previous configuration is dropped and Configure may be retried.
func (m *Model) Configure(cfg types.RobotModelConfig) error {
	m.configured = false
	m.updated = false

	robot, err := urdf.Load(cfg.File)
	if err != nil {
		m.logger.Error("Failed to load robot description", logger.WithError(err))
		return err
	}

	world := cfg.WorldFrame
	if world == "" {
		world = DefaultWorldFrame
	}

	b, err := buildTree(robot, world, cfg.FloatingBase)
	if err != nil {
		return err
	}

	next := &Model{
		logger:       m.logger,
		floatingBase: cfg.FloatingBase,
		worldFrame:   world,
		robotName:    robot.Name,
		bodies:       b.bodies,
		frameIndex:   make(map[string]int),
		jointNames:   b.joints,
		jointIndex:   make(map[string]int, len(b.joints)),
	}
	for i, bd := range next.bodies {
		if bd.frame {
			next.frameIndex[bd.name] = i
		}
	}
	for i, n := range next.jointNames {
		next.jointIndex[n] = i
	}

	next.actuated = b.moving
	if cfg.Submechanism != "" {
		sub, err := LoadSubmechanism(cfg.Submechanism)
		if err != nil {
			m.logger.Error("Failed to load sub-mechanism", logger.WithError(err))
			return err
		}
		if next.actuated, err = sub.apply(b.moving); err != nil {
			return err
		}
	}

	for _, name := range cfg.ContactPoints.Names {
		if _, ok := next.frameIndex[name]; !ok {
			return fmt.Errorf("%w: contact point %s", ErrUnknownFrame, name)
		}
	}
	next.contacts = cfg.ContactPoints.Clone()

	nj := len(next.jointNames)
	next.q = make([]float64, nj)
	next.qd = make([]float64, nj)
	next.qdd = make([]float64, nj)
	next.effort = make([]float64, nj)
	next.configured = true

	*m = *next
	m.logger.Info("Robot model configured",
		logger.WithField("robot", m.robotName),
		logger.WithField("joints", nj),
		logger.WithField("actuated", len(m.actuated)),
		logger.WithField("floating_base", m.floatingBase),
		logger.WithField("contacts", strings.Join(m.contacts.Names, ",")))
	return nil
}

type tree struct {
	bodies []body
	joints []string
	moving []string
}

func buildTree(robot *urdf.Robot, world string, floating bool) (*tree, error) {
	rootLink, err := robot.Root()
	if err != nil {
		return nil, err
	}
	t := &tree{}

	parent := -1
	if rootLink != world {
		t.bodies = append(t.bodies, body{name: world, frame: true, parent: -1, qi: -1, rot0: spatial.Identity()})
		parent = 0
		if floating {
			axes := []r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}
			for i, name := range FloatingBaseJointNames {
				kind := kindPrismatic
				if i >= 3 {
					kind = kindRevolute
				}
				t.bodies = append(t.bodies, body{
					name:   name,
					parent: parent,
					kind:   kind,
					joint:  name,
					qi:     len(t.joints),
					rot0:   spatial.Identity(),
					axis:   axes[i%3],
				})
				t.joints = append(t.joints, name)
				parent = len(t.bodies) - 1
			}
		}
	} else if floating {
		return nil, fmt.Errorf("%w: root link %s cannot be the world frame of a floating base robot", urdf.ErrInvalidRobot, rootLink)
	}

	link, _ := robot.Link(rootLink)
	root := linkBody(link)
	root.parent = parent
	t.bodies = append(t.bodies, root)

	var visit func(linkIdx int, linkName string)
	visit = func(linkIdx int, linkName string) {
		for _, j := range robot.ChildJoints(linkName) {
			child, _ := robot.Link(j.Child)
			b := linkBody(child)
			b.parent = linkIdx
			b.joint = j.Name
			b.origin = j.Origin.XYZ
			b.rot0 = spatial.RPY(j.Origin.RPY.X, j.Origin.RPY.Y, j.Origin.RPY.Z)
			b.axis = spatial.Unit(j.Axis)
			switch j.Type {
			case urdf.JointRevolute, urdf.JointContinuous:
				b.kind = kindRevolute
			case urdf.JointPrismatic:
				b.kind = kindPrismatic
			}
			if b.kind != kindFixed {
				b.qi = len(t.joints)
				t.joints = append(t.joints, j.Name)
				t.moving = append(t.moving, j.Name)
			}
			t.bodies = append(t.bodies, b)
			visit(len(t.bodies)-1, child.Name)
		}
	}
	visit(len(t.bodies)-1, rootLink)

	for i := range t.bodies {
		t.bodies[i].jv = make([]r3.Vec, len(t.joints))
		t.bodies[i].jw = make([]r3.Vec, len(t.joints))
	}
	return t, nil
}

func linkBody(l urdf.Link) body {
	b := body{name: l.Name, frame: true, qi: -1, rot0: spatial.Identity()}
	if l.Inertial != nil {
		b.mass = l.Inertial.Mass
		b.com = l.Inertial.Origin.XYZ
		rc := spatial.RPY(l.Inertial.Origin.RPY.X, l.Inertial.Origin.RPY.Y, l.Inertial.Origin.RPY.Z)
		b.inertia = inertiaFromURDF(l.Inertial.Inertia).rotate(rc)
	}
	return b
}

// NoOfJoints returns the number of joint-space degrees of freedom, floating base included
func (m *Model) NoOfJoints() int {
	return len(m.jointNames)
}

// NoOfActuatedJoints returns the number of actuated joints
func (m *Model) NoOfActuatedJoints() int {
	return len(m.actuated)
}

// JointNames returns all joint names in index order
func (m *Model) JointNames() []string {
	return append([]string(nil), m.jointNames...)
}

// ActuatedJointNames returns the actuated joints in index order
func (m *Model) ActuatedJointNames() []string {
	return append([]string(nil), m.actuated...)
}

// IndependentJointNames returns the independent coordinates. The tree has no loops,
// so these are all joints.
func (m *Model) IndependentJointNames() []string {
	return m.JointNames()
}

// JointIndex returns the column of a joint
func (m *Model) JointIndex(name string) (int, error) {
	i, ok := m.jointIndex[name]
	if !ok {
		return -1, fmt.Errorf("%w: %s", ErrUnknownJoint, name)
	}
	return i, nil
}

// WorldFrame returns the name of the inertial frame
func (m *Model) WorldFrame() string {
	return m.worldFrame
}

// HasFrame reports whether name is the world frame or a link
func (m *Model) HasFrame(name string) bool {
	_, ok := m.frameIndex[name]
	return ok
}

// FloatingBase reports whether the model has a floating base
func (m *Model) FloatingBase() bool {
	return m.floatingBase
}

// SelectionMatrix maps joint torques to actuated torques
func (m *Model) SelectionMatrix() *mat.Dense {
	if len(m.actuated) == 0 || len(m.jointNames) == 0 {
		return &mat.Dense{}
	}
	s := mat.NewDense(len(m.actuated), len(m.jointNames), nil)
	for i, name := range m.actuated {
		s.Set(i, m.jointIndex[name], 1)
	}
	return s
}

// ActiveContacts returns the contact set
func (m *Model) ActiveContacts() types.ActiveContacts {
	return m.contacts.Clone()
}

// SetActiveContacts replaces the contact set. Every contact must be a frame of the model.
func (m *Model) SetActiveContacts(contacts types.ActiveContacts) error {
	if !m.configured {
		return ErrNotConfigured
	}
	for _, name := range contacts.Names {
		if !m.HasFrame(name) {
			return fmt.Errorf("%w: contact point %s", ErrUnknownFrame, name)
		}
	}
	m.contacts = contacts.Clone()
	return nil
}
