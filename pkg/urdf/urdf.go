// Package urdf parses the kinematic and inertial subset of the URDF robot description format
package urdf

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrInvalidRobot indicates a description that is not a valid kinematic tree
	ErrInvalidRobot = errors.New("invalid robot description")
	// ErrUnsupportedJoint indicates a joint type the model cannot represent
	ErrUnsupportedJoint = errors.New("unsupported joint type")
)

// JointType is a URDF joint type
type JointType string

const (
	JointRevolute   JointType = "revolute"
	JointContinuous JointType = "continuous"
	JointPrismatic  JointType = "prismatic"
	JointFixed      JointType = "fixed"
)

// Origin is a transform given as translation and fixed-axis roll, pitch, yaw
type Origin struct {
	XYZ r3.Vec
	RPY r3.Vec
}

// Inertial holds the mass properties of a link about its centre of mass frame
type Inertial struct {
	Origin Origin
	Mass   float64
	// Inertia is the symmetric tensor ixx, ixy, ixz, iyy, iyz, izz
	Inertia [6]float64
}

// Link is a rigid body
type Link struct {
	Name     string
	Inertial *Inertial
}

// Limit holds joint limits
type Limit struct {
	Lower    float64
	Upper    float64
	Effort   float64
	Velocity float64
}

// Joint connects a parent link to a child link
type Joint struct {
	Name   string
	Type   JointType
	Parent string
	Child  string
	Origin Origin
	Axis   r3.Vec
	Limit  *Limit
}

// Robot is a parsed description
type Robot struct {
	Name   string
	Links  []Link
	Joints []Joint
}

type xmlRobot struct {
	Name   string     `xml:"name,attr"`
	Links  []xmlLink  `xml:"link"`
	Joints []xmlJoint `xml:"joint"`
}

type xmlLink struct {
	Name     string       `xml:"name,attr"`
	Inertial *xmlInertial `xml:"inertial"`
}

type xmlOrigin struct {
	XYZ string `xml:"xyz,attr"`
	RPY string `xml:"rpy,attr"`
}

type xmlValue struct {
	Value string `xml:"value,attr"`
}

type xmlInertia struct {
	Ixx string `xml:"ixx,attr"`
	Ixy string `xml:"ixy,attr"`
	Ixz string `xml:"ixz,attr"`
	Iyy string `xml:"iyy,attr"`
	Iyz string `xml:"iyz,attr"`
	Izz string `xml:"izz,attr"`
}

type xmlInertial struct {
	Origin  *xmlOrigin  `xml:"origin"`
	Mass    xmlValue    `xml:"mass"`
	Inertia *xmlInertia `xml:"inertia"`
}

type xmlLinkRef struct {
	Link string `xml:"link,attr"`
}

type xmlAxis struct {
	XYZ string `xml:"xyz,attr"`
}

type xmlLimit struct {
	Lower    string `xml:"lower,attr"`
	Upper    string `xml:"upper,attr"`
	Effort   string `xml:"effort,attr"`
	Velocity string `xml:"velocity,attr"`
}

type xmlJoint struct {
	Name   string     `xml:"name,attr"`
	Type   string     `xml:"type,attr"`
	Parent xmlLinkRef `xml:"parent"`
	Child  xmlLinkRef `xml:"child"`
	Origin *xmlOrigin `xml:"origin"`
	Axis   *xmlAxis   `xml:"axis"`
	Limit  *xmlLimit  `xml:"limit"`
}

// Load parses source, which is either a file path or an inline document
func Load(source string) (*Robot, error) {
	if strings.HasPrefix(strings.TrimSpace(source), "<") {
		return Parse(strings.NewReader(source))
	}
	return ParseFile(source)
}

// ParseFile parses the description at path
func ParseFile(path string) (*Robot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open robot description: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a description and checks that it forms a tree
func Parse(r io.Reader) (*Robot, error) {
	var raw xmlRobot
	if err := xml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRobot, err)
	}

	robot := &Robot{Name: raw.Name}
	for _, l := range raw.Links {
		link, err := convertLink(l)
		if err != nil {
			return nil, err
		}
		robot.Links = append(robot.Links, link)
	}
	for _, j := range raw.Joints {
		joint, err := convertJoint(j)
		if err != nil {
			return nil, err
		}
		robot.Joints = append(robot.Joints, joint)
	}

	if _, err := robot.Root(); err != nil {
		return nil, err
	}
	return robot, nil
}

// Root returns the single link that is nobody's child
func (r *Robot) Root() (string, error) {
	if len(r.Links) == 0 {
		return "", fmt.Errorf("%w: no links", ErrInvalidRobot)
	}

	links := make(map[string]bool, len(r.Links))
	for _, l := range r.Links {
		if links[l.Name] {
			return "", fmt.Errorf("%w: duplicate link %s", ErrInvalidRobot, l.Name)
		}
		links[l.Name] = true
	}

	isChild := make(map[string]bool, len(r.Joints))
	jointNames := make(map[string]bool, len(r.Joints))
	for _, j := range r.Joints {
		if jointNames[j.Name] {
			return "", fmt.Errorf("%w: duplicate joint %s", ErrInvalidRobot, j.Name)
		}
		jointNames[j.Name] = true
		if !links[j.Parent] || !links[j.Child] {
			return "", fmt.Errorf("%w: joint %s references unknown link", ErrInvalidRobot, j.Name)
		}
		if isChild[j.Child] {
			return "", fmt.Errorf("%w: link %s has more than one parent", ErrInvalidRobot, j.Child)
		}
		isChild[j.Child] = true
	}

	root := ""
	for _, l := range r.Links {
		if !isChild[l.Name] {
			if root != "" {
				return "", fmt.Errorf("%w: more than one root link (%s, %s)", ErrInvalidRobot, root, l.Name)
			}
			root = l.Name
		}
	}
	if root == "" {
		return "", fmt.Errorf("%w: kinematic loop", ErrInvalidRobot)
	}
	return root, nil
}

// Link returns the link of that name
func (r *Robot) Link(name string) (Link, bool) {
	for _, l := range r.Links {
		if l.Name == name {
			return l, true
		}
	}
	return Link{}, false
}

// ChildJoints returns the joints whose parent is link, in document order
func (r *Robot) ChildJoints(link string) []Joint {
	var out []Joint
	for _, j := range r.Joints {
		if j.Parent == link {
			out = append(out, j)
		}
	}
	return out
}

func convertLink(l xmlLink) (Link, error) {
	if l.Name == "" {
		return Link{}, fmt.Errorf("%w: link without name", ErrInvalidRobot)
	}
	link := Link{Name: l.Name}
	if l.Inertial == nil {
		return link, nil
	}

	in := &Inertial{}
	var err error
	if in.Origin, err = convertOrigin(l.Inertial.Origin); err != nil {
		return Link{}, fmt.Errorf("link %s: %w", l.Name, err)
	}
	if in.Mass, err = parseFloat(l.Inertial.Mass.Value, 0); err != nil {
		return Link{}, fmt.Errorf("link %s mass: %w", l.Name, err)
	}
	if in.Mass < 0 {
		return Link{}, fmt.Errorf("%w: link %s has negative mass", ErrInvalidRobot, l.Name)
	}
	if l.Inertial.Inertia != nil {
		vals := []string{
			l.Inertial.Inertia.Ixx, l.Inertial.Inertia.Ixy, l.Inertial.Inertia.Ixz,
			l.Inertial.Inertia.Iyy, l.Inertial.Inertia.Iyz, l.Inertial.Inertia.Izz,
		}
		for i, v := range vals {
			if in.Inertia[i], err = parseFloat(v, 0); err != nil {
				return Link{}, fmt.Errorf("link %s inertia: %w", l.Name, err)
			}
		}
	}
	link.Inertial = in
	return link, nil
}

func convertJoint(j xmlJoint) (Joint, error) {
	if j.Name == "" {
		return Joint{}, fmt.Errorf("%w: joint without name", ErrInvalidRobot)
	}
	joint := Joint{
		Name:   j.Name,
		Type:   JointType(j.Type),
		Parent: j.Parent.Link,
		Child:  j.Child.Link,
		Axis:   r3.Vec{X: 1},
	}
	switch joint.Type {
	case JointRevolute, JointContinuous, JointPrismatic, JointFixed:
	default:
		return Joint{}, fmt.Errorf("%w: joint %s has type %q", ErrUnsupportedJoint, j.Name, j.Type)
	}

	var err error
	if joint.Origin, err = convertOrigin(j.Origin); err != nil {
		return Joint{}, fmt.Errorf("joint %s: %w", j.Name, err)
	}
	if j.Axis != nil {
		if joint.Axis, err = parseVec(j.Axis.XYZ, r3.Vec{X: 1}); err != nil {
			return Joint{}, fmt.Errorf("joint %s axis: %w", j.Name, err)
		}
		if joint.Type != JointFixed && r3.Norm(joint.Axis) == 0 {
			return Joint{}, fmt.Errorf("%w: joint %s has a zero axis", ErrInvalidRobot, j.Name)
		}
	}
	if j.Limit != nil {
		lim := &Limit{}
		fields := []struct {
			dst *float64
			src string
		}{
			{&lim.Lower, j.Limit.Lower},
			{&lim.Upper, j.Limit.Upper},
			{&lim.Effort, j.Limit.Effort},
			{&lim.Velocity, j.Limit.Velocity},
		}
		for _, f := range fields {
			if *f.dst, err = parseFloat(f.src, 0); err != nil {
				return Joint{}, fmt.Errorf("joint %s limit: %w", j.Name, err)
			}
		}
		joint.Limit = lim
	}
	return joint, nil
}

func convertOrigin(o *xmlOrigin) (Origin, error) {
	if o == nil {
		return Origin{}, nil
	}
	xyz, err := parseVec(o.XYZ, r3.Vec{})
	if err != nil {
		return Origin{}, fmt.Errorf("origin xyz: %w", err)
	}
	rpy, err := parseVec(o.RPY, r3.Vec{})
	if err != nil {
		return Origin{}, fmt.Errorf("origin rpy: %w", err)
	}
	return Origin{XYZ: xyz, RPY: rpy}, nil
}

func parseVec(s string, def r3.Vec) (r3.Vec, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return def, nil
	}
	if len(fields) != 3 {
		return r3.Vec{}, fmt.Errorf("%w: expected 3 values, got %q", ErrInvalidRobot, s)
	}
	var v [3]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("%w: %v", ErrInvalidRobot, err)
		}
		v[i] = x
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

func parseFloat(s string, def float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRobot, err)
	}
	return v, nil
}
