package core

import "errors"

// Sentinel errors for scene operations. Check them with errors.Is.
var (
	// ErrEmptyConfig indicates Configure was called without any constraint
	ErrEmptyConfig = errors.New("constraint config is empty")

	// ErrInvalidConfig indicates a constraint config failed validation
	ErrInvalidConfig = errors.New("invalid constraint config")

	// ErrConstraintNotFound indicates a lookup by an unknown constraint name
	ErrConstraintNotFound = errors.New("invalid constraint name")

	// ErrReferenceTypeMismatch indicates a reference of the wrong kind for the constraint variant
	ErrReferenceTypeMismatch = errors.New("reference type does not match constraint type")

	// ErrInvalidReference indicates a reference that lacks entries the constraint needs
	ErrInvalidReference = errors.New("invalid reference")

	// ErrDimensionMismatch indicates a vector whose size does not match the task dimension
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidJointName indicates a joint name that is not part of the robot model
	ErrInvalidJointName = errors.New("invalid joint name")

	// ErrNotConfigured indicates an operation on a scene without configuration
	ErrNotConfigured = errors.New("scene is not configured")

	// ErrInvalidState indicates an operation issued out of the update/solve order
	ErrInvalidState = errors.New("invalid scene state")

	// ErrSolverFailed wraps any failure reported by the QP solver
	ErrSolverFailed = errors.New("qp solver failed")
)
