// Package engine runs control cycles on scenes built from scene files.
// The implementation is split across multiple files:
// - factory.go: assembles robot model, solver and scene from a scene file
// - runner.go: update/solve cycles with recording and notifications
// - validate.go: concurrent validation of several scene files
// - safegroup.go: panic-safe concurrency utilities
package engine
