// Package context carries run and cycle identifiers for tracing control cycles
package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// contextKey is unexported so keys from other packages never collide
type contextKey int

const (
	runIDKey contextKey = iota
	cycleIDKey
	sceneKey
	operationKey
	startTimeKey
)

const (
	unknownRun       = "unknown-run"
	unknownCycle     = "unknown-cycle"
	unknownScene     = "unknown-scene"
	unknownOperation = "unknown-operation"
)

// WithRunID adds a run ID to the context. An empty id generates a new one.
func WithRunID(parent context.Context, runID string) context.Context {
	if runID == "" {
		runID = GenerateRunID()
	}
	return context.WithValue(parent, runIDKey, runID)
}

// GetRunID retrieves the run ID from context
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		return id
	}
	return unknownRun
}

// WithCycleID adds a control cycle ID to the context
func WithCycleID(parent context.Context, cycleID string) context.Context {
	if cycleID == "" {
		cycleID = GenerateCycleID()
	}
	return context.WithValue(parent, cycleIDKey, cycleID)
}

// GetCycleID retrieves the control cycle ID from context
func GetCycleID(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey).(string); ok && id != "" {
		return id
	}
	return unknownCycle
}

// WithScene adds the scene file or name being processed
func WithScene(parent context.Context, scene string) context.Context {
	return context.WithValue(parent, sceneKey, scene)
}

// GetScene retrieves the scene from context
func GetScene(ctx context.Context) string {
	if s, ok := ctx.Value(sceneKey).(string); ok && s != "" {
		return s
	}
	return unknownScene
}

// WithOperation adds an operation name to the context
func WithOperation(parent context.Context, operation string) context.Context {
	return context.WithValue(parent, operationKey, operation)
}

// GetOperation retrieves the operation name from context
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok && op != "" {
		return op
	}
	return unknownOperation
}

// WithStartTime adds the operation start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetStartTime retrieves the operation start time, zero if unset
func GetStartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(startTimeKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}

// GetDuration returns the time since the start time in context, zero if unset
func GetDuration(ctx context.Context) time.Duration {
	start := GetStartTime(ctx)
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}

// GenerateRunID creates a new unique run ID
func GenerateRunID() string {
	return "run_" + uuid.New().String()
}

// GenerateCycleID creates a new unique cycle ID
func GenerateCycleID() string {
	return "cyc_" + uuid.New().String()
}

// EnrichContext adds a run ID if missing and stamps the start time
func EnrichContext(parent context.Context) context.Context {
	ctx := parent
	if GetRunID(ctx) == unknownRun {
		ctx = WithRunID(ctx, GenerateRunID())
	}
	return WithStartTime(ctx, time.Now())
}

// TracingFields returns the tracing values present in ctx
func TracingFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	if id := GetRunID(ctx); id != unknownRun {
		fields["run_id"] = id
	}
	if id := GetCycleID(ctx); id != unknownCycle {
		fields["cycle_id"] = id
	}
	if s := GetScene(ctx); s != unknownScene {
		fields["scene"] = s
	}
	if op := GetOperation(ctx); op != unknownOperation {
		fields["operation"] = op
	}
	return fields
}
