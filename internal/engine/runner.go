package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	wcontext "github.com/wholebody/wbc/pkg/context"
	"github.com/wholebody/wbc/pkg/logger"
	"github.com/wholebody/wbc/pkg/notifier"
	"github.com/wholebody/wbc/pkg/recorder"
	"github.com/wholebody/wbc/pkg/robotmodel"
	"github.com/wholebody/wbc/pkg/types"
)

// ErrNoCycles is returned by Run when asked for a non-positive number of cycles
var ErrNoCycles = errors.New("number of cycles must be positive")

// RunnerOptions holds the optional collaborators of a Runner
type RunnerOptions struct {
	Recorder *recorder.Recorder
	Notifier *notifier.SolveNotifier
	// StopOnError ends Run at the first failed cycle
	StopOnError bool
}

// Summary describes a finished batch of cycles
type Summary struct {
	RunID    string
	Cycles   int
	Failures int
	Duration time.Duration
	LastErr  error
}

// Runner drives update/solve cycles of a controller. The joint state starts at the scene
// file's state sample and is replaced by the commanded positions and speeds after each
// successful cycle; the floating base stays where the sample put it.
type Runner struct {
	ctrl   *Controller
	opts   RunnerOptions
	logger logger.Logger

	joints types.Joints
	base   *types.RigidBodyState
	seq    int
}

// NewRunner creates a runner with the controller's initial state
func NewRunner(ctrl *Controller, opts RunnerOptions, log logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNopLogger()
	}
	r := &Runner{
		ctrl:   ctrl,
		opts:   opts,
		logger: log.WithComponent("runner"),
	}
	r.joints, r.base = initialState(ctrl)
	return r
}

func initialState(ctrl *Controller) (types.Joints, *types.RigidBodyState) {
	var base *types.RigidBodyState
	if ctrl.File.RobotModel.FloatingBase {
		s := types.NewRigidBodyState()
		base = &s
	}

	virtual := make(map[string]bool, len(robotmodel.FloatingBaseJointNames))
	if base != nil {
		for _, n := range robotmodel.FloatingBaseJointNames {
			virtual[n] = true
		}
	}
	order := make([]string, 0, ctrl.Model.NoOfJoints())
	for _, n := range ctrl.Model.JointNames() {
		if !virtual[n] {
			order = append(order, n)
		}
	}

	state := ctrl.File.State
	if state == nil {
		js := types.Joints{Time: time.Now()}
		for _, n := range order {
			js.Append(n, types.JointState{})
		}
		return js, base
	}
	if state.FloatingBase != nil && base != nil {
		s := types.RigidBodyStateFromConfig(*state.FloatingBase)
		base = &s
	}
	return types.JointsFromConfig(state.Joints, order), base
}

// Joints returns the joint state used by the next cycle
func (r *Runner) Joints() types.Joints {
	return types.Joints{Time: r.joints.Time, NamedVector: r.joints.Clone()}
}

// RunCycle performs one update/solve cycle and returns the joint command
func (r *Runner) RunCycle(ctx context.Context) (types.Joints, error) {
	if err := ctx.Err(); err != nil {
		return types.Joints{}, err
	}
	r.seq++
	ctx = wcontext.WithCycleID(ctx, wcontext.GenerateCycleID())
	ctx = wcontext.WithOperation(ctx, "cycle")
	ctx = wcontext.WithStartTime(ctx, time.Now())
	log := logger.WithContext(ctx, r.logger)

	start := time.Now()
	cmd, err := r.cycle()
	duration := time.Since(start)

	if err != nil {
		log.Error("Cycle failed", logger.WithField("seq", r.seq), logger.WithError(err))
	} else {
		log.Debug("Cycle solved", logger.WithField("seq", r.seq))
	}

	if r.opts.Recorder != nil {
		runID := wcontext.GetRunID(ctx)
		rec := recorder.Cycle{Seq: r.seq, Duration: duration, Err: err}
		if err == nil {
			rec.Solution = r.ctrl.Scene.SolverOutputRaw()
			rec.Status = r.ctrl.Scene.TasksStatus()
		}
		if _, recErr := r.opts.Recorder.RecordCycle(runID, rec); recErr != nil {
			log.Warn("Failed to record cycle", logger.WithError(recErr))
		}
	}
	if err != nil {
		return types.Joints{}, err
	}

	r.feedback(cmd)
	return cmd, nil
}

func (r *Runner) cycle() (types.Joints, error) {
	r.joints.Time = time.Now()
	if err := r.ctrl.Model.Update(r.joints, r.base); err != nil {
		return types.Joints{}, fmt.Errorf("update robot model: %w", err)
	}
	if err := r.ctrl.Scene.Update(); err != nil {
		return types.Joints{}, fmt.Errorf("update scene: %w", err)
	}
	if err := r.ctrl.Scene.Solve(r.ctrl.Scene.HierarchicalQP()); err != nil {
		return types.Joints{}, fmt.Errorf("solve: %w", err)
	}
	r.ctrl.Scene.UpdateTasksStatus()
	return r.ctrl.Scene.SolverOutput(), nil
}

// feedback copies commanded positions and speeds into the state; NaN fields are skipped
func (r *Runner) feedback(cmd types.Joints) {
	for i, name := range cmd.Names {
		idx := r.joints.Index(name)
		if idx < 0 {
			continue
		}
		c := cmd.Elements[i]
		s := r.joints.Elements[idx]
		if !math.IsNaN(c.Position) {
			s.Position = c.Position
		}
		if !math.IsNaN(c.Speed) {
			s.Speed = c.Speed
		}
		r.joints.Elements[idx] = s
	}
}

// Run performs n cycles. Failed cycles are counted; unless StopOnError is set the
// run continues with the unchanged state.
func (r *Runner) Run(ctx context.Context, n int) (Summary, error) {
	if n <= 0 {
		return Summary{}, ErrNoCycles
	}

	name := filepath.Base(r.ctrl.File.RobotModel.File)
	ctx = wcontext.WithScene(ctx, string(r.ctrl.File.Scene.Type))
	if r.opts.Recorder != nil {
		runID, err := r.opts.Recorder.StartRun(name, r.ctrl.File.Scene.Type)
		if err != nil {
			return Summary{}, err
		}
		ctx = wcontext.WithRunID(ctx, runID)
	}
	ctx = wcontext.EnrichContext(ctx)
	log := logger.WithContext(ctx, r.logger)

	summary := Summary{RunID: wcontext.GetRunID(ctx)}
	start := time.Now()
	log.Info("Starting cycles", logger.WithField("cycles", n))

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		summary.Cycles++
		if _, err := r.RunCycle(ctx); err != nil {
			if summary.Failures == 0 && r.opts.Notifier != nil {
				r.opts.Notifier.NotifySolveFailure(name, err)
			}
			summary.Failures++
			summary.LastErr = err
			if r.opts.StopOnError {
				break
			}
		}
	}

	summary.Duration = time.Since(start)
	if r.opts.Notifier != nil {
		r.opts.Notifier.NotifyCycleSummary(summary.Cycles, summary.Failures, summary.Duration)
	}
	if summary.Failures > 0 {
		log.Warn("Cycles finished with failures",
			logger.WithField("cycles", summary.Cycles),
			logger.WithField("failures", summary.Failures))
		if r.opts.StopOnError {
			return summary, summary.LastErr
		}
		return summary, nil
	}
	log.Success("Cycles finished", logger.WithField("cycles", summary.Cycles))
	return summary, nil
}
