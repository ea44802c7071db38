package engine

import (
	"context"
	"runtime"

	"github.com/wholebody/wbc/pkg/config"
	"github.com/wholebody/wbc/pkg/logger"
)

// Report is the validation outcome of one scene file
type Report struct {
	Path        string
	Constraints int
	Joints      int
	Actuated    int
	Err         error
}

// ValidateAll loads every scene file and builds its controller, with at most limit files
// in flight. limit <= 0 uses the number of CPUs. Reports follow the order of paths; the
// returned error is only set when ctx is cancelled.
func ValidateAll(ctx context.Context, paths []string, limit int, log logger.Logger) ([]Report, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	reports := make([]Report, len(paths))
	group, gctx := NewSafeGroup(ctx, log)
	group.SetLimit(limit)

	for i, path := range paths {
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = validateOne(path, log)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

func validateOne(path string, log logger.Logger) Report {
	report := Report{Path: path}

	mgr := config.NewManager()
	file, err := mgr.LoadConfig(path)
	if err != nil {
		report.Err = err
		return report
	}
	report.Constraints = len(file.Constraints)

	ctrl, err := NewDependencyFactory(mgr, log).CreateController(file)
	if err != nil {
		report.Err = err
		return report
	}
	report.Joints = ctrl.Model.NoOfJoints()
	report.Actuated = ctrl.Model.NoOfActuatedJoints()
	return report
}
