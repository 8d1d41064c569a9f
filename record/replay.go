package record

import (
	"context"

	"github.com/cockroachdb/errors"

	"simcheck/logger"
	"simcheck/remoteApp"
)

var plog = logger.GetLogger("record")

// ErrReplayDiverged is returned when the replayed application does not do
// what the trace recorded.
var ErrReplayDiverged = remoteApp.ErrReplayDiverged

// Replay runs trace against a fresh application instance and reports how the
// run ended. A trace that ends while actors are still enabled is reported as
// a Success.
func Replay(ctx context.Context, launcher remoteApp.Launcher, trace RecordTrace) (ExitStatus, error) {
	app, err := launcher.Launch(ctx)
	if err != nil {
		return Success, errors.Wrap(err, "launching the application")
	}
	status, err := replay(app, trace)
	if status == ProgramCrash {
		_ = app.Close()
	} else if serr := app.Shutdown(); err == nil && serr != nil {
		err = serr
	}
	return status, err
}

func replay(app *remoteApp.RemoteApp, trace RecordTrace) (ExitStatus, error) {
	for i, s := range trace.Steps {
		got, err := app.ExecuteSimcall(s.Aid, s.Times)
		switch {
		case errors.Is(err, remoteApp.ErrAssertionFailed):
			plog.Infof("replay: assertion failed at step %d (%d/%d)", i, s.Aid, s.Times)
			return Safety, nil
		case errors.Is(err, remoteApp.ErrAppCrashed):
			plog.Infof("replay: application crashed at step %d (%d/%d)", i, s.Aid, s.Times)
			return ProgramCrash, nil
		case err != nil:
			return Success, errors.Wrapf(err, "replaying step %d", i)
		}
		if s.Transition != nil && !got.Equal(s.Transition) {
			return Success, errors.Wrapf(ErrReplayDiverged, "step %d: got %v, want %v", i, got, s.Transition)
		}
		plog.Debugf("replay: %v", got)
	}
	deadlock, err := app.CheckDeadlock()
	if err != nil {
		return Success, err
	}
	if deadlock {
		plog.Infof("replay: deadlock after %d steps", len(trace.Steps))
		return Deadlock, nil
	}
	return Success, nil
}
