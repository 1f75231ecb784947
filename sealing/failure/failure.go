package failure

import (
	"errors"
	"fmt"

	"golang.org/x/xerrors"
)

// Level classifies how an action's error must be handled by the driver.
type Level int

const (
	// LevelTemp marks transient conditions; the same state is retried
	// after backoff.
	LevelTemp Level = iota + 1
	// LevelPerm marks errors the sector can never recover from; the batch
	// moves to Aborted.
	LevelPerm
	// LevelCrit marks invariant violations; the worker halts for this
	// batch without touching persisted state.
	LevelCrit
	// LevelAbort marks an explicit, intended termination. Same terminal
	// effect as LevelPerm, different intent.
	LevelAbort
)

func (l Level) String() string {
	switch l {
	case LevelTemp:
		return "temporary"
	case LevelPerm:
		return "permanent"
	case LevelCrit:
		return "critical"
	case LevelAbort:
		return "abort"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ErrTaskAborted is raised when the executor is asked to act on an already
// aborted batch.
var ErrTaskAborted = errors.New("task aborted")

// ErrInterrupted is raised when a cancellable wait is cut short by the
// worker's stop signal, as opposed to the timer elapsing.
var ErrInterrupted = errors.New("sealing interrupted")

// Failure attaches a Level to an underlying error.
type Failure struct {
	Lvl Level
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Lvl, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func wrap(l Level, err error) error {
	if err == nil {
		return nil
	}
	return &Failure{Lvl: l, Err: err}
}

func Temp(err error) error  { return wrap(LevelTemp, err) }
func Perm(err error) error  { return wrap(LevelPerm, err) }
func Crit(err error) error  { return wrap(LevelCrit, err) }
func Abort(err error) error { return wrap(LevelAbort, err) }

func Tempf(format string, args ...interface{}) error {
	return Temp(xerrors.Errorf(format, args...))
}

func Permf(format string, args ...interface{}) error {
	return Perm(xerrors.Errorf(format, args...))
}

func Critf(format string, args ...interface{}) error {
	return Crit(xerrors.Errorf(format, args...))
}

func Abortf(format string, args ...interface{}) error {
	return Abort(xerrors.Errorf(format, args...))
}

// LevelOf extracts the classification from err. Unclassified errors are
// treated as temporary so that plain transport errors get retried.
func LevelOf(err error) Level {
	var f *Failure
	if errors.As(err, &f) {
		return f.Lvl
	}
	return LevelTemp
}
