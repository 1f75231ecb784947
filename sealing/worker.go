package sealing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/xerrors"

	"github.com/ipfs-force-community/venus-worker/metrics"
	"github.com/ipfs-force-community/venus-worker/sealing/failure"
)

// Worker drives one batch through the pipeline: exec, plan, apply, commit,
// repeat. One goroutine per worker, no internal parallelism; the only
// shared collaborator is the RPC handle.
type Worker struct {
	job     *Job
	planner Planner
}

func NewWorker(job *Job) (*Worker, error) {
	planner, err := NewPlanner(PlannerBatch, job.BatchSize())
	if err != nil {
		return nil, err
	}

	return &Worker{job: job, planner: planner}, nil
}

// Run loops until the batch reaches a terminal state, a critical failure
// halts it, or the context is cancelled. The returned error is nil only for
// a fully finished batch.
func (w *Worker) Run(ctx context.Context) error {
	bo := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		st := w.job.State()

		evt, err := w.planner.Exec(ctx, w.job)
		if err != nil {
			lvl := failure.LevelOf(err)
			metrics.RecordFailure(ctx, w.planner.Name(), lvl.String())

			switch lvl {
			case failure.LevelTemp:
				d := bo.Duration()
				log.Warnw("temporary failure, retrying", "job", w.job.id, "state", st, "retry-in", d, "err", err)
				if werr := w.job.waitOrInterrupted(d); werr != nil {
					return werr
				}
				continue

			case failure.LevelPerm, failure.LevelAbort:
				// an interrupted wait is a shutdown, not a batch failure;
				// leave the persisted state untouched so a restart resumes
				if errors.Is(err, failure.ErrInterrupted) {
					log.Infow("sealing interrupted", "job", w.job.id, "state", st)
					return err
				}

				log.Errorw("sealing aborted", "job", w.job.id, "state", st, "level", lvl, "err", err)
				if st.Phase != PhaseAborted {
					if aerr := w.abort(ctx, st); aerr != nil {
						return aerr
					}
				}
				return err

			default:
				log.Errorw("critical failure, halting batch", "job", w.job.id, "state", st, "err", err)
				return err
			}
		}

		bo.Reset()

		if evt == nil {
			log.Infow("batch finished", "job", w.job.id)
			return nil
		}

		if _, idle := evt.(Idle); idle {
			cfg := w.job.config()
			metrics.RecordIdle(ctx, w.planner.Name())
			log.Debugw("no task available, idling", "job", w.job.id, "state", st, "interval", cfg.IdleInterval)
			if werr := w.job.waitOrInterrupted(cfg.IdleInterval); werr != nil {
				return werr
			}
			continue
		}

		next, err := w.commit(ctx, evt, st)
		if err != nil {
			log.Errorw("critical failure, halting batch", "job", w.job.id, "state", st, "err", err)
			return err
		}

		metrics.RecordTransition(ctx, w.planner.Name(), string(next.Phase))
		log.Infow("state transition", "job", w.job.id, "from", st, "to", next, "event", fmt.Sprintf("%T", evt))
	}
}

// commit runs plan, applies the event and persists the record. Planner
// errors are always critical; a failed apply or persist leaves the durable
// copy at the previous state, which exec re-derives deterministically.
func (w *Worker) commit(ctx context.Context, evt Event, st State) (State, error) {
	next, err := w.planner.Plan(evt, st)
	if err != nil {
		return State{}, failure.Crit(xerrors.Errorf("plan: %w", err))
	}

	if err := w.planner.Apply(evt, next, w.job); err != nil {
		return State{}, failure.Crit(xerrors.Errorf("apply event: %w", err))
	}

	if err := w.job.sectors.Commit(ctx); err != nil {
		return State{}, failure.Crit(xerrors.Errorf("commit batch document: %w", err))
	}

	return next, nil
}

func (w *Worker) abort(ctx context.Context, st State) error {
	_, err := w.commit(ctx, SetState{State: at(PhaseAborted, 0)}, st)
	return err
}
