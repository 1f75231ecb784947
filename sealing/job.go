package sealing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/ipfs-force-community/venus-worker/api"
	"github.com/ipfs-force-community/venus-worker/lib/piecefetch"
	"github.com/ipfs-force-community/venus-worker/lib/statestore"
	"github.com/ipfs-force-community/venus-worker/prover"
	"github.com/ipfs-force-community/venus-worker/sealing/failure"
	"github.com/ipfs-force-community/venus-worker/sealing/sealiface"
)

var log = logging.Logger("sealing")

// GetSealingConfigFunc lets config changes take effect between executor
// actions without restarting the worker.
type GetSealingConfigFunc func() sealiface.Config

// JobDeps are the shared collaborators a Job needs. The SealerAPI handle and
// prover may be shared across jobs; the batch document is exclusive.
type JobDeps struct {
	Sealer    api.SealerAPI
	Prover    prover.Prover
	Persist   prover.PersistStore
	Fetcher   *piecefetch.Fetcher
	GetConfig GetSealingConfigFunc
	Ident     api.WorkerIdentifier
}

// Job is the composition root for one batch: the persisted batch record, an
// RPC handle, the proving collaborators and a cancellation-aware context.
// A Job is owned by exactly one worker goroutine for its entire lifetime.
type Job struct {
	id uuid.UUID

	ctx     context.Context
	sectors *statestore.Doc[Sectors]

	sealer    api.SealerAPI
	prover    prover.Prover
	persist   prover.PersistStore
	fetcher   *piecefetch.Fetcher
	getConfig GetSealingConfigFunc
	ident     api.WorkerIdentifier
}

// NewJob loads the batch document keyed by id, initializing a fresh
// batchSize-sector batch when none exists yet.
func NewJob(ctx context.Context, ds datastore.Batching, id uuid.UUID, batchSize int, deps JobDeps) (*Job, error) {
	if batchSize <= 0 {
		return nil, xerrors.Errorf("invalid batch size %d", batchSize)
	}

	doc := statestore.NewDoc[Sectors](ds, datastore.NewKey(fmt.Sprintf("/sealing-job/%s", id)))

	found, err := doc.Load(ctx)
	if err != nil {
		return nil, xerrors.Errorf("load batch document: %w", err)
	}
	if !found {
		if err := doc.Init(newSectors(batchSize)); err != nil {
			return nil, err
		}
		if err := doc.Commit(ctx); err != nil {
			return nil, xerrors.Errorf("persist fresh batch document: %w", err)
		}
	} else if doc.Val().BatchSize != batchSize {
		// batch size is fixed at creation; a restarted job keeps the
		// recorded size
		log.Warnw("batch size differs from persisted document, keeping persisted",
			"job", id, "configured", batchSize, "persisted", doc.Val().BatchSize)
	}

	return &Job{
		id:        id,
		ctx:       ctx,
		sectors:   doc,
		sealer:    deps.Sealer,
		prover:    deps.Prover,
		persist:   deps.Persist,
		fetcher:   deps.Fetcher,
		getConfig: deps.GetConfig,
		ident:     deps.Ident,
	}, nil
}

func (j *Job) ID() uuid.UUID { return j.id }

func (j *Job) State() State { return j.sectors.Val().State }

func (j *Job) BatchSize() int { return j.sectors.Val().BatchSize }

func (j *Job) config() sealiface.Config { return j.getConfig() }

// Sector returns the sector at index for reading. Indices are stable for
// the batch's lifetime.
func (j *Job) Sector(index int) (*Sector, error) {
	s := j.sectors.Val()
	if index < 0 || index >= len(s.Sectors) {
		return nil, xerrors.Errorf("sector index out of bounds: %d", index)
	}
	return &s.Sectors[index], nil
}

// Delete removes the persisted batch record, freeing the slot for a fresh
// batch under the same id.
func (j *Job) Delete(ctx context.Context) error {
	return j.sectors.Delete(ctx)
}

// waitOrInterrupted sleeps for d unless the job is stopped first. A cut
// short wait reports failure.ErrInterrupted, distinct from an elapsed
// timer, so the driver can wind down without touching persisted state.
func (j *Job) waitOrInterrupted(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-j.ctx.Done():
		return failure.Abort(failure.ErrInterrupted)
	case <-t.C:
		return nil
	}
}
