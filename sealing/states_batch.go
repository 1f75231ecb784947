package sealing

import (
	"context"
	"io"
	"time"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/ipfs-force-community/venus-worker/api"
	"github.com/ipfs-force-community/venus-worker/lib/nullreader"
	"github.com/ipfs-force-community/venus-worker/prover"
	"github.com/ipfs-force-community/venus-worker/sealing/failure"
)

// Exec dispatches on the current state: an indexed phase that has not
// reached the last sector continues with the next index; the last index
// advances into the following phase. Sectors move through the pipeline
// breadth-first, so whole-batch phases only start once every sector cleared
// the per-sector bookkeeping before them.
func (p *batchPlanner) Exec(ctx context.Context, job *Job) (Event, error) {
	st := job.State()
	last := job.BatchSize() - 1

	h := &batchSealer{job: job}

	switch st.Phase {
	case PhaseEmpty:
		return h.allocate(ctx)

	case PhaseAllocated:
		return h.acquireDeals(ctx, 0)
	case PhaseDealsAcquired:
		if st.Index < last {
			return h.acquireDeals(ctx, st.Index+1)
		}
		return h.addPieces(ctx, 0)
	case PhasePieceAdded:
		if st.Index < last {
			return h.addPieces(ctx, st.Index+1)
		}
		return h.buildTreeD(ctx, 0)
	case PhaseTreeDBuilt:
		if st.Index < last {
			return h.buildTreeD(ctx, st.Index+1)
		}
		return h.assignTicket(ctx)

	case PhaseTicketAssigned:
		return h.pc1(ctx)
	case PhasePC1Done:
		return h.pc2(ctx)

	case PhasePC2Done:
		return h.submitPreCommit(ctx, 0)
	case PhasePCSubmitted:
		if st.Index < last {
			return h.submitPreCommit(ctx, st.Index+1)
		}
		return h.checkPreCommitState(ctx, 0)
	case PhasePCLanded:
		if st.Index < last {
			return h.checkPreCommitState(ctx, st.Index+1)
		}
		return h.persistSectorFiles(ctx, 0)
	case PhasePersisted:
		if st.Index < last {
			return h.persistSectorFiles(ctx, st.Index+1)
		}
		return h.submitPersisted(ctx, 0)
	case PhasePersistanceSubmitted:
		if st.Index < last {
			return h.submitPersisted(ctx, st.Index+1)
		}
		return h.waitSeed(ctx, 0)
	case PhaseSeedAssigned:
		if st.Index < last {
			return h.waitSeed(ctx, st.Index+1)
		}
		return h.commit1(ctx)

	case PhaseC1Done:
		return h.commit2(ctx, 0)
	case PhaseC2Done:
		if st.Index < last {
			return h.commit2(ctx, st.Index+1)
		}
		return h.submitProof(ctx, 0)
	case PhaseProofSubmitted:
		if st.Index < last {
			return h.submitProof(ctx, st.Index+1)
		}
		return h.checkProofState(ctx, 0)
	case PhaseFinished:
		if st.Index < last {
			return h.checkProofState(ctx, st.Index+1)
		}
		return nil, nil

	case PhaseAborted:
		return nil, failure.Abort(failure.ErrTaskAborted)
	}

	return nil, failure.Critf("unexpected state %s", st)
}

type batchSealer struct {
	job *Job
}

func (b *batchSealer) allocate(ctx context.Context) (Event, error) {
	cfg := b.job.config()

	allocated, err := b.job.sealer.AllocateSectorsBatch(ctx, api.AllocateSectorSpec{
		AllowedMiners:     cfg.AllowedMiners,
		AllowedProofTypes: cfg.AllowedProofTypes,
	}, uint32(b.job.BatchSize()))
	if err != nil {
		// allocation is retried from scratch, rpc errors here are not
		// worth failing the batch for
		log.Warnw("sectors not allocated yet, retrying later", "err", err)
		return Idle{}, nil
	}

	if len(allocated) == 0 {
		return Idle{}, nil
	}

	return Allocate{Sectors: allocated}, nil
}

func (b *batchSealer) acquireDeals(ctx context.Context, index int) (Event, error) {
	cfg := b.job.config()

	if !cfg.EnableDeals {
		if cfg.DisableCC {
			return Idle{}, nil
		}
		// no deals for any sector; complete the phase for the whole
		// batch in one step
		return AcquireDeals{Index: b.job.BatchSize() - 1}, nil
	}

	sector, err := b.job.Sector(index)
	if err != nil {
		return nil, failure.Crit(err)
	}
	if sector.Base == nil {
		return nil, failure.Critf("sector %d: base required", index)
	}

	deals, err := b.job.sealer.AcquireDeals(ctx, sector.Base.Allocated.ID, api.AcquireDealsSpec{
		MaxDeals:     cfg.MaxDeals,
		MinUsedSpace: cfg.MinDealSpace,
	})
	if err != nil {
		return nil, failure.Temp(xerrors.Errorf("acquire deals: %w", err))
	}

	log.Debugw("deals acquired", "sector", index, "count", len(deals))

	if !cfg.DisableCC && len(deals) == 0 {
		return Idle{}, nil
	}

	return AcquireDeals{Index: index, Deals: deals}, nil
}

func (b *batchSealer) addPieces(ctx context.Context, index int) (Event, error) {
	sector, err := b.job.Sector(index)
	if err != nil {
		return nil, failure.Crit(err)
	}
	if sector.Base == nil {
		return nil, failure.Critf("sector %d: base required", index)
	}

	ref := sector.Base.ProveInput

	ssize, err := ref.ProofType.SectorSize()
	if err != nil {
		return nil, failure.Crit(xerrors.Errorf("sector size for %v: %w", ref.ProofType, err))
	}

	if len(sector.Deals) == 0 {
		// committed capacity: one full-size zero piece
		pieceSize := abi.PaddedPieceSize(ssize).Unpadded()
		pi, err := b.job.prover.AddPiece(ctx, ref, nil, pieceSize, nullreader.NewNullReader(pieceSize))
		if err != nil {
			return nil, failure.Temp(xerrors.Errorf("add pledge piece: %w", err))
		}
		return AddPiece{Index: index, Pieces: []abi.PieceInfo{pi}}, nil
	}

	var existing []abi.UnpaddedPieceSize
	pieces := make([]abi.PieceInfo, 0, len(sector.Deals))

	for di, deal := range sector.Deals {
		size := deal.Piece.Size.Unpadded()

		var src io.Reader
		if deal.PieceURL == "" {
			src = nullreader.NewNullReader(size)
		} else {
			rc, err := b.job.fetcher.Open(ctx, deal.PieceURL)
			if err != nil {
				return nil, failure.Temp(xerrors.Errorf("open piece %d for sector %d: %w", di, index, err))
			}
			defer rc.Close() // nolint:gocritic
			src = rc
		}

		pi, err := b.job.prover.AddPiece(ctx, ref, existing, size, src)
		if err != nil {
			return nil, failure.Temp(xerrors.Errorf("add piece %d for sector %d: %w", di, index, err))
		}

		existing = append(existing, size)
		pieces = append(pieces, pi)
	}

	return AddPiece{Index: index, Pieces: pieces}, nil
}

func (b *batchSealer) buildTreeD(ctx context.Context, index int) (Event, error) {
	sector, err := b.job.Sector(index)
	if err != nil {
		return nil, failure.Crit(err)
	}
	if sector.Base == nil {
		return nil, failure.Critf("sector %d: base required", index)
	}
	if len(sector.Phases.Pieces) == 0 {
		return nil, failure.Critf("sector %d: pieces required", index)
	}

	unsealed, err := b.job.prover.BuildTreeD(ctx, sector.Base.ProveInput, sector.Phases.Pieces)
	if err != nil {
		return nil, failure.Temp(xerrors.Errorf("build tree-d for sector %d: %w", index, err))
	}

	return BuildTreeD{Index: index, Unsealed: unsealed}, nil
}

func (b *batchSealer) assignTicket(ctx context.Context) (Event, error) {
	sector, err := b.job.Sector(0)
	if err != nil {
		return nil, failure.Crit(err)
	}
	if sector.Base == nil {
		return nil, failure.Crit(xerrors.New("sector base required"))
	}

	// reuse the persisted ticket when rebuilding sectors after a restart
	if sector.Phases.Ticket != nil {
		return AssignTicket{Ticket: *sector.Phases.Ticket}, nil
	}

	ticket, err := b.job.sealer.AssignTicket(ctx, sector.Base.Allocated.ID)
	if err != nil {
		return nil, failure.Temp(xerrors.Errorf("assign ticket: %w", err))
	}

	log.Debugw("ticket assigned from sector-manager", "epoch", ticket.Epoch)

	return AssignTicket{Ticket: ticket}, nil
}

func (b *batchSealer) pc1(ctx context.Context) (Event, error) {
	s := b.job.sectors.Val()

	outs := make([]prover.PreCommit1Out, 0, len(s.Sectors))
	var ticket *api.Ticket

	for i := range s.Sectors {
		sector := &s.Sectors[i]
		if sector.Base == nil {
			return nil, failure.Critf("sector %d: base required", i)
		}
		if sector.Phases.Ticket == nil {
			return nil, failure.Critf("sector %d: ticket required", i)
		}
		if len(sector.Phases.Pieces) == 0 {
			return nil, failure.Critf("sector %d: pieces required", i)
		}
		if ticket == nil {
			ticket = sector.Phases.Ticket
		}

		out, err := b.job.prover.SealPreCommit1(ctx, sector.Base.ProveInput, sector.Phases.Ticket.Ticket, sector.Phases.Pieces)
		if err != nil {
			return nil, failure.Temp(xerrors.Errorf("pc1 for sector %d: %w", i, err))
		}

		outs = append(outs, out)
	}

	return PC1{Ticket: *ticket, Outs: outs}, nil
}

func (b *batchSealer) pc2(ctx context.Context) (Event, error) {
	s := b.job.sectors.Val()

	outs := make([]prover.SectorCids, 0, len(s.Sectors))

	for i := range s.Sectors {
		sector := &s.Sectors[i]
		if sector.Base == nil {
			return nil, failure.Critf("sector %d: base required", i)
		}
		if len(sector.Phases.PC1Out) == 0 {
			return nil, failure.Critf("sector %d: pc1 output required", i)
		}

		cids, err := b.job.prover.SealPreCommit2(ctx, sector.Base.ProveInput, sector.Phases.PC1Out)
		if err != nil {
			return nil, failure.Temp(xerrors.Errorf("pc2 for sector %d: %w", i, err))
		}

		outs = append(outs, cids)
	}

	return PC2{Outs: outs}, nil
}

func (b *batchSealer) submitPreCommit(ctx context.Context, index int) (Event, error) {
	sector, err := b.job.Sector(index)
	if err != nil {
		return nil, failure.Crit(err)
	}
	if sector.Base == nil || sector.Phases.PC2Out == nil || sector.Phases.Ticket == nil {
		return nil, failure.Critf("sector %d: PC2 not completed", index)
	}

	deals := make([]abi.DealID, 0, len(sector.Deals))
	for _, deal := range sector.Deals {
		deals = append(deals, deal.DealID)
	}

	pinfo := api.PreCommitOnChainInfo{
		CommR:  sector.Phases.PC2Out.Sealed,
		CommD:  sector.Phases.PC2Out.Unsealed,
		Ticket: *sector.Phases.Ticket,
		Deals:  deals,
	}

	res, err := b.job.sealer.SubmitPreCommit(ctx, sector.Base.Allocated, pinfo, sector.Phases.PC2ReSubmit)
	if err != nil {
		return nil, failure.Temp(xerrors.Errorf("submit pre commit: %w", err))
	}

	switch res.Res {
	case api.SubmitAccepted, api.SubmitDuplicateSubmit:
		return SubmitPC{Index: index}, nil

	case api.SubmitMismatchedSubmission:
		return nil, failure.Permf("%s: %s", res.Res, strDesc(res.Desc))

	case api.SubmitRejected:
		return nil, failure.Abortf("%s: %s", res.Res, strDesc(res.Desc))

	case api.SubmitFilesMissed:
		return nil, failure.Permf("FilesMissed should not happen for pc2 submission: %s", strDesc(res.Desc))

	default:
		return nil, failure.Critf("unexpected submit result %d: %s", res.Res, strDesc(res.Desc))
	}
}

func (b *batchSealer) checkPreCommitState(ctx context.Context, index int) (Event, error) {
	sector, err := b.job.Sector(index)
	if err != nil {
		return nil, failure.Crit(err)
	}
	if sector.Base == nil {
		return nil, failure.Critf("sector %d: base required", index)
	}

	cfg := b.job.config()
	sid := sector.Base.Allocated.ID

	for {
		state, err := b.job.sealer.PollPreCommitState(ctx, sid)
		if err != nil {
			return nil, failure.Temp(xerrors.Errorf("poll pre commit state: %w", err))
		}

		switch state.State {
		case api.OnChainLanded:
			log.Debugw("pre commit landed", "sector", index)
			return CheckPC{Index: index}, nil

		case api.OnChainNotFound:
			return nil, failure.Perm(xerrors.New("pre commit on-chain info not found"))

		case api.OnChainFailed:
			log.Warnw("pre commit on-chain info failed", "sector", index, "desc", strDesc(state.Desc))
			if err := b.job.waitOrInterrupted(cfg.RecoverCooldown); err != nil {
				return nil, err
			}
			return ReSubmitPC{Index: index}, nil

		case api.OnChainPermFailed:
			return nil, failure.Permf("pre commit on-chain info permanent failed: %s", strDesc(state.Desc))

		case api.OnChainShouldAbort:
			return nil, failure.Abortf("pre commit info will not get on-chain: %s", strDesc(state.Desc))

		case api.OnChainPending, api.OnChainPacked:

		default:
			return nil, failure.Critf("unexpected on-chain state %d", state.State)
		}

		log.Debugw("waiting for next round of polling pre commit state",
			"sector", index, "state", state.State, "interval", cfg.RPCPollingInterval)

		if err := b.job.waitOrInterrupted(cfg.RPCPollingInterval); err != nil {
			return nil, err
		}
	}
}

func (b *batchSealer) persistSectorFiles(ctx context.Context, index int) (Event, error) {
	sector, err := b.job.Sector(index)
	if err != nil {
		return nil, failure.Crit(err)
	}
	if sector.Base == nil {
		return nil, failure.Critf("sector %d: base required", index)
	}

	instance, err := b.job.persist.PersistSector(ctx, sector.Base.ProveInput)
	if err != nil {
		return nil, failure.Temp(xerrors.Errorf("persist sector %d files: %w", index, err))
	}

	log.Debugw("sector files persisted", "sector", index, "instance", instance)

	return Persist{Index: index, Instance: instance}, nil
}

func (b *batchSealer) submitPersisted(ctx context.Context, index int) (Event, error) {
	sector, err := b.job.Sector(index)
	if err != nil {
		return nil, failure.Crit(err)
	}
	if sector.Base == nil {
		return nil, failure.Critf("sector %d: base required", index)
	}
	if sector.Phases.PersistInstance == "" {
		return nil, failure.Critf("sector %d: persist instance required", index)
	}

	checked, err := b.job.sealer.SubmitPersistedEx(ctx, sector.Base.Allocated.ID, sector.Phases.PersistInstance, false)
	if err != nil {
		return nil, failure.Temp(xerrors.Errorf("submit persisted: %w", err))
	}

	if !checked {
		return nil, failure.Perm(xerrors.New("sector files are persisted but unavailable for sealer"))
	}

	return SubmitPersistance{Index: index}, nil
}

func (b *batchSealer) waitSeed(ctx context.Context, index int) (Event, error) {
	sector, err := b.job.Sector(index)
	if err != nil {
		return nil, failure.Crit(err)
	}
	if sector.Base == nil {
		return nil, failure.Critf("sector %d: base required", index)
	}

	sid := sector.Base.Allocated.ID

	for {
		wait, err := b.job.sealer.WaitSeed(ctx, sid)
		if err != nil {
			return nil, failure.Temp(xerrors.Errorf("wait seed: %w", err))
		}

		if wait.Seed != nil {
			return AssignSeed{Index: index, Seed: *wait.Seed}, nil
		}

		if !wait.ShouldWait || wait.Delay == 0 {
			return nil, failure.Temp(xerrors.New("invalid empty wait_seed response"))
		}

		delay := time.Duration(wait.Delay) * time.Second

		log.Debugw("waiting for next round of polling seed", "sector", index, "delay", delay)

		if err := b.job.waitOrInterrupted(delay); err != nil {
			return nil, err
		}
	}
}

func (b *batchSealer) commit1(ctx context.Context) (Event, error) {
	s := b.job.sectors.Val()

	outs := make([]prover.Commit1Out, 0, len(s.Sectors))

	for i := range s.Sectors {
		sector := &s.Sectors[i]
		if sector.Base == nil {
			return nil, failure.Critf("sector %d: base required", i)
		}
		if sector.Phases.Ticket == nil {
			return nil, failure.Critf("sector %d: ticket required", i)
		}
		if sector.Phases.Seed == nil {
			return nil, failure.Critf("sector %d: seed required", i)
		}
		if sector.Phases.PC2Out == nil {
			return nil, failure.Critf("sector %d: pc2 output required", i)
		}

		out, err := b.job.prover.SealCommit1(ctx, sector.Base.ProveInput,
			sector.Phases.Ticket.Ticket, sector.Phases.Seed.Seed,
			sector.Phases.Pieces, *sector.Phases.PC2Out)
		if err != nil {
			return nil, failure.Temp(xerrors.Errorf("c1 for sector %d: %w", i, err))
		}

		outs = append(outs, out)
	}

	return C1{Outs: outs}, nil
}

func (b *batchSealer) commit2(ctx context.Context, index int) (Event, error) {
	sector, err := b.job.Sector(index)
	if err != nil {
		return nil, failure.Crit(err)
	}
	if sector.Base == nil {
		return nil, failure.Critf("sector %d: base required", index)
	}
	if len(sector.Phases.C1Out) == 0 {
		return nil, failure.Critf("sector %d: c1 output required", index)
	}

	out, err := b.job.prover.SealCommit2(ctx, sector.Base.ProveInput, sector.Phases.C1Out)
	if err != nil {
		return nil, failure.Temp(xerrors.Errorf("c2 for sector %d: %w", index, err))
	}

	return C2{Index: index, Out: out}, nil
}

func (b *batchSealer) submitProof(ctx context.Context, index int) (Event, error) {
	sector, err := b.job.Sector(index)
	if err != nil {
		return nil, failure.Crit(err)
	}
	if sector.Base == nil {
		return nil, failure.Critf("sector %d: base required", index)
	}
	if len(sector.Phases.C2Out) == 0 {
		return nil, failure.Critf("sector %d: c2 output required", index)
	}

	res, err := b.job.sealer.SubmitProof(ctx, sector.Base.Allocated.ID,
		api.ProofOnChainInfo{Proof: sector.Phases.C2Out}, sector.Phases.C2ReSubmit)
	if err != nil {
		return nil, failure.Temp(xerrors.Errorf("submit proof: %w", err))
	}

	switch res.Res {
	case api.SubmitAccepted, api.SubmitDuplicateSubmit:
		return SubmitProof{Index: index}, nil

	case api.SubmitMismatchedSubmission:
		return nil, failure.Permf("%s: %s", res.Res, strDesc(res.Desc))

	case api.SubmitRejected:
		return nil, failure.Abortf("%s: %s", res.Res, strDesc(res.Desc))

	case api.SubmitFilesMissed:
		return nil, failure.Permf("FilesMissed is not handled currently: %s", strDesc(res.Desc))

	default:
		return nil, failure.Critf("unexpected submit result %d: %s", res.Res, strDesc(res.Desc))
	}
}

func (b *batchSealer) checkProofState(ctx context.Context, index int) (Event, error) {
	sector, err := b.job.Sector(index)
	if err != nil {
		return nil, failure.Crit(err)
	}
	if sector.Base == nil {
		return nil, failure.Critf("sector %d: base required", index)
	}

	cfg := b.job.config()
	sid := sector.Base.Allocated.ID

	if !cfg.IgnoreProofCheck {
		for {
			state, err := b.job.sealer.PollProofState(ctx, sid)
			if err != nil {
				return nil, failure.Temp(xerrors.Errorf("poll proof state: %w", err))
			}

			if state.State == api.OnChainLanded {
				log.Debugw("proof landed", "sector", index)
				break
			}

			switch state.State {
			case api.OnChainNotFound:
				return nil, failure.Perm(xerrors.New("proof on-chain info not found"))

			case api.OnChainFailed:
				log.Warnw("proof on-chain info failed", "sector", index, "desc", strDesc(state.Desc))
				if err := b.job.waitOrInterrupted(cfg.RecoverCooldown); err != nil {
					return nil, err
				}
				return ReSubmitProof{Index: index}, nil

			case api.OnChainPermFailed:
				return nil, failure.Permf("proof on-chain info permanent failed: %s", strDesc(state.Desc))

			case api.OnChainShouldAbort:
				return nil, failure.Abortf("sector will not get on-chain: %s", strDesc(state.Desc))

			case api.OnChainPending, api.OnChainPacked:

			default:
				return nil, failure.Critf("unexpected on-chain state %d", state.State)
			}

			log.Debugw("waiting for next round of polling proof state",
				"sector", index, "state", state.State, "interval", cfg.RPCPollingInterval)

			if err := b.job.waitOrInterrupted(cfg.RPCPollingInterval); err != nil {
				return nil, err
			}
		}
	}

	return Finish{Index: index}, nil
}

func strDesc(desc *string) string {
	if desc == nil {
		return ""
	}
	return *desc
}
