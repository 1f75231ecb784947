package api

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"
)

// SealerStruct mirrors SealerAPI with function fields so it can be populated
// by the jsonrpc client.
type SealerStruct struct {
	Internal struct {
		AllocateSectorsBatch func(ctx context.Context, spec AllocateSectorSpec, count uint32) ([]*AllocatedSector, error)
		AcquireDeals         func(ctx context.Context, sid abi.SectorID, spec AcquireDealsSpec) (Deals, error)
		AssignTicket         func(ctx context.Context, sid abi.SectorID) (Ticket, error)
		SubmitPreCommit      func(ctx context.Context, sector AllocatedSector, info PreCommitOnChainInfo, reset bool) (SubmitPreCommitResp, error)
		PollPreCommitState   func(ctx context.Context, sid abi.SectorID) (PollPreCommitStateResp, error)
		SubmitPersistedEx    func(ctx context.Context, sid abi.SectorID, instance string, isUpgrade bool) (bool, error)
		WaitSeed             func(ctx context.Context, sid abi.SectorID) (WaitSeedResp, error)
		SubmitProof          func(ctx context.Context, sid abi.SectorID, info ProofOnChainInfo, reset bool) (SubmitProofResp, error)
		PollProofState       func(ctx context.Context, sid abi.SectorID) (PollProofStateResp, error)
	}
}

func (s *SealerStruct) AllocateSectorsBatch(ctx context.Context, spec AllocateSectorSpec, count uint32) ([]*AllocatedSector, error) {
	return s.Internal.AllocateSectorsBatch(ctx, spec, count)
}

func (s *SealerStruct) AcquireDeals(ctx context.Context, sid abi.SectorID, spec AcquireDealsSpec) (Deals, error) {
	return s.Internal.AcquireDeals(ctx, sid, spec)
}

func (s *SealerStruct) AssignTicket(ctx context.Context, sid abi.SectorID) (Ticket, error) {
	return s.Internal.AssignTicket(ctx, sid)
}

func (s *SealerStruct) SubmitPreCommit(ctx context.Context, sector AllocatedSector, info PreCommitOnChainInfo, reset bool) (SubmitPreCommitResp, error) {
	return s.Internal.SubmitPreCommit(ctx, sector, info, reset)
}

func (s *SealerStruct) PollPreCommitState(ctx context.Context, sid abi.SectorID) (PollPreCommitStateResp, error) {
	return s.Internal.PollPreCommitState(ctx, sid)
}

func (s *SealerStruct) SubmitPersistedEx(ctx context.Context, sid abi.SectorID, instance string, isUpgrade bool) (bool, error) {
	return s.Internal.SubmitPersistedEx(ctx, sid, instance, isUpgrade)
}

func (s *SealerStruct) WaitSeed(ctx context.Context, sid abi.SectorID) (WaitSeedResp, error) {
	return s.Internal.WaitSeed(ctx, sid)
}

func (s *SealerStruct) SubmitProof(ctx context.Context, sid abi.SectorID, info ProofOnChainInfo, reset bool) (SubmitProofResp, error) {
	return s.Internal.SubmitProof(ctx, sid, info, reset)
}

func (s *SealerStruct) PollProofState(ctx context.Context, sid abi.SectorID) (PollProofStateResp, error) {
	return s.Internal.PollProofState(ctx, sid)
}

var _ SealerAPI = &SealerStruct{}
