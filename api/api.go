package api

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"
)

// SealerAPI is the sector-manager RPC surface consumed by the worker. All
// calls are synchronous; retries and failure classification happen in the
// sealing package, not here.
type SealerAPI interface {
	AllocateSectorsBatch(ctx context.Context, spec AllocateSectorSpec, count uint32) ([]*AllocatedSector, error)

	AcquireDeals(ctx context.Context, sid abi.SectorID, spec AcquireDealsSpec) (Deals, error)

	AssignTicket(ctx context.Context, sid abi.SectorID) (Ticket, error)

	SubmitPreCommit(ctx context.Context, sector AllocatedSector, info PreCommitOnChainInfo, reset bool) (SubmitPreCommitResp, error)

	PollPreCommitState(ctx context.Context, sid abi.SectorID) (PollPreCommitStateResp, error)

	// SubmitPersistedEx asks the manager to verify that the sealed sector
	// files are retrievable from the named persist store instance.
	SubmitPersistedEx(ctx context.Context, sid abi.SectorID, instance string, isUpgrade bool) (bool, error)

	WaitSeed(ctx context.Context, sid abi.SectorID) (WaitSeedResp, error)

	SubmitProof(ctx context.Context, sid abi.SectorID, info ProofOnChainInfo, reset bool) (SubmitProofResp, error)

	PollProofState(ctx context.Context, sid abi.SectorID) (PollProofStateResp, error)
}
