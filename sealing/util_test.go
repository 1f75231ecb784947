package sealing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/ipfs-force-community/venus-worker/api"
	"github.com/ipfs-force-community/venus-worker/lib/piecefetch"
	"github.com/ipfs-force-community/venus-worker/prover/mock"
	"github.com/ipfs-force-community/venus-worker/sealing/sealiface"
)

const testProofType = abi.RegisteredSealProof_StackedDrg2KiBV1_1

// fakeSealer implements api.SealerAPI with overridable function fields;
// unset calls fail loudly.
type fakeSealer struct {
	allocate      func(ctx context.Context, spec api.AllocateSectorSpec, count uint32) ([]*api.AllocatedSector, error)
	acquireDeals  func(ctx context.Context, sid abi.SectorID, spec api.AcquireDealsSpec) (api.Deals, error)
	assignTicket  func(ctx context.Context, sid abi.SectorID) (api.Ticket, error)
	submitPC      func(ctx context.Context, sector api.AllocatedSector, info api.PreCommitOnChainInfo, reset bool) (api.SubmitPreCommitResp, error)
	pollPC        func(ctx context.Context, sid abi.SectorID) (api.PollPreCommitStateResp, error)
	submitPersist func(ctx context.Context, sid abi.SectorID, instance string, isUpgrade bool) (bool, error)
	waitSeed      func(ctx context.Context, sid abi.SectorID) (api.WaitSeedResp, error)
	submitProof   func(ctx context.Context, sid abi.SectorID, info api.ProofOnChainInfo, reset bool) (api.SubmitProofResp, error)
	pollProof     func(ctx context.Context, sid abi.SectorID) (api.PollProofStateResp, error)
}

func (f *fakeSealer) AllocateSectorsBatch(ctx context.Context, spec api.AllocateSectorSpec, count uint32) ([]*api.AllocatedSector, error) {
	if f.allocate == nil {
		return nil, xerrors.New("unexpected AllocateSectorsBatch")
	}
	return f.allocate(ctx, spec, count)
}

func (f *fakeSealer) AcquireDeals(ctx context.Context, sid abi.SectorID, spec api.AcquireDealsSpec) (api.Deals, error) {
	if f.acquireDeals == nil {
		return nil, xerrors.New("unexpected AcquireDeals")
	}
	return f.acquireDeals(ctx, sid, spec)
}

func (f *fakeSealer) AssignTicket(ctx context.Context, sid abi.SectorID) (api.Ticket, error) {
	if f.assignTicket == nil {
		return api.Ticket{}, xerrors.New("unexpected AssignTicket")
	}
	return f.assignTicket(ctx, sid)
}

func (f *fakeSealer) SubmitPreCommit(ctx context.Context, sector api.AllocatedSector, info api.PreCommitOnChainInfo, reset bool) (api.SubmitPreCommitResp, error) {
	if f.submitPC == nil {
		return api.SubmitPreCommitResp{}, xerrors.New("unexpected SubmitPreCommit")
	}
	return f.submitPC(ctx, sector, info, reset)
}

func (f *fakeSealer) PollPreCommitState(ctx context.Context, sid abi.SectorID) (api.PollPreCommitStateResp, error) {
	if f.pollPC == nil {
		return api.PollPreCommitStateResp{}, xerrors.New("unexpected PollPreCommitState")
	}
	return f.pollPC(ctx, sid)
}

func (f *fakeSealer) SubmitPersistedEx(ctx context.Context, sid abi.SectorID, instance string, isUpgrade bool) (bool, error) {
	if f.submitPersist == nil {
		return false, xerrors.New("unexpected SubmitPersistedEx")
	}
	return f.submitPersist(ctx, sid, instance, isUpgrade)
}

func (f *fakeSealer) WaitSeed(ctx context.Context, sid abi.SectorID) (api.WaitSeedResp, error) {
	if f.waitSeed == nil {
		return api.WaitSeedResp{}, xerrors.New("unexpected WaitSeed")
	}
	return f.waitSeed(ctx, sid)
}

func (f *fakeSealer) SubmitProof(ctx context.Context, sid abi.SectorID, info api.ProofOnChainInfo, reset bool) (api.SubmitProofResp, error) {
	if f.submitProof == nil {
		return api.SubmitProofResp{}, xerrors.New("unexpected SubmitProof")
	}
	return f.submitProof(ctx, sid, info, reset)
}

func (f *fakeSealer) PollProofState(ctx context.Context, sid abi.SectorID) (api.PollProofStateResp, error) {
	if f.pollProof == nil {
		return api.PollProofStateResp{}, xerrors.New("unexpected PollProofState")
	}
	return f.pollProof(ctx, sid)
}

var _ api.SealerAPI = &fakeSealer{}

func testConfig() sealiface.Config {
	return sealiface.Config{
		RPCPollingInterval: time.Millisecond,
		RecoverCooldown:    time.Millisecond,
		IdleInterval:       time.Millisecond,
	}
}

func testJob(t *testing.T, ctx context.Context, batchSize int, sealer api.SealerAPI, cfg sealiface.Config) *Job {
	t.Helper()

	ds := dssync.MutexWrap(datastore.NewMapDatastore())
	return testJobWithDS(t, ctx, ds, uuid.New(), batchSize, sealer, cfg)
}

func testJobWithDS(t *testing.T, ctx context.Context, ds datastore.Batching, id uuid.UUID, batchSize int, sealer api.SealerAPI, cfg sealiface.Config) *Job {
	t.Helper()

	mgr := mock.NewSectorMgr("test-store")
	job, err := NewJob(ctx, ds, id, batchSize, JobDeps{
		Sealer:    sealer,
		Prover:    mgr,
		Persist:   mgr,
		Fetcher:   piecefetch.New(""),
		GetConfig: func() sealiface.Config { return cfg },
		Ident:     api.WorkerIdentifier{Instance: "test-worker"},
	})
	require.NoError(t, err)
	return job
}

func testSectorID(num uint64) abi.SectorID {
	return abi.SectorID{Miner: 1000, Number: abi.SectorNumber(num)}
}

// seedAllocated fills in Base for every sector and moves the batch to st.
func seedAllocated(t *testing.T, job *Job, st State) {
	t.Helper()

	require.NoError(t, job.sectors.Mutate(func(s *Sectors) error {
		var allocated []*api.AllocatedSector
		for i := range s.Sectors {
			allocated = append(allocated, &api.AllocatedSector{
				ID:        testSectorID(uint64(i)),
				ProofType: testProofType,
			})
		}
		Allocate{Sectors: allocated}.apply(s)
		s.State = st
		return nil
	}))
	require.NoError(t, job.sectors.Commit(context.Background()))
}

func mutateState(t *testing.T, job *Job, mutator func(*Sectors)) {
	t.Helper()

	require.NoError(t, job.sectors.Mutate(func(s *Sectors) error {
		mutator(s)
		return nil
	}))
	require.NoError(t, job.sectors.Commit(context.Background()))
}
