package sealing

import (
	"context"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/ipfs-force-community/venus-worker/api"
	"github.com/ipfs-force-community/venus-worker/prover"
	"github.com/ipfs-force-community/venus-worker/sealing/failure"
)

func testCid(t *testing.T, data string) cid.Cid {
	t.Helper()

	h, err := mh.Sum([]byte(data), mh.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, h)
}

func execOnce(t *testing.T, job *Job) (Event, error) {
	t.Helper()

	p := &batchPlanner{batchSize: job.BatchSize()}
	return p.Exec(context.Background(), job)
}

func TestExecAllocate(t *testing.T) {
	ctx := context.Background()

	t.Run("no sectors available", func(t *testing.T) {
		sealer := &fakeSealer{
			allocate: func(context.Context, api.AllocateSectorSpec, uint32) ([]*api.AllocatedSector, error) {
				return nil, nil
			},
		}
		job := testJob(t, ctx, 2, sealer, testConfig())

		evt, err := execOnce(t, job)
		require.NoError(t, err)
		require.IsType(t, Idle{}, evt)
	})

	t.Run("rpc error degrades to idle", func(t *testing.T) {
		sealer := &fakeSealer{
			allocate: func(context.Context, api.AllocateSectorSpec, uint32) ([]*api.AllocatedSector, error) {
				return nil, xerrors.New("manager unreachable")
			},
		}
		job := testJob(t, ctx, 2, sealer, testConfig())

		evt, err := execOnce(t, job)
		require.NoError(t, err)
		require.IsType(t, Idle{}, evt)
	})

	t.Run("allocated", func(t *testing.T) {
		var gotCount uint32
		sealer := &fakeSealer{
			allocate: func(_ context.Context, _ api.AllocateSectorSpec, count uint32) ([]*api.AllocatedSector, error) {
				gotCount = count
				return []*api.AllocatedSector{
					{ID: testSectorID(0), ProofType: testProofType},
					{ID: testSectorID(1), ProofType: testProofType},
				}, nil
			},
		}
		job := testJob(t, ctx, 2, sealer, testConfig())

		evt, err := execOnce(t, job)
		require.NoError(t, err)
		require.Equal(t, uint32(2), gotCount)

		alloc, ok := evt.(Allocate)
		require.True(t, ok)
		require.Len(t, alloc.Sectors, 2)
		require.Equal(t, testSectorID(1), alloc.Sectors[1].ID)
	})
}

func TestExecAcquireDealsDisabled(t *testing.T) {
	ctx := context.Background()

	t.Run("cc only skips the whole phase", func(t *testing.T) {
		cfg := testConfig()
		job := testJob(t, ctx, 3, &fakeSealer{}, cfg)
		seedAllocated(t, job, at(PhaseAllocated, 0))

		evt, err := execOnce(t, job)
		require.NoError(t, err)
		require.Equal(t, AcquireDeals{Index: 2}, evt)
	})

	t.Run("deals and cc both disabled idles", func(t *testing.T) {
		cfg := testConfig()
		cfg.DisableCC = true
		job := testJob(t, ctx, 3, &fakeSealer{}, cfg)
		seedAllocated(t, job, at(PhaseAllocated, 0))

		evt, err := execOnce(t, job)
		require.NoError(t, err)
		require.IsType(t, Idle{}, evt)
	})
}

func TestExecAcquireDealsAdvancesIndex(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig()
	cfg.EnableDeals = true

	var gotSid abi.SectorID
	sealer := &fakeSealer{
		acquireDeals: func(_ context.Context, sid abi.SectorID, _ api.AcquireDealsSpec) (api.Deals, error) {
			gotSid = sid
			return api.Deals{{DealID: 7, PayloadSize: 128}}, nil
		},
	}
	job := testJob(t, ctx, 3, sealer, cfg)
	seedAllocated(t, job, at(PhaseDealsAcquired, 0))

	evt, err := execOnce(t, job)
	require.NoError(t, err)

	// index 0 done, the executor works on the next sector
	require.Equal(t, testSectorID(1), gotSid)
	acq, ok := evt.(AcquireDeals)
	require.True(t, ok)
	require.Equal(t, 1, acq.Index)
	require.Len(t, acq.Deals, 1)
}

func TestExecAddPiecesPledge(t *testing.T) {
	ctx := context.Background()

	job := testJob(t, ctx, 3, &fakeSealer{}, testConfig())
	seedAllocated(t, job, at(PhaseDealsAcquired, 2))

	// last index cleared, the executor moves on to the next phase at index 0
	evt, err := execOnce(t, job)
	require.NoError(t, err)

	ap, ok := evt.(AddPiece)
	require.True(t, ok)
	require.Equal(t, 0, ap.Index)
	require.Len(t, ap.Pieces, 1)

	ssize, err := testProofType.SectorSize()
	require.NoError(t, err)
	require.Equal(t, abi.PaddedPieceSize(ssize), ap.Pieces[0].Size)
}

func TestExecSubmitPreCommit(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, sealer api.SealerAPI) *Job {
		job := testJob(t, ctx, 2, sealer, testConfig())
		seedAllocated(t, job, at(PhasePC2Done, 0))
		mutateState(t, job, func(s *Sectors) {
			for i := range s.Sectors {
				s.Sectors[i].Phases.Ticket = &api.Ticket{Ticket: abi.SealRandomness{1, 2, 3}, Epoch: 100}
				s.Sectors[i].Phases.PC2Out = &prover.SectorCids{
					Unsealed: testCid(t, "unsealed"),
					Sealed:   testCid(t, "sealed"),
				}
			}
		})
		return job
	}

	submitResp := func(res api.SubmitResult, desc string) api.SubmitPreCommitResp {
		out := api.SubmitPreCommitResp{Res: res}
		if desc != "" {
			out.Desc = &desc
		}
		return out
	}

	t.Run("accepted", func(t *testing.T) {
		var gotInfo api.PreCommitOnChainInfo
		var gotReset bool
		sealer := &fakeSealer{
			submitPC: func(_ context.Context, _ api.AllocatedSector, info api.PreCommitOnChainInfo, reset bool) (api.SubmitPreCommitResp, error) {
				gotInfo, gotReset = info, reset
				return submitResp(api.SubmitAccepted, ""), nil
			},
		}
		job := setup(t, sealer)

		evt, err := execOnce(t, job)
		require.NoError(t, err)
		require.Equal(t, SubmitPC{Index: 0}, evt)
		require.False(t, gotReset)
		require.Equal(t, testCid(t, "sealed"), gotInfo.CommR)
		require.Equal(t, testCid(t, "unsealed"), gotInfo.CommD)
	})

	t.Run("duplicate is treated as accepted", func(t *testing.T) {
		sealer := &fakeSealer{
			submitPC: func(context.Context, api.AllocatedSector, api.PreCommitOnChainInfo, bool) (api.SubmitPreCommitResp, error) {
				return submitResp(api.SubmitDuplicateSubmit, "already submitted"), nil
			},
		}
		job := setup(t, sealer)

		evt, err := execOnce(t, job)
		require.NoError(t, err)
		require.Equal(t, SubmitPC{Index: 0}, evt)
	})

	t.Run("resubmission sets the reset flag", func(t *testing.T) {
		var gotReset bool
		sealer := &fakeSealer{
			submitPC: func(_ context.Context, _ api.AllocatedSector, _ api.PreCommitOnChainInfo, reset bool) (api.SubmitPreCommitResp, error) {
				gotReset = reset
				return submitResp(api.SubmitAccepted, ""), nil
			},
		}
		job := setup(t, sealer)
		mutateState(t, job, func(s *Sectors) {
			s.Sectors[0].Phases.PC2ReSubmit = true
		})

		_, err := execOnce(t, job)
		require.NoError(t, err)
		require.True(t, gotReset)
	})

	t.Run("mismatched is permanent", func(t *testing.T) {
		sealer := &fakeSealer{
			submitPC: func(context.Context, api.AllocatedSector, api.PreCommitOnChainInfo, bool) (api.SubmitPreCommitResp, error) {
				return submitResp(api.SubmitMismatchedSubmission, "comm_r differs"), nil
			},
		}
		job := setup(t, sealer)

		_, err := execOnce(t, job)
		require.Error(t, err)
		require.Equal(t, failure.LevelPerm, failure.LevelOf(err))
	})

	t.Run("rejected aborts", func(t *testing.T) {
		sealer := &fakeSealer{
			submitPC: func(context.Context, api.AllocatedSector, api.PreCommitOnChainInfo, bool) (api.SubmitPreCommitResp, error) {
				return submitResp(api.SubmitRejected, "bad proof type"), nil
			},
		}
		job := setup(t, sealer)

		_, err := execOnce(t, job)
		require.Error(t, err)
		require.Equal(t, failure.LevelAbort, failure.LevelOf(err))
	})

	t.Run("rpc error is temporary", func(t *testing.T) {
		sealer := &fakeSealer{
			submitPC: func(context.Context, api.AllocatedSector, api.PreCommitOnChainInfo, bool) (api.SubmitPreCommitResp, error) {
				return api.SubmitPreCommitResp{}, xerrors.New("connection reset")
			},
		}
		job := setup(t, sealer)

		_, err := execOnce(t, job)
		require.Error(t, err)
		require.Equal(t, failure.LevelTemp, failure.LevelOf(err))
	})
}

func TestExecCheckPreCommitPolling(t *testing.T) {
	ctx := context.Background()

	t.Run("pending then landed", func(t *testing.T) {
		var polls int
		sealer := &fakeSealer{
			pollPC: func(context.Context, abi.SectorID) (api.PollPreCommitStateResp, error) {
				polls++
				if polls < 4 {
					return api.PollPreCommitStateResp{State: api.OnChainPending}, nil
				}
				return api.PollPreCommitStateResp{State: api.OnChainLanded}, nil
			},
		}
		job := testJob(t, ctx, 2, sealer, testConfig())
		seedAllocated(t, job, at(PhasePCSubmitted, 1))

		evt, err := execOnce(t, job)
		require.NoError(t, err)
		require.Equal(t, CheckPC{Index: 0}, evt)
		require.Equal(t, 4, polls)
	})

	t.Run("failed triggers resubmission", func(t *testing.T) {
		sealer := &fakeSealer{
			pollPC: func(context.Context, abi.SectorID) (api.PollPreCommitStateResp, error) {
				return api.PollPreCommitStateResp{State: api.OnChainFailed}, nil
			},
		}
		job := testJob(t, ctx, 2, sealer, testConfig())
		seedAllocated(t, job, at(PhasePCSubmitted, 1))

		evt, err := execOnce(t, job)
		require.NoError(t, err)
		require.Equal(t, ReSubmitPC{Index: 0}, evt)
	})

	t.Run("not found is permanent", func(t *testing.T) {
		sealer := &fakeSealer{
			pollPC: func(context.Context, abi.SectorID) (api.PollPreCommitStateResp, error) {
				return api.PollPreCommitStateResp{State: api.OnChainNotFound}, nil
			},
		}
		job := testJob(t, ctx, 2, sealer, testConfig())
		seedAllocated(t, job, at(PhasePCSubmitted, 1))

		_, err := execOnce(t, job)
		require.Error(t, err)
		require.Equal(t, failure.LevelPerm, failure.LevelOf(err))
	})

	t.Run("should abort", func(t *testing.T) {
		sealer := &fakeSealer{
			pollPC: func(context.Context, abi.SectorID) (api.PollPreCommitStateResp, error) {
				return api.PollPreCommitStateResp{State: api.OnChainShouldAbort}, nil
			},
		}
		job := testJob(t, ctx, 2, sealer, testConfig())
		seedAllocated(t, job, at(PhasePCSubmitted, 1))

		_, err := execOnce(t, job)
		require.Error(t, err)
		require.Equal(t, failure.LevelAbort, failure.LevelOf(err))
	})
}

func TestExecSubmitPersistedUnavailable(t *testing.T) {
	ctx := context.Background()

	sealer := &fakeSealer{
		submitPersist: func(context.Context, abi.SectorID, string, bool) (bool, error) {
			return false, nil
		},
	}
	job := testJob(t, ctx, 2, sealer, testConfig())
	seedAllocated(t, job, at(PhasePersisted, 1))
	mutateState(t, job, func(s *Sectors) {
		for i := range s.Sectors {
			s.Sectors[i].Phases.PersistInstance = "test-store"
		}
	})

	_, err := execOnce(t, job)
	require.Error(t, err)
	require.Equal(t, failure.LevelPerm, failure.LevelOf(err))
	require.Contains(t, err.Error(), "persisted but unavailable")
}

func TestExecWaitSeed(t *testing.T) {
	ctx := context.Background()

	t.Run("seed delivered", func(t *testing.T) {
		seed := api.Seed{Seed: abi.InteractiveSealRandomness{9, 9}, Epoch: 1234}
		sealer := &fakeSealer{
			waitSeed: func(context.Context, abi.SectorID) (api.WaitSeedResp, error) {
				return api.WaitSeedResp{Seed: &seed}, nil
			},
		}
		job := testJob(t, ctx, 2, sealer, testConfig())
		seedAllocated(t, job, at(PhasePersistanceSubmitted, 1))

		evt, err := execOnce(t, job)
		require.NoError(t, err)
		require.Equal(t, AssignSeed{Index: 0, Seed: seed}, evt)
	})

	t.Run("delayed then delivered", func(t *testing.T) {
		seed := api.Seed{Seed: abi.InteractiveSealRandomness{9, 9}, Epoch: 1234}
		var calls int
		sealer := &fakeSealer{
			waitSeed: func(context.Context, abi.SectorID) (api.WaitSeedResp, error) {
				calls++
				if calls == 1 {
					return api.WaitSeedResp{ShouldWait: true, Delay: 1}, nil
				}
				return api.WaitSeedResp{Seed: &seed}, nil
			},
		}
		job := testJob(t, ctx, 2, sealer, testConfig())
		seedAllocated(t, job, at(PhasePersistanceSubmitted, 1))

		evt, err := execOnce(t, job)
		require.NoError(t, err)
		require.Equal(t, AssignSeed{Index: 0, Seed: seed}, evt)
		require.Equal(t, 2, calls)
	})

	t.Run("empty response is temporary", func(t *testing.T) {
		sealer := &fakeSealer{
			waitSeed: func(context.Context, abi.SectorID) (api.WaitSeedResp, error) {
				return api.WaitSeedResp{}, nil
			},
		}
		job := testJob(t, ctx, 2, sealer, testConfig())
		seedAllocated(t, job, at(PhasePersistanceSubmitted, 1))

		_, err := execOnce(t, job)
		require.Error(t, err)
		require.Equal(t, failure.LevelTemp, failure.LevelOf(err))
		require.Contains(t, err.Error(), "invalid empty wait_seed response")
	})
}

func TestExecProofCheckSkipped(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig()
	cfg.IgnoreProofCheck = true

	// pollProof left nil on purpose; the executor must not touch it
	job := testJob(t, ctx, 2, &fakeSealer{}, cfg)
	seedAllocated(t, job, at(PhaseProofSubmitted, 1))

	evt, err := execOnce(t, job)
	require.NoError(t, err)
	require.Equal(t, Finish{Index: 0}, evt)
}

func TestExecTerminalStates(t *testing.T) {
	ctx := context.Background()

	t.Run("finished batch yields no event", func(t *testing.T) {
		job := testJob(t, ctx, 2, &fakeSealer{}, testConfig())
		seedAllocated(t, job, at(PhaseFinished, 1))

		evt, err := execOnce(t, job)
		require.NoError(t, err)
		require.Nil(t, evt)
	})

	t.Run("aborted batch reports the abort failure", func(t *testing.T) {
		job := testJob(t, ctx, 2, &fakeSealer{}, testConfig())
		seedAllocated(t, job, at(PhaseAborted, 0))

		_, err := execOnce(t, job)
		require.Error(t, err)
		require.Equal(t, failure.LevelAbort, failure.LevelOf(err))
		require.True(t, errors.Is(err, failure.ErrTaskAborted))
	})
}
