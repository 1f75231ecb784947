package api

import (
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/go-state-types/abi"
)

// AllocateSectorSpec constrains which sectors the manager may hand out to
// this worker.
type AllocateSectorSpec struct {
	AllowedMiners     []abi.ActorID
	AllowedProofTypes []abi.RegisteredSealProof
}

// AllocatedSector is a sector assignment from the sector-manager.
type AllocatedSector struct {
	ID        abi.SectorID
	ProofType abi.RegisteredSealProof
}

type AcquireDealsSpec struct {
	MaxDeals     *uint
	MinUsedSpace *uint64
}

// DealInfo describes one deal piece assigned to a sector. PieceURL is empty
// for filler pieces, which the worker generates locally.
type DealInfo struct {
	DealID      abi.DealID
	PayloadSize uint64
	Piece       abi.PieceInfo
	PieceURL    string
}

type Deals []DealInfo

// Ticket is the chain randomness consumed by PreCommit1.
type Ticket struct {
	Ticket abi.SealRandomness
	Epoch  abi.ChainEpoch
}

// Seed is the chain randomness consumed by Commit1.
type Seed struct {
	Seed  abi.InteractiveSealRandomness
	Epoch abi.ChainEpoch
}

type SubmitResult uint64

const (
	SubmitAccepted SubmitResult = iota + 1
	SubmitDuplicateSubmit
	SubmitMismatchedSubmission
	SubmitRejected
	SubmitFilesMissed
)

func (r SubmitResult) String() string {
	switch r {
	case SubmitAccepted:
		return "Accepted"
	case SubmitDuplicateSubmit:
		return "DuplicateSubmit"
	case SubmitMismatchedSubmission:
		return "MismatchedSubmission"
	case SubmitRejected:
		return "Rejected"
	case SubmitFilesMissed:
		return "FilesMissed"
	default:
		return "Unknown"
	}
}

// OnChainState is the confirmation status of a previously submitted message,
// polled until terminal.
type OnChainState uint64

const (
	OnChainLanded OnChainState = iota + 1
	OnChainNotFound
	OnChainFailed
	OnChainPermFailed
	OnChainShouldAbort
	OnChainPending
	OnChainPacked
)

func (s OnChainState) String() string {
	switch s {
	case OnChainLanded:
		return "Landed"
	case OnChainNotFound:
		return "NotFound"
	case OnChainFailed:
		return "Failed"
	case OnChainPermFailed:
		return "PermFailed"
	case OnChainShouldAbort:
		return "ShouldAbort"
	case OnChainPending:
		return "Pending"
	case OnChainPacked:
		return "Packed"
	default:
		return "Unknown"
	}
}

type PreCommitOnChainInfo struct {
	CommR  cid.Cid
	CommD  cid.Cid
	Ticket Ticket
	Deals  []abi.DealID
}

type ProofOnChainInfo struct {
	Proof []byte
}

type SubmitPreCommitResp struct {
	Res  SubmitResult
	Desc *string
}

type PollPreCommitStateResp struct {
	State OnChainState
	Desc  *string
}

type SubmitProofResp struct {
	Res  SubmitResult
	Desc *string
}

type PollProofStateResp struct {
	State OnChainState
	Desc  *string
}

// WaitSeedResp either carries the seed, or tells the worker to come back
// after Delay seconds.
type WaitSeedResp struct {
	ShouldWait bool
	Delay      uint64
	Seed       *Seed
}

// WorkerIdentifier is reported to the sector-manager for task tracking.
type WorkerIdentifier struct {
	Instance string
	Location string
}
