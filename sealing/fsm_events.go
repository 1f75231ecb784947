package sealing

import (
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/ipfs-force-community/venus-worker/api"
	"github.com/ipfs-force-community/venus-worker/prover"
)

// Event describes one completed executor action. It is consumed exactly
// once: the planner computes the next state from it, then apply folds its
// payload into the batch document. Events are never persisted themselves.
type Event interface {
	apply(s *Sectors)
}

// Idle means no work was available from the sector-manager. It is never
// handed to the planner; the driver retries the same state after the idle
// interval.
type Idle struct{}

func (evt Idle) apply(*Sectors) {}

// SetState forces the batch into a specific state. Used by the driver to
// abort a batch after a permanent failure.
type SetState struct{ State State }

func (evt SetState) apply(*Sectors) {}

type Allocate struct{ Sectors []*api.AllocatedSector }

func (evt Allocate) apply(s *Sectors) {
	for i, allocated := range evt.Sectors {
		if i >= len(s.Sectors) {
			break
		}
		s.Sectors[i].Base = &Base{
			Allocated: *allocated,
			ProveInput: prover.SectorRef{
				ID:        allocated.ID,
				ProofType: allocated.ProofType,
			},
		}
	}
}

type AcquireDeals struct {
	Index int
	Deals api.Deals
}

func (evt AcquireDeals) apply(s *Sectors) {
	if evt.Index < len(s.Sectors) {
		s.Sectors[evt.Index].Deals = evt.Deals
	}
}

type AddPiece struct {
	Index  int
	Pieces []abi.PieceInfo
}

func (evt AddPiece) apply(s *Sectors) {
	if evt.Index < len(s.Sectors) {
		s.Sectors[evt.Index].Phases.Pieces = evt.Pieces
	}
}

type BuildTreeD struct {
	Index    int
	Unsealed cid.Cid
}

func (evt BuildTreeD) apply(s *Sectors) {
	if evt.Index < len(s.Sectors) {
		s.Sectors[evt.Index].Phases.TreeD = &evt.Unsealed
	}
}

// AssignTicket applies to the whole batch; all sectors seal against the same
// ticket.
type AssignTicket struct{ Ticket api.Ticket }

func (evt AssignTicket) apply(s *Sectors) {
	for i := range s.Sectors {
		t := evt.Ticket
		s.Sectors[i].Phases.Ticket = &t
	}
}

type PC1 struct {
	Ticket api.Ticket
	Outs   []prover.PreCommit1Out
}

func (evt PC1) apply(s *Sectors) {
	for i := range s.Sectors {
		if s.Sectors[i].Phases.Ticket == nil || string(s.Sectors[i].Phases.Ticket.Ticket) != string(evt.Ticket.Ticket) {
			t := evt.Ticket
			s.Sectors[i].Phases.Ticket = &t
		}
		if i < len(evt.Outs) {
			s.Sectors[i].Phases.PC1Out = evt.Outs[i]
		}
	}
}

type PC2 struct{ Outs []prover.SectorCids }

func (evt PC2) apply(s *Sectors) {
	for i := range s.Sectors {
		if i < len(evt.Outs) {
			out := evt.Outs[i]
			s.Sectors[i].Phases.PC2Out = &out
		}
	}
}

type SubmitPC struct{ Index int }

func (evt SubmitPC) apply(s *Sectors) {
	if evt.Index < len(s.Sectors) {
		s.Sectors[evt.Index].Phases.PC2ReSubmit = false
	}
}

type ReSubmitPC struct{ Index int }

func (evt ReSubmitPC) apply(s *Sectors) {
	if evt.Index < len(s.Sectors) {
		s.Sectors[evt.Index].Phases.PC2ReSubmit = true
	}
}

type CheckPC struct{ Index int }

func (evt CheckPC) apply(*Sectors) {}

type Persist struct {
	Index    int
	Instance string
}

func (evt Persist) apply(s *Sectors) {
	if evt.Index < len(s.Sectors) {
		s.Sectors[evt.Index].Phases.PersistInstance = evt.Instance
	}
}

type SubmitPersistance struct{ Index int }

func (evt SubmitPersistance) apply(*Sectors) {}

type AssignSeed struct {
	Index int
	Seed  api.Seed
}

func (evt AssignSeed) apply(s *Sectors) {
	if evt.Index < len(s.Sectors) {
		seed := evt.Seed
		s.Sectors[evt.Index].Phases.Seed = &seed
	}
}

type C1 struct{ Outs []prover.Commit1Out }

func (evt C1) apply(s *Sectors) {
	for i := range s.Sectors {
		if i < len(evt.Outs) {
			s.Sectors[i].Phases.C1Out = evt.Outs[i]
		}
	}
}

type C2 struct {
	Index int
	Out   prover.Proof
}

func (evt C2) apply(s *Sectors) {
	if evt.Index < len(s.Sectors) {
		s.Sectors[evt.Index].Phases.C2Out = evt.Out
	}
}

type SubmitProof struct{ Index int }

func (evt SubmitProof) apply(s *Sectors) {
	if evt.Index < len(s.Sectors) {
		s.Sectors[evt.Index].Phases.C2ReSubmit = false
	}
}

type ReSubmitProof struct{ Index int }

func (evt ReSubmitProof) apply(s *Sectors) {
	if evt.Index < len(s.Sectors) {
		s.Sectors[evt.Index].Phases.C2ReSubmit = true
	}
}

type Finish struct{ Index int }

func (evt Finish) apply(*Sectors) {}
