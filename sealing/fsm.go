package sealing

import (
	"context"

	"golang.org/x/xerrors"
)

// Planner drives one pipeline kind. Exec performs the single side-effecting
// action the current state calls for and returns the resulting event (nil
// when the batch is complete); Plan is the pure transition function; Apply
// folds a planned event into the persisted record.
type Planner interface {
	Name() string
	Plan(evt Event, st State) (State, error)
	Exec(ctx context.Context, job *Job) (Event, error)
	Apply(evt Event, next State, job *Job) error
}

// NewPlanner builds the planner variant for the given pipeline name. New
// pipeline kinds are added here, not as new dispatch layers.
func NewPlanner(name string, batchSize int) (Planner, error) {
	switch name {
	case PlannerBatch:
		return &batchPlanner{batchSize: batchSize}, nil
	default:
		return nil, xerrors.Errorf("unknown planner %q", name)
	}
}

const PlannerBatch = "batch"

type batchPlanner struct {
	batchSize int
}

func (p *batchPlanner) Name() string { return PlannerBatch }

func (p *batchPlanner) Plan(evt Event, st State) (State, error) {
	next, err := p.next(evt, st)
	if err != nil {
		return State{}, err
	}

	if next == st {
		return State{}, xerrors.Errorf("state unchanged from %s, would loop forever", st)
	}

	return next, nil
}

func (p *batchPlanner) next(evt Event, st State) (State, error) {
	switch evt := evt.(type) {
	case SetState:
		return evt.State, nil

	case Allocate:
		if st.Phase == PhaseEmpty {
			return at(PhaseAllocated, 0), nil
		}

	case AcquireDeals:
		if st.Phase == PhaseAllocated || st.Phase == PhaseDealsAcquired {
			return at(PhaseDealsAcquired, evt.Index), nil
		}

	case AddPiece:
		if st.Phase == PhaseDealsAcquired || st.Phase == PhasePieceAdded {
			return at(PhasePieceAdded, evt.Index), nil
		}

	case BuildTreeD:
		if st.Phase == PhasePieceAdded || st.Phase == PhaseTreeDBuilt {
			return at(PhaseTreeDBuilt, evt.Index), nil
		}

	case AssignTicket:
		if st.Phase == PhaseTreeDBuilt {
			return at(PhaseTicketAssigned, 0), nil
		}

	case PC1:
		if st.Phase == PhaseTicketAssigned {
			return at(PhasePC1Done, 0), nil
		}

	case PC2:
		if st.Phase == PhasePC1Done {
			return at(PhasePC2Done, 0), nil
		}

	case SubmitPC:
		if st.Phase == PhasePC2Done || st.Phase == PhasePCSubmitted {
			return at(PhasePCSubmitted, evt.Index), nil
		}

	case ReSubmitPC:
		if st.Phase == PhasePCSubmitted {
			// roll the resubmission cursor back one sector; at the
			// first sector the whole batch returns to PC2Done
			if evt.Index > 0 {
				return at(PhasePCSubmitted, evt.Index-1), nil
			}
			return at(PhasePC2Done, 0), nil
		}

	case CheckPC:
		if st.Phase == PhasePCSubmitted || st.Phase == PhasePCLanded {
			return at(PhasePCLanded, evt.Index), nil
		}

	case Persist:
		if st.Phase == PhasePCLanded || st.Phase == PhasePersisted {
			return at(PhasePersisted, evt.Index), nil
		}

	case SubmitPersistance:
		if st.Phase == PhasePersisted || st.Phase == PhasePersistanceSubmitted {
			return at(PhasePersistanceSubmitted, evt.Index), nil
		}

	case AssignSeed:
		if st.Phase == PhasePersistanceSubmitted || st.Phase == PhaseSeedAssigned {
			return at(PhaseSeedAssigned, evt.Index), nil
		}

	case C1:
		if st.Phase == PhaseSeedAssigned {
			return at(PhaseC1Done, 0), nil
		}

	case C2:
		if st.Phase == PhaseC1Done || st.Phase == PhaseC2Done {
			return at(PhaseC2Done, evt.Index), nil
		}

	case SubmitProof:
		if st.Phase == PhaseC2Done || st.Phase == PhaseProofSubmitted {
			return at(PhaseProofSubmitted, evt.Index), nil
		}

	case ReSubmitProof:
		if st.Phase == PhaseProofSubmitted {
			if evt.Index > 0 {
				return at(PhaseProofSubmitted, evt.Index-1), nil
			}
			return at(PhaseC2Done, p.batchSize-1), nil
		}

	case Finish:
		if st.Phase == PhaseProofSubmitted || st.Phase == PhaseFinished {
			return at(PhaseFinished, evt.Index), nil
		}
	}

	return State{}, xerrors.Errorf("unexpected state and event: %s, %T", st, evt)
}

func (p *batchPlanner) Apply(evt Event, next State, job *Job) error {
	return job.sectors.Mutate(func(s *Sectors) error {
		evt.apply(s)
		s.State = next
		return nil
	})
}
