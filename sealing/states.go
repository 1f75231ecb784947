package sealing

import "fmt"

// Phase names one stage of the batch pipeline.
type Phase string

const (
	PhaseEmpty                Phase = "Empty"
	PhaseAllocated            Phase = "Allocated"
	PhaseDealsAcquired        Phase = "DealsAcquired"
	PhasePieceAdded           Phase = "PieceAdded"
	PhaseTreeDBuilt           Phase = "TreeDBuilt"
	PhaseTicketAssigned       Phase = "TicketAssigned"
	PhasePC1Done              Phase = "PC1Done"
	PhasePC2Done              Phase = "PC2Done"
	PhasePCSubmitted          Phase = "PCSubmitted"
	PhasePCLanded             Phase = "PCLanded"
	PhasePersisted            Phase = "Persisted"
	PhasePersistanceSubmitted Phase = "PersistanceSubmitted"
	PhaseSeedAssigned         Phase = "SeedAssigned"
	PhaseC1Done               Phase = "C1Done"
	PhaseC2Done               Phase = "C2Done"
	PhaseProofSubmitted       Phase = "ProofSubmitted"
	PhaseFinished             Phase = "Finished"
	PhaseAborted              Phase = "Aborted"
)

var indexedPhases = map[Phase]struct{}{
	PhaseDealsAcquired:        {},
	PhasePieceAdded:           {},
	PhaseTreeDBuilt:           {},
	PhasePCSubmitted:          {},
	PhasePCLanded:             {},
	PhasePersisted:            {},
	PhasePersistanceSubmitted: {},
	PhaseSeedAssigned:         {},
	PhaseC2Done:               {},
	PhaseProofSubmitted:       {},
	PhaseFinished:             {},
}

// State is the batch pipeline position. Index is meaningful only for
// indexed phases, where it names the last sector that completed the phase.
type State struct {
	Phase Phase
	Index int
}

func (s State) String() string {
	if _, ok := indexedPhases[s.Phase]; ok {
		return fmt.Sprintf("%s(%d)", s.Phase, s.Index)
	}
	return string(s.Phase)
}

func at(phase Phase, index int) State {
	return State{Phase: phase, Index: index}
}
