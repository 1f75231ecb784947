package sealing

import (
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/ipfs-force-community/venus-worker/api"
	"github.com/ipfs-force-community/venus-worker/prover"
)

// Base is set once the sector-manager allocates a sector, and never changes
// afterwards.
type Base struct {
	Allocated  api.AllocatedSector
	ProveInput prover.SectorRef
}

// Phases accumulates per-sector outputs in pipeline order. A later phase's
// executor step fails with a critical error if an earlier required field is
// absent.
type Phases struct {
	Pieces []abi.PieceInfo `json:",omitempty"`
	TreeD  *cid.Cid        `json:",omitempty"`

	Ticket *api.Ticket `json:",omitempty"`

	PC1Out prover.PreCommit1Out `json:",omitempty"`
	PC2Out *prover.SectorCids   `json:",omitempty"`

	PC2ReSubmit bool

	PersistInstance string `json:",omitempty"`

	Seed *api.Seed `json:",omitempty"`

	C1Out prover.Commit1Out `json:",omitempty"`
	C2Out prover.Proof      `json:",omitempty"`

	C2ReSubmit bool
}

// Sector is one sealing unit within a batch. Deals is absent for sectors
// sealed without real data.
type Sector struct {
	Base   *Base     `json:",omitempty"`
	Deals  api.Deals `json:",omitempty"`
	Phases Phases
}

// Sectors is the durable batch document: an ordered sequence of sectors
// (index = position, stable for the batch's lifetime), the fixed batch size,
// and the pipeline state. Exclusively owned by its Job through the persisted
// record; nothing else holds a writable reference.
type Sectors struct {
	Sectors   []Sector
	BatchSize int
	State     State
}

func newSectors(batchSize int) *Sectors {
	return &Sectors{
		Sectors:   make([]Sector, batchSize),
		BatchSize: batchSize,
		State:     State{Phase: PhaseEmpty},
	}
}
