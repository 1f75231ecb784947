package prover

import (
	"context"
	"io"

	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/go-state-types/abi"
)

type SectorRef struct {
	ID        abi.SectorID
	ProofType abi.RegisteredSealProof
}

type (
	PreCommit1Out []byte
	Commit1Out    []byte
	Proof         []byte
)

// SectorCids are the commitments produced by PreCommit2: the sealed replica
// commitment (CommR) and the unsealed data commitment (CommD).
type SectorCids struct {
	Unsealed cid.Cid
	Sealed   cid.Cid
}

// Prover is the external proving backend. The sealing pipeline only
// sequences these calls and persists their outputs; the cryptography is not
// this module's concern.
type Prover interface {
	AddPiece(ctx context.Context, sector SectorRef, existingPieceSizes []abi.UnpaddedPieceSize, pieceSize abi.UnpaddedPieceSize, pieceData io.Reader) (abi.PieceInfo, error)

	// BuildTreeD computes the data commitment tree over the staged pieces
	// and returns the unsealed CID.
	BuildTreeD(ctx context.Context, sector SectorRef, pieces []abi.PieceInfo) (cid.Cid, error)

	SealPreCommit1(ctx context.Context, sector SectorRef, ticket abi.SealRandomness, pieces []abi.PieceInfo) (PreCommit1Out, error)
	SealPreCommit2(ctx context.Context, sector SectorRef, pc1o PreCommit1Out) (SectorCids, error)

	SealCommit1(ctx context.Context, sector SectorRef, ticket abi.SealRandomness, seed abi.InteractiveSealRandomness, pieces []abi.PieceInfo, cids SectorCids) (Commit1Out, error)
	SealCommit2(ctx context.Context, sector SectorRef, c1o Commit1Out) (Proof, error)
}

// PersistStore moves sealed sector files into long-term storage and reports
// the instance name the manager should look them up under.
type PersistStore interface {
	PersistSector(ctx context.Context, sector SectorRef) (string, error)
}
