package mock

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/ipfs-force-community/venus-worker/prover"
)

// SectorMgr is a deterministic in-memory proving backend. Outputs are
// derived from the sector id and phase inputs only, so replays after a crash
// produce identical commitments.
type SectorMgr struct {
	lk      sync.Mutex
	persist map[abi.SectorID]string

	instance string
}

func NewSectorMgr(instance string) *SectorMgr {
	if instance == "" {
		instance = "mock-store"
	}
	return &SectorMgr{
		persist:  map[abi.SectorID]string{},
		instance: instance,
	}
}

func fakeCid(parts ...[]byte) cid.Cid {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, p...)
	}
	h, err := mh.Sum(buf, mh.SHA2_256, -1)
	if err != nil {
		panic(err)
	}
	return cid.NewCidV1(cid.Raw, h)
}

func sectorSeed(sector prover.SectorRef, phase string) []byte {
	seed := make([]byte, 16, 16+len(phase))
	binary.LittleEndian.PutUint64(seed, uint64(sector.ID.Miner))
	binary.LittleEndian.PutUint64(seed[8:], uint64(sector.ID.Number))
	return append(seed, phase...)
}

func (m *SectorMgr) AddPiece(ctx context.Context, sector prover.SectorRef, existingPieceSizes []abi.UnpaddedPieceSize, pieceSize abi.UnpaddedPieceSize, pieceData io.Reader) (abi.PieceInfo, error) {
	if _, err := io.CopyN(io.Discard, pieceData, int64(pieceSize)); err != nil {
		return abi.PieceInfo{}, fmt.Errorf("reading piece data: %w", err)
	}

	seed := sectorSeed(sector, fmt.Sprintf("piece-%d-%d", len(existingPieceSizes), pieceSize))
	return abi.PieceInfo{
		Size:     pieceSize.Padded(),
		PieceCID: fakeCid(seed),
	}, nil
}

func (m *SectorMgr) BuildTreeD(ctx context.Context, sector prover.SectorRef, pieces []abi.PieceInfo) (cid.Cid, error) {
	parts := [][]byte{sectorSeed(sector, "treed")}
	for _, p := range pieces {
		parts = append(parts, p.PieceCID.Bytes())
	}
	return fakeCid(parts...), nil
}

func (m *SectorMgr) SealPreCommit1(ctx context.Context, sector prover.SectorRef, ticket abi.SealRandomness, pieces []abi.PieceInfo) (prover.PreCommit1Out, error) {
	out := sectorSeed(sector, "pc1")
	out = append(out, ticket...)
	for _, p := range pieces {
		out = append(out, p.PieceCID.Bytes()...)
	}
	return out, nil
}

func (m *SectorMgr) SealPreCommit2(ctx context.Context, sector prover.SectorRef, pc1o prover.PreCommit1Out) (prover.SectorCids, error) {
	return prover.SectorCids{
		Unsealed: fakeCid(sectorSeed(sector, "commd"), pc1o),
		Sealed:   fakeCid(sectorSeed(sector, "commr"), pc1o),
	}, nil
}

func (m *SectorMgr) SealCommit1(ctx context.Context, sector prover.SectorRef, ticket abi.SealRandomness, seed abi.InteractiveSealRandomness, pieces []abi.PieceInfo, cids prover.SectorCids) (prover.Commit1Out, error) {
	out := sectorSeed(sector, "c1")
	out = append(out, ticket...)
	out = append(out, seed...)
	out = append(out, cids.Sealed.Bytes()...)
	return out, nil
}

func (m *SectorMgr) SealCommit2(ctx context.Context, sector prover.SectorRef, c1o prover.Commit1Out) (prover.Proof, error) {
	return prover.Proof(fakeCid(sectorSeed(sector, "c2"), c1o).Bytes()), nil
}

func (m *SectorMgr) PersistSector(ctx context.Context, sector prover.SectorRef) (string, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.persist[sector.ID] = m.instance
	return m.instance, nil
}

var (
	_ prover.Prover       = &SectorMgr{}
	_ prover.PersistStore = &SectorMgr{}
)
