package config

import (
	"time"

	"github.com/docker/go-units"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"

	"github.com/ipfs-force-community/venus-worker/sealing/sealiface"
)

// SealProofForSize maps a sector size to the seal proof the worker uses for
// it. Only the v1.1 proof family is produced.
func SealProofForSize(ssize abi.SectorSize) (abi.RegisteredSealProof, error) {
	switch ssize {
	case 2 << 10:
		return abi.RegisteredSealProof_StackedDrg2KiBV1_1, nil
	case 8 << 20:
		return abi.RegisteredSealProof_StackedDrg8MiBV1_1, nil
	case 512 << 20:
		return abi.RegisteredSealProof_StackedDrg512MiBV1_1, nil
	case 32 << 30:
		return abi.RegisteredSealProof_StackedDrg32GiBV1_1, nil
	case 64 << 30:
		return abi.RegisteredSealProof_StackedDrg64GiBV1_1, nil
	default:
		return 0, xerrors.Errorf("unsupported sector size %s", ssize)
	}
}

// ToSealiface resolves the string-typed TOML fields into the runtime config
// consumed by the sealing package.
func (c SealingConfig) ToSealiface() (sealiface.Config, error) {
	out := sealiface.Config{
		EnableDeals:        c.EnableDeals,
		DisableCC:          c.DisableCC,
		IgnoreProofCheck:   c.IgnoreProofCheck,
		RPCPollingInterval: time.Duration(c.RPCPollingInterval),
		RecoverCooldown:    time.Duration(c.RecoverCooldown),
		IdleInterval:       time.Duration(c.IdleInterval),
	}

	for _, m := range c.AllowedMiners {
		addr, err := address.NewFromString(m)
		if err != nil {
			return sealiface.Config{}, xerrors.Errorf("parsing miner address %q: %w", m, err)
		}
		id, err := address.IDFromAddress(addr)
		if err != nil {
			return sealiface.Config{}, xerrors.Errorf("miner address %q is not an id address: %w", m, err)
		}
		out.AllowedMiners = append(out.AllowedMiners, abi.ActorID(id))
	}

	for _, s := range c.AllowedSectorSizes {
		ssize, err := units.RAMInBytes(s)
		if err != nil {
			return sealiface.Config{}, xerrors.Errorf("parsing sector size %q: %w", s, err)
		}
		proof, err := SealProofForSize(abi.SectorSize(ssize))
		if err != nil {
			return sealiface.Config{}, err
		}
		out.AllowedProofTypes = append(out.AllowedProofTypes, proof)
	}

	if c.MaxDeals > 0 {
		md := c.MaxDeals
		out.MaxDeals = &md
	}

	if c.MinDealSpace != "" {
		space, err := units.RAMInBytes(c.MinDealSpace)
		if err != nil {
			return sealiface.Config{}, xerrors.Errorf("parsing min deal space %q: %w", c.MinDealSpace, err)
		}
		ms := uint64(space)
		out.MinDealSpace = &ms
	}

	return out, nil
}
