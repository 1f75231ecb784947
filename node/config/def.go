package config

import (
	"encoding"
	"time"
)

// Worker is the top-level daemon config.
type Worker struct {
	Manager ManagerConfig
	Worker  WorkerConfig
	Sealing SealingConfig
}

// ManagerConfig locates the sector-manager RPC endpoint.
type ManagerConfig struct {
	// RPC endpoint of the sector-manager, e.g. "ws://127.0.0.1:1789/rpc/v0"
	Addr string
	// Bearer token attached to RPC requests. Empty disables auth.
	Token string
}

type WorkerConfig struct {
	// Name reported to the sector-manager. Defaults to the os hostname.
	Name string
	// DataDir holds the job datastore. Supports ~ expansion.
	DataDir string
	// PieceToken authorizes redirected piece downloads.
	PieceToken string
	// Prover selects the proving backend.
	Prover string
	// BatchSize is the number of sectors sealed together per job.
	BatchSize int
	// Jobs is the number of concurrent batch jobs.
	Jobs int
}

type SealingConfig struct {
	// AllowedMiners restricts allocations to these miner actors,
	// e.g. ["f01000"]. Empty allows any.
	AllowedMiners []string
	// AllowedSectorSizes restricts allocations to these sector sizes,
	// e.g. ["32GiB"]. Empty allows any.
	AllowedSectorSizes []string

	EnableDeals bool
	DisableCC   bool

	// MaxDeals caps the deals packed into one sector. 0 = unlimited.
	MaxDeals uint
	// MinDealSpace is the minimum deal space required before a sector with
	// deals starts sealing, e.g. "8GiB". Empty = no minimum.
	MinDealSpace string

	RPCPollingInterval Duration
	RecoverCooldown    Duration
	IdleInterval       Duration

	IgnoreProofCheck bool
}

func DefaultWorker() *Worker {
	return &Worker{
		Manager: ManagerConfig{
			Addr: "ws://127.0.0.1:1789/rpc/v0",
		},
		Worker: WorkerConfig{
			DataDir:   "~/.venus-worker",
			Prover:    "mock",
			BatchSize: 4,
			Jobs:      1,
		},
		Sealing: SealingConfig{
			AllowedSectorSizes: []string{"32GiB"},
			RPCPollingInterval: Duration(30 * time.Second),
			RecoverCooldown:    Duration(30 * time.Second),
			IdleInterval:       Duration(time.Minute),
		},
	}
}

var _ encoding.TextMarshaler = (*Duration)(nil)
var _ encoding.TextUnmarshaler = (*Duration)(nil)

// Duration is a wrapper type for time.Duration
// for decoding and encoding from/to TOML
type Duration time.Duration

// UnmarshalText implements interface for TOML decoding
func (dur *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*dur = Duration(d)
	return err
}

func (dur Duration) MarshalText() ([]byte, error) {
	d := time.Duration(dur)
	return []byte(d.String()), nil
}
