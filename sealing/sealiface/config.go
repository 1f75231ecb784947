package sealiface

import (
	"time"

	"github.com/filecoin-project/go-state-types/abi"
)

// Config is the sealing behavior knobs consumed by the executor. This type
// exists to avoid a dependency loop between the sealing package and the node
// config layer.
type Config struct {
	AllowedMiners     []abi.ActorID
	AllowedProofTypes []abi.RegisteredSealProof

	// EnableDeals controls whether the worker asks the manager for deal
	// pieces at all.
	EnableDeals bool

	// DisableCC forbids committed-capacity sectors; with deals disabled as
	// well the worker simply idles.
	DisableCC bool

	MaxDeals     *uint
	MinDealSpace *uint64

	// RPCPollingInterval is the sleep between on-chain state polls.
	RPCPollingInterval time.Duration

	// RecoverCooldown is the wait before resubmitting after the chain
	// reports a failed message.
	RecoverCooldown time.Duration

	// IdleInterval is the wait before re-asking the manager when no work
	// was available.
	IdleInterval time.Duration

	IgnoreProofCheck bool
}
