package metrics

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Tags
var (
	Planner, _      = tag.NewKey("planner")
	Phase, _        = tag.NewKey("phase")
	FailureLevel, _ = tag.NewKey("level")
)

// Measures
var (
	SealingTransitions = stats.Int64("sealing/transitions", "Batch state transitions", stats.UnitDimensionless)
	SealingFailures    = stats.Int64("sealing/failures", "Classified sealing failures", stats.UnitDimensionless)
	SealingIdle        = stats.Int64("sealing/idle", "Polls that found no work at the sector-manager", stats.UnitDimensionless)
)

var DefaultViews = []*view.View{
	{
		Measure:     SealingTransitions,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Planner, Phase},
	},
	{
		Measure:     SealingFailures,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Planner, FailureLevel},
	},
	{
		Measure:     SealingIdle,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Planner},
	},
}

// RecordTransition bumps the transition counter for the phase just entered.
func RecordTransition(ctx context.Context, planner, phase string) {
	_ = stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(Planner, planner),
		tag.Upsert(Phase, phase),
	}, SealingTransitions.M(1))
}

func RecordFailure(ctx context.Context, planner, level string) {
	_ = stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(Planner, planner),
		tag.Upsert(FailureLevel, level),
	}, SealingFailures.M(1))
}

func RecordIdle(ctx context.Context, planner string) {
	_ = stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(Planner, planner),
	}, SealingIdle.M(1))
}
