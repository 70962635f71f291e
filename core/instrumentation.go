package agent

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/TreasureProject/voicecore/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	moduleRestarts, _  = meter.Int64Counter("agent.module_restarts")
	turnsCompleted, _  = meter.Int64Counter("agent.turns_completed")
	turnsFailed, _     = meter.Int64Counter("agent.turns_failed")
	overlapSegments, _ = meter.Int64Counter("agent.overlap_segments")
)
