package pipeline

import (
	"github.com/atomhq/hive/pkg/types"
)

// RunOrder is the fixed execution sequence. The pipeline never runs a
// "plan" step; planning happens before greenlight, outside the
// pipeline.
var RunOrder = []types.Stage{
	types.StageImplement,
	types.StageVerify,
	types.StageTest,
	types.StageDeploy,
	types.StageDone,
}

// BoardOrder is the broader ordering used for dashboard grouping and
// greenlight gating. It is display-only and never drives sequencing.
var BoardOrder = []types.Stage{
	types.StagePlan,
	types.StageImplement,
	types.StageVerify,
	types.StageTest,
	types.StageDeploy,
	types.StageDone,
}

// Next returns the stage following the given one in the run order, or
// "" when the stage is terminal. StageDone and any unrecognized stage
// are terminal.
func Next(stage types.Stage) types.Stage {
	for i, s := range RunOrder {
		if s == stage && i+1 < len(RunOrder) {
			return RunOrder[i+1]
		}
	}
	return ""
}

// First returns the stage a freshly greenlit pipeline starts at.
func First() types.Stage {
	return RunOrder[0]
}

// IsTerminal reports whether no further run should ever be created for
// the stage.
func IsTerminal(stage types.Stage) bool {
	return Next(stage) == ""
}
