package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atomhq/hive/pkg/types"
)

// TestNext walks the full run order and checks the terminal cases
func TestNext(t *testing.T) {
	tests := []struct {
		name  string
		stage types.Stage
		want  types.Stage
	}{
		{"implement advances to verify", types.StageImplement, types.StageVerify},
		{"verify advances to test", types.StageVerify, types.StageTest},
		{"test advances to deploy", types.StageTest, types.StageDeploy},
		{"deploy advances to done", types.StageDeploy, types.StageDone},
		{"done is terminal", types.StageDone, ""},
		{"plan is not runnable", types.StagePlan, ""},
		{"unknown stage is terminal", types.Stage("bogus"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.stage))
		})
	}
}

func TestFirst(t *testing.T) {
	assert.Equal(t, types.StageImplement, First())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(types.StageImplement))
	assert.False(t, IsTerminal(types.StageDeploy))
	assert.True(t, IsTerminal(types.StageDone))
	assert.True(t, IsTerminal(types.StagePlan))
}

// TestBoardOrderSupersetOfRunOrder keeps the display ordering aligned
// with the execution sequence
func TestBoardOrderSupersetOfRunOrder(t *testing.T) {
	assert.Equal(t, types.StagePlan, BoardOrder[0])
	assert.Equal(t, RunOrder, BoardOrder[1:])
}
