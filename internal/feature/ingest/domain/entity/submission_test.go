package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_CanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		want     bool
	}{
		{StatePending, StateProcessing, true},
		{StatePending, StateCompleted, false},
		{StateProcessing, StateCompleted, true},
		{StateProcessing, StateFailed, true},
		{StateProcessing, StatePending, true},
		{StateFailed, StateProcessing, true},
		{StateFailed, StateCompleted, false},
		{StateCompleted, StateProcessing, false},
		{StateCompleted, StatePending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestSubmissionState_Transition(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.FixedZone("JST", 9*3600))
	s := NewSubmissionState()

	require.NoError(t, s.Transition(StateProcessing, now))
	s.Stage, s.Reason = StageExtraction, "boom"
	require.NoError(t, s.Transition(StateFailed, now))
	assert.Equal(t, StageExtraction, s.Stage, "failure keeps its stage")

	require.NoError(t, s.Transition(StateProcessing, now))
	assert.Empty(t, s.Stage)
	assert.Empty(t, s.Reason)
	assert.Equal(t, time.UTC, s.UpdatedAt.Location())

	require.NoError(t, s.Transition(StateCompleted, now))
	assert.Error(t, s.Transition(StateProcessing, now))
}

func TestStageError(t *testing.T) {
	t.Parallel()

	base := errors.New("vision down")
	err := &StageError{Stage: StageExtraction, Err: base}

	assert.Equal(t, "extraction: vision down", err.Error())
	assert.ErrorIs(t, err, base)

	var se *StageError
	require.ErrorAs(t, error(err), &se)
	assert.Equal(t, StageExtraction, se.Stage)
}
