package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// stageRunner feeds inputs to a stateful solver, persisting state between
// calls the way the engine does.
type stageRunner struct {
	t     *testing.T
	s     solver.Solver
	codec *solver.Codec
	facts device.Facts
	state solver.Blob
}

func newStageRunner(t *testing.T, s solver.Solver) *stageRunner {
	return &stageRunner{t: t, s: s, codec: solver.NewCodec()}
}

func (r *stageRunner) run(input solver.Blob) solver.Result {
	r.t.Helper()
	res := r.s.Solve(solver.Request{Facts: r.facts, State: r.state, Input: input, Codec: r.codec})
	if res.OK() {
		blob, err := r.codec.Encode(res.State)
		require.NoError(r.t, err)
		r.state = blob
	}
	return res
}

func TestMemory_FiveStages(t *testing.T) {
	r := newStageRunner(t, NewMemory())
	steps := []struct {
		display  int
		labels   []int
		position int
		label    int
	}{
		{3, []int{2, 4, 1, 3}, 3, 1},
		{1, []int{1, 3, 4, 2}, 3, 4},
		{2, []int{4, 1, 2, 3}, 2, 1},
		{4, []int{3, 2, 1, 4}, 3, 1},
		{3, []int{2, 3, 4, 1}, 4, 1},
	}

	for i, s := range steps {
		res := r.run(solver.Blob{"display": s.display, "labels": s.labels})
		require.True(t, res.OK(), "stage %d: %v", i+1, res.Failure)
		out := res.Output.(MemoryOutput)
		assert.Equal(t, MemoryOutput{Stage: i + 1, Position: s.position, Label: s.label}, out)
		assert.Equal(t, i == len(steps)-1, res.Solved)
	}

	res := r.run(solver.Blob{"display": 1, "labels": []int{1, 2, 3, 4}})
	require.False(t, res.OK())
	assert.Equal(t, solver.KindValidation, res.Failure.Kind)
}

func TestMemory_ResetStartsOver(t *testing.T) {
	r := newStageRunner(t, NewMemory())
	require.True(t, r.run(solver.Blob{"display": 1, "labels": []int{1, 2, 3, 4}}).OK())
	require.True(t, r.run(solver.Blob{"display": 3, "labels": []int{2, 1, 3, 4}}).OK())

	res := r.run(solver.Blob{"display": 4, "labels": []int{4, 3, 2, 1}, "reset": true})
	require.True(t, res.OK())
	assert.Equal(t, MemoryOutput{Stage: 1, Position: 4, Label: 1}, res.Output)

	// Earlier presses are kept; the new attempt starts after them.
	st := res.State.(MemoryState)
	assert.Equal(t, 2, st.Start)
	assert.Equal(t, []MemoryPress{
		{Display: 1, Position: 2, Label: 2},
		{Display: 3, Position: 1, Label: 2},
		{Display: 4, Position: 4, Label: 1},
	}, st.History)

	// Stage 2 display 2 repeats the stage 1 position of the new attempt (4),
	// not that of the first press ever made (2).
	res = r.run(solver.Blob{"display": 2, "labels": []int{1, 2, 3, 4}})
	require.True(t, res.OK())
	assert.Equal(t, MemoryOutput{Stage: 2, Position: 4, Label: 4}, res.Output)
}

func TestMemory_FailureKeepsState(t *testing.T) {
	r := newStageRunner(t, NewMemory())
	require.True(t, r.run(solver.Blob{"display": 1, "labels": []int{1, 2, 3, 4}}).OK())
	before := r.state

	for _, in := range []solver.Blob{
		{"display": 5, "labels": []int{1, 2, 3, 4}},
		{"display": 1, "labels": []int{1, 2, 3}},
		{"display": 1, "labels": []int{1, 2, 2, 4}},
	} {
		res := r.run(in)
		require.False(t, res.OK())
		assert.Equal(t, solver.KindValidation, res.Failure.Kind)
		assert.Nil(t, res.State)
	}
	assert.Equal(t, before, r.state)

	res := r.run(solver.Blob{"display": 3, "labels": []int{1, 2, 3, 4}})
	require.True(t, res.OK())
	assert.Equal(t, 2, res.Output.(MemoryOutput).Stage)
}
