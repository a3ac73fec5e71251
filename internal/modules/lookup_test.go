package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

func solveWith(t *testing.T, s solver.Solver, facts device.Facts, input solver.Blob) solver.Result {
	t.Helper()
	return s.Solve(solver.Request{Facts: facts, Input: input, Codec: solver.NewCodec()})
}

func TestWires(t *testing.T) {
	odd := device.Facts{Serial: "AB12C3"}
	even := device.Facts{Serial: "AB12C4"}

	cases := []struct {
		name  string
		facts device.Facts
		wires []string
		cut   int
	}{
		{"three, no red", even, []string{"blue", "white", "blue"}, 2},
		{"three, last white", even, []string{"red", "blue", "white"}, 3},
		{"three, two blue", even, []string{"blue", "blue", "red"}, 2},
		{"three, otherwise last", even, []string{"red", "yellow", "black"}, 3},
		{"four, two red odd serial", odd, []string{"red", "blue", "red", "white"}, 3},
		{"four, two red even serial", even, []string{"red", "blue", "red", "white"}, 1},
		{"four, last yellow no red", even, []string{"blue", "blue", "white", "yellow"}, 1},
		{"four, two yellow", even, []string{"yellow", "red", "yellow", "black"}, 4},
		{"four, otherwise second", even, []string{"red", "white", "black", "black"}, 2},
		{"five, last black odd serial", odd, []string{"red", "red", "white", "blue", "black"}, 4},
		{"five, one red two yellow", even, []string{"red", "yellow", "yellow", "blue", "black"}, 1},
		{"five, no black", even, []string{"red", "red", "white", "blue", "white"}, 2},
		{"five, otherwise first", even, []string{"red", "red", "black", "blue", "white"}, 1},
		{"six, no yellow odd serial", odd, []string{"red", "red", "white", "blue", "white", "black"}, 3},
		{"six, one yellow two white", even, []string{"red", "yellow", "white", "blue", "white", "black"}, 4},
		{"six, no red", even, []string{"blue", "yellow", "yellow", "blue", "white", "black"}, 6},
		{"six, otherwise fourth", even, []string{"red", "yellow", "yellow", "blue", "white", "black"}, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := solveWith(t, NewWires(), tc.facts, solver.Blob{"wires": tc.wires})
			require.True(t, res.OK(), "unexpected failure: %v", res.Failure)
			out := res.Output.(WiresOutput)
			assert.Equal(t, tc.cut, out.Cut)
			assert.Equal(t, tc.wires[tc.cut-1], out.Colour)
		})
	}
}

func TestWires_Errors(t *testing.T) {
	res := solveWith(t, NewWires(), device.Facts{}, solver.Blob{"wires": []string{"red", "blue"}})
	require.False(t, res.OK())
	assert.Equal(t, solver.KindValidation, res.Failure.Kind)

	res = solveWith(t, NewWires(), device.Facts{}, solver.Blob{"wires": []string{"red", "green", "blue"}})
	require.False(t, res.OK())
	assert.Equal(t, solver.KindUnknownKey, res.Failure.Kind)
	assert.Contains(t, res.Failure.ValidKeys, "white")

	// The rule needs the serial parity, which a digitless serial cannot give.
	res = solveWith(t, NewWires(), device.Facts{Serial: "ABCDEF"}, solver.Blob{"wires": []string{"red", "blue", "red", "white"}})
	require.False(t, res.OK())
	assert.Equal(t, solver.KindInconsistent, res.Failure.Kind)
}

func TestButton(t *testing.T) {
	carLit := map[string]bool{"CAR": true}
	frkLit := map[string]bool{"FRK": true}

	cases := []struct {
		name   string
		facts  device.Facts
		input  solver.Blob
		want   ButtonOutput
		solved bool
	}{
		{"blue abort holds", device.Facts{}, solver.Blob{"colour": "blue", "label": "abort"}, ButtonOutput{Action: ButtonHold}, false},
		{"detonate with batteries", device.Facts{Batteries: device.Batteries{AA: 2}}, solver.Blob{"colour": "white", "label": "detonate"}, ButtonOutput{Action: ButtonPress}, true},
		{"white with lit CAR", device.Facts{Indicators: carLit}, solver.Blob{"colour": "white", "label": "press", "strip": "blue"}, ButtonOutput{Action: ButtonHold, Release: 4}, true},
		{"lit FRK and three batteries", device.Facts{Indicators: frkLit, Batteries: device.Batteries{D: 1, AA: 2}}, solver.Blob{"colour": "white", "label": "press"}, ButtonOutput{Action: ButtonPress}, true},
		{"yellow holds", device.Facts{}, solver.Blob{"colour": "yellow", "label": "press", "strip": "yellow"}, ButtonOutput{Action: ButtonHold, Release: 5}, true},
		{"red hold taps", device.Facts{}, solver.Blob{"colour": "red", "label": "hold"}, ButtonOutput{Action: ButtonPress}, true},
		{"otherwise hold", device.Facts{}, solver.Blob{"colour": "red", "label": "abort", "strip": "red"}, ButtonOutput{Action: ButtonHold, Release: 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := solveWith(t, NewButton(), tc.facts, tc.input)
			require.True(t, res.OK(), "unexpected failure: %v", res.Failure)
			assert.Equal(t, tc.want, res.Output)
			assert.Equal(t, tc.solved, res.Solved)
		})
	}

	res := solveWith(t, NewButton(), device.Facts{}, solver.Blob{"colour": "green", "label": "abort"})
	require.False(t, res.OK())
	assert.Equal(t, solver.KindUnknownKey, res.Failure.Kind)
}

func TestPassword(t *testing.T) {
	p := NewPassword(StockPasswords)

	res := solveWith(t, p, device.Facts{}, solver.Blob{"columns": []string{"tw"}})
	require.True(t, res.OK())
	assert.False(t, res.Solved)
	assert.Equal(t, []string{"their", "there", "these", "thing", "think", "three", "water", "where", "which", "world", "would", "write"},
		res.Output.(PasswordOutput).Candidates)

	res = solveWith(t, p, device.Facts{}, solver.Blob{"columns": []string{"tw", "", "e"}})
	require.True(t, res.OK())
	assert.Equal(t, []string{"their", "there", "these", "where"}, res.Output.(PasswordOutput).Candidates)

	res = solveWith(t, p, device.Facts{}, solver.Blob{"columns": []string{"TW", "H", "E", "S"}})
	require.True(t, res.OK())
	assert.True(t, res.Solved)
	assert.Equal(t, "these", res.Output.(PasswordOutput).Word)

	res = solveWith(t, p, device.Facts{}, solver.Blob{"columns": []string{"z"}})
	require.False(t, res.OK())
	assert.Equal(t, solver.KindUnknownKey, res.Failure.Kind)

	res = solveWith(t, p, device.Facts{}, solver.Blob{"columns": []string{"a", "b", "c", "d", "e", "f"}})
	require.False(t, res.OK())
	assert.Equal(t, solver.KindValidation, res.Failure.Kind)
}
