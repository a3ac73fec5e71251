package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

func TestForgetMeNot_Sequence(t *testing.T) {
	r := newStageRunner(t, NewForgetMeNot())
	r.facts = device.Facts{
		Serial:     "AL5QF2",
		Indicators: map[string]bool{"CAR": true, "FRK": false},
	}

	// Stage 1 falls through to the last serial digit, 2.
	want := []int{6, 5, 4, 0, 7}
	for i, display := range []int{4, 8, 3, 1, 2} {
		res := r.run(solver.Blob{"display": display})
		require.True(t, res.OK(), "stage %d: %v", i+1, res.Failure)
		assert.False(t, res.Solved)
		out := res.Output.(ForgetOutput)
		assert.Equal(t, i+1, out.Stage)
		require.NotNil(t, out.Digit)
		assert.Equal(t, want[i], *out.Digit, "stage %d", i+1)
	}

	res := r.run(solver.Blob{"final": true})
	require.True(t, res.OK())
	assert.True(t, res.Solved)
	assert.Equal(t, want, res.Output.(ForgetOutput).Sequence)

	res = r.run(solver.Blob{"display": 1})
	require.False(t, res.OK())
	assert.Equal(t, solver.KindValidation, res.Failure.Kind)
}

func TestForgetMeNot_FirstStageRules(t *testing.T) {
	cases := []struct {
		name  string
		facts device.Facts
		want  int
	}{
		{"unlit CAR", device.Facts{Serial: "AB1", Indicators: map[string]bool{"CAR": false, "BOB": true, "FRQ": true}}, 2},
		{"more unlit than lit", device.Facts{Serial: "AB1", Indicators: map[string]bool{"SND": false, "IND": false, "BOB": true}}, 7},
		{"no unlit", device.Facts{Serial: "AB1", Indicators: map[string]bool{"SND": true, "IND": true}}, 2},
		{"last serial digit", device.Facts{Serial: "AB18", Indicators: map[string]bool{"SND": false, "IND": true}}, 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base, res := forgetBase(tc.facts, solver.Stages[ForgetStage]{})
			require.True(t, res.OK())
			assert.Equal(t, tc.want, base)
		})
	}
}

func TestForgetMeNot_LaterStageRules(t *testing.T) {
	history := func(digits ...int) solver.Stages[ForgetStage] {
		var s solver.Stages[ForgetStage]
		for _, d := range digits {
			s = s.Append(ForgetStage{Digit: d})
		}
		return s
	}
	serialPort := []device.PortPlate{{device.PortSerial}}

	cases := []struct {
		name  string
		facts device.Facts
		hist  solver.Stages[ForgetStage]
		want  int
	}{
		{"serial port and three digits", device.Facts{Serial: "1A2B3C", PortPlates: serialPort}, history(4), 3},
		{"previous even", device.Facts{Serial: "1A2B3C"}, history(4), 5},
		{"previous odd", device.Facts{Serial: "1A2B3C"}, history(5), 4},
		{"zero in last two", device.Facts{Serial: "1A7B3C"}, history(3, 0), 7},
		{"both even", device.Facts{Serial: "9A7B3C"}, history(2, 4), 3},
		{"both even without odd serial digits", device.Facts{Serial: "AB2CD4"}, history(2, 4), 9},
		{"sum leading digit", device.Facts{Serial: "AB2CD4"}, history(9, 8), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base, res := forgetBase(tc.facts, tc.hist)
			require.True(t, res.OK())
			assert.Equal(t, tc.want, base)
		})
	}
}

func TestForgetMeNot_Validation(t *testing.T) {
	r := newStageRunner(t, NewForgetMeNot())

	res := r.run(solver.Blob{"final": true})
	require.False(t, res.OK())
	assert.Equal(t, solver.KindValidation, res.Failure.Kind)

	res = r.run(solver.Blob{"display": 10})
	require.False(t, res.OK())
	assert.Equal(t, solver.KindValidation, res.Failure.Kind)

	res = r.run(solver.Blob{})
	require.False(t, res.OK())

	// Without indicators the first stage adds the lit count, zero.
	res = r.run(solver.Blob{"display": 1})
	require.True(t, res.OK(), res.Failure)
	assert.Equal(t, 1, *res.Output.(ForgetOutput).Digit)
}
