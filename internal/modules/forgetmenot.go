package modules

import (
	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// ForgetStage is one recorded stage: the displayed digit and the digit the
// operator must eventually enter for it.
type ForgetStage struct {
	Display int `json:"display"`
	Digit   int `json:"digit"`
}

// ForgetState is the stage history. Done is set once the final sequence has
// been handed out.
type ForgetState struct {
	solver.Stages[ForgetStage]
	Done bool `json:"done,omitempty"`
}

// ForgetInput reports the digit shown at the current stage. Final asks for
// the full sequence once the last stage has been shown.
type ForgetInput struct {
	Display *int `json:"display,omitempty"`
	Final   bool `json:"final,omitempty"`
}

// ForgetOutput carries the digit for the current stage, and the full sequence
// when Final was requested.
type ForgetOutput struct {
	Stage    int   `json:"stage"`
	Digit    *int  `json:"digit,omitempty"`
	Sequence []int `json:"sequence,omitempty"`
}

// NewForgetMeNot builds the Forget Me Not solver.
func NewForgetMeNot() solver.Solver {
	return solver.Typed(solver.Descriptor{
		Type:     TypeForgetMeNot,
		Name:     DisplayName(TypeForgetMeNot),
		Input:    `{"display":0-9} then {"final":true}`,
		Tags:     []string{"memory", "multi-stage"},
		Stateful: true,
	}, solveForgetMeNot)
}

func solveForgetMeNot(facts device.Facts, st ForgetState, in ForgetInput) (solver.Result, ForgetState) {
	if st.Done {
		return solver.Invalid("sequence already entered"), st
	}
	if in.Display == nil && !in.Final {
		return solver.Invalid("display digit is required"), st
	}

	out := ForgetOutput{Stage: st.Len()}
	if in.Display != nil {
		display := *in.Display
		if display < 0 || display > 9 {
			return solver.Invalid("display must be 0-9, got %d", display), st
		}
		base, res := forgetBase(facts, st.Stages)
		if !res.OK() {
			return res, st
		}
		digit := (base + display) % 10
		st = ForgetState{Stages: st.Append(ForgetStage{Display: display, Digit: digit})}
		out.Stage = st.Len()
		out.Digit = &digit
	}

	if !in.Final {
		return solver.Success(out, false), st
	}
	if st.Len() == 0 {
		return solver.Invalid("no stages recorded"), st
	}
	out.Sequence = make([]int, st.Len())
	for i, s := range st.History {
		out.Sequence[i] = s.Digit
	}
	st.Done = true
	return solver.Success(out, true), st
}

// forgetBase computes the value added to the displayed digit at the next
// stage, from the device and the digits already calculated.
func forgetBase(facts device.Facts, hist solver.Stages[ForgetStage]) (int, solver.Result) {
	ok := solver.Success(nil, false)
	digits := facts.SerialDigits()

	switch hist.Len() {
	case 0:
		lit, unlit := facts.LitIndicators(), facts.UnlitIndicators()
		switch {
		case facts.HasIndicator("CAR", false):
			return 2, ok
		case unlit > lit:
			return 7, ok
		case unlit == 0:
			return lit, ok
		}
		last, found := facts.SerialLastDigit()
		if !found {
			return 0, solver.Inconsistent("serial %q has no digits", facts.Serial)
		}
		return last, ok

	case 1:
		if facts.HasPort(device.PortSerial) && len(digits) >= 3 {
			return 3, ok
		}
		prev := hist.At(0).Digit
		if prev%2 == 0 {
			return prev + 1, ok
		}
		return prev - 1, ok
	}

	a := hist.At(hist.Len() - 2).Digit
	b := hist.At(hist.Len() - 1).Digit
	switch {
	case a == 0 || b == 0:
		if len(digits) == 0 {
			return 0, solver.Inconsistent("serial %q has no digits", facts.Serial)
		}
		largest := 0
		for _, d := range digits {
			largest = max(largest, d)
		}
		return largest, ok
	case a%2 == 0 && b%2 == 0:
		smallest := 9
		for _, d := range digits {
			if d%2 == 1 {
				smallest = min(smallest, d)
			}
		}
		return smallest, ok
	}
	sum := a + b
	for sum >= 10 {
		sum /= 10
	}
	return sum, ok
}
