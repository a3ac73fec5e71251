package modules

import (
	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// MemoryStages is the number of stages before the module disarms.
const MemoryStages = 5

// MemoryPress records one stage: what was shown and which button was pressed.
type MemoryPress struct {
	Display  int `json:"display"`
	Position int `json:"position"`
	Label    int `json:"label"`
}

// MemoryState is the press history. A strike restarts the module at stage 1
// without discarding earlier presses: Start is the index in History where
// the current attempt begins.
type MemoryState struct {
	solver.Stages[MemoryPress]
	Start int `json:"start,omitempty"`
}

// stage returns the number of presses in the current attempt.
func (s MemoryState) stage() int {
	return s.Len() - s.Start
}

// press returns the press made at the zero-based stage i of the current
// attempt.
func (s MemoryState) press(i int) MemoryPress {
	return s.At(s.Start + i)
}

// MemoryInput is the big display digit and the four button labels, left to
// right. Reset starts a new attempt after a strike.
type MemoryInput struct {
	Display int   `json:"display"`
	Labels  []int `json:"labels"`
	Reset   bool  `json:"reset,omitempty"`
}

// MemoryOutput names the button to press at this stage.
type MemoryOutput struct {
	Stage    int `json:"stage"`
	Position int `json:"position"`
	Label    int `json:"label"`
}

type memoryRule struct {
	// Exactly one is set: a fixed position, a fixed label, or a reference to
	// an earlier stage's position or label (1-based stage).
	position     int
	label        int
	samePosition int
	sameLabel    int
}

// memoryRules[stage-1][display-1]
var memoryRules = [MemoryStages][4]memoryRule{
	{{position: 2}, {position: 2}, {position: 3}, {position: 4}},
	{{label: 4}, {samePosition: 1}, {position: 1}, {samePosition: 1}},
	{{sameLabel: 2}, {sameLabel: 1}, {position: 3}, {label: 4}},
	{{samePosition: 1}, {position: 1}, {samePosition: 2}, {samePosition: 2}},
	{{sameLabel: 1}, {sameLabel: 2}, {sameLabel: 4}, {sameLabel: 3}},
}

// NewMemory builds the Memory solver.
func NewMemory() solver.Solver {
	return solver.Typed(solver.Descriptor{
		Type:     TypeMemory,
		Name:     DisplayName(TypeMemory),
		Input:    `{"display":1-4,"labels":[4 distinct 1-4]}`,
		Tags:     []string{"lookup", "multi-stage"},
		Stateful: true,
	}, solveMemory)
}

func solveMemory(_ device.Facts, st MemoryState, in MemoryInput) (solver.Result, MemoryState) {
	if in.Reset {
		st.Start = st.Len()
	}
	if st.stage() >= MemoryStages {
		return solver.Invalid("module already solved after %d stages", MemoryStages), st
	}
	if in.Display < 1 || in.Display > 4 {
		return solver.Invalid("display must be 1-4, got %d", in.Display), st
	}
	if res := validLabels(in.Labels); !res.OK() {
		return res, st
	}

	stage := st.stage() + 1
	rule := memoryRules[stage-1][in.Display-1]

	var position int
	switch {
	case rule.position > 0:
		position = rule.position
	case rule.label > 0:
		position = positionOf(in.Labels, rule.label)
	case rule.samePosition > 0:
		position = st.press(rule.samePosition - 1).Position
	case rule.sameLabel > 0:
		label := st.press(rule.sameLabel - 1).Label
		position = positionOf(in.Labels, label)
	}
	if position == 0 {
		return solver.Inconsistent("stage %d rule for display %d resolved to no button", stage, in.Display), st
	}

	press := MemoryPress{Display: in.Display, Position: position, Label: in.Labels[position-1]}
	next := MemoryState{Stages: st.Append(press), Start: st.Start}
	out := MemoryOutput{Stage: stage, Position: press.Position, Label: press.Label}
	return solver.Success(out, stage == MemoryStages), next
}

func validLabels(labels []int) solver.Result {
	if len(labels) != 4 {
		return solver.Invalid("expected 4 button labels, got %d", len(labels))
	}
	var seen [5]bool
	for _, l := range labels {
		if l < 1 || l > 4 {
			return solver.Invalid("button label must be 1-4, got %d", l)
		}
		if seen[l] {
			return solver.Invalid("button label %d appears twice", l)
		}
		seen[l] = true
	}
	return solver.Success(nil, false)
}

func positionOf(labels []int, label int) int {
	for i, l := range labels {
		if l == label {
			return i + 1
		}
	}
	return 0
}
