package modules

import (
	"slices"
	"strings"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// Button actions.
const (
	ButtonPress = "press"
	ButtonHold  = "hold"
)

var (
	buttonColours = []string{"blue", "white", "yellow", "red"}
	buttonLabels  = []string{"abort", "detonate", "hold", "press"}
	stripColours  = []string{"blue", "white", "yellow", "red"}
)

// ButtonInput describes the button and, once it is held, the strip colour.
type ButtonInput struct {
	Colour string `json:"colour"`
	Label  string `json:"label"`
	Strip  string `json:"strip,omitempty"`
}

// ButtonOutput says whether to tap or hold the button and, when holding with
// a known strip colour, which digit on the timer to release on.
type ButtonOutput struct {
	Action  string `json:"action"`
	Release int    `json:"release,omitempty"`
}

// NewButton builds The Button solver.
func NewButton() solver.Solver {
	return solver.Typed(solver.Descriptor{
		Type:  TypeButton,
		Name:  DisplayName(TypeButton),
		Input: `{"colour":"blue","label":"abort","strip":"white"}`,
		Tags:  []string{"lookup", "vanilla"},
	}, solveButton)
}

func solveButton(facts device.Facts, st struct{}, in ButtonInput) (solver.Result, struct{}) {
	colour := strings.ToLower(strings.TrimSpace(in.Colour))
	label := strings.ToLower(strings.TrimSpace(in.Label))
	strip := strings.ToLower(strings.TrimSpace(in.Strip))

	if !slices.Contains(buttonColours, colour) {
		return solver.Unknown(buttonColours, "unknown button colour %q", in.Colour), st
	}
	if !slices.Contains(buttonLabels, label) {
		return solver.Unknown(buttonLabels, "unknown button label %q", in.Label), st
	}
	if strip != "" && !slices.Contains(stripColours, strip) {
		return solver.Unknown(stripColours, "unknown strip colour %q", in.Strip), st
	}

	batteries := facts.Batteries.Count()
	var action string
	switch {
	case colour == "blue" && label == "abort":
		action = ButtonHold
	case batteries > 1 && label == "detonate":
		action = ButtonPress
	case colour == "white" && facts.HasIndicator("CAR", true):
		action = ButtonHold
	case batteries > 2 && facts.HasIndicator("FRK", true):
		action = ButtonPress
	case colour == "yellow":
		action = ButtonHold
	case colour == "red" && label == "hold":
		action = ButtonPress
	default:
		action = ButtonHold
	}

	out := ButtonOutput{Action: action}
	if action == ButtonPress {
		return solver.Success(out, true), st
	}
	if strip == "" {
		return solver.Success(out, false), st
	}
	out.Release = releaseDigit(strip)
	return solver.Success(out, true), st
}

func releaseDigit(strip string) int {
	switch strip {
	case "blue":
		return 4
	case "yellow":
		return 5
	default:
		return 1
	}
}
