package modules

import (
	"slices"
	"strings"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// Wire colours.
const (
	WireRed    = "red"
	WireBlue   = "blue"
	WireYellow = "yellow"
	WireBlack  = "black"
	WireWhite  = "white"
)

var wireColours = []string{WireRed, WireBlue, WireYellow, WireBlack, WireWhite}

// WiresInput lists wire colours from top to bottom.
type WiresInput struct {
	Wires []string `json:"wires"`
}

// WiresOutput names the wire to cut, 1-based from the top.
type WiresOutput struct {
	Cut    int    `json:"cut"`
	Colour string `json:"colour"`
}

// NewWires builds the simple Wires solver.
func NewWires() solver.Solver {
	return solver.Typed(solver.Descriptor{
		Type:  TypeWires,
		Name:  DisplayName(TypeWires),
		Input: `{"wires":["red","blue",...3-6]}`,
		Tags:  []string{"lookup", "vanilla"},
	}, solveWires)
}

type wireSet []string

func (w wireSet) count(c string) int {
	n := 0
	for _, x := range w {
		if x == c {
			n++
		}
	}
	return n
}

func (w wireSet) last(c string) int {
	for i := len(w) - 1; i >= 0; i-- {
		if w[i] == c {
			return i + 1
		}
	}
	return 0
}

func solveWires(facts device.Facts, st struct{}, in WiresInput) (solver.Result, struct{}) {
	if len(in.Wires) < 3 || len(in.Wires) > 6 {
		return solver.Invalid("expected 3 to 6 wires, got %d", len(in.Wires)), st
	}
	w := make(wireSet, len(in.Wires))
	for i, c := range in.Wires {
		c = strings.ToLower(strings.TrimSpace(c))
		if !slices.Contains(wireColours, c) {
			return solver.Unknown(wireColours, "unknown wire colour %q", in.Wires[i]), st
		}
		w[i] = c
	}

	oddSerial := func() (bool, solver.Result) {
		d, ok := facts.SerialLastDigit()
		if !ok {
			return false, solver.Inconsistent("serial %q has no digits", facts.Serial)
		}
		return d%2 == 1, solver.Success(nil, false)
	}

	n := len(w)
	cut := 0
	switch n {
	case 3:
		switch {
		case w.count(WireRed) == 0:
			cut = 2
		case w[n-1] == WireWhite:
			cut = n
		case w.count(WireBlue) > 1:
			cut = w.last(WireBlue)
		default:
			cut = n
		}
	case 4:
		if w.count(WireRed) > 1 {
			odd, res := oddSerial()
			if !res.OK() {
				return res, st
			}
			if odd {
				cut = w.last(WireRed)
				break
			}
		}
		switch {
		case w[n-1] == WireYellow && w.count(WireRed) == 0:
			cut = 1
		case w.count(WireBlue) == 1:
			cut = 1
		case w.count(WireYellow) > 1:
			cut = n
		default:
			cut = 2
		}
	case 5:
		if w[n-1] == WireBlack {
			odd, res := oddSerial()
			if !res.OK() {
				return res, st
			}
			if odd {
				cut = 4
				break
			}
		}
		switch {
		case w.count(WireRed) == 1 && w.count(WireYellow) > 1:
			cut = 1
		case w.count(WireBlack) == 0:
			cut = 2
		default:
			cut = 1
		}
	case 6:
		if w.count(WireYellow) == 0 {
			odd, res := oddSerial()
			if !res.OK() {
				return res, st
			}
			if odd {
				cut = 3
				break
			}
		}
		switch {
		case w.count(WireYellow) == 1 && w.count(WireWhite) > 1:
			cut = 4
		case w.count(WireRed) == 0:
			cut = n
		default:
			cut = 4
		}
	}

	return solver.Success(WiresOutput{Cut: cut, Colour: w[cut-1]}, true), st
}
