package modules

import (
	"fmt"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// SwitchCount is the number of switches on a stock Switches module.
const SwitchCount = 5

// stockForbidden lists the configurations the manual forbids, written switch 1
// first with 1 meaning up.
var stockForbidden = []string{
	"00100", "01011", "01111", "10010", "10011",
	"10111", "11000", "11010", "11100", "11110",
}

// SwitchesInput is the operator's reading of the module.
type SwitchesInput struct {
	Switches []bool `json:"switches"`
	Target   []bool `json:"target"`
}

// SwitchesOutput lists the 1-based switches to flip, in order.
type SwitchesOutput struct {
	Flips []int `json:"flips"`
}

// Switches finds the shortest flip sequence between two switch configurations
// that never passes through a forbidden configuration.
type Switches struct {
	n         int
	forbidden map[uint32]bool
	typed     solver.Solver
}

// NewSwitches builds a solver for n switches with the given forbidden
// patterns. Patterns are strings of '0'/'1' of length n, switch 1 first.
func NewSwitches(n int, forbidden []string) (*Switches, error) {
	s := &Switches{n: n, forbidden: make(map[uint32]bool, len(forbidden))}
	for _, p := range forbidden {
		mask, err := parseSwitchPattern(p, n)
		if err != nil {
			return nil, err
		}
		s.forbidden[mask] = true
	}
	s.typed = solver.Typed(s.Descriptor(), s.solve)
	return s, nil
}

// NewStockSwitches builds the solver for the stock five-switch module.
func NewStockSwitches() *Switches {
	s, _ := NewSwitches(SwitchCount, stockForbidden)
	return s
}

func parseSwitchPattern(p string, n int) (uint32, error) {
	if len(p) != n {
		return 0, fmt.Errorf("switch pattern %q: expected %d positions, got %d", p, n, len(p))
	}
	var mask uint32
	for i, c := range p {
		switch c {
		case '1':
			mask |= 1 << uint(i)
		case '0':
		default:
			return 0, fmt.Errorf("switch pattern %q: must contain only 0 and 1", p)
		}
	}
	return mask, nil
}

// Descriptor implements solver.Solver.
func (s *Switches) Descriptor() solver.Descriptor {
	return solver.Descriptor{
		Type:  TypeSwitches,
		Name:  DisplayName(TypeSwitches),
		Input: `{"switches":[bool x5],"target":[bool x5]}`,
		Tags:  []string{"search", "vanilla-style"},
	}
}

// Solve implements solver.Solver.
func (s *Switches) Solve(req solver.Request) solver.Result {
	return s.typed.Solve(req)
}

func (s *Switches) solve(_ device.Facts, st struct{}, in SwitchesInput) (solver.Result, struct{}) {
	if len(in.Switches) != s.n {
		return solver.Invalid("expected %d switch positions, got %d", s.n, len(in.Switches)), st
	}
	if len(in.Target) != s.n {
		return solver.Invalid("expected %d target positions, got %d", s.n, len(in.Target)), st
	}

	flips, res := s.Path(toMask(in.Switches), toMask(in.Target))
	if !res.OK() {
		return res, st
	}
	return solver.Success(SwitchesOutput{Flips: flips}, true), st
}

// Path runs a breadth-first search from start to target over configurations
// reachable by single flips. Flips are tried in ascending switch order, so
// among shortest paths the one found first is returned.
func (s *Switches) Path(start, target uint32) ([]int, solver.Result) {
	if s.forbidden[start] {
		return nil, solver.Inconsistent("starting configuration %s is forbidden; configuration invalid", s.format(start))
	}
	if start == target {
		return []int{}, solver.Success(nil, true)
	}

	type step struct {
		parent uint32
		flip   int
	}
	visited := map[uint32]step{start: {parent: start, flip: -1}}
	queue := []uint32{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for i := 0; i < s.n; i++ {
			next := cur ^ (1 << uint(i))
			if s.forbidden[next] {
				continue
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = step{parent: cur, flip: i}

			if next == target {
				var flips []int
				for node := next; node != start; node = visited[node].parent {
					flips = append(flips, visited[node].flip+1)
				}
				for a, b := 0, len(flips)-1; a < b; a, b = a+1, b-1 {
					flips[a], flips[b] = flips[b], flips[a]
				}
				return flips, solver.Success(nil, true)
			}
			queue = append(queue, next)
		}
	}

	return nil, solver.Inconsistent("no solution reachable from %s to %s", s.format(start), s.format(target))
}

// Forbidden reports whether the configuration is forbidden.
func (s *Switches) Forbidden(mask uint32) bool {
	return s.forbidden[mask]
}

func (s *Switches) format(mask uint32) string {
	b := make([]byte, s.n)
	for i := 0; i < s.n; i++ {
		if mask&(1<<uint(i)) != 0 {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b)
}

func toMask(bits []bool) uint32 {
	var mask uint32
	for i, on := range bits {
		if on {
			mask |= 1 << uint(i)
		}
	}
	return mask
}
