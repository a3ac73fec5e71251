package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

func solveSwitches(t *testing.T, s *Switches, start, target []bool) solver.Result {
	t.Helper()
	return s.Solve(solver.Request{
		Input: solver.Blob{"switches": start, "target": target},
		Codec: solver.NewCodec(),
	})
}

func bits(pattern string) []bool {
	out := make([]bool, len(pattern))
	for i, c := range pattern {
		out[i] = c == '1'
	}
	return out
}

func TestSwitches_AlreadyAtTarget(t *testing.T) {
	res := solveSwitches(t, NewStockSwitches(), bits("01000"), bits("01000"))
	require.True(t, res.OK())
	assert.True(t, res.Solved)
	assert.Equal(t, SwitchesOutput{Flips: []int{}}, res.Output)
}

func TestSwitches_ForbiddenTargetIsUnreachable(t *testing.T) {
	// 00100 is forbidden, so flipping switch 3 alone is never an answer.
	res := solveSwitches(t, NewStockSwitches(), bits("00000"), bits("00100"))
	require.False(t, res.OK())
	assert.Equal(t, solver.KindInconsistent, res.Failure.Kind)
	assert.Contains(t, res.Failure.Reason, "no solution reachable")
}

func TestSwitches_ForbiddenStart(t *testing.T) {
	res := solveSwitches(t, NewStockSwitches(), bits("11000"), bits("00000"))
	require.False(t, res.OK())
	assert.Equal(t, solver.KindInconsistent, res.Failure.Kind)
	assert.Contains(t, res.Failure.Reason, "configuration invalid")
}

func TestSwitches_RoutesAroundForbiddenWaypoint(t *testing.T) {
	s, err := NewSwitches(5, []string{"10000"})
	require.NoError(t, err)

	res := solveSwitches(t, s, bits("00000"), bits("11000"))
	require.True(t, res.OK())
	assert.Equal(t, []int{2, 1}, res.Output.(SwitchesOutput).Flips)
}

func TestSwitches_TiesBrokenByAscendingIndex(t *testing.T) {
	s, err := NewSwitches(5, nil)
	require.NoError(t, err)

	res := solveSwitches(t, s, bits("00000"), bits("11001"))
	require.True(t, res.OK())
	assert.Equal(t, []int{1, 2, 5}, res.Output.(SwitchesOutput).Flips)
}

func TestSwitches_StockExample(t *testing.T) {
	res := solveSwitches(t, NewStockSwitches(), bits("00000"), bits("10100"))
	require.True(t, res.OK())
	assert.Equal(t, []int{1, 3}, res.Output.(SwitchesOutput).Flips)
}

func TestSwitches_WrongCount(t *testing.T) {
	res := solveSwitches(t, NewStockSwitches(), bits("0000"), bits("00000"))
	require.False(t, res.OK())
	assert.Equal(t, solver.KindValidation, res.Failure.Kind)

	res = solveSwitches(t, NewStockSwitches(), bits("00000"), bits("000001"))
	require.False(t, res.OK())
	assert.Equal(t, solver.KindValidation, res.Failure.Kind)
}

func TestSwitches_BadPattern(t *testing.T) {
	_, err := NewSwitches(5, []string{"0010"})
	assert.Error(t, err)
	_, err = NewSwitches(5, []string{"0010x"})
	assert.Error(t, err)
}

// shortestDistances computes all-pairs distances over allowed configurations by
// repeated relaxation, independently of the BFS under test.
func shortestDistances(s *Switches) [][]int {
	const inf = 1 << 30
	size := 1 << uint(s.n)
	dist := make([][]int, size)
	for a := range dist {
		dist[a] = make([]int, size)
		for b := range dist[a] {
			dist[a][b] = inf
		}
		if !s.Forbidden(uint32(a)) {
			dist[a][a] = 0
		}
	}
	for changed := true; changed; {
		changed = false
		for a := 0; a < size; a++ {
			if s.Forbidden(uint32(a)) {
				continue
			}
			for b := 0; b < size; b++ {
				if dist[a][b] == inf {
					continue
				}
				for i := 0; i < s.n; i++ {
					c := b ^ (1 << uint(i))
					if s.Forbidden(uint32(c)) {
						continue
					}
					if dist[a][b]+1 < dist[a][c] {
						dist[a][c] = dist[a][b] + 1
						changed = true
					}
				}
			}
		}
	}
	return dist
}

func TestSwitches_MinimalAndNeverForbidden(t *testing.T) {
	s := NewStockSwitches()
	dist := shortestDistances(s)
	size := uint32(1) << SwitchCount

	for start := uint32(0); start < size; start++ {
		if s.Forbidden(start) {
			continue
		}
		for target := uint32(0); target < size; target++ {
			flips, res := s.Path(start, target)
			if dist[start][target] >= 1<<30 {
				assert.False(t, res.OK(), "start=%05b target=%05b should be unreachable", start, target)
				continue
			}
			require.True(t, res.OK(), "start=%05b target=%05b: %v", start, target, res.Failure)
			assert.Len(t, flips, dist[start][target], "start=%05b target=%05b", start, target)

			cur := start
			for _, f := range flips {
				cur ^= 1 << uint(f-1)
				assert.False(t, s.Forbidden(cur), "path from %05b passes forbidden %05b", start, cur)
			}
			assert.Equal(t, target, cur)
		}
	}
}
