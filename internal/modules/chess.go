package modules

import (
	"fmt"
	"strings"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// ChessBoardSize is the width and height of the board, files a-f and ranks 1-6.
const ChessBoardSize = 6

// ChessPieceCount is the number of pieces the module places.
const ChessPieceCount = 6

var (
	rookDirs    = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopDirs  = [][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	knightJumps = [][2]int{{1, 2}, {2, 1}, {-1, 2}, {-2, 1}, {1, -2}, {2, -1}, {-1, -2}, {-2, -1}}
)

var chessPieces = []string{"B", "K", "N", "Q", "R"}

// ChessInput lists the pieces as letter plus square, e.g. "Kb3".
type ChessInput struct {
	Pieces []string `json:"pieces"`
}

// ChessOutput is the one square no piece covers.
type ChessOutput struct {
	Square string `json:"square"`
}

type chessPiece struct {
	kind byte
	file int
	rank int
}

// NewChess builds the Chess solver.
func NewChess() solver.Solver {
	return solver.Typed(solver.Descriptor{
		Type:  TypeChess,
		Name:  DisplayName(TypeChess),
		Input: `{"pieces":["Kb3","Qe5",...6 total]}`,
		Tags:  []string{"search"},
	}, solveChess)
}

func solveChess(_ device.Facts, st struct{}, in ChessInput) (solver.Result, struct{}) {
	if len(in.Pieces) != ChessPieceCount {
		return solver.Invalid("expected %d pieces, got %d", ChessPieceCount, len(in.Pieces)), st
	}

	pieces := make([]chessPiece, 0, len(in.Pieces))
	occupied := map[[2]int]bool{}
	for _, raw := range in.Pieces {
		p, res := parseChessPiece(raw)
		if !res.OK() {
			return res, st
		}
		sq := [2]int{p.file, p.rank}
		if occupied[sq] {
			return solver.Invalid("two pieces on %s", squareName(p.file, p.rank)), st
		}
		occupied[sq] = true
		pieces = append(pieces, p)
	}

	free := uncovered(pieces)
	if len(free) != 1 {
		return solver.Inconsistent("expected exactly one uncovered square, found %d (%s)", len(free), strings.Join(free, ", ")), st
	}
	return solver.Success(ChessOutput{Square: free[0]}, true), st
}

func parseChessPiece(raw string) (chessPiece, solver.Result) {
	s := strings.TrimSpace(raw)
	if len(s) != 3 {
		return chessPiece{}, solver.Invalid("piece %q must look like Kb3", raw)
	}
	kind := strings.ToUpper(s[:1])
	if !strings.Contains("BKNQR", kind) {
		return chessPiece{}, solver.Unknown(chessPieces, "unknown piece %q", s[:1])
	}
	file := int(strings.ToLower(s[1:2])[0]) - 'a'
	rank := int(s[2]) - '1'
	if file < 0 || file >= ChessBoardSize || rank < 0 || rank >= ChessBoardSize {
		return chessPiece{}, solver.Invalid("square %q is off the board", s[1:])
	}
	return chessPiece{kind: kind[0], file: file, rank: rank}, solver.Success(nil, false)
}

// uncovered returns, in file then rank order, every square that is neither
// occupied nor attacked. Sliding pieces stop at the first occupied square.
func uncovered(pieces []chessPiece) []string {
	var covered [ChessBoardSize][ChessBoardSize]bool
	occupied := map[[2]int]bool{}
	for _, p := range pieces {
		occupied[[2]int{p.file, p.rank}] = true
		covered[p.file][p.rank] = true
	}

	onBoard := func(f, r int) bool {
		return f >= 0 && f < ChessBoardSize && r >= 0 && r < ChessBoardSize
	}
	slide := func(p chessPiece, dirs [][2]int) {
		for _, d := range dirs {
			f, r := p.file+d[0], p.rank+d[1]
			for onBoard(f, r) {
				covered[f][r] = true
				if occupied[[2]int{f, r}] {
					break
				}
				f, r = f+d[0], r+d[1]
			}
		}
	}

	for _, p := range pieces {
		switch p.kind {
		case 'K':
			for df := -1; df <= 1; df++ {
				for dr := -1; dr <= 1; dr++ {
					if onBoard(p.file+df, p.rank+dr) {
						covered[p.file+df][p.rank+dr] = true
					}
				}
			}
		case 'N':
			for _, j := range knightJumps {
				if onBoard(p.file+j[0], p.rank+j[1]) {
					covered[p.file+j[0]][p.rank+j[1]] = true
				}
			}
		case 'R':
			slide(p, rookDirs)
		case 'B':
			slide(p, bishopDirs)
		case 'Q':
			slide(p, rookDirs)
			slide(p, bishopDirs)
		}
	}

	var free []string
	for f := 0; f < ChessBoardSize; f++ {
		for r := 0; r < ChessBoardSize; r++ {
			if !covered[f][r] {
				free = append(free, squareName(f, r))
			}
		}
	}
	return free
}

func squareName(file, rank int) string {
	return fmt.Sprintf("%c%d", 'a'+file, rank+1)
}
