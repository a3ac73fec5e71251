package modules

import (
	"strings"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// PasswordLength is the number of letter columns.
const PasswordLength = 5

// StockPasswords is the manual's word list.
var StockPasswords = []string{
	"about", "after", "again", "below", "could", "every", "first", "found", "great",
	"house", "large", "learn", "never", "other", "place", "plant", "point", "right",
	"small", "sound", "spell", "still", "study", "their", "there", "these", "thing",
	"think", "three", "water", "where", "which", "world", "would", "write",
}

// PasswordInput lists the letters seen so far in each column. Columns not yet
// cycled through may be empty or omitted.
type PasswordInput struct {
	Columns []string `json:"columns"`
}

// PasswordOutput lists the words still possible. Word is set once one remains.
type PasswordOutput struct {
	Word       string   `json:"word,omitempty"`
	Candidates []string `json:"candidates"`
}

// Password narrows the word list by the letters available in each column.
type Password struct {
	words []string
	typed solver.Solver
}

// NewPassword builds the solver over words.
func NewPassword(words []string) *Password {
	p := &Password{words: words}
	p.typed = solver.Typed(p.Descriptor(), p.solve)
	return p
}

// Descriptor implements solver.Solver.
func (p *Password) Descriptor() solver.Descriptor {
	return solver.Descriptor{
		Type:  TypePassword,
		Name:  DisplayName(TypePassword),
		Input: `{"columns":["abcdef","ghijkl",...up to 5]}`,
		Tags:  []string{"lookup", "vanilla"},
	}
}

// Solve implements solver.Solver.
func (p *Password) Solve(req solver.Request) solver.Result {
	return p.typed.Solve(req)
}

func (p *Password) solve(_ device.Facts, st struct{}, in PasswordInput) (solver.Result, struct{}) {
	if len(in.Columns) > PasswordLength {
		return solver.Invalid("expected at most %d columns, got %d", PasswordLength, len(in.Columns)), st
	}
	cols := make([]string, len(in.Columns))
	for i, c := range in.Columns {
		c = strings.ToLower(strings.TrimSpace(c))
		for _, r := range c {
			if r < 'a' || r > 'z' {
				return solver.Invalid("column %d contains %q; only letters are allowed", i+1, r), st
			}
		}
		cols[i] = c
	}

	var matches []string
	for _, w := range p.words {
		if passwordFits(w, cols) {
			matches = append(matches, w)
		}
	}

	switch len(matches) {
	case 0:
		return solver.Unknown(p.words, "no word fits columns %s", strings.Join(cols, "/")), st
	case 1:
		return solver.Success(PasswordOutput{Word: matches[0], Candidates: matches}, true), st
	}
	return solver.Success(PasswordOutput{Candidates: matches}, false), st
}

func passwordFits(word string, cols []string) bool {
	for i, col := range cols {
		if col == "" || i >= len(word) {
			continue
		}
		if !strings.ContainsRune(col, rune(word[i])) {
			return false
		}
	}
	return true
}
