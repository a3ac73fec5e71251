package solver

// Stages is an append-only history of per-stage fragments. Solvers embed it in
// their state struct; the zero value is an empty history.
type Stages[F any] struct {
	History []F `json:"history"`
}

// Len returns the number of recorded stages.
func (s Stages[F]) Len() int {
	return len(s.History)
}

// At returns the fragment recorded for the zero-based stage i.
func (s Stages[F]) At(i int) F {
	return s.History[i]
}

// Last returns the most recent fragment.
func (s Stages[F]) Last() (F, bool) {
	var zero F
	if len(s.History) == 0 {
		return zero, false
	}
	return s.History[len(s.History)-1], true
}

// Append returns a history with f added. The receiver's backing array is never
// written to, so a copy of an older history stays intact.
func (s Stages[F]) Append(f F) Stages[F] {
	next := make([]F, len(s.History), len(s.History)+1)
	copy(next, s.History)
	return Stages[F]{History: append(next, f)}
}
