package solver

import (
	"fmt"
	"sort"

	"github.com/AaronLay10/DefusalEngine/internal/device"
)

// Outcome is a result converted to the blob shape the caller persists.
type Outcome struct {
	Result

	// State is the updated state blob, nil when the solver is stateless or the
	// solve failed.
	State Blob
	// Solution is the encoded output, nil when the solve failed.
	Solution Blob
}

// Registry maps module types to solvers. It is populated once at startup and
// only read afterwards, so lookups need no locking.
type Registry struct {
	solvers map[Type]Solver
	codec   *Codec
}

// NewRegistry creates an empty registry using codec for blob conversion.
func NewRegistry(codec *Codec) *Registry {
	if codec == nil {
		codec = NewCodec()
	}
	return &Registry{
		solvers: make(map[Type]Solver),
		codec:   codec,
	}
}

// Register adds a solver under its descriptor's type.
func (r *Registry) Register(s Solver) error {
	desc := s.Descriptor()
	if desc.Type == "" {
		return fmt.Errorf("solver %T has an empty type", s)
	}
	if _, exists := r.solvers[desc.Type]; exists {
		return fmt.Errorf("solver already registered for type %s", desc.Type)
	}
	r.solvers[desc.Type] = s
	return nil
}

// Lookup returns the solver for a type.
func (r *Registry) Lookup(t Type) (Solver, bool) {
	s, ok := r.solvers[t]
	return s, ok
}

// Codec returns the registry's codec.
func (r *Registry) Codec() *Codec {
	return r.codec
}

// Descriptors returns every registered descriptor sorted by type.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.solvers))
	for _, s := range r.solvers {
		out = append(out, s.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Solve dispatches to the solver registered for t and converts the result to
// blobs. An unregistered type is reported as a validation failure.
func (r *Registry) Solve(t Type, req Request) Outcome {
	s, ok := r.solvers[t]
	if !ok {
		return Outcome{Result: Invalid("no solver registered for module type %q", t)}
	}
	if req.Codec == nil {
		req.Codec = r.codec
	}
	return r.finish(t, s.Solve(req))
}

// Refresh recomputes the solution of one instance of a type whose solver
// implements Refresher. ok is false when the type does not refresh or the
// target no longer exists.
func (r *Registry) Refresh(t Type, req RefreshRequest) (Outcome, bool) {
	s, found := r.solvers[t]
	if !found {
		return Outcome{}, false
	}
	rf, isRefresher := s.(Refresher)
	if !isRefresher {
		return Outcome{}, false
	}
	if req.Codec == nil {
		req.Codec = r.codec
	}
	res, ok := rf.Refresh(req)
	if !ok {
		return Outcome{}, false
	}
	return r.finish(t, res), true
}

// Refreshes reports whether solutions of type t depend on sibling changes.
func (r *Registry) Refreshes(t Type) bool {
	s, ok := r.solvers[t]
	if !ok {
		return false
	}
	_, ok = s.(Refresher)
	return ok
}

// Annotate lets the solver for sib.Type copy ordering data from state into the
// sibling summary.
func (r *Registry) Annotate(state Blob, sib *device.Sibling) {
	s, ok := r.solvers[sib.Type]
	if !ok {
		return
	}
	if a, ok := s.(Annotator); ok {
		a.Annotate(r.codec, state, sib)
	}
}

func (r *Registry) finish(t Type, res Result) Outcome {
	if !res.OK() {
		return Outcome{Result: res}
	}

	solution, err := r.codec.Encode(res.Output)
	if err != nil {
		return Outcome{Result: Inconsistent("%s produced unencodable output: %v", t, err)}
	}
	state, err := r.codec.Encode(res.State)
	if err != nil {
		return Outcome{Result: Inconsistent("%s produced unencodable state: %v", t, err)}
	}
	return Outcome{Result: res, State: state, Solution: solution}
}
