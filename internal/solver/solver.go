// Package solver defines the contract every module type implements, the static
// registry that dispatches to those implementations, and the typed multi-stage
// history used by solvers that remember earlier stages.
package solver

import (
	"github.com/AaronLay10/DefusalEngine/internal/device"
)

// Type is the module type tag a solver answers for.
type Type = device.ModuleType

// Descriptor is the static metadata paired with a solver at registration time.
type Descriptor struct {
	Type Type   `json:"type"`
	Name string `json:"name"`
	// Input documents the operator input shape, e.g. `{"switches":[bool x5]}`.
	Input    string   `json:"input"`
	Tags     []string `json:"tags,omitempty"`
	Stateful bool     `json:"stateful"`
}

// Request carries everything a single solve needs.
type Request struct {
	// Module is the ID of the instance being solved. Solvers that reason about
	// same-type siblings use it to tell themselves apart.
	Module string
	Facts  device.Facts
	State  Blob
	Input  Blob
	Codec  *Codec
}

// Solver is implemented by every module type.
type Solver interface {
	Descriptor() Descriptor
	Solve(req Request) Result
}

// Snapshot is the persisted view of one module instance handed to Refresh.
type Snapshot struct {
	ID       string
	State    Blob
	Solution Blob
}

// RefreshRequest asks a solver to recompute the solution of Target from the
// persisted state of every instance of its type.
type RefreshRequest struct {
	Target    string
	Facts     device.Facts
	Instances []Snapshot
	Codec     *Codec
}

// Refresher is implemented by solvers whose answer depends on other modules
// and must be recomputed when those change.
//
// Refresh returns ok=false when the target is no longer among the instances;
// the caller should treat that as a no-op.
type Refresher interface {
	Refresh(req RefreshRequest) (res Result, ok bool)
}

// Annotator is implemented by solvers that expose ordering data to siblings
// through the device facts.
type Annotator interface {
	Annotate(codec *Codec, state Blob, sib *device.Sibling)
}

// Func is a solve function over concrete input and state types.
type Func[In, St any] func(facts device.Facts, state St, input In) (Result, St)

type typed[In, St any] struct {
	desc Descriptor
	fn   Func[In, St]
}

// Typed pairs a descriptor with a solve function over concrete types. The
// adapter decodes input and state through the request codec, and on success
// hands the new state back for persistence when the descriptor is stateful.
func Typed[In, St any](desc Descriptor, fn Func[In, St]) Solver {
	return &typed[In, St]{desc: desc, fn: fn}
}

func (t *typed[In, St]) Descriptor() Descriptor {
	return t.desc
}

func (t *typed[In, St]) Solve(req Request) Result {
	codec := req.Codec
	if codec == nil {
		codec = NewCodec()
	}

	var in In
	if err := codec.DecodeInput(req.Input, &in); err != nil {
		return Invalid("malformed input for %s: %v", t.desc.Type, err)
	}

	var st St
	if err := codec.Decode(req.State, &st); err != nil {
		return Inconsistent("unreadable state for %s: %v", t.desc.Type, err)
	}

	res, next := t.fn(req.Facts, st, in)
	if res.OK() && t.desc.Stateful {
		res.State = next
	}
	return res
}
