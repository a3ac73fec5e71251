package solver

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorKind categorizes a failed solve.
type ErrorKind string

const (
	// KindValidation indicates malformed input: wrong element count, out-of-range
	// value, or a duplicate where uniqueness is required.
	KindValidation ErrorKind = "validation"

	// KindUnknownKey indicates an observation with no entry in the module's table.
	KindUnknownKey ErrorKind = "unknown_key"

	// KindInconsistent indicates the algorithm's own invariant was violated,
	// which points at malformed upstream data rather than an operator mistake.
	KindInconsistent ErrorKind = "internal_inconsistency"
)

// Failure describes why a solve did not produce an answer.
type Failure struct {
	Kind      ErrorKind `json:"kind"`
	Reason    string    `json:"reason"`
	ValidKeys []string  `json:"valid_keys,omitempty"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if len(f.ValidKeys) > 0 {
		return fmt.Sprintf("%s: %s (valid: %s)", f.Kind, f.Reason, strings.Join(f.ValidKeys, ", "))
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

// Result is the outcome of a single solve: either a success carrying typed
// output, or a failure.
//
// Solved need not mean terminal. Multi-stage protocols report Solved=false
// until their final stage.
type Result struct {
	Output  any
	Solved  bool
	Failure *Failure

	// State is the typed state to persist. It is set by the typed adapter on
	// success and is nil for stateless solvers.
	State any
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Success builds a successful result.
func Success(output any, solved bool) Result {
	return Result{Output: output, Solved: solved}
}

// Invalid builds a validation failure.
func Invalid(format string, args ...any) Result {
	return Result{Failure: &Failure{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}}
}

// Unknown builds an unknown-lookup-key failure listing the valid keys in
// sorted order.
func Unknown(valid []string, format string, args ...any) Result {
	keys := append([]string(nil), valid...)
	sort.Strings(keys)
	return Result{Failure: &Failure{Kind: KindUnknownKey, Reason: fmt.Sprintf(format, args...), ValidKeys: keys}}
}

// Inconsistent builds an internal-inconsistency failure.
func Inconsistent(format string, args ...any) Result {
	return Result{Failure: &Failure{Kind: KindInconsistent, Reason: fmt.Sprintf(format, args...)}}
}
