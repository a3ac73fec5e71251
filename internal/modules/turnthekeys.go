package modules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// Gate names accepted in KeysInput.Open. The first gate is the right key, the
// second gate the left key.
const (
	GateFirst  = "first"
	GateSecond = "second"
)

// KeyRules are the fixed cross-module constraints of Turn The Keys.
type KeyRules struct {
	// FirstNeedsSolved must be fully solved before any first gate opens.
	FirstNeedsSolved []device.ModuleType
	// FirstBlockedBySolved must all still be unsolved when a first gate opens.
	FirstBlockedBySolved []device.ModuleType
	// SecondNeedsSolved must be fully solved before any second gate opens.
	SecondNeedsSolved []device.ModuleType
	// SecondBlockedBySolved must all still be unsolved when a second gate opens.
	SecondBlockedBySolved []device.ModuleType
}

// StockKeyRules are the constraints printed in the manual.
var StockKeyRules = KeyRules{
	FirstNeedsSolved:      []device.ModuleType{TypeMorseCode, TypeWires, TypeTwoBits, TypeButton, TypeColourFlash, TypeRoundKeypad},
	FirstBlockedBySolved:  []device.ModuleType{TypeSemaphore, TypeCombinationLock, TypeSimonSays, TypeAstrology, TypeSwitches, TypePlumbing},
	SecondNeedsSolved:     []device.ModuleType{TypePassword, TypeWhosOnFirst, TypeCrazyTalk, TypeKeypad, TypeListening, TypeOrientationCube},
	SecondBlockedBySolved: []device.ModuleType{TypeMaze, TypeMemory, TypeComplicatedWires, TypeWireSequence, TypeCryptography},
}

// KeysState is the persisted state of one Turn The Keys instance.
type KeysState struct {
	Priority   *int `json:"priority,omitempty"`
	FirstOpen  bool `json:"first_open"`
	SecondOpen bool `json:"second_open"`
}

// KeysInput reports the instance's priority and optionally asks to open a gate.
type KeysInput struct {
	Priority *int   `json:"priority,omitempty"`
	Open     string `json:"open,omitempty"`
}

// KeysOutput tells the operator which gates may be opened right now.
type KeysOutput struct {
	Priority      int    `json:"priority"`
	FirstOpen     bool   `json:"first_open"`
	SecondOpen    bool   `json:"second_open"`
	CanOpenFirst  bool   `json:"can_open_first"`
	CanOpenSecond bool   `json:"can_open_second"`
	FirstReason   string `json:"first_reason,omitempty"`
	SecondReason  string `json:"second_reason,omitempty"`
	Opened        string `json:"opened,omitempty"`
}

type keyInstance struct {
	id       string
	priority int
	known    bool
	first    bool
	second   bool
}

// TurnTheKeys resolves the ordering constraints between Turn The Keys
// instances and the rest of the device. It is re-run both when its own
// instance changes and, through Refresh, when any sibling changes.
type TurnTheKeys struct {
	rules KeyRules
}

// NewTurnTheKeys builds the resolver with the given rules.
func NewTurnTheKeys(rules KeyRules) *TurnTheKeys {
	return &TurnTheKeys{rules: rules}
}

// Descriptor implements solver.Solver.
func (k *TurnTheKeys) Descriptor() solver.Descriptor {
	return solver.Descriptor{
		Type:     TypeTurnTheKeys,
		Name:     DisplayName(TypeTurnTheKeys),
		Input:    `{"priority":int,"open":"first"|"second"}`,
		Tags:     []string{"ordering", "cross-module"},
		Stateful: true,
	}
}

// Solve records the instance's priority, opens a requested gate when the
// ordering rules allow it, and reports what may be opened next.
func (k *TurnTheKeys) Solve(req solver.Request) solver.Result {
	codec := req.Codec
	if codec == nil {
		codec = solver.NewCodec()
	}

	var in KeysInput
	if err := codec.DecodeInput(req.Input, &in); err != nil {
		return solver.Invalid("malformed input for %s: %v", TypeTurnTheKeys, err)
	}
	var st KeysState
	if err := codec.Decode(req.State, &st); err != nil {
		return solver.Inconsistent("unreadable state for %s: %v", TypeTurnTheKeys, err)
	}

	if in.Open != "" && in.Open != GateFirst && in.Open != GateSecond {
		return solver.Invalid("open must be %q or %q, got %q", GateFirst, GateSecond, in.Open)
	}
	if in.Priority != nil {
		if st.Priority != nil && *st.Priority != *in.Priority && (st.FirstOpen || st.SecondOpen) {
			return solver.Invalid("priority cannot change after a key has been turned")
		}
		p := *in.Priority
		st.Priority = &p
	}
	if st.Priority == nil {
		return solver.Invalid("priority is required")
	}

	self := keyInstance{id: req.Module, priority: *st.Priority, known: true, first: st.FirstOpen, second: st.SecondOpen}
	var others []keyInstance
	for _, sib := range req.Facts.Modules {
		if sib.Type != TypeTurnTheKeys || sib.ID == req.Module {
			continue
		}
		others = append(others, instanceFromSibling(sib))
	}
	if res := checkUniquePriority(self, others); !res.OK() {
		return res
	}

	out := k.evaluate(req.Facts, self, others)
	switch {
	case in.Open == GateFirst && !st.FirstOpen && out.CanOpenFirst:
		st.FirstOpen = true
		self.first = true
		out = k.evaluate(req.Facts, self, others)
		out.Opened = GateFirst
	case in.Open == GateSecond && !st.SecondOpen && out.CanOpenSecond:
		st.SecondOpen = true
		self.second = true
		out = k.evaluate(req.Facts, self, others)
		out.Opened = GateSecond
	}

	res := solver.Success(out, st.FirstOpen && st.SecondOpen)
	res.State = st
	return res
}

// Refresh recomputes the target's solution from the persisted state of every
// Turn The Keys instance. The target's state is left untouched. A target that
// is no longer among the instances is a no-op.
func (k *TurnTheKeys) Refresh(req solver.RefreshRequest) (solver.Result, bool) {
	codec := req.Codec
	if codec == nil {
		codec = solver.NewCodec()
	}

	var (
		self  keyInstance
		found bool
	)
	others := make([]keyInstance, 0, len(req.Instances))
	for _, snap := range req.Instances {
		var st KeysState
		if err := codec.Decode(snap.State, &st); err != nil {
			return solver.Inconsistent("unreadable state for %s %s: %v", TypeTurnTheKeys, snap.ID, err), true
		}
		inst := instanceFromState(snap.ID, st)
		if snap.ID == req.Target {
			self, found = inst, true
			continue
		}
		others = append(others, inst)
	}
	if !found {
		return solver.Result{}, false
	}
	if !self.known {
		return solver.Invalid("priority is required"), true
	}
	if res := checkUniquePriority(self, others); !res.OK() {
		return res, true
	}

	out := k.evaluate(req.Facts, self, others)
	return solver.Success(out, self.first && self.second), true
}

// Annotate copies priority and gate state into the sibling summary so other
// instances can see them through the device facts.
func (k *TurnTheKeys) Annotate(codec *solver.Codec, state solver.Blob, sib *device.Sibling) {
	var st KeysState
	if err := codec.Decode(state, &st); err != nil {
		return
	}
	if st.Priority != nil {
		p := *st.Priority
		sib.Priority = &p
	}
	sib.Gates = []bool{st.FirstOpen, st.SecondOpen}
}

func instanceFromState(id string, st KeysState) keyInstance {
	inst := keyInstance{id: id, first: st.FirstOpen, second: st.SecondOpen}
	if st.Priority != nil {
		inst.priority, inst.known = *st.Priority, true
	}
	return inst
}

func instanceFromSibling(sib device.Sibling) keyInstance {
	inst := keyInstance{id: sib.ID}
	if sib.Priority != nil {
		inst.priority, inst.known = *sib.Priority, true
	}
	if len(sib.Gates) > 0 {
		inst.first = sib.Gates[0]
	}
	if len(sib.Gates) > 1 {
		inst.second = sib.Gates[1]
	}
	return inst
}

// checkUniquePriority rejects a shared priority. Ordering between equal
// priorities is undefined, so it is treated as bad input rather than guessed.
func checkUniquePriority(self keyInstance, others []keyInstance) solver.Result {
	for _, o := range others {
		if o.known && o.priority == self.priority {
			return solver.Invalid("priority %d is shared with module %s; priorities must be unique", self.priority, o.id)
		}
	}
	return solver.Success(nil, false)
}

func (k *TurnTheKeys) evaluate(facts device.Facts, self keyInstance, others []keyInstance) KeysOutput {
	out := KeysOutput{
		Priority:   self.priority,
		FirstOpen:  self.first,
		SecondOpen: self.second,
	}
	out.CanOpenFirst, out.FirstReason = k.firstGate(facts, self, others)
	out.CanOpenSecond, out.SecondReason = k.secondGate(facts, self, others)
	return out
}

// firstGate returns whether the first gate may be opened and, when it may not,
// the first unmet condition.
func (k *TurnTheKeys) firstGate(facts device.Facts, self keyInstance, others []keyInstance) (bool, string) {
	if self.first {
		return true, ""
	}
	if unknown := unknownPriorities(others); len(unknown) > 0 {
		return false, "waiting for the priority of Turn The Keys " + strings.Join(unknown, ", ")
	}
	for _, o := range others {
		if o.second {
			return false, fmt.Sprintf("a left key has already been turned (priority %d)", o.priority)
		}
	}
	var early []int
	for _, o := range others {
		if outranks(self.priority, o.priority) && o.first {
			early = append(early, o.priority)
		}
	}
	if len(early) > 0 {
		sort.Ints(early)
		return false, "right key turned out of order on priority " + joinInts(early)
	}
	if solved := solvedTypes(facts, k.rules.FirstBlockedBySolved); len(solved) > 0 {
		return false, "too late, already solved: " + solved
	}
	var waiting []int
	for _, o := range others {
		if outranks(o.priority, self.priority) && !o.first {
			waiting = append(waiting, o.priority)
		}
	}
	if len(waiting) > 0 {
		sort.Ints(waiting)
		return false, "waiting for the right key on priority " + joinInts(waiting)
	}
	if pending := unsolvedTypes(facts, k.rules.FirstNeedsSolved); len(pending) > 0 {
		return false, "solve first: " + pending
	}
	return true, ""
}

// secondGate returns whether the second gate may be opened and, when it may
// not, the first unmet condition.
func (k *TurnTheKeys) secondGate(facts device.Facts, self keyInstance, others []keyInstance) (bool, string) {
	if self.second {
		return true, ""
	}
	if unknown := unknownPriorities(others); len(unknown) > 0 {
		return false, "waiting for the priority of Turn The Keys " + strings.Join(unknown, ", ")
	}
	if !self.first {
		return false, "turn this module's right key first"
	}
	var closed []int
	for _, o := range others {
		if !o.first {
			closed = append(closed, o.priority)
		}
	}
	if len(closed) > 0 {
		sort.Ints(closed)
		return false, "waiting for the right key on priority " + joinInts(closed)
	}
	var early []int
	for _, o := range others {
		if outranks(o.priority, self.priority) && o.second {
			early = append(early, o.priority)
		}
	}
	if len(early) > 0 {
		sort.Ints(early)
		return false, "a higher-priority left key has already been turned (priority " + joinInts(early) + ")"
	}
	if solved := solvedTypes(facts, k.rules.SecondBlockedBySolved); len(solved) > 0 {
		return false, "too late, already solved: " + solved
	}
	var waiting []int
	for _, o := range others {
		if outranks(self.priority, o.priority) && !o.second {
			waiting = append(waiting, o.priority)
		}
	}
	if len(waiting) > 0 {
		sort.Ints(waiting)
		return false, "waiting for the left key on priority " + joinInts(waiting)
	}
	if pending := unsolvedTypes(facts, k.rules.SecondNeedsSolved); len(pending) > 0 {
		return false, "solve first: " + pending
	}
	return true, ""
}

// outranks reports whether priority a ranks above b. Priority 1 goes first.
func outranks(a, b int) bool {
	return a < b
}

func unknownPriorities(others []keyInstance) []string {
	var ids []string
	for _, o := range others {
		if !o.known {
			ids = append(ids, o.id)
		}
	}
	sort.Strings(ids)
	return ids
}

func solvedTypes(facts device.Facts, types []device.ModuleType) string {
	var names []string
	for _, t := range types {
		if facts.AnySolved(t) {
			names = append(names, DisplayName(t))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func unsolvedTypes(facts device.Facts, types []device.ModuleType) string {
	var names []string
	for _, t := range types {
		if !facts.AllSolved(t) {
			names = append(names, DisplayName(t))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
