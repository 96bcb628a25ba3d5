package secureops

import (
	"fmt"
	"strings"
)

// Action identifies a single operation a role may perform on a function. Each
// action occupies one bit of the on-wire uint16 bitmap.
type Action uint16

const (
	// ActionExecuteTimeDelayRequest allows submitting a new time-delayed
	// transaction request through a handler.
	ActionExecuteTimeDelayRequest Action = 1 << iota
	// ActionExecuteTimeDelayApprove allows approving a pending transaction
	// once its release time has elapsed.
	ActionExecuteTimeDelayApprove
	// ActionExecuteTimeDelayCancel allows cancelling a pending transaction.
	ActionExecuteTimeDelayCancel
	// ActionSignMetaApprove allows a wallet to sign a meta-transaction
	// approving a pending transaction.
	ActionSignMetaApprove
	// ActionSignMetaCancel allows a wallet to sign a meta-transaction
	// cancelling a pending transaction.
	ActionSignMetaCancel
	// ActionSignMetaRequestAndApprove allows signing the single-step
	// request-and-approve meta-transaction.
	ActionSignMetaRequestAndApprove
	// ActionExecuteMetaApprove allows submitting a signed approval
	// meta-transaction on the signer's behalf.
	ActionExecuteMetaApprove
	// ActionExecuteMetaCancel allows submitting a signed cancellation
	// meta-transaction on the signer's behalf.
	ActionExecuteMetaCancel
	// ActionExecuteMetaRequestAndApprove allows submitting the signed
	// single-step meta-transaction on the signer's behalf.
	ActionExecuteMetaRequestAndApprove

	actionLimit
)

var actionNames = map[Action]string{
	ActionExecuteTimeDelayRequest:      "EXECUTE_TIME_DELAY_REQUEST",
	ActionExecuteTimeDelayApprove:      "EXECUTE_TIME_DELAY_APPROVE",
	ActionExecuteTimeDelayCancel:       "EXECUTE_TIME_DELAY_CANCEL",
	ActionSignMetaApprove:              "SIGN_META_APPROVE",
	ActionSignMetaCancel:               "SIGN_META_CANCEL",
	ActionSignMetaRequestAndApprove:    "SIGN_META_REQUEST_AND_APPROVE",
	ActionExecuteMetaApprove:           "EXECUTE_META_APPROVE",
	ActionExecuteMetaCancel:            "EXECUTE_META_CANCEL",
	ActionExecuteMetaRequestAndApprove: "EXECUTE_META_REQUEST_AND_APPROVE",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_ACTION(%d)", uint16(a))
}

// Valid reports whether the action is exactly one known bit.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// ParseAction resolves an action from its canonical name.
func ParseAction(name string) (Action, error) {
	trimmed := strings.TrimSpace(strings.ToUpper(name))
	for action, candidate := range actionNames {
		if candidate == trimmed {
			return action, nil
		}
	}
	return 0, fmt.Errorf("secureops: unknown action %q", name)
}

// ActionSet is a validated bounded set of actions. The zero value is the
// empty set.
type ActionSet uint16

// ActionSetOf builds a set from individual actions. Unknown bits panic since
// callers pass compile-time constants.
func ActionSetOf(actions ...Action) ActionSet {
	var set ActionSet
	for _, a := range actions {
		if !a.Valid() {
			panic(fmt.Sprintf("secureops: invalid action bit %d", uint16(a)))
		}
		set |= ActionSet(a)
	}
	return set
}

// ActionSetFromBits converts the raw wire bitmap into a set, rejecting any
// bit outside the defined action range instead of silently masking it.
func ActionSetFromBits(bits uint16) (ActionSet, error) {
	if bits >= uint16(actionLimit) {
		return 0, fmt.Errorf("secureops: bitmap %#x contains bits outside the action range", bits)
	}
	return ActionSet(bits), nil
}

// Bits returns the wire encoding of the set.
func (s ActionSet) Bits() uint16 { return uint16(s) }

// Has reports whether the set contains the given action.
func (s ActionSet) Has(a Action) bool { return uint16(s)&uint16(a) != 0 }

// IsEmpty reports whether no actions are present.
func (s ActionSet) IsEmpty() bool { return s == 0 }

// IsSubsetOf reports whether every action in s is also in other.
func (s ActionSet) IsSubsetOf(other ActionSet) bool {
	return uint16(s)&^uint16(other) == 0
}

// Actions enumerates the members of the set in bit order.
func (s ActionSet) Actions() []Action {
	out := make([]Action, 0, 9)
	for bit := Action(1); bit < actionLimit; bit <<= 1 {
		if s.Has(bit) {
			out = append(out, bit)
		}
	}
	return out
}

func (s ActionSet) String() string {
	actions := s.Actions()
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.String()
	}
	return strings.Join(names, "|")
}
