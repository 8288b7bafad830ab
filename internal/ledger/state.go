package ledger

import "fmt"

// DecisionState is the workflow state of a decision as it moves through
// proposal, human review, acknowledgement, and voiding.
type DecisionState string

const (
	StatePending   DecisionState = "PENDING"
	StateConfirmed DecisionState = "CONFIRMED"
	StateRejected  DecisionState = "REJECTED"
	StateFlagRisk  DecisionState = "FLAG_RISK"
	StateAck       DecisionState = "ACK"
	StateVoided    DecisionState = "VOIDED"
)

// transitions lists the legal next states per current state. REJECTED and
// VOIDED are terminal.
var transitions = map[DecisionState]map[DecisionState]bool{
	StatePending:   {StateConfirmed: true, StateRejected: true, StateFlagRisk: true, StateVoided: true},
	StateConfirmed: {StateAck: true, StateFlagRisk: true, StateVoided: true},
	StateFlagRisk:  {StateConfirmed: true, StateRejected: true, StateVoided: true},
	StateAck:       {StateFlagRisk: true, StateVoided: true},
}

// roleRules lists the states each role may move a decision into.
var roleRules = map[Role]map[DecisionState]bool{
	RoleAdmin:   {StateConfirmed: true, StateRejected: true, StateFlagRisk: true, StateAck: true, StateVoided: true},
	RoleConfirm: {StateConfirmed: true, StateFlagRisk: true, StateAck: true},
}

// CanTransition reports whether role may move a decision from current to
// target. Unknown states, terminal states, and the READ role all refuse.
func CanTransition(current, target DecisionState, role Role) bool {
	next, ok := transitions[current]
	if !ok || !next[target] {
		return false
	}
	allowed, ok := roleRules[role]
	if !ok {
		return false
	}
	return allowed[target]
}

// Transition is CanTransition with a descriptive error for the refusal.
func Transition(current, target DecisionState, role Role) (DecisionState, error) {
	if !CanTransition(current, target, role) {
		return current, fmt.Errorf("role %s may not move decision %s -> %s", role, current, target)
	}
	return target, nil
}

// ResponseState maps a negotiation response onto the decision workflow:
// CONFIRM advances to CONFIRMED, REJECT to REJECTED, HOLD flags risk.
func ResponseState(action HumanAction) (DecisionState, error) {
	switch action {
	case ActionConfirm:
		return StateConfirmed, nil
	case ActionReject:
		return StateRejected, nil
	case ActionHold:
		return StateFlagRisk, nil
	default:
		return "", fmt.Errorf("invalid human action %q: %w", action, ErrInvalidValue)
	}
}
