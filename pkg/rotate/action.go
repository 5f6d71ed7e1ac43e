package rotate

import (
	"fmt"
	"time"
)

// Kind is the main effect of an Action.
type Kind int

const (
	Noop          Kind = iota // leave the keys alone
	CreateKey                 // issue a new access key
	DeactivateKey             // mark TargetID inactive
	DeleteKey                 // delete TargetID
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case Noop:
		return "noop"
	case CreateKey:
		return "create-key"
	case DeactivateKey:
		return "deactivate-key"
	case DeleteKey:
		return "delete-key"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FollowUp is a change to the deactivation record that must be made after the
// main effect succeeds.
type FollowUp int

const (
	NoFollowUp                   FollowUp = iota
	PersistDeactivationTimestamp          // store Action.Timestamp as the deactivation time
	ClearDeactivationTimestamp            // store NoDeactivation
)

// String returns the name of the follow up.
func (f FollowUp) String() string {
	switch f {
	case NoFollowUp:
		return "none"
	case PersistDeactivationTimestamp:
		return "persist-deactivation-timestamp"
	case ClearDeactivationTimestamp:
		return "clear-deactivation-timestamp"
	default:
		return fmt.Sprintf("follow-up(%d)", int(f))
	}
}

// Rule names the branch of Decide() that produced an Action.
type Rule int

const (
	RuleInconsistent              Rule = iota // key set violates the two-key invariant
	RuleBootstrap                             // no keys at all
	RuleStaleActiveKey                        // lone active key is too old
	RuleFreshActiveKey                        // lone active key is young enough
	RuleStandbyConfirmed                      // newest key is also the most recently used
	RuleStandbyUnconfirmed                    // older key is still the one in use
	RuleUsageUnknown                          // last used data missing for a key
	RuleAmbiguousOrder                        // created or last used times are equal
	RuleInactiveExpired                       // inactive key has cooled off long enough
	RuleCoolingOff                            // inactive key must wait longer
	RuleMissingDeactivationRecord             // inactive key, but no record of when
)

var ruleNames = map[Rule]string{
	RuleInconsistent:              "inconsistent",
	RuleBootstrap:                 "bootstrap",
	RuleStaleActiveKey:            "stale-active-key",
	RuleFreshActiveKey:            "fresh-active-key",
	RuleStandbyConfirmed:          "standby-confirmed",
	RuleStandbyUnconfirmed:        "standby-unconfirmed",
	RuleUsageUnknown:              "usage-unknown",
	RuleAmbiguousOrder:            "ambiguous-order",
	RuleInactiveExpired:           "inactive-expired",
	RuleCoolingOff:                "cooling-off",
	RuleMissingDeactivationRecord: "missing-deactivation-record",
}

// String returns the name of the rule.
func (r Rule) String() string {
	if n, ok := ruleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("rule(%d)", int(r))
}

// Inconsistent returns true for outcomes that indicate the provider or store
// holds a state this program should never have produced. The caller is
// expected to report these as warnings.
func (r Rule) Inconsistent() bool {
	return r == RuleInconsistent || r == RuleMissingDeactivationRecord
}

// Action is the single thing a run should do. It has no behavior of its own;
// the Manager carries it out.
type Action struct {
	Kind     Kind
	TargetID string // key affected by DeactivateKey or DeleteKey
	FollowUp FollowUp

	// Timestamp is the deactivation time to store when FollowUp is
	// PersistDeactivationTimestamp.
	Timestamp time.Time

	Rule   Rule
	Reason string
}

// String returns a short form such as "deactivate-key(AKIA...) +
// persist-deactivation-timestamp".
func (a Action) String() string {
	s := a.Kind.String()
	if a.TargetID != "" {
		s = fmt.Sprintf("%s(%s)", s, a.TargetID)
	}
	if a.FollowUp != NoFollowUp {
		s += " + " + a.FollowUp.String()
	}
	return s
}
