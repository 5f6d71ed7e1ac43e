package rotate

import (
	"fmt"
	"time"
)

// Stage is where a principal sits in the key lifecycle.
type Stage int

const (
	StageInconsistent Stage = iota // anything the lifecycle cannot produce
	StageEmpty                     // no keys
	StageLoneActive                // exactly one key, active
	StageStandby                   // two keys, both active
	StageCoolingOff                // two keys, one active and one inactive
)

// String returns the name of the stage.
func (s Stage) String() string {
	switch s {
	case StageEmpty:
		return "empty"
	case StageLoneActive:
		return "lone-active"
	case StageStandby:
		return "standby"
	case StageCoolingOff:
		return "cooling-off"
	default:
		return "inconsistent"
	}
}

// Classify places a key set in the lifecycle.
func Classify(keys []AccessKey) Stage {
	active, inactive := countStatus(keys)
	switch {
	case len(keys) == 0:
		return StageEmpty
	case len(keys) == 1 && active == 1:
		return StageLoneActive
	case len(keys) == 2 && active == 2:
		return StageStandby
	case len(keys) == 2 && active == 1 && inactive == 1:
		return StageCoolingOff
	default:
		return StageInconsistent
	}
}

func countStatus(keys []AccessKey) (active, inactive int) {
	for _, k := range keys {
		switch k.Status {
		case StatusActive:
			active++
		case StatusInactive:
			inactive++
		}
	}
	return active, inactive
}

// Decide picks the one action to take this run for the given snapshot of keys
// and deactivation record. It performs no I/O and depends on nothing but its
// arguments, so the same inputs always give the same Action.
//
// The rules, by stage:
//
//  1. StageEmpty: create a key.
//  2. StageLoneActive: create a key if the key is older than
//     MaxActiveAgeDays, otherwise nothing.
//  3. StageStandby with last used data for both keys: if the newer key is
//     also the more recently used, deactivate the older key and persist the
//     deactivation time, otherwise nothing.
//  4. StageStandby with last used data missing for either key: nothing.
//  5. StageCoolingOff: delete the inactive key and clear the deactivation
//     record if it was deactivated more than DeleteAfterInactiveDays ago,
//     otherwise nothing.
//  6. StageInconsistent: nothing.
func Decide(
	keys []AccessKey,
	rec DeactivationRecord,
	policy Policy,
	now time.Time,
) Action {
	switch Classify(keys) {
	case StageEmpty:
		return Action{
			Kind:   CreateKey,
			Rule:   RuleBootstrap,
			Reason: "principal has no access keys",
		}
	case StageLoneActive:
		return decideLoneActive(keys[0], policy, now)
	case StageStandby:
		return decideStandby(keys[0], keys[1], now)
	case StageCoolingOff:
		return decideCoolingOff(keys, rec, policy, now)
	}

	active, inactive := countStatus(keys)
	return Action{
		Kind: Noop,
		Rule: RuleInconsistent,
		Reason: fmt.Sprintf(
			"found %d keys (%d active, %d inactive); expected at most two with at most one inactive",
			len(keys), active, inactive,
		),
	}
}

func decideLoneActive(k AccessKey, policy Policy, now time.Time) Action {
	age := AgeInDays(k.CreatedAt, now)
	if age > policy.MaxActiveAgeDays {
		return Action{
			Kind:   CreateKey,
			Rule:   RuleStaleActiveKey,
			Reason: fmt.Sprintf("key %s is %d days old, limit is %d", k.ID, age, policy.MaxActiveAgeDays),
		}
	}

	return Action{
		Kind:   Noop,
		Rule:   RuleFreshActiveKey,
		Reason: fmt.Sprintf("key %s is %d days old, limit is %d", k.ID, age, policy.MaxActiveAgeDays),
	}
}

func decideStandby(a, b AccessKey, now time.Time) Action {
	if a.LastUsedAt == nil || b.LastUsedAt == nil {
		return Action{
			Kind:   Noop,
			Rule:   RuleUsageUnknown,
			Reason: "last used time is unknown for at least one active key",
		}
	}

	// Equal times give no ordering to act on.
	if a.CreatedAt.Equal(b.CreatedAt) || a.LastUsedAt.Equal(*b.LastUsedAt) {
		return Action{
			Kind:   Noop,
			Rule:   RuleAmbiguousOrder,
			Reason: fmt.Sprintf("keys %s and %s cannot be ordered by creation and last use", a.ID, b.ID),
		}
	}

	newer, older := a, b
	if b.CreatedAt.After(a.CreatedAt) {
		newer, older = b, a
	}

	recentlyUsed := a
	if b.LastUsedAt.After(*a.LastUsedAt) {
		recentlyUsed = b
	}

	if newer.ID != recentlyUsed.ID {
		return Action{
			Kind:   Noop,
			Rule:   RuleStandbyUnconfirmed,
			Reason: fmt.Sprintf("older key %s is still the most recently used", older.ID),
		}
	}

	return Action{
		Kind:      DeactivateKey,
		TargetID:  older.ID,
		FollowUp:  PersistDeactivationTimestamp,
		Timestamp: now.UTC(),
		Rule:      RuleStandbyConfirmed,
		Reason:    fmt.Sprintf("newer key %s is in use, retiring %s", newer.ID, older.ID),
	}
}

func decideCoolingOff(
	keys []AccessKey,
	rec DeactivationRecord,
	policy Policy,
	now time.Time,
) Action {
	inactive := keys[0]
	if inactive.Active() {
		inactive = keys[1]
	}

	if !rec.Pending {
		return Action{
			Kind:   Noop,
			Rule:   RuleMissingDeactivationRecord,
			Reason: fmt.Sprintf("key %s is inactive, but no deactivation time is recorded", inactive.ID),
		}
	}

	age := AgeInDays(rec.Timestamp, now)
	if age > policy.DeleteAfterInactiveDays {
		return Action{
			Kind:     DeleteKey,
			TargetID: inactive.ID,
			FollowUp: ClearDeactivationTimestamp,
			Rule:     RuleInactiveExpired,
			Reason: fmt.Sprintf("key %s was deactivated %d days ago, limit is %d",
				inactive.ID, age, policy.DeleteAfterInactiveDays),
		}
	}

	return Action{
		Kind: Noop,
		Rule: RuleCoolingOff,
		Reason: fmt.Sprintf("key %s was deactivated %d days ago, limit is %d",
			inactive.ID, age, policy.DeleteAfterInactiveDays),
	}
}
