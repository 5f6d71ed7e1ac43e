package rotate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the state of an access key as reported by the provider.
type Status int

const (
	StatusUnknown  Status = iota // the provider returned something unexpected
	StatusActive                 // the key may be used to authenticate
	StatusInactive               // the key is retired, but not yet deleted
)

// ParseStatus turns a provider status string into a Status. Matching ignores
// case. Anything unrecognized is StatusUnknown.
func ParseStatus(s string) Status {
	switch strings.ToLower(s) {
	case "active":
		return StatusActive
	case "inactive":
		return StatusInactive
	default:
		return StatusUnknown
	}
}

// String returns the provider spelling of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusInactive:
		return "Inactive"
	default:
		return "Unknown"
	}
}

// AccessKey is one provider-issued credential as seen from the outside. It
// never carries the secret half of the key.
type AccessKey struct {
	ID        string
	Status    Status
	CreatedAt time.Time

	// LastUsedAt is nil when the key has never been used or the provider
	// cannot say.
	LastUsedAt *time.Time
}

// Active returns true if the key status is StatusActive.
func (k AccessKey) Active() bool {
	return k.Status == StatusActive
}

// NoDeactivation is the string stored in place of a timestamp when no key is
// waiting to be deleted.
const NoDeactivation = "-1"

// ErrMalformedRecord is returned when a stored deactivation timestamp cannot be
// parsed.
var ErrMalformedRecord = errors.New("malformed deactivation timestamp")

// recordLayouts are tried in order when parsing a stored timestamp. The last
// two are the forms written by older tooling using naive local timestamps.
var recordLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// DeactivationRecord remembers when the most recently deactivated key was
// deactivated. When Pending is false, no deactivation is waiting and Timestamp
// is meaningless.
type DeactivationRecord struct {
	Timestamp time.Time
	Pending   bool
}

// DeactivatedAt returns a pending record for the given time.
func DeactivatedAt(t time.Time) DeactivationRecord {
	return DeactivationRecord{
		Timestamp: t.UTC(),
		Pending:   true,
	}
}

// ParseDeactivationRecord reads a record in the format written by String().
// The empty string and NoDeactivation both give the non-pending record.
// Timestamps without a zone are read as UTC.
func ParseDeactivationRecord(s string) (DeactivationRecord, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == NoDeactivation {
		return DeactivationRecord{}, nil
	}

	for _, layout := range recordLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DeactivatedAt(t), nil
		}
	}

	return DeactivationRecord{}, fmt.Errorf("%w: %q", ErrMalformedRecord, s)
}

// String returns NoDeactivation or an RFC 3339 timestamp in UTC.
func (r DeactivationRecord) String() string {
	if !r.Pending {
		return NoDeactivation
	}
	return r.Timestamp.UTC().Format(time.RFC3339Nano)
}

// Policy holds the rotation thresholds. Both are measured in whole days.
type Policy struct {
	// MaxActiveAgeDays is the age past which a lone active key gets a standby.
	MaxActiveAgeDays int

	// DeleteAfterInactiveDays is the time since deactivation past which an
	// inactive key is deleted.
	DeleteAfterInactiveDays int
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxActiveAgeDays:        60,
		DeleteAfterInactiveDays: 10,
	}
}

// AgeInDays returns the number of whole days from from to to, rounded down. A
// to earlier than from gives a negative number.
func AgeInDays(from, to time.Time) int {
	const day = 24 * time.Hour
	d := to.Sub(from)
	days := d / day
	if d%day < 0 {
		days--
	}
	return int(days)
}
