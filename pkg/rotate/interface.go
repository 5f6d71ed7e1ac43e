package rotate

import (
	"context"
	"time"

	"github.com/zostay/keyrotate/pkg/secret"
)

// Provider is the credential issuer: the thing that owns the access keys.
type Provider interface {
	Name() string

	// ListKeys returns the keys of the principal without LastUsedAt set.
	ListKeys(ctx context.Context, principal string) ([]AccessKey, error)

	// LastUsed returns the time the key was last used. It returns nil and no
	// error if the key has never been used or the provider has no record of
	// it.
	LastUsed(ctx context.Context, keyID string) (*time.Time, error)

	// CreateKey issues a new active key for the principal.
	CreateKey(ctx context.Context, principal string) (secret.Credential, error)

	// SetStatus changes the status of the key. Setting the current status
	// again is not an error.
	SetStatus(ctx context.Context, principal, keyID string, status Status) error

	// DeleteKey removes the key. Deleting a key that no longer exists is not
	// an error.
	DeleteKey(ctx context.Context, principal, keyID string) error
}

// Store is the durable parameter store holding all state kept between runs.
type Store interface {
	Name() string

	// DeactivationRecord returns the stored record for the principal or the
	// non-pending record if none has ever been stored.
	DeactivationRecord(ctx context.Context, principal string) (DeactivationRecord, error)

	// PutDeactivationRecord stores the record, replacing any previous one.
	PutDeactivationRecord(ctx context.Context, principal string, rec DeactivationRecord) error

	// PutCredentials stores the current credential pair, replacing any
	// previous one.
	PutCredentials(ctx context.Context, principal string, cred secret.Credential) error
}

// Mirror is an additional place to store newly minted credentials, such as
// the CI system of a project that uses them.
type Mirror interface {
	Name() string

	// SaveKeys stores each of the values in the given map under its key in
	// the named target.
	SaveKeys(ctx context.Context, target string, ss secret.Map) error
}

// MirrorTarget binds a Mirror to the target it updates and the names it uses
// for each value.
type MirrorTarget struct {
	Mirror Mirror
	Target string

	// Keys renames secret.AccessKeyName and secret.SecretKeyName for this
	// target. Missing entries keep the default names.
	Keys map[string]string
}

// Recorder is told about each run. It is used for metrics.
type Recorder interface {
	ObserveKeys(keys []AccessKey, now time.Time)
	ObserveAction(action Action)
	ObserveRun(err error, now time.Time)
}
