package rotate

import (
	"context"
	"fmt"
	"time"

	"github.com/zostay/keyrotate/pkg/config"
	kerrors "github.com/zostay/keyrotate/pkg/errors"
	"github.com/zostay/keyrotate/pkg/secret"
)

// Result describes what a run found and did.
type Result struct {
	Principal string
	Stage     Stage
	KeyCount  int
	Action    Action

	// Created is the newly minted credential when Action.Kind is CreateKey
	// and the run was not a dry run.
	Created *secret.Credential

	DryRun bool
}

// Manager provides the business logic for a single rotation run of a single
// principal. It loads the key snapshot from the Provider and Store, asks
// Decide() what to do, does it, and then stores the current credentials.
type Manager struct {
	provider Provider
	store    Store

	principal string
	current   secret.Credential
	policy    Policy

	dryRun bool

	mirrors  []MirrorTarget
	recorder Recorder
	now      func() time.Time
}

// Option configures optional parts of a Manager.
type Option func(*Manager)

// WithMirrors adds mirrors to update whenever a new key is created.
func WithMirrors(mts ...MirrorTarget) Option {
	return func(m *Manager) {
		m.mirrors = append(m.mirrors, mts...)
	}
}

// WithRecorder sets the recorder told about each run.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New constructs a new object to perform rotation for the given principal.
// The current credential is the pair stored as the snapshot when the run does
// not create a key; it may be zero.
func New(
	provider Provider,
	store Store,
	principal string,
	current secret.Credential,
	policy Policy,
	dryRun bool,
	opts ...Option,
) *Manager {
	m := &Manager{
		provider:  provider,
		store:     store,
		principal: principal,
		current:   current,
		policy:    policy,
		dryRun:    dryRun,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Load fetches the keys of the principal, fills in the last used time of
// each, and fetches the deactivation record.
func (m *Manager) Load(ctx context.Context) ([]AccessKey, DeactivationRecord, error) {
	logger := config.LoggerFrom(ctx).Sugar()

	keys, err := m.provider.ListKeys(ctx, m.principal)
	if err != nil {
		return nil, DeactivationRecord{}, fmt.Errorf("failed to list access keys for %q: %w", m.principal, err)
	}

	for i := range keys {
		lastUsed, err := m.provider.LastUsed(ctx, keys[i].ID)
		if err != nil {
			return nil, DeactivationRecord{}, fmt.Errorf("failed to fetch last used time of access key %q: %w", keys[i].ID, err)
		}
		keys[i].LastUsedAt = lastUsed

		logger.Debugw(
			"loaded access key",
			"principal", m.principal,
			"key", keys[i].ID,
			"status", keys[i].Status,
			"created_ts", keys[i].CreatedAt,
			"last_used_ts", lastUsed,
		)
	}

	rec, err := m.store.DeactivationRecord(ctx, m.principal)
	if err != nil {
		return nil, DeactivationRecord{}, fmt.Errorf("failed to fetch deactivation record for %q: %w", m.principal, err)
	}

	return keys, rec, nil
}

// Plan loads the current state and returns what a run would do without doing
// any of it.
func (m *Manager) Plan(ctx context.Context) (*Result, error) {
	if m.principal == "" {
		return nil, config.ErrMissingPrincipal
	}

	keys, rec, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if m.recorder != nil {
		m.recorder.ObserveKeys(keys, now)
	}

	return &Result{
		Principal: m.principal,
		Stage:     Classify(keys),
		KeyCount:  len(keys),
		Action:    Decide(keys, rec, m.policy, now),
		DryRun:    true,
	}, nil
}

// Execute carries out the action and its follow up. When the action creates a
// key, the new credential is returned.
func (m *Manager) Execute(ctx context.Context, a Action) (*secret.Credential, error) {
	logger := config.LoggerFrom(ctx).Sugar()

	var created *secret.Credential
	switch a.Kind {
	case Noop:
	case CreateKey:
		logger.Infow(
			"creating access key",
			"principal", m.principal,
			"provider", m.provider.Name(),
		)

		cred, err := m.provider.CreateKey(ctx, m.principal)
		if err != nil {
			return nil, fmt.Errorf("failed to create access key for %q: %w", m.principal, err)
		}
		created = &cred
	case DeactivateKey:
		logger.Infow(
			"deactivating access key",
			"principal", m.principal,
			"provider", m.provider.Name(),
			"key", a.TargetID,
		)

		err := m.provider.SetStatus(ctx, m.principal, a.TargetID, StatusInactive)
		if err != nil {
			return nil, fmt.Errorf("failed to deactivate access key %q: %w", a.TargetID, err)
		}
	case DeleteKey:
		logger.Infow(
			"deleting access key",
			"principal", m.principal,
			"provider", m.provider.Name(),
			"key", a.TargetID,
		)

		err := m.provider.DeleteKey(ctx, m.principal, a.TargetID)
		if err != nil {
			return nil, fmt.Errorf("failed to delete access key %q: %w", a.TargetID, err)
		}
	default:
		return nil, fmt.Errorf("unknown action %v", a.Kind)
	}

	var rec DeactivationRecord
	switch a.FollowUp {
	case NoFollowUp:
		return created, nil
	case PersistDeactivationTimestamp:
		rec = DeactivatedAt(a.Timestamp)
	case ClearDeactivationTimestamp:
		rec = DeactivationRecord{}
	default:
		return nil, fmt.Errorf("unknown follow up %v", a.FollowUp)
	}

	err := m.store.PutDeactivationRecord(ctx, m.principal, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to store deactivation record for %q: %w", m.principal, err)
	}

	return created, nil
}

// Rotate performs one rotation run: it loads, decides, executes, and then
// stores the current credential snapshot. The snapshot is the newly created
// credential if one was created and the configured current credential
// otherwise. If neither exists, the snapshot is skipped.
//
// When a key is created, every mirror is updated after the snapshot. Mirror
// failures are gathered and returned together with the Result, so the caller
// can still report the new credential.
func (m *Manager) Rotate(ctx context.Context) (res *Result, err error) {
	logger := config.LoggerFrom(ctx).Sugar()

	now := m.now()
	if m.recorder != nil {
		defer func() { m.recorder.ObserveRun(err, now) }()
	}

	if m.principal == "" {
		return nil, config.ErrMissingPrincipal
	}

	keys, rec, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}

	if m.recorder != nil {
		m.recorder.ObserveKeys(keys, now)
	}

	stage := Classify(keys)
	action := Decide(keys, rec, m.policy, now)

	logger.Infow(
		"decided rotation action",
		"principal", m.principal,
		"stage", stage,
		"action", action,
		"rule", action.Rule,
		"reason", action.Reason,
	)

	if action.Rule.Inconsistent() {
		logger.Warnw(
			"access keys are in an unexpected state; leaving them alone",
			"principal", m.principal,
			"stage", stage,
			"key_count", len(keys),
			"reason", action.Reason,
		)
	}

	if (action.Kind == DeactivateKey || action.Kind == DeleteKey) && action.TargetID == m.current.AccessKeyID {
		logger.Warnw(
			"the configured current access key is the one being retired",
			"principal", m.principal,
			"key", action.TargetID,
			"action", action,
		)
	}

	res = &Result{
		Principal: m.principal,
		Stage:     stage,
		KeyCount:  len(keys),
		Action:    action,
		DryRun:    m.dryRun,
	}

	if m.dryRun {
		logger.Infow(
			"dry run: here's where the rotation action would be performed",
			"principal", m.principal,
			"action", action,
		)
		return res, nil
	}

	if m.recorder != nil {
		m.recorder.ObserveAction(action)
	}

	created, err := m.Execute(ctx, action)
	if err != nil {
		return nil, err
	}
	res.Created = created

	snapshot := m.current
	if created != nil {
		snapshot = *created
	}

	err = m.storeSnapshot(ctx, snapshot)
	if err != nil {
		// IAM reveals a new secret only once; the caller must still see it.
		if created != nil {
			return res, err
		}
		return nil, err
	}

	if created != nil {
		err = m.updateMirrors(ctx, *created)
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

// storeSnapshot writes the credential to the store unless it is zero.
func (m *Manager) storeSnapshot(ctx context.Context, cred secret.Credential) error {
	logger := config.LoggerFrom(ctx).Sugar()

	if cred.IsZero() {
		logger.Warnw(
			"no current credentials are known; skipping credential snapshot",
			"principal", m.principal,
			"store", m.store.Name(),
		)
		return nil
	}

	logger.Debugw(
		"storing credential snapshot",
		"principal", m.principal,
		"store", m.store.Name(),
		"key", cred.AccessKeyID,
	)

	err := m.store.PutCredentials(ctx, m.principal, cred)
	if err != nil {
		return fmt.Errorf("failed to store credentials for %q: %w", m.principal, err)
	}

	return nil
}

// updateMirrors sends the credential to every mirror, continuing past
// failures.
func (m *Manager) updateMirrors(ctx context.Context, cred secret.Credential) error {
	if len(m.mirrors) == 0 {
		return nil
	}

	logger := config.LoggerFrom(ctx).Sugar()

	plain, err := cred.Map()
	if err != nil {
		return fmt.Errorf("failed to prepare credentials for mirrors: %w", err)
	}

	errs := kerrors.NewAggregate(nil)
	for _, mt := range m.mirrors {
		logger.Debugw(
			"updating mirror with newly rotated secrets",
			"principal", m.principal,
			"mirror", mt.Mirror.Name(),
			"target", mt.Target,
		)

		err := mt.Mirror.SaveKeys(ctx, mt.Target, plain.Remap(mt.Keys))
		if err != nil {
			logger.Errorw(
				"failed to update mirror with newly rotated secrets",
				"principal", m.principal,
				"mirror", mt.Mirror.Name(),
				"target", mt.Target,
				"error", err,
			)
			errs.Add(fmt.Errorf("failed to update %s target %q: %w", mt.Mirror.Name(), mt.Target, err))
		}
	}

	return errs.ErrorOrNil()
}
