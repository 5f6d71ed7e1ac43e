// Package iam provides a plugin that implements rotate.Provider over the
// access keys of an AWS IAM user.
package iam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"

	"github.com/zostay/keyrotate/pkg/config"
	"github.com/zostay/keyrotate/pkg/rotate"
	"github.com/zostay/keyrotate/pkg/secret"
)

// Client implements the rotate.Provider interface.
type Client struct {
	svcIam iamiface.IAMAPI
}

// New returns a client using the given IAM service.
func New(svc iamiface.IAMAPI) *Client {
	return &Client{svc}
}

// Name returns "AWS IAM"
func (c *Client) Name() string {
	return "AWS IAM"
}

// isNoSuchEntity is true when IAM says the user or key does not exist.
func isNoSuchEntity(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == iam.ErrCodeNoSuchEntityException
}

// ListKeys returns the metadata of every access key of the user.
func (c *Client) ListKeys(ctx context.Context, principal string) ([]rotate.AccessKey, error) {
	var keys []rotate.AccessKey
	err := c.svcIam.ListAccessKeysPagesWithContext(ctx,
		&iam.ListAccessKeysInput{
			UserName: aws.String(principal),
		},
		func(page *iam.ListAccessKeysOutput, lastPage bool) bool {
			for _, akmd := range page.AccessKeyMetadata {
				keys = append(keys, rotate.AccessKey{
					ID:        aws.StringValue(akmd.AccessKeyId),
					Status:    rotate.ParseStatus(aws.StringValue(akmd.Status)),
					CreatedAt: aws.TimeValue(akmd.CreateDate),
				})
			}
			return true
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list IAM access key metadata for user %q: %w", principal, err)
	}

	return keys, nil
}

// LastUsed returns the last used date IAM reports for the key, or nil if the
// key has never been used.
func (c *Client) LastUsed(ctx context.Context, keyID string) (*time.Time, error) {
	out, err := c.svcIam.GetAccessKeyLastUsedWithContext(ctx,
		&iam.GetAccessKeyLastUsedInput{
			AccessKeyId: aws.String(keyID),
		},
	)
	if isNoSuchEntity(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get last used date of IAM access key %q: %w", keyID, err)
	}

	if out.AccessKeyLastUsed == nil || out.AccessKeyLastUsed.LastUsedDate == nil {
		return nil, nil
	}

	lastUsed := out.AccessKeyLastUsed.LastUsedDate.UTC()
	return &lastUsed, nil
}

// CreateKey mints a new access key for the user.
func (c *Client) CreateKey(ctx context.Context, principal string) (secret.Credential, error) {
	logger := config.LoggerFrom(ctx).Sugar()

	ck, err := c.svcIam.CreateAccessKeyWithContext(ctx,
		&iam.CreateAccessKeyInput{
			UserName: aws.String(principal),
		},
	)
	if err != nil {
		return secret.Credential{}, fmt.Errorf("failed to create new access key for IAM user %q: %w", principal, err)
	}

	if ck.AccessKey == nil {
		return secret.Credential{}, fmt.Errorf("no access key returned for IAM user %q", principal)
	}

	accessKey := aws.StringValue(ck.AccessKey.AccessKeyId)
	logger.Infow(
		"created IAM access key",
		"client", c.Name(),
		"principal", principal,
		"key", accessKey,
	)

	return secret.NewCredential(
		accessKey,
		aws.StringValue(ck.AccessKey.SecretAccessKey),
	), nil
}

// SetStatus marks the key active or inactive.
func (c *Client) SetStatus(ctx context.Context, principal, keyID string, status rotate.Status) error {
	var st string
	switch status {
	case rotate.StatusActive:
		st = iam.StatusTypeActive
	case rotate.StatusInactive:
		st = iam.StatusTypeInactive
	default:
		return fmt.Errorf("cannot set IAM access key %q to status %v", keyID, status)
	}

	_, err := c.svcIam.UpdateAccessKeyWithContext(ctx,
		&iam.UpdateAccessKeyInput{
			AccessKeyId: aws.String(keyID),
			Status:      aws.String(st),
			UserName:    aws.String(principal),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to update status of IAM access key %q for user %q to %s: %w", keyID, principal, st, err)
	}

	return nil
}

// DeleteKey removes the key. A key that is already gone is not an error.
func (c *Client) DeleteKey(ctx context.Context, principal, keyID string) error {
	logger := config.LoggerFrom(ctx).Sugar()

	_, err := c.svcIam.DeleteAccessKeyWithContext(ctx,
		&iam.DeleteAccessKeyInput{
			UserName:    aws.String(principal),
			AccessKeyId: aws.String(keyID),
		},
	)
	if isNoSuchEntity(err) {
		logger.Warnw(
			"IAM access key was already deleted",
			"client", c.Name(),
			"principal", principal,
			"key", keyID,
		)
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to delete IAM access key %q for user %q: %w", keyID, principal, err)
	}

	return nil
}
