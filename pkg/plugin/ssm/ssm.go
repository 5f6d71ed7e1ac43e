// Package ssm provides a plugin that implements rotate.Store over the AWS SSM
// Parameter Store.
//
// For a principal named P under the prefix X, three parameters are kept:
//
//	X/P/iam-key                    SecureString, the current access key id
//	X/P/iam-secret                 SecureString, the current secret key
//	X/P/deactivated-key-timestamp  String, when the last key was deactivated
package ssm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"

	"github.com/zostay/keyrotate/pkg/config"
	"github.com/zostay/keyrotate/pkg/rotate"
	"github.com/zostay/keyrotate/pkg/secret"
)

// Parameter names kept for each principal.
const (
	KeyParameter       = "iam-key"
	SecretParameter    = "iam-secret"
	TimestampParameter = "deactivated-key-timestamp"
)

// Client implements the rotate.Store interface.
type Client struct {
	svcSSM   ssmiface.SSMAPI
	prefix   string
	kmsKeyID string
}

// New returns a client using the given SSM service. Parameters are named under
// prefix. Secure parameters are encrypted with kmsKeyID, or the account default
// key when it is empty.
func New(svc ssmiface.SSMAPI, prefix, kmsKeyID string) *Client {
	return &Client{
		svcSSM:   svc,
		prefix:   strings.TrimRight(prefix, "/"),
		kmsKeyID: kmsKeyID,
	}
}

// Name returns "AWS SSM parameter store"
func (c *Client) Name() string {
	return "AWS SSM parameter store"
}

// ParameterName returns the full name of the parameter for the principal.
func (c *Client) ParameterName(principal, param string) string {
	return c.prefix + "/" + principal + "/" + param
}

// isParameterNotFound is true when SSM says the parameter does not exist.
func isParameterNotFound(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == ssm.ErrCodeParameterNotFound
}

// DeactivationRecord reads the deactivation timestamp of the principal. A
// parameter that has never been written gives the non-pending record.
func (c *Client) DeactivationRecord(ctx context.Context, principal string) (rotate.DeactivationRecord, error) {
	name := c.ParameterName(principal, TimestampParameter)

	out, err := c.svcSSM.GetParameterWithContext(ctx,
		&ssm.GetParameterInput{
			Name: aws.String(name),
		},
	)
	if isParameterNotFound(err) {
		logger := config.LoggerFrom(ctx).Sugar()
		logger.Debugw(
			"no deactivation timestamp stored yet",
			"client", c.Name(),
			"parameter", name,
		)
		return rotate.DeactivationRecord{}, nil
	} else if err != nil {
		return rotate.DeactivationRecord{}, fmt.Errorf("failed to get parameter %q: %w", name, err)
	}

	if out.Parameter == nil {
		return rotate.DeactivationRecord{}, nil
	}

	rec, err := rotate.ParseDeactivationRecord(aws.StringValue(out.Parameter.Value))
	if err != nil {
		return rotate.DeactivationRecord{}, fmt.Errorf("failed to read parameter %q: %w", name, err)
	}

	return rec, nil
}

// PutDeactivationRecord writes the deactivation timestamp of the principal.
func (c *Client) PutDeactivationRecord(ctx context.Context, principal string, rec rotate.DeactivationRecord) error {
	return c.put(ctx, c.ParameterName(principal, TimestampParameter), rec.String(), false)
}

// PutCredentials writes the access key id and secret key of the principal as
// secure parameters.
func (c *Client) PutCredentials(ctx context.Context, principal string, cred secret.Credential) error {
	err := c.put(ctx, c.ParameterName(principal, KeyParameter), cred.AccessKeyID, true)
	if err != nil {
		return err
	}

	sk, err := cred.Secret.Reveal()
	if err != nil {
		return err
	}

	return c.put(ctx, c.ParameterName(principal, SecretParameter), sk, true)
}

// put overwrites a single parameter.
func (c *Client) put(ctx context.Context, name, value string, secure bool) error {
	logger := config.LoggerFrom(ctx).Sugar()

	in := &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Overwrite: aws.Bool(true),
		Type:      aws.String(ssm.ParameterTypeString),
	}
	if secure {
		in.Type = aws.String(ssm.ParameterTypeSecureString)
		if c.kmsKeyID != "" {
			in.KeyId = aws.String(c.kmsKeyID)
		}
	}

	logger.Debugw(
		"writing parameter",
		"client", c.Name(),
		"parameter", name,
		"type", aws.StringValue(in.Type),
	)

	_, err := c.svcSSM.PutParameterWithContext(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to put parameter %q: %w", name, err)
	}

	return nil
}
