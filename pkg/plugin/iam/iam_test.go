package iam

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zostay/keyrotate/pkg/rotate"
)

var created = time.Date(2022, time.April, 1, 0, 0, 0, 0, time.UTC)

type testIAM struct {
	iamiface.IAMAPI

	pages    [][]*iam.AccessKeyMetadata
	lastUsed map[string]*time.Time
	updates  []*iam.UpdateAccessKeyInput
	deletes  []*iam.DeleteAccessKeyInput

	err error
}

func (f *testIAM) ListAccessKeysPagesWithContext(
	ctx aws.Context,
	in *iam.ListAccessKeysInput,
	fn func(*iam.ListAccessKeysOutput, bool) bool,
	opts ...request.Option,
) error {
	if f.err != nil {
		return f.err
	}
	for i, page := range f.pages {
		if !fn(&iam.ListAccessKeysOutput{AccessKeyMetadata: page}, i == len(f.pages)-1) {
			break
		}
	}
	return nil
}

func (f *testIAM) GetAccessKeyLastUsedWithContext(
	ctx aws.Context,
	in *iam.GetAccessKeyLastUsedInput,
	opts ...request.Option,
) (*iam.GetAccessKeyLastUsedOutput, error) {
	if f.err != nil {
		return nil, f.err
	}

	lu, ok := f.lastUsed[aws.StringValue(in.AccessKeyId)]
	if !ok {
		return nil, awserr.New(iam.ErrCodeNoSuchEntityException, "no such key", nil)
	}

	return &iam.GetAccessKeyLastUsedOutput{
		AccessKeyLastUsed: &iam.AccessKeyLastUsed{LastUsedDate: lu},
	}, nil
}

func (f *testIAM) CreateAccessKeyWithContext(
	ctx aws.Context,
	in *iam.CreateAccessKeyInput,
	opts ...request.Option,
) (*iam.CreateAccessKeyOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &iam.CreateAccessKeyOutput{
		AccessKey: &iam.AccessKey{
			AccessKeyId:     aws.String("AKIANEW"),
			SecretAccessKey: aws.String("new-secret"),
			Status:          aws.String(iam.StatusTypeActive),
			UserName:        in.UserName,
		},
	}, nil
}

func (f *testIAM) UpdateAccessKeyWithContext(
	ctx aws.Context,
	in *iam.UpdateAccessKeyInput,
	opts ...request.Option,
) (*iam.UpdateAccessKeyOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updates = append(f.updates, in)
	return &iam.UpdateAccessKeyOutput{}, nil
}

func (f *testIAM) DeleteAccessKeyWithContext(
	ctx aws.Context,
	in *iam.DeleteAccessKeyInput,
	opts ...request.Option,
) (*iam.DeleteAccessKeyOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, in)
	return &iam.DeleteAccessKeyOutput{}, nil
}

func TestHappyListKeys(t *testing.T) {
	f := &testIAM{
		pages: [][]*iam.AccessKeyMetadata{
			{{
				AccessKeyId: aws.String("A"),
				Status:      aws.String(iam.StatusTypeInactive),
				CreateDate:  aws.Time(created),
			}},
			{{
				AccessKeyId: aws.String("B"),
				Status:      aws.String(iam.StatusTypeActive),
				CreateDate:  aws.Time(created.Add(time.Hour)),
			}},
		},
	}
	c := New(f)

	keys, err := c.ListKeys(context.Background(), "deploy-bot")
	require.NoError(t, err, "no error listing keys")
	assert.Equal(t, []rotate.AccessKey{
		{ID: "A", Status: rotate.StatusInactive, CreatedAt: created},
		{ID: "B", Status: rotate.StatusActive, CreatedAt: created.Add(time.Hour)},
	}, keys, "keys from every page")
}

func TestHappyLastUsed(t *testing.T) {
	used := created.Add(48 * time.Hour)
	f := &testIAM{
		lastUsed: map[string]*time.Time{
			"A": &used,
			"B": nil,
		},
	}
	c := New(f)
	ctx := context.Background()

	lu, err := c.LastUsed(ctx, "A")
	require.NoError(t, err, "no error on used key")
	require.NotNil(t, lu, "used key has a time")
	assert.True(t, used.Equal(*lu), "last used time")

	lu, err = c.LastUsed(ctx, "B")
	assert.NoError(t, err, "no error on unused key")
	assert.Nil(t, lu, "unused key has no time")

	lu, err = c.LastUsed(ctx, "C")
	assert.NoError(t, err, "missing key is not an error")
	assert.Nil(t, lu, "missing key has no time")
}

func TestHappyCreateKey(t *testing.T) {
	c := New(&testIAM{})

	cred, err := c.CreateKey(context.Background(), "deploy-bot")
	require.NoError(t, err, "no error creating")
	assert.Equal(t, "AKIANEW", cred.AccessKeyID, "new key id")

	sk, err := cred.Secret.Reveal()
	require.NoError(t, err, "secret reveals")
	assert.Equal(t, "new-secret", sk, "new secret")
}

func TestHappySetStatusAndDelete(t *testing.T) {
	f := &testIAM{}
	c := New(f)
	ctx := context.Background()

	require.NoError(t, c.SetStatus(ctx, "deploy-bot", "A", rotate.StatusInactive))
	require.Len(t, f.updates, 1, "one update")
	assert.Equal(t, "A", aws.StringValue(f.updates[0].AccessKeyId), "updated A")
	assert.Equal(t, iam.StatusTypeInactive, aws.StringValue(f.updates[0].Status), "to inactive")
	assert.Equal(t, "deploy-bot", aws.StringValue(f.updates[0].UserName), "for the user")

	err := c.SetStatus(ctx, "deploy-bot", "A", rotate.StatusUnknown)
	assert.ErrorContains(t, err, "cannot set IAM access key", "unknown status refused")

	require.NoError(t, c.DeleteKey(ctx, "deploy-bot", "A"))
	require.Len(t, f.deletes, 1, "one delete")
	assert.Equal(t, "A", aws.StringValue(f.deletes[0].AccessKeyId), "deleted A")
}

func TestHappyDeleteMissingKey(t *testing.T) {
	f := &testIAM{err: awserr.New(iam.ErrCodeNoSuchEntityException, "gone", nil)}
	c := New(f)

	err := c.DeleteKey(context.Background(), "deploy-bot", "A")
	assert.NoError(t, err, "deleting a missing key is fine")
}

func TestSadIAMFailures(t *testing.T) {
	f := &testIAM{err: fmt.Errorf("throttled")}
	c := New(f)
	ctx := context.Background()

	_, err := c.ListKeys(ctx, "deploy-bot")
	assert.ErrorContains(t, err, "throttled", "list failure")

	_, err = c.LastUsed(ctx, "A")
	assert.ErrorContains(t, err, "failed to get last used date", "last used failure")

	_, err = c.CreateKey(ctx, "deploy-bot")
	assert.ErrorContains(t, err, "failed to create new access key", "create failure")

	err = c.SetStatus(ctx, "deploy-bot", "A", rotate.StatusInactive)
	assert.ErrorContains(t, err, "failed to update status", "update failure")

	err = c.DeleteKey(ctx, "deploy-bot", "A")
	assert.ErrorContains(t, err, "failed to delete IAM access key", "delete failure")
}
