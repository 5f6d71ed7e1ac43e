// Package github provides a plugin that implements rotate.Mirror by storing
// keys as GitHub Actions repository secrets.
package github

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/go-github/v42/github"
	"golang.org/x/crypto/nacl/box"

	"github.com/zostay/keyrotate/pkg/config"
	"github.com/zostay/keyrotate/pkg/secret"
)

// Client implements the rotate.Mirror interface for storing keys following
// rotation. Targets are named "owner/repo".
//
// To use this client, a GITHUB_TOKEN environment variable or a "token" plugin
// option must be set to a github access token with adequate permissions to
// update action secrets.
type Client struct {
	gc *github.Client
}

// New returns a client using the given github client.
func New(gc *github.Client) *Client {
	return &Client{gc}
}

// parts splits a project name into the owner/repo form used for github
// projects.
func parts(target string) (string, string, error) {
	o, r, ok := strings.Cut(target, "/")
	if !ok || o == "" || r == "" {
		return "", "", fmt.Errorf("github project %q is not in owner/repo form", target)
	}
	return o, r, nil
}

// Name returns "github action secrets"
func (c *Client) Name() string {
	return "github action secrets"
}

// SaveKeys saves each of the secrets given in the project. Each value is
// sealed to the public key of the repository before it is sent.
func (c *Client) SaveKeys(
	ctx context.Context,
	target string,
	ss secret.Map,
) error {
	owner, repo, err := parts(target)
	if err != nil {
		return err
	}

	pubKey, _, err := c.gc.Actions.GetRepoPublicKey(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("failed to retrieve github project public key for project %q: %w", target, err)
	}

	decKeyBytes, err := base64.StdEncoding.DecodeString(pubKey.GetKey())
	if err != nil {
		return fmt.Errorf("failed to decode github project public key string for project %q: %w", target, err)
	}

	if len(decKeyBytes) != 32 {
		return fmt.Errorf("github project public key for project %q has %d bytes, expected 32", target, len(decKeyBytes))
	}

	var pk [32]byte
	copy(pk[:], decKeyBytes)

	keyIDStr := pubKey.GetKeyID()

	logger := config.LoggerFrom(ctx).Sugar()
	for key, sec := range ss {
		keySealed, err := box.SealAnonymous(nil, []byte(sec), &pk, rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to seal github action secret named %q for project %q: %w", key, target, err)
		}

		logger.Debugw(
			"updating github action secret",
			"client", c.Name(),
			"target", target,
			"secret", key,
		)

		encSec := &github.EncryptedSecret{
			Name:           key,
			KeyID:          keyIDStr,
			EncryptedValue: base64.StdEncoding.EncodeToString(keySealed),
		}
		_, err = c.gc.Actions.CreateOrUpdateRepoSecret(ctx, owner, repo, encSec)
		if err != nil {
			return fmt.Errorf("failed to create or update github action secret named %q for project %q: %w", key, target, err)
		}
	}

	return nil
}
