// Package circleci provides a plugin that implements the rotate.Mirror
// interface for storing keys in CircleCI project environment variables.
package circleci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zostay/keyrotate/pkg/config"
	"github.com/zostay/keyrotate/pkg/secret"
)

const (
	defaultHost         = "https://circleci.com"
	defaultRestEndpoint = "/api/v2"
)

// Client implements the rotate.Mirror interface for storing keys following
// rotation. Targets are CircleCI project slugs, such as "gh/zostay/postfix".
//
// To use this client, a CIRCLECI_TOKEN environment variable or a "token"
// plugin option must be set to a CircleCI access token.
type Client struct {
	hc    *http.Client
	host  string
	token string
}

// New returns a client talking to the CircleCI API at host with the given
// token. An empty host means circleci.com.
func New(hc *http.Client, host, token string) *Client {
	if host == "" {
		host = defaultHost
	}

	return &Client{
		hc:    hc,
		host:  strings.TrimRight(host, "/"),
		token: token,
	}
}

// Name returns "CircleCI environment variables"
func (c *Client) Name() string {
	return "CircleCI environment variables"
}

// envVarURL returns the environment variable endpoint of the project.
func (c *Client) envVarURL(project string) string {
	return c.host + defaultRestEndpoint + "/project/" + project + "/envvar"
}

// SaveKeys saves each of the secrets given into the environment variables
// for the project. CircleCI replaces a variable that already exists.
func (c *Client) SaveKeys(
	ctx context.Context,
	target string,
	ss secret.Map,
) error {
	logger := config.LoggerFrom(ctx).Sugar()

	for key, sec := range ss {
		secretJSON, err := json.Marshal(map[string]string{
			"name":  key,
			"value": sec,
		})
		if err != nil {
			return fmt.Errorf("failed to encode CircleCI environment variable %q: %w", key, err)
		}

		req, err := http.NewRequestWithContext(ctx,
			http.MethodPost,
			c.envVarURL(target),
			bytes.NewReader(secretJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to build CircleCI request for project %q: %w", target, err)
		}

		req.Header.Add("Circle-Token", c.token)
		req.Header.Add("Content-Type", "application/json")
		req.Header.Add("Accept", "application/json")

		logger.Debugw(
			"updating CircleCI environment variable",
			"client", c.Name(),
			"target", target,
			"secret", key,
		)

		res, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("failed to save CircleCI environment variable %q for project %q: %w", key, target, err)
		}

		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return fmt.Errorf("failed to save CircleCI environment variable %q for project %q: unexpected status code %d", key, target, res.StatusCode)
		}
	}

	return nil
}
