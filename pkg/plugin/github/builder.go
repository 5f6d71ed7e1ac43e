package github

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"

	"github.com/google/go-github/v42/github"
	"golang.org/x/oauth2"

	"github.com/zostay/keyrotate/pkg/config"
	"github.com/zostay/keyrotate/pkg/plugin"
)

// builder implements the plugin.Builder interface and provides the
// factory method for constructing a Client.
type builder struct{}

// Build constructs and returns a github client. The "token" option overrides
// the GITHUB_TOKEN environment variable and "base_url" points the client at a
// GitHub Enterprise API.
func (b *builder) Build(ctx context.Context, c *config.Plugin) (plugin.Instance, error) {
	token := c.Option("token")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	if token == "" {
		return nil, fmt.Errorf("no github token: set GITHUB_TOKEN or the token option")
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{
			AccessToken: token,
		},
	)
	oc := oauth2.NewClient(ctx, ts)
	gc := github.NewClient(oc)

	if baseURL := c.Option("base_url"); baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}

		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse github base_url %q: %w", baseURL, err)
		}
		gc.BaseURL = u
	}

	return New(gc), nil
}

func init() {
	pkg := reflect.TypeOf(Client{}).PkgPath()
	plugin.Register(pkg, new(builder))
}
