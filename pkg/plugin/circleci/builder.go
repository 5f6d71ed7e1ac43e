package circleci

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"time"

	"github.com/zostay/keyrotate/pkg/config"
	"github.com/zostay/keyrotate/pkg/plugin"
)

// builder implements the plugin.Builder interface and provides the factory
// method for constructing a Client.
type builder struct{}

// Build constructs and returns a CircleCI client. The "token" option overrides
// the CIRCLECI_TOKEN environment variable and "host" replaces circleci.com.
func (b *builder) Build(
	ctx context.Context,
	c *config.Plugin,
) (plugin.Instance, error) {
	token := c.Option("token")
	if token == "" {
		token = os.Getenv("CIRCLECI_TOKEN")
	}

	if token == "" {
		return nil, fmt.Errorf("no CircleCI token: set CIRCLECI_TOKEN or the token option")
	}

	hc := &http.Client{Timeout: 30 * time.Second}
	return New(hc, c.Option("host"), token), nil
}

// init registers the plugin.
func init() {
	pkg := reflect.TypeOf(Client{}).PkgPath()
	plugin.Register(pkg, new(builder))
}
