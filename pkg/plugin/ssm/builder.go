package ssm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"

	"github.com/zostay/keyrotate/pkg/config"
	"github.com/zostay/keyrotate/pkg/plugin"
)

// builder implements the plugin.Builder interface and provides a factory method
// for constructing an SSM client.
type builder struct{}

// Build constructs and returns an SSM client. It understands the "region",
// "parameter_prefix", and "kms_key_id" options.
func (b *builder) Build(ctx context.Context, c *config.Plugin) (plugin.Instance, error) {
	awsCfg := aws.NewConfig()
	if region := c.Option("region"); region != "" {
		awsCfg = awsCfg.WithRegion(region)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start AWS session: %w", err)
	}

	return New(
		ssm.New(sess),
		c.Option("parameter_prefix"),
		c.Option("kms_key_id"),
	), nil
}

// init registers the plugin.
func init() {
	pkg := reflect.TypeOf(Client{}).PkgPath()
	plugin.Register(pkg, new(builder))
}
