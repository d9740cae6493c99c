// Package aws binds nosto's group and instance operations to EC2 through
// a narrow API surface.
package aws

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/yairfalse/nosto/config"
	"github.com/yairfalse/nosto/lifecycle"
	"github.com/yairfalse/nosto/reconciler"
)

// Client implements the group and instance operations over EC2.
type Client struct {
	api    EC2API
	region string
}

// New builds a Client for the given profile. Credentials resolve from the
// AWS shared config under the profile's name, once, here; nothing deeper
// in the call tree touches credential sources.
func New(ctx context.Context, profile config.Profile) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(profile.Region),
		awsconfig.WithSharedConfigProfile(profile.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for profile %s: %w", profile.Name, err)
	}

	return &Client{
		api:    ec2.NewFromConfig(cfg),
		region: profile.Region,
	}, nil
}

// NewFromAPI wires an explicit EC2 implementation. Tests use this to
// substitute mocks.
func NewFromAPI(api EC2API) *Client {
	return &Client{api: api}
}

// Region returns the region the client operates in.
func (c *Client) Region() string {
	return c.region
}

// Ensure Client implements both collaborator interfaces
var (
	_ reconciler.GroupClient   = (*Client)(nil)
	_ lifecycle.InstanceClient = (*Client)(nil)
)
