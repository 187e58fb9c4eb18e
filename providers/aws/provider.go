// Package aws implements the EC2-backed compute provider.
package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/skiffworks/skiff/providers"
)

func init() {
	providers.Register("aws", func(ctx context.Context, cfg providers.Config) (providers.Compute, error) {
		return New(ctx, cfg)
	})
}

// Provider implements providers.Compute using AWS SDK v2
type Provider struct {
	ec2Client EC2API
	iamClient IAMAPI
	region    string
	accountID string

	mu sync.Mutex
	// name -> group id, so a shared group is resolved at most once per process
	securityGroups map[string]string
	// profiles already confirmed to exist, keyed by profile name
	checkedProfiles map[string]bool
}

// New creates a provider from the ambient AWS credential chain. The
// account probe doubles as a credential check, so bad credentials fail
// here instead of halfway through a reconcile.
func New(ctx context.Context, cfg providers.Config) (*Provider, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	p := &Provider{
		ec2Client:       ec2.NewFromConfig(awsCfg),
		iamClient:       iam.NewFromConfig(awsCfg),
		region:          cfg.Region,
		securityGroups:  make(map[string]string),
		checkedProfiles: make(map[string]bool),
	}

	p.accountID, err = p.getAccountID(ctx)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "aws"
}

// Region returns the AWS region
func (p *Provider) Region() string {
	return p.region
}

// AccountID returns the account the credentials resolve to
func (p *Provider) AccountID() string {
	return p.accountID
}

// getAccountID resolves the account from EC2 describe-account-attributes
func (p *Provider) getAccountID(ctx context.Context) (string, error) {
	out, err := p.ec2Client.DescribeAccountAttributes(ctx, &ec2.DescribeAccountAttributesInput{})
	if err != nil {
		return "", classify("describe account attributes", err)
	}

	for _, attr := range out.AccountAttributes {
		if aws.ToString(attr.AttributeName) == "account-id" && len(attr.AttributeValues) > 0 {
			return aws.ToString(attr.AttributeValues[0].AttributeValue), nil
		}
	}
	return "", nil
}
