package aws

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"github.com/skiffworks/skiff/types"
)

// EnsureSecurityGroup resolves the named group, creating it with the
// given ingress rules when absent. The result is cached so repeated
// reconcile attempts resolve the group at most once per process.
func (p *Provider) EnsureSecurityGroup(ctx context.Context, name string, policy types.IngressPolicy) (string, error) {
	if err := types.ValidateName(name); err != nil {
		return "", err
	}
	if err := policy.Validate(); err != nil {
		return "", err
	}

	p.mu.Lock()
	if id, ok := p.securityGroups[name]; ok {
		p.mu.Unlock()
		return id, nil
	}
	p.mu.Unlock()

	id, err := p.findSecurityGroup(ctx, name)
	if err != nil {
		return "", err
	}
	if id == "" {
		id, err = p.createSecurityGroup(ctx, name, policy)
		if err != nil {
			return "", err
		}
	}

	p.mu.Lock()
	p.securityGroups[name] = id
	p.mu.Unlock()
	return id, nil
}

// findSecurityGroup returns the group id or empty when no group matches.
// A group-name filter returns an empty list for a missing group, unlike
// the GroupNames lookup which errors.
func (p *Provider) findSecurityGroup(ctx context.Context, name string) (string, error) {
	out, err := p.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("group-name"), Values: []string{name}},
		},
	})
	if err != nil {
		return "", classify("describe security groups", err)
	}
	if len(out.SecurityGroups) == 0 {
		return "", nil
	}
	return aws.ToString(out.SecurityGroups[0].GroupId), nil
}

func (p *Provider) createSecurityGroup(ctx context.Context, name string, policy types.IngressPolicy) (string, error) {
	created, err := p.ec2Client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String("managed by skiff"),
	})
	if err != nil {
		// Another actor created the group between describe and create.
		// The group is the shared prerequisite we wanted, so take it.
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidGroup.Duplicate" {
			return p.findSecurityGroup(ctx, name)
		}
		return "", classify("create security group", err)
	}

	id := aws.ToString(created.GroupId)
	if len(policy) > 0 {
		_, err = p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(id),
			IpPermissions: ipPermissions(policy),
		})
		if err != nil {
			return "", classify("authorize security group ingress", err)
		}
	}
	return id, nil
}

// ipPermissions converts the ingress policy to the EC2 request shape
func ipPermissions(policy types.IngressPolicy) []ec2types.IpPermission {
	perms := make([]ec2types.IpPermission, 0, len(policy))
	for _, rule := range policy {
		perms = append(perms, ec2types.IpPermission{
			IpProtocol: aws.String(rule.Protocol),
			FromPort:   aws.Int32(rule.Port),
			ToPort:     aws.Int32(rule.Port),
			IpRanges: []ec2types.IpRange{
				{CidrIp: aws.String(rule.CIDR)},
			},
		})
	}
	return perms
}
