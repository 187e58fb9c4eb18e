package aws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/skiffworks/skiff/providers"
	"github.com/skiffworks/skiff/types"
)

// rootDeviceName is where the boot volume attaches on the AMIs we launch
const rootDeviceName = "/dev/sda1"

// FindByName locates the instance tagged with the given name. First match
// wins; callers keep names unique. No state filter is applied, so a
// terminated instance still comes back and the state mapper sorts it out.
func (p *Provider) FindByName(ctx context.Context, name string) (*types.InstanceRecord, error) {
	out, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:Name"), Values: []string{name}},
		},
	})
	if err != nil {
		return nil, classify("describe instances", err)
	}

	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			rec := p.convertInstance(instance)
			return &rec, nil
		}
	}
	return nil, nil
}

// Create launches one instance for the spec and tags it in the same call.
func (p *Provider) Create(ctx context.Context, spec types.InstanceSpec, securityGroupID string) (*types.InstanceRecord, error) {
	if spec.IAMProfile != "" {
		if err := p.ensureInstanceProfile(ctx, spec.IAMProfile); err != nil {
			return nil, err
		}
	}

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(spec.ImageID),
		InstanceType: ec2types.InstanceType(spec.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		BlockDeviceMappings: []ec2types.BlockDeviceMapping{
			{
				DeviceName: aws.String(rootDeviceName),
				Ebs: &ec2types.EbsBlockDevice{
					VolumeSize:          aws.Int32(spec.DiskGiB),
					VolumeType:          ec2types.VolumeTypeGp3,
					DeleteOnTermination: aws.Bool(true),
				},
			},
		},
		TagSpecifications: []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeInstance,
				Tags:         instanceTags(spec),
			},
		},
	}
	if spec.KeyPair != "" {
		input.KeyName = aws.String(spec.KeyPair)
	}
	if securityGroupID != "" {
		input.SecurityGroupIds = []string{securityGroupID}
	}
	if spec.IAMProfile != "" {
		input.IamInstanceProfile = &ec2types.IamInstanceProfileSpecification{
			Name: aws.String(spec.IAMProfile),
		}
	}

	out, err := p.ec2Client.RunInstances(ctx, input)
	if err != nil {
		return nil, classify("run instances", err)
	}
	if len(out.Instances) == 0 {
		return nil, &providers.Error{
			Op:   "run instances",
			Kind: providers.KindUnavailable,
			Err:  errors.New("empty reservation in response"),
		}
	}

	rec := p.convertInstance(out.Instances[0])
	return &rec, nil
}

// Terminate asks EC2 to destroy the instance. EC2 keeps reporting it in
// shutting-down and then terminated for a while, which is what the
// deletion poll loop watches.
func (p *Provider) Terminate(ctx context.Context, instanceID string) error {
	_, err := p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return classify("terminate instances", err)
	}
	return nil
}

// ListManaged returns every non-terminated instance this tool provisioned
// in the region.
func (p *Provider) ListManaged(ctx context.Context) ([]types.InstanceRecord, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:skiff:managed"), Values: []string{"true"}},
			{Name: aws.String("instance-state-name"), Values: []string{"pending", "running", "stopping", "stopped"}},
		},
	}

	var records []types.InstanceRecord
	for {
		out, err := p.ec2Client.DescribeInstances(ctx, input)
		if err != nil {
			return nil, classify("describe instances", err)
		}

		for _, reservation := range out.Reservations {
			for _, instance := range reservation.Instances {
				records = append(records, p.convertInstance(instance))
			}
		}

		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}

	return records, nil
}

// ConsoleOutput fetches and decodes the instance serial console buffer.
// Returns empty when the console has nothing yet.
func (p *Provider) ConsoleOutput(ctx context.Context, instanceID string) (string, error) {
	out, err := p.ec2Client.GetConsoleOutput(ctx, &ec2.GetConsoleOutputInput{
		InstanceId: aws.String(instanceID),
	})
	if err != nil {
		return "", classify("get console output", err)
	}

	raw := aws.ToString(out.Output)
	if raw == "" {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode console output: %w", err)
	}
	return string(decoded), nil
}

// ensureInstanceProfile confirms the profile exists before launch, so a
// typo fails fast instead of surfacing as a launch error mid-loop.
func (p *Provider) ensureInstanceProfile(ctx context.Context, name string) error {
	p.mu.Lock()
	checked := p.checkedProfiles[name]
	p.mu.Unlock()
	if checked {
		return nil
	}

	_, err := p.iamClient.GetInstanceProfile(ctx, &iam.GetInstanceProfileInput{
		InstanceProfileName: aws.String(name),
	})
	if err != nil {
		var notFound *iamtypes.NoSuchEntityException
		if errors.As(err, &notFound) {
			return &providers.Error{
				Op:   "get instance profile",
				Code: "NoSuchEntity",
				Kind: providers.KindClient,
				Err:  fmt.Errorf("instance profile %q does not exist", name),
			}
		}
		return classify("get instance profile", err)
	}

	p.mu.Lock()
	p.checkedProfiles[name] = true
	p.mu.Unlock()
	return nil
}

// instanceTags builds the tag set for a new instance
func instanceTags(spec types.InstanceSpec) []ec2types.Tag {
	tagMap := types.Tags{
		SkiffManaged: true,
		Name:         spec.Name,
		CreatedBy:    "skiff",
	}.ToMap()
	for k, v := range spec.Labels {
		tagMap[k] = v
	}

	tags := make([]ec2types.Tag, 0, len(tagMap))
	for k, v := range tagMap {
		tags = append(tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return tags
}

// convertInstance converts an EC2 instance to an instance record
func (p *Provider) convertInstance(instance ec2types.Instance) types.InstanceRecord {
	tagMap := make(map[string]string)
	for _, tag := range instance.Tags {
		tagMap[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	rec := types.InstanceRecord{
		ID:           aws.ToString(instance.InstanceId),
		Name:         tagMap["Name"],
		ImageID:      aws.ToString(instance.ImageId),
		InstanceType: string(instance.InstanceType),
		PublicIP:     aws.ToString(instance.PublicIpAddress),
		PrivateIP:    aws.ToString(instance.PrivateIpAddress),
		Tags:         types.TagsFromMap(tagMap),
	}
	if instance.State != nil {
		rec.RawState = string(instance.State.Name)
	}
	if instance.LaunchTime != nil {
		rec.LaunchedAt = *instance.LaunchTime
	}
	return rec
}
