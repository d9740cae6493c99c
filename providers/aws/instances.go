package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/nosto/types"
)

// nameTag is the tag key carrying the host name.
const nameTag = "Name"

// FindRunning locates the running instance tagged with the host name.
// Returns nil without error when none exists. When several match, the
// first returned by the provider wins.
func (c *Client) FindRunning(ctx context.Context, name string) (*types.Instance, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:" + nameTag), Values: []string{name}},
			{Name: aws.String("instance-state-name"), Values: []string{types.InstanceRunning}},
		},
	}

	paginator := ec2.NewDescribeInstancesPaginator(c.api, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to find instance %s: %w", name, err)
		}
		for _, reservation := range out.Reservations {
			for _, inst := range reservation.Instances {
				return convertInstance(inst), nil
			}
		}
	}

	return nil, nil
}

// Launch starts a single instance and tags it with the host name.
func (c *Client) Launch(ctx context.Context, spec types.LaunchSpec) (*types.Instance, error) {
	input := &ec2.RunInstancesInput{
		ImageId:        aws.String(spec.ImageID),
		InstanceType:   ec2types.InstanceType(spec.Size),
		SecurityGroups: spec.SecurityGroups,
		MinCount:       aws.Int32(1),
		MaxCount:       aws.Int32(1),
	}
	if spec.KeyName != "" {
		input.KeyName = aws.String(spec.KeyName)
	}

	out, err := c.api.RunInstances(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to launch instance %s: %w", spec.Name, err)
	}
	if len(out.Instances) == 0 {
		return nil, fmt.Errorf("launch of %s returned no instance", spec.Name)
	}

	inst := convertInstance(out.Instances[0])
	inst.Name = spec.Name

	_, err = c.api.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{inst.ID},
		Tags: []ec2types.Tag{
			{Key: aws.String(nameTag), Value: aws.String(spec.Name)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tag instance %s: %w", inst.ID, err)
	}

	return inst, nil
}

// Refresh re-reads an instance by ID.
func (c *Client) Refresh(ctx context.Context, id string) (*types.Instance, error) {
	out, err := c.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refresh instance %s: %w", id, err)
	}
	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			return convertInstance(inst), nil
		}
	}
	return nil, fmt.Errorf("instance %s not found", id)
}

// Terminate shuts an instance down by ID.
func (c *Client) Terminate(ctx context.Context, id string) error {
	_, err := c.api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return fmt.Errorf("failed to terminate instance %s: %w", id, err)
	}
	return nil
}

// convertInstance converts an EC2 instance to a nosto instance.
func convertInstance(inst ec2types.Instance) *types.Instance {
	out := &types.Instance{
		ID:        aws.ToString(inst.InstanceId),
		PublicDNS: aws.ToString(inst.PublicDnsName),
		PublicIP:  aws.ToString(inst.PublicIpAddress),
		PrivateIP: aws.ToString(inst.PrivateIpAddress),
	}
	if inst.State != nil {
		out.State = string(inst.State.Name)
	}
	if inst.LaunchTime != nil {
		out.LaunchedAt = *inst.LaunchTime
	}
	for _, tag := range inst.Tags {
		if aws.ToString(tag.Key) == nameTag {
			out.Name = aws.ToString(tag.Value)
			break
		}
	}
	return out
}
