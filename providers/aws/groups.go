package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/nosto/types"
)

// publicCIDR is the source range for rules open to the internet.
const publicCIDR = "0.0.0.0/0"

// GetGroup fetches a security group by name. Returns nil without error
// when no group carries the name.
func (c *Client) GetGroup(ctx context.Context, name string) (*types.RemoteGroup, error) {
	out, err := c.api.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("group-name"), Values: []string{name}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe security group %s: %w", name, err)
	}
	if len(out.SecurityGroups) == 0 {
		return nil, nil
	}
	return convertGroup(out.SecurityGroups[0]), nil
}

// CreateGroup creates an empty security group.
func (c *Client) CreateGroup(ctx context.Context, name, description string) (*types.RemoteGroup, error) {
	out, err := c.api.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String(description),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create security group %s: %w", name, err)
	}

	return &types.RemoteGroup{
		ID:          aws.ToString(out.GroupId),
		Name:        name,
		Description: description,
	}, nil
}

// DeleteGroup deletes a security group by ID.
func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	_, err := c.api.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
		GroupId: aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete security group %s: %w", id, err)
	}
	return nil
}

// AuthorizePublic opens a TCP port range to the internet.
func (c *Client) AuthorizePublic(ctx context.Context, groupID string, ports types.PortRange) error {
	_, err := c.api.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: []ec2types.IpPermission{tcpPermission(ports, nil)},
	})
	if err != nil {
		return fmt.Errorf("failed to authorize %s on group %s: %w", ports, groupID, err)
	}
	return nil
}

// AuthorizePeer opens a TCP port range to another group, identified by
// its owner+name pair.
func (c *Client) AuthorizePeer(ctx context.Context, groupID string, ports types.PortRange, peer types.GroupRef) error {
	_, err := c.api.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: []ec2types.IpPermission{tcpPermission(ports, []types.GroupRef{peer})},
	})
	if err != nil {
		return fmt.Errorf("failed to authorize %s from %s on group %s: %w", ports, peer.Name, groupID, err)
	}
	return nil
}

// RevokePublic removes a public TCP port range.
func (c *Client) RevokePublic(ctx context.Context, groupID string, ports types.PortRange) error {
	_, err := c.api.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: []ec2types.IpPermission{tcpPermission(ports, nil)},
	})
	if err != nil {
		return fmt.Errorf("failed to revoke %s on group %s: %w", ports, groupID, err)
	}
	return nil
}

// RevokePeer removes a peer-scoped TCP port range.
func (c *Client) RevokePeer(ctx context.Context, groupID string, ports types.PortRange, peer types.GroupRef) error {
	_, err := c.api.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: []ec2types.IpPermission{tcpPermission(ports, []types.GroupRef{peer})},
	})
	if err != nil {
		return fmt.Errorf("failed to revoke %s from %s on group %s: %w", ports, peer.Name, groupID, err)
	}
	return nil
}

// tcpPermission builds the wire form of one rule: public CIDR when no
// peers are given, owner+name group pairs otherwise.
func tcpPermission(ports types.PortRange, peers []types.GroupRef) ec2types.IpPermission {
	perm := ec2types.IpPermission{
		IpProtocol: aws.String("tcp"),
		FromPort:   aws.Int32(ports.Min),
		ToPort:     aws.Int32(ports.Max),
	}

	if len(peers) == 0 {
		perm.IpRanges = []ec2types.IpRange{{CidrIp: aws.String(publicCIDR)}}
		return perm
	}

	for _, p := range peers {
		perm.UserIdGroupPairs = append(perm.UserIdGroupPairs, ec2types.UserIdGroupPair{
			UserId:    aws.String(p.OwnerID),
			GroupName: aws.String(p.Name),
		})
	}
	return perm
}

// convertGroup converts an EC2 security group to a nosto remote group. A
// permission carrying both CIDR ranges and group pairs splits into a
// public rule and a peered rule over the same port range.
func convertGroup(g ec2types.SecurityGroup) *types.RemoteGroup {
	group := &types.RemoteGroup{
		ID:          aws.ToString(g.GroupId),
		Name:        aws.ToString(g.GroupName),
		OwnerID:     aws.ToString(g.OwnerId),
		Description: aws.ToString(g.Description),
	}

	for _, perm := range g.IpPermissions {
		ports := types.PortRange{
			Min: aws.ToInt32(perm.FromPort),
			Max: aws.ToInt32(perm.ToPort),
		}

		if len(perm.IpRanges) > 0 || len(perm.UserIdGroupPairs) == 0 {
			group.Rules = append(group.Rules, types.Rule{Ports: ports})
		}
		if len(perm.UserIdGroupPairs) > 0 {
			rule := types.Rule{Ports: ports}
			for _, pair := range perm.UserIdGroupPairs {
				rule.Peers = append(rule.Peers, types.GroupRef{
					OwnerID: aws.ToString(pair.UserId),
					Name:    aws.ToString(pair.GroupName),
				})
			}
			group.Rules = append(group.Rules, rule)
		}
	}

	return group
}
