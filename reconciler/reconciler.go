// Package reconciler converges declared security groups onto the
// provider. Convergence is by full replacement: every existing ingress
// rule is revoked, then the declared rules are authorized. There is no
// diffing and no state carried between runs.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/nosto/types"
)

// ErrPeerGroupNotFound reports a peer rule referencing a security group
// the provider does not know.
var ErrPeerGroupNotFound = errors.New("peer security group not found")

// GroupClient is the provider surface the reconciler drives.
type GroupClient interface {
	GetGroup(ctx context.Context, name string) (*types.RemoteGroup, error)
	CreateGroup(ctx context.Context, name, description string) (*types.RemoteGroup, error)
	DeleteGroup(ctx context.Context, id string) error
	AuthorizePublic(ctx context.Context, groupID string, ports types.PortRange) error
	AuthorizePeer(ctx context.Context, groupID string, ports types.PortRange, peer types.GroupRef) error
	RevokePublic(ctx context.Context, groupID string, ports types.PortRange) error
	RevokePeer(ctx context.Context, groupID string, ports types.PortRange, peer types.GroupRef) error
}

// Reconciler converges security groups onto the provider.
type Reconciler struct {
	client GroupClient
}

// New creates a reconciler over the given provider client.
func New(client GroupClient) *Reconciler {
	return &Reconciler{client: client}
}

// Create converges the named group to exactly the declared rules. An
// existing group keeps its identity; its rules are replaced wholesale,
// so the group is briefly rule-less between revoke and authorize.
// Running twice with the same spec lands on the same remote state.
func (r *Reconciler) Create(ctx context.Context, spec types.SecurityGroupSpec) error {
	group, err := r.client.GetGroup(ctx, spec.Name)
	if err != nil {
		return err
	}

	if group != nil {
		if err := r.clearRules(ctx, group); err != nil {
			return err
		}
	} else {
		group, err = r.client.CreateGroup(ctx, spec.Name, spec.Name+" security group")
		if err != nil {
			return err
		}
		log.Info().Str("group", spec.Name).Str("id", group.ID).Msg("created security group")
	}

	if err := r.authorizePublic(ctx, group, spec.PublicPorts); err != nil {
		return err
	}
	if err := r.authorizePeers(ctx, group, spec.PeerPorts); err != nil {
		return err
	}

	log.Info().
		Str("group", spec.Name).
		Int("public_rules", len(spec.PublicPorts)).
		Int("peers", len(spec.PeerPorts)).
		Msg("converged security group")
	return nil
}

// Destroy deletes the named group. An absent group is a no-op.
func (r *Reconciler) Destroy(ctx context.Context, name string) error {
	group, err := r.client.GetGroup(ctx, name)
	if err != nil {
		return err
	}
	if group == nil {
		log.Debug().Str("group", name).Msg("security group already absent")
		return nil
	}

	if err := r.client.DeleteGroup(ctx, group.ID); err != nil {
		return err
	}
	log.Info().Str("group", name).Msg("destroyed security group")
	return nil
}

// clearRules revokes every existing ingress rule: bare ranges for public
// rules, one revoke per (range, peer) for peered rules.
func (r *Reconciler) clearRules(ctx context.Context, group *types.RemoteGroup) error {
	for _, rule := range group.Rules {
		if len(rule.Peers) == 0 {
			if err := r.client.RevokePublic(ctx, group.ID, rule.Ports); err != nil {
				return err
			}
			continue
		}
		for _, peer := range rule.Peers {
			if err := r.client.RevokePeer(ctx, group.ID, rule.Ports, peer); err != nil {
				return err
			}
		}
	}

	log.Debug().Str("group", group.Name).Int("rules", len(group.Rules)).Msg("cleared existing rules")
	return nil
}

// authorizePublic opens each declared range to the internet, one call
// per range.
func (r *Reconciler) authorizePublic(ctx context.Context, group *types.RemoteGroup, ranges []types.PortRange) error {
	for _, ports := range ranges {
		if err := r.client.AuthorizePublic(ctx, group.ID, ports); err != nil {
			return err
		}
	}
	return nil
}

// authorizePeers resolves each peer group and scopes the declared ranges
// to it. Peer names are walked in sorted order so runs are deterministic.
func (r *Reconciler) authorizePeers(ctx context.Context, group *types.RemoteGroup, peers map[string][]types.PortRange) error {
	names := make([]string, 0, len(peers))
	for name := range peers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		peer, err := r.client.GetGroup(ctx, name)
		if err != nil {
			return err
		}
		if peer == nil {
			return fmt.Errorf("group %s: peer %s: %w", group.Name, name, ErrPeerGroupNotFound)
		}
		for _, ports := range peers[name] {
			if err := r.client.AuthorizePeer(ctx, group.ID, ports, peer.Ref()); err != nil {
				return err
			}
		}
	}
	return nil
}
