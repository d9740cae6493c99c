package reconciler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/nosto/types"
)

// fakeGroupClient tracks groups in memory and records every call in
// order, so tests can assert the exact convergence sequence.
type fakeGroupClient struct {
	groups map[string]*types.RemoteGroup
	calls  []string
	failOn string
}

func newFakeGroupClient(groups ...*types.RemoteGroup) *fakeGroupClient {
	f := &fakeGroupClient{groups: make(map[string]*types.RemoteGroup)}
	for _, g := range groups {
		f.groups[g.Name] = g
	}
	return f
}

func (f *fakeGroupClient) record(call string) error {
	f.calls = append(f.calls, call)
	if f.failOn != "" && len(call) >= len(f.failOn) && call[:len(f.failOn)] == f.failOn {
		return errors.New("provider failure")
	}
	return nil
}

func (f *fakeGroupClient) GetGroup(_ context.Context, name string) (*types.RemoteGroup, error) {
	if err := f.record("get " + name); err != nil {
		return nil, err
	}
	return f.groups[name], nil
}

func (f *fakeGroupClient) CreateGroup(_ context.Context, name, description string) (*types.RemoteGroup, error) {
	if err := f.record("create " + name); err != nil {
		return nil, err
	}
	g := &types.RemoteGroup{ID: "sg-" + name, Name: name, OwnerID: "123456789012", Description: description}
	f.groups[name] = g
	return g, nil
}

func (f *fakeGroupClient) DeleteGroup(_ context.Context, id string) error {
	if err := f.record("delete " + id); err != nil {
		return err
	}
	for name, g := range f.groups {
		if g.ID == id {
			delete(f.groups, name)
		}
	}
	return nil
}

func (f *fakeGroupClient) AuthorizePublic(_ context.Context, groupID string, ports types.PortRange) error {
	return f.record(fmt.Sprintf("authorize_public %s %s", groupID, ports))
}

func (f *fakeGroupClient) AuthorizePeer(_ context.Context, groupID string, ports types.PortRange, peer types.GroupRef) error {
	return f.record(fmt.Sprintf("authorize_peer %s %s %s", groupID, ports, peer.Name))
}

func (f *fakeGroupClient) RevokePublic(_ context.Context, groupID string, ports types.PortRange) error {
	return f.record(fmt.Sprintf("revoke_public %s %s", groupID, ports))
}

func (f *fakeGroupClient) RevokePeer(_ context.Context, groupID string, ports types.PortRange, peer types.GroupRef) error {
	return f.record(fmt.Sprintf("revoke_peer %s %s %s", groupID, ports, peer.Name))
}

var _ GroupClient = (*fakeGroupClient)(nil)

func TestCreateNewGroup(t *testing.T) {
	fake := newFakeGroupClient(&types.RemoteGroup{ID: "sg-db", Name: "db", OwnerID: "123456789012"})

	err := New(fake).Create(context.Background(), types.SecurityGroupSpec{
		Name:        "web",
		PublicPorts: []types.PortRange{types.Port(80), types.Port(443)},
		PeerPorts:   map[string][]types.PortRange{"db": {types.Port(5432)}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"get web",
		"create web",
		"authorize_public sg-web 80",
		"authorize_public sg-web 443",
		"get db",
		"authorize_peer sg-web 5432 db",
	}, fake.calls)
}

func TestCreateReplacesExistingRules(t *testing.T) {
	fake := newFakeGroupClient(&types.RemoteGroup{
		ID:      "sg-web",
		Name:    "web",
		OwnerID: "123456789012",
		Rules: []types.Rule{
			{Ports: types.Port(22)},
			{Ports: types.Port(9000), Peers: []types.GroupRef{{OwnerID: "123456789012", Name: "legacy"}}},
		},
	})

	err := New(fake).Create(context.Background(), types.SecurityGroupSpec{
		Name:        "web",
		PublicPorts: []types.PortRange{types.Port(80)},
	})
	require.NoError(t, err)

	// Everything old goes before anything new arrives.
	assert.Equal(t, []string{
		"get web",
		"revoke_public sg-web 22",
		"revoke_peer sg-web 9000 legacy",
		"authorize_public sg-web 80",
	}, fake.calls)
}

func TestCreateIsIdempotent(t *testing.T) {
	fake := newFakeGroupClient()
	spec := types.SecurityGroupSpec{
		Name:        "web",
		PublicPorts: []types.PortRange{types.Port(80)},
	}

	r := New(fake)
	require.NoError(t, r.Create(context.Background(), spec))

	// Second run replaces nothing remote because the fake does not track
	// authorized rules, but must not fail and must not create again.
	require.NoError(t, r.Create(context.Background(), spec))
	assert.Equal(t, []string{
		"get web",
		"create web",
		"authorize_public sg-web 80",
		"get web",
		"authorize_public sg-web 80",
	}, fake.calls)
}

func TestCreateWalksPeersInSortedOrder(t *testing.T) {
	fake := newFakeGroupClient(
		&types.RemoteGroup{ID: "sg-a", Name: "a", OwnerID: "123456789012"},
		&types.RemoteGroup{ID: "sg-b", Name: "b", OwnerID: "123456789012"},
	)

	err := New(fake).Create(context.Background(), types.SecurityGroupSpec{
		Name: "web",
		PeerPorts: map[string][]types.PortRange{
			"b": {types.Port(2)},
			"a": {types.Port(1)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"get web",
		"create web",
		"get a",
		"authorize_peer sg-web 1 a",
		"get b",
		"authorize_peer sg-web 2 b",
	}, fake.calls)
}

func TestCreateMissingPeer(t *testing.T) {
	fake := newFakeGroupClient()

	err := New(fake).Create(context.Background(), types.SecurityGroupSpec{
		Name:      "web",
		PeerPorts: map[string][]types.PortRange{"ghost": {types.Port(5432)}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPeerGroupNotFound)
	assert.Contains(t, err.Error(), "ghost")
}

func TestCreateAbortsOnRevokeFailure(t *testing.T) {
	fake := newFakeGroupClient(&types.RemoteGroup{
		ID:    "sg-web",
		Name:  "web",
		Rules: []types.Rule{{Ports: types.Port(22)}},
	})
	fake.failOn = "revoke_public"

	err := New(fake).Create(context.Background(), types.SecurityGroupSpec{
		Name:        "web",
		PublicPorts: []types.PortRange{types.Port(80)},
	})
	require.Error(t, err)

	for _, call := range fake.calls {
		assert.NotContains(t, call, "authorize")
	}
}

func TestDestroy(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		fake := newFakeGroupClient(&types.RemoteGroup{ID: "sg-web", Name: "web"})

		require.NoError(t, New(fake).Destroy(context.Background(), "web"))
		assert.Equal(t, []string{"get web", "delete sg-web"}, fake.calls)
		assert.Empty(t, fake.groups)
	})

	t.Run("absent is a no-op", func(t *testing.T) {
		fake := newFakeGroupClient()

		require.NoError(t, New(fake).Destroy(context.Background(), "web"))
		assert.Equal(t, []string{"get web"}, fake.calls)
	})
}
