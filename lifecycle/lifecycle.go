// Package lifecycle manages compute hosts: spinup with replace semantics,
// provisioning through the external bootstrap tool, and destroy. A host
// is never reconciled in place; an existing instance is terminated and a
// fresh one launched.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/nosto/config"
	"github.com/yairfalse/nosto/knife"
	"github.com/yairfalse/nosto/types"
)

// ErrReadinessTimeout reports an instance that did not reach the running
// state within the profile's ready timeout.
var ErrReadinessTimeout = errors.New("instance readiness timeout")

// InstanceClient is the provider surface the manager drives.
type InstanceClient interface {
	FindRunning(ctx context.Context, name string) (*types.Instance, error)
	Launch(ctx context.Context, spec types.LaunchSpec) (*types.Instance, error)
	Refresh(ctx context.Context, id string) (*types.Instance, error)
	Terminate(ctx context.Context, id string) error
}

// Manager sequences host operations against the provider and the
// bootstrap tool. The profile supplies launch fallbacks and the
// readiness polling bounds.
type Manager struct {
	client  InstanceClient
	runner  knife.Runner
	profile config.Profile
}

// New creates a manager with explicit collaborators.
func New(client InstanceClient, runner knife.Runner, profile config.Profile) *Manager {
	return &Manager{client: client, runner: runner, profile: profile}
}

// Spinup launches a fresh instance for the host and waits until it runs.
// An already-running instance under the same name is terminated first:
// replace, not update.
func (m *Manager) Spinup(ctx context.Context, spec types.HostSpec) (*types.Instance, error) {
	existing, err := m.client.FindRunning(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Info().Str("host", spec.Name).Str("instance", existing.ID).Msg("replacing running instance")
		if err := m.client.Terminate(ctx, existing.ID); err != nil {
			return nil, err
		}
	}

	inst, err := m.client.Launch(ctx, m.resolveLaunch(spec))
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("host", spec.Name).
		Str("instance", inst.ID).
		Dur("timeout", m.profile.ReadyTimeout).
		Msg("launched instance, waiting for it to run")

	ready, err := m.waitReady(ctx, spec.Name, inst.ID)
	if err != nil {
		return nil, err
	}

	log.Info().Str("host", spec.Name).Str("instance", ready.ID).Str("address", ready.Address()).Msg("instance running")
	return ready, nil
}

// Provision hands the running instance to the bootstrap tool. With an
// empty runlist and no knife-solo flag there is nothing to apply; that
// case is an explicit no-op, not an error.
func (m *Manager) Provision(ctx context.Context, spec types.HostSpec) error {
	if !spec.NeedsProvisioning() {
		log.Info().Str("host", spec.Name).Msg("no runlist, provisioning skipped")
		return nil
	}

	inst, err := m.client.FindRunning(ctx, spec.Name)
	if err != nil {
		return err
	}
	if inst == nil {
		return fmt.Errorf("host %s: no running instance to provision", spec.Name)
	}

	keyName := spec.Options.KeyName
	if keyName == "" {
		keyName = m.profile.KeyName
	}
	identity := m.profile.IdentityFile(keyName)

	var cmd knife.Command
	if spec.Options.KnifeSolo {
		cmd = knife.SoloBootstrap(inst.Address(), identity, spec.Name, spec.Runlist, spec.Options.Attributes)
	} else {
		cmd = knife.Bootstrap(inst.Address(), identity, spec.Name, spec.Runlist)
	}

	if err := m.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("provision %s: %w", spec.Name, err)
	}

	log.Info().Str("host", spec.Name).Str("instance", inst.ID).Msg("provisioned host")
	return nil
}

// Create is spinup then provision, strictly sequential: provisioning
// never starts before the readiness wait completes.
func (m *Manager) Create(ctx context.Context, spec types.HostSpec) error {
	if _, err := m.Spinup(ctx, spec); err != nil {
		return err
	}
	return m.Provision(ctx, spec)
}

// Destroy terminates the host's running instance. An absent instance is
// a no-op.
func (m *Manager) Destroy(ctx context.Context, spec types.HostSpec) error {
	inst, err := m.client.FindRunning(ctx, spec.Name)
	if err != nil {
		return err
	}
	if inst == nil {
		log.Debug().Str("host", spec.Name).Msg("no running instance, nothing to destroy")
		return nil
	}

	if err := m.client.Terminate(ctx, inst.ID); err != nil {
		return err
	}
	log.Info().Str("host", spec.Name).Str("instance", inst.ID).Msg("terminated instance")
	return nil
}

// resolveLaunch applies option fallbacks against the profile.
func (m *Manager) resolveLaunch(spec types.HostSpec) types.LaunchSpec {
	launch := types.LaunchSpec{
		Name:           spec.Name,
		SecurityGroups: spec.SecurityGroups,
		KeyName:        spec.Options.KeyName,
		ImageID:        spec.Options.ImageID,
		Size:           spec.Options.Size,
	}
	if launch.KeyName == "" {
		launch.KeyName = m.profile.KeyName
	}
	if launch.ImageID == "" {
		launch.ImageID = m.profile.ImageID
	}
	if launch.Size == "" {
		launch.Size = m.profile.Size
	}
	return launch
}

// waitReady polls the instance until it reports running, bounded by the
// profile's ready timeout and the context.
func (m *Manager) waitReady(ctx context.Context, name, id string) (*types.Instance, error) {
	deadline := time.Now().Add(m.profile.ReadyTimeout)

	for {
		inst, err := m.client.Refresh(ctx, id)
		if err != nil {
			return nil, err
		}
		if inst.Ready() {
			return inst, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("host %s: instance %s still %s after %s: %w",
				name, id, inst.State, m.profile.ReadyTimeout, ErrReadinessTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.profile.PollInterval):
		}
	}
}
