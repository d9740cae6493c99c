package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/nosto/types"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nosto.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	content := `
version: "1"
profiles:
  staging:
    region: us-east-1
    key_name: staging-deploy
    image_id: ami-0c02fb55956c7d316
    size: t3.small
  production:
    region: eu-west-1
    key_name: prod-deploy
    image_id: ami-0123456789abcdef0
    size: t3.large
    ssh_dir: /etc/nosto/keys
    ready_timeout: 20m
    poll_interval: 10s

security_groups:
  - name: web
    public_ports: [80, 443]
  - name: internal
    peer_ports:
      web: ["8000-8100"]

hosts:
  - name: app
    security_groups: [web, internal]
    runlist: role[app]
    options:
      knife_solo: true
      attributes: nodes/app.json
  - name: cache
    security_groups: [internal]
`

	cfg, err := Load(writeManifest(t, content))
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.Version)

	staging, err := cfg.Profile("staging")
	require.NoError(t, err)
	assert.Equal(t, "staging", staging.Name)
	assert.Equal(t, "us-east-1", staging.Region)
	assert.Equal(t, DefaultSSHDir, staging.SSHDir)
	assert.Equal(t, DefaultReadyTimeout, staging.ReadyTimeout)
	assert.Equal(t, DefaultPollInterval, staging.PollInterval)

	prod, err := cfg.Profile("production")
	require.NoError(t, err)
	assert.Equal(t, "/etc/nosto/keys", prod.SSHDir)
	assert.Equal(t, 20*time.Minute, prod.ReadyTimeout)
	assert.Equal(t, 10*time.Second, prod.PollInterval)

	require.Len(t, cfg.SecurityGroups, 2)
	assert.Equal(t, "web", cfg.SecurityGroups[0].Name)
	assert.Equal(t, []types.PortRange{types.Port(80), types.Port(443)}, cfg.SecurityGroups[0].PublicPorts)
	assert.Equal(t, "internal", cfg.SecurityGroups[1].Name)
	assert.Equal(t, []types.PortRange{{Min: 8000, Max: 8100}}, cfg.SecurityGroups[1].PeerPorts["web"])

	require.Len(t, cfg.Hosts, 2)
	assert.Equal(t, "app", cfg.Hosts[0].Name)
	assert.True(t, cfg.Hosts[0].Options.KnifeSolo)
	assert.Equal(t, "cache", cfg.Hosts[1].Name)
	assert.Empty(t, cfg.Hosts[1].Runlist)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadManifest(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "not yaml",
			content: "{{{",
			wantErr: "failed to parse",
		},
		{
			name:    "missing version",
			content: "profiles:\n  staging:\n    region: us-east-1\n",
			wantErr: "version is required",
		},
		{
			name:    "profile without region",
			content: "version: \"1\"\nprofiles:\n  staging:\n    key_name: deploy\n",
			wantErr: "region is required",
		},
		{
			name:    "security group without name",
			content: "version: \"1\"\nsecurity_groups:\n  - public_ports: [80]\n",
			wantErr: "name is required",
		},
		{
			name:    "host with unknown option",
			content: "version: \"1\"\nhosts:\n  - name: app\n    options:\n      flavor: m1.small\n",
			wantErr: "flavor",
		},
		{
			name:    "inverted port interval",
			content: "version: \"1\"\nsecurity_groups:\n  - name: web\n    public_ports: [\"9000-8000\"]\n",
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeManifest(t, tt.content))
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadAllowsDuplicateNames(t *testing.T) {
	// Re-declaring a name is legal; the registry treats the last spec as
	// authoritative.
	content := `
version: "1"
security_groups:
  - name: web
    public_ports: [80]
  - name: web
    public_ports: [443]
`
	cfg, err := Load(writeManifest(t, content))
	require.NoError(t, err)
	require.Len(t, cfg.SecurityGroups, 2)
	assert.Equal(t, []types.PortRange{types.Port(443)}, cfg.SecurityGroups[1].PublicPorts)
}

func TestProfileNotFound(t *testing.T) {
	cfg := &Config{Version: "1"}
	_, err := cfg.Profile("staging")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestIdentityFile(t *testing.T) {
	p := Profile{SSHDir: "/etc/nosto/keys"}
	assert.Equal(t, "/etc/nosto/keys/deploy.pem", p.IdentityFile("deploy"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	tilded := Profile{SSHDir: "~/.ssh"}
	assert.Equal(t, filepath.Join(home, ".ssh", "deploy.pem"), tilded.IdentityFile("deploy"))
}
