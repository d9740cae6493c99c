// Package config loads the nosto manifest: credential profiles plus the
// declared security groups and hosts, kept in declaration order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yairfalse/nosto/types"
)

// DefaultProfile is selected when neither the flag nor the environment
// names one.
const DefaultProfile = "staging"

// Defaults applied to profiles that leave the tuning knobs unset.
const (
	DefaultSSHDir       = "~/.ssh"
	DefaultReadyTimeout = 10 * time.Minute
	DefaultPollInterval = 5 * time.Second
)

// ErrProfileNotFound reports a requested profile absent from the manifest.
var ErrProfileNotFound = errors.New("profile not found")

// Config is the parsed manifest. Security groups and hosts keep their file
// order; duplicate names are allowed and the last registration wins.
type Config struct {
	Version        string                    `yaml:"version"`
	Profiles       map[string]Profile        `yaml:"profiles"`
	SecurityGroups []types.SecurityGroupSpec `yaml:"security_groups,omitempty"`
	Hosts          []types.HostSpec          `yaml:"hosts,omitempty"`
}

// Profile carries the per-environment provider settings and the launch
// fallbacks hosts resolve against when their options leave a field empty.
type Profile struct {
	Name         string        `yaml:"-"`
	Region       string        `yaml:"region"`
	KeyName      string        `yaml:"key_name,omitempty"`
	ImageID      string        `yaml:"image_id,omitempty"`
	Size         string        `yaml:"size,omitempty"`
	SSHDir       string        `yaml:"ssh_dir,omitempty"`
	ReadyTimeout time.Duration `yaml:"ready_timeout,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

// Load reads, parses and validates a manifest file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for name, p := range c.Profiles {
		p.Name = name
		if p.SSHDir == "" {
			p.SSHDir = DefaultSSHDir
		}
		if p.ReadyTimeout <= 0 {
			p.ReadyTimeout = DefaultReadyTimeout
		}
		if p.PollInterval <= 0 {
			p.PollInterval = DefaultPollInterval
		}
		c.Profiles[name] = p
	}
}

// Validate ensures the manifest has required fields and each declared
// resource is self-consistent.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	for name, p := range c.Profiles {
		if p.Region == "" {
			return fmt.Errorf("profile %s: region is required", name)
		}
	}
	for _, sg := range c.SecurityGroups {
		if err := sg.Validate(); err != nil {
			return err
		}
	}
	for _, h := range c.Hosts {
		if err := h.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Profile resolves a profile by name.
func (c *Config) Profile(name string) (Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile %q: %w", name, ErrProfileNotFound)
	}
	return p, nil
}

// IdentityFile returns the SSH identity path for a key name, expanding a
// leading ~ against the current user's home directory.
func (p Profile) IdentityFile(keyName string) string {
	dir := p.SSHDir
	if dir == "" {
		dir = DefaultSSHDir
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, strings.TrimPrefix(dir[1:], "/"))
		}
	}
	return filepath.Join(dir, keyName+".pem")
}
