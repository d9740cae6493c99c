// Package types defines the value objects shared across nosto: declared
// resource specs and the remote entities they converge onto.
package types

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// SecurityGroupSpec declares the desired rule set for a named security
// group. The name is the sole identity: re-declaring a name replaces the
// prior spec.
type SecurityGroupSpec struct {
	Name        string                 `yaml:"name" json:"name"`
	PublicPorts []PortRange            `yaml:"public_ports,omitempty" json:"public_ports,omitempty"`
	PeerPorts   map[string][]PortRange `yaml:"peer_ports,omitempty" json:"peer_ports,omitempty"`
}

// Validate checks the spec is self-consistent.
func (s SecurityGroupSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("security group: name is required")
	}
	for _, r := range s.PublicPorts {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("security group %s: public port: %w", s.Name, err)
		}
	}
	for peer, ranges := range s.PeerPorts {
		if peer == "" {
			return fmt.Errorf("security group %s: peer group name is empty", s.Name)
		}
		for _, r := range ranges {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("security group %s: peer %s: %w", s.Name, peer, err)
			}
		}
	}
	return nil
}

// HostOptions holds the recognized per-host settings. Empty string fields
// fall back to the credential profile's defaults at spinup time.
type HostOptions struct {
	KeyName    string `json:"key_name,omitempty" mapstructure:"key_name"`
	ImageID    string `json:"image_id,omitempty" mapstructure:"image_id"`
	Size       string `json:"size,omitempty" mapstructure:"size"`
	KnifeSolo  bool   `json:"knife_solo,omitempty" mapstructure:"knife_solo"`
	Attributes string `json:"attributes,omitempty" mapstructure:"attributes"`
}

// ParseHostOptions decodes the loose options map from the declaration
// front-end. Unrecognized keys are errors rather than silent no-ops.
func ParseHostOptions(raw map[string]any) (HostOptions, error) {
	var opts HostOptions
	if len(raw) == 0 {
		return opts, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &opts,
		ErrorUnused: true,
	})
	if err != nil {
		return HostOptions{}, fmt.Errorf("build options decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return HostOptions{}, fmt.Errorf("host options: %w", err)
	}
	return opts, nil
}

// HostSpec declares a compute host: its security groups (referenced by
// name, not owned), the runlist handed to the provisioning tool, and the
// launch options.
type HostSpec struct {
	Name           string      `yaml:"name" json:"name"`
	SecurityGroups []string    `yaml:"security_groups,omitempty" json:"security_groups"`
	Runlist        string      `yaml:"runlist,omitempty" json:"runlist,omitempty"`
	Options        HostOptions `yaml:"options,omitempty" json:"options,omitempty"`
}

// UnmarshalYAML decodes a host declaration, routing the loose options
// mapping through ParseHostOptions so unrecognized keys fail at load time.
func (s *HostSpec) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name           string         `yaml:"name"`
		SecurityGroups []string       `yaml:"security_groups"`
		Runlist        string         `yaml:"runlist"`
		Options        map[string]any `yaml:"options"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	opts, err := ParseHostOptions(raw.Options)
	if err != nil {
		return fmt.Errorf("host %s: %w", raw.Name, err)
	}

	*s = HostSpec{
		Name:           raw.Name,
		SecurityGroups: raw.SecurityGroups,
		Runlist:        raw.Runlist,
		Options:        opts,
	}
	return nil
}

// Validate checks the spec is self-consistent.
func (s HostSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("host: name is required")
	}
	for _, group := range s.SecurityGroups {
		if group == "" {
			return fmt.Errorf("host %s: security group name is empty", s.Name)
		}
	}
	if s.Options.KnifeSolo && s.Options.Attributes == "" {
		return fmt.Errorf("host %s: knife_solo requires an attributes file", s.Name)
	}
	return nil
}

// NeedsProvisioning reports whether provision will invoke the external
// tool at all. An empty runlist without knife-solo is an explicit no-op.
func (s HostSpec) NeedsProvisioning() bool {
	return s.Runlist != "" || s.Options.KnifeSolo
}
