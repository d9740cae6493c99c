package types

import "time"

// InstanceRunning is the provider state in which an instance is addressed
// by name lookups and readiness checks.
const InstanceRunning = "running"

// GroupRef identifies a security group by its owner+name pair, the form
// peer-scoped rule grants use on the wire.
type GroupRef struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

// Rule is one ingress rule on a remote group: a port range either open to
// the internet (no peers) or scoped to one or more peer groups.
type Rule struct {
	Ports PortRange  `json:"ports"`
	Peers []GroupRef `json:"peers,omitempty"`
}

// RemoteGroup is the provider-owned security group, fetched fresh on every
// operation and never cached across invocations.
type RemoteGroup struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OwnerID     string `json:"owner_id"`
	Description string `json:"description,omitempty"`
	Rules       []Rule `json:"rules,omitempty"`
}

// Ref returns the owner+name identifier peer rules are scoped to.
func (g *RemoteGroup) Ref() GroupRef {
	return GroupRef{OwnerID: g.OwnerID, Name: g.Name}
}

// Instance is the provider-owned compute instance. At most one running
// instance per host name is addressed; when the provider holds several,
// the first returned wins.
type Instance struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	State      string    `json:"state"`
	PublicDNS  string    `json:"public_dns,omitempty"`
	PublicIP   string    `json:"public_ip,omitempty"`
	PrivateIP  string    `json:"private_ip,omitempty"`
	LaunchedAt time.Time `json:"launched_at,omitempty"`
}

// Ready reports whether the instance has reached the running state.
func (i *Instance) Ready() bool {
	return i.State == InstanceRunning
}

// Address returns the endpoint handed to the provisioning tool: public
// DNS when the provider assigned one, public IP otherwise.
func (i *Instance) Address() string {
	if i.PublicDNS != "" {
		return i.PublicDNS
	}
	return i.PublicIP
}

// LaunchSpec carries the resolved parameters for a create request, after
// option fallbacks have been applied.
type LaunchSpec struct {
	Name           string   `json:"name"`
	SecurityGroups []string `json:"security_groups"`
	KeyName        string   `json:"key_name"`
	ImageID        string   `json:"image_id"`
	Size           string   `json:"size"`
}
