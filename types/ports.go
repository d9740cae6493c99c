package types

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// PortRange is an inclusive TCP port interval. A single port p is the
// canonical range {p, p}; normalization happens here at the boundary so
// nothing downstream branches on scalar-vs-range.
type PortRange struct {
	Min int32 `json:"min" yaml:"min"`
	Max int32 `json:"max" yaml:"max"`
}

// Port returns the canonical range for a single port.
func Port(p int32) PortRange {
	return PortRange{Min: p, Max: p}
}

// NewPortRange builds a validated inclusive range.
func NewPortRange(min, max int32) (PortRange, error) {
	r := PortRange{Min: min, Max: max}
	if err := r.Validate(); err != nil {
		return PortRange{}, err
	}
	return r, nil
}

// ParsePortRange parses "80" or "8000-8100" into a range.
func ParsePortRange(s string) (PortRange, error) {
	s = strings.TrimSpace(s)
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		min, err := parsePort(lo)
		if err != nil {
			return PortRange{}, fmt.Errorf("parse port range %q: %w", s, err)
		}
		max, err := parsePort(hi)
		if err != nil {
			return PortRange{}, fmt.Errorf("parse port range %q: %w", s, err)
		}
		return NewPortRange(min, max)
	}
	p, err := parsePort(s)
	if err != nil {
		return PortRange{}, fmt.Errorf("parse port %q: %w", s, err)
	}
	return NewPortRange(p, p)
}

func parsePort(s string) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

// Validate checks the range invariant min <= max and the TCP port bounds.
func (r PortRange) Validate() error {
	if r.Min < 0 || r.Max > 65535 {
		return fmt.Errorf("port range %s: ports must be within 0-65535", r)
	}
	if r.Min > r.Max {
		return fmt.Errorf("port range %s: min exceeds max", r)
	}
	return nil
}

// Single reports whether the range covers exactly one port.
func (r PortRange) Single() bool {
	return r.Min == r.Max
}

func (r PortRange) String() string {
	if r.Single() {
		return strconv.FormatInt(int64(r.Min), 10)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// UnmarshalYAML accepts either an integer scalar (443) or an interval
// string ("8000-8100").
func (r *PortRange) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("port entry must be a port number or \"min-max\" string, got %s", nodeKind(node))
	}

	var port int32
	if err := node.Decode(&port); err == nil {
		parsed, err := NewPortRange(port, port)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	}

	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("port entry: %w", err)
	}
	parsed, err := ParsePortRange(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	default:
		return "unknown node"
	}
}
