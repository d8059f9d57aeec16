package types

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Capability is an opaque bag of automation-target parameters. The
// orchestrator never interprets its contents beyond the browser name used
// for concurrency grouping; everything else is passed through to workers.
type Capability map[string]any

// BrowserName returns the capability's browser name, or "" when absent.
func (c Capability) BrowserName() string {
	if v, ok := c["browserName"].(string); ok {
		return v
	}
	return ""
}

// SessionKind distinguishes plain capability entries from multiremote sets.
type SessionKind string

const (
	SessionSingle      SessionKind = "single"
	SessionMultiremote SessionKind = "multiremote"
)

// NamedSession is one member of a multiremote set.
type NamedSession struct {
	Name       string
	Capability Capability
}

// SessionDescriptor is the uniform automation-target handle downstream
// components schedule against. A multiremote descriptor bundles its member
// sessions and always occupies a single worker slot.
type SessionDescriptor struct {
	Kind       SessionKind
	GroupKey   string
	Capability Capability     // set when Kind == SessionSingle
	Members    []NamedSession // set when Kind == SessionMultiremote
}

// IsMultiremote reports whether this descriptor bundles sub-sessions.
func (s SessionDescriptor) IsMultiremote() bool {
	return s.Kind == SessionMultiremote
}

// InstanceOptions returns the opaque parameters handed to a worker for this
// session: the capability itself, or the named member map for multiremote.
func (s SessionDescriptor) InstanceOptions() map[string]any {
	if s.IsMultiremote() {
		opts := make(map[string]any, len(s.Members))
		for _, m := range s.Members {
			opts[m.Name] = map[string]any(m.Capability)
		}
		return opts
	}
	return s.Capability
}

// CapabilitySet is the configured capabilities field. The YAML shape is
// polymorphic: a sequence of capability maps, or a named map of browser
// configs (multiremote).
type CapabilitySet struct {
	Single []Capability
	Remote map[string]Capability
}

// IsMultiremote reports whether the configuration used the multiremote shape.
func (c CapabilitySet) IsMultiremote() bool {
	return c.Remote != nil
}

// Empty reports whether no capability was configured at all.
func (c CapabilitySet) Empty() bool {
	return len(c.Single) == 0 && len(c.Remote) == 0
}

// UnmarshalYAML resolves the polymorphic capabilities shape once at load
// time so downstream code only ever sees the tagged variant.
func (c *CapabilitySet) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var caps []Capability
		if err := value.Decode(&caps); err != nil {
			return fmt.Errorf("parsing capabilities list: %w", err)
		}
		c.Single = caps
		return nil
	case yaml.MappingNode:
		var named map[string]multiremoteEntry
		if err := value.Decode(&named); err != nil {
			return fmt.Errorf("parsing multiremote capabilities: %w", err)
		}
		c.Remote = make(map[string]Capability, len(named))
		for name, entry := range named {
			c.Remote[name] = entry.Capabilities
		}
		return nil
	default:
		return fmt.Errorf("capabilities must be a list or a multiremote map, got yaml kind %d", value.Kind)
	}
}

// multiremoteEntry mirrors the per-browser block of a multiremote config.
type multiremoteEntry struct {
	Capabilities Capability `yaml:"capabilities"`
}

// RemoteNames returns the multiremote member names in stable order.
func (c CapabilitySet) RemoteNames() []string {
	names := make([]string, 0, len(c.Remote))
	for name := range c.Remote {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
