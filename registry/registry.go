// Package registry loads and validates the run definition file: the single
// YAML document declaring which spec files run, against which capabilities,
// and under which scheduling limits.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/specrunner/specrunner/types"
)

// Registry holds the loaded, defaulted, immutable run definition.
type Registry struct {
	config     Config
	definition *Definition
	mu         sync.RWMutex
}

// Config contains registry configuration.
type Config struct {
	Log            *zap.SugaredLogger
	DefinitionFile string
}

// NewRegistry loads the definition file, applies defaults and validates it.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.DefinitionFile == "" {
		return nil, fmt.Errorf("definition file is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}

	r := &Registry{config: cfg}
	if err := r.load(cfg.DefinitionFile); err != nil {
		return nil, fmt.Errorf("failed to load definition: %w", err)
	}

	cfg.Log.Debugw("Registry loaded",
		"specs", len(r.definition.Specs),
		"suites", len(r.definition.Suites),
		"multiremote", r.definition.Capabilities.IsMultiremote())

	return r, nil
}

func (r *Registry) load(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading definition file: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("parsing definition file: %w", err)
	}

	def.applyDefaults()
	if err := def.validate(); err != nil {
		return err
	}

	r.definition = &def
	return nil
}

// Definition returns the loaded run definition. The returned value is shared
// and must be treated as read-only.
func (r *Registry) Definition() *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.definition
}

// ResolveSuites maps the requested suite names to their spec entries,
// preserving request order. An unknown name is a configuration error.
func (r *Registry) ResolveSuites(names []string) ([]SpecEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []SpecEntry
	for _, name := range names {
		suite, ok := r.definition.Suites[name]
		if !ok {
			return nil, fmt.Errorf("suite %q is not defined (known suites: %v)", name, r.suiteNames())
		}
		entries = append(entries, suite...)
	}
	return entries, nil
}

func (r *Registry) suiteNames() []string {
	names := make([]string, 0, len(r.definition.Suites))
	for name := range r.definition.Suites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SpecEntry is one entry of the specs sequence. A scalar entry resolves to
// one work unit per matched file; an array entry keeps all its files in a
// single work unit that shares one worker process.
type SpecEntry struct {
	Patterns []string
	Grouped  bool
}

// UnmarshalYAML accepts either a scalar pattern or a sequence of patterns.
func (e *SpecEntry) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var pattern string
		if err := value.Decode(&pattern); err != nil {
			return err
		}
		e.Patterns = []string{pattern}
		e.Grouped = false
		return nil
	case yaml.SequenceNode:
		var patterns []string
		if err := value.Decode(&patterns); err != nil {
			return err
		}
		e.Patterns = patterns
		e.Grouped = true
		return nil
	default:
		return fmt.Errorf("spec entry must be a string or a list of strings")
	}
}

// Definition mirrors the run definition schema. Interval and delay fields
// keep the schema's units (milliseconds and seconds respectively) and are
// exposed as durations through accessors.
type Definition struct {
	Specs   []SpecEntry            `yaml:"specs"`
	Exclude []string               `yaml:"exclude"`
	Suites  map[string][]SpecEntry `yaml:"suites"`

	Capabilities types.CapabilitySet `yaml:"capabilities"`
	Shard        types.ShardOptions  `yaml:"shard"`

	MaxInstances              int `yaml:"maxInstances"`
	MaxInstancesPerCapability int `yaml:"maxInstancesPerCapability"`

	SpecFileRetries         int   `yaml:"specFileRetries"`
	SpecFileRetriesDelay    int   `yaml:"specFileRetriesDelay"` // seconds
	SpecFileRetriesDeferred *bool `yaml:"specFileRetriesDeferred"`

	Bail int `yaml:"bail"`

	RunnerCommand []string          `yaml:"runnerCommand"`
	ExecArgv      []string          `yaml:"execArgv"`
	RunnerEnv     map[string]string `yaml:"runnerEnv"`

	OutputDir           string `yaml:"outputDir"`
	GroupLogsByTestSpec bool   `yaml:"groupLogsByTestSpec"`

	ReporterSyncInterval int `yaml:"reporterSyncInterval"` // milliseconds
	ReporterSyncTimeout  int `yaml:"reporterSyncTimeout"`  // milliseconds

	DrainGraceSeconds    int  `yaml:"drainGraceSeconds"`
	RetryDrainedSpecs    bool `yaml:"retryDrainedSpecs"`
	StrictSpecResolution bool `yaml:"strictSpecResolution"`
}

const (
	defaultMaxInstances         = 100
	defaultReporterSyncInterval = 100  // ms
	defaultReporterSyncTimeout  = 5000 // ms
	defaultDrainGraceSeconds    = 10
)

func (d *Definition) applyDefaults() {
	if d.Shard.Total == 0 {
		d.Shard = types.ShardOptions{Total: 1, Current: 1}
	}
	if d.MaxInstances == 0 {
		d.MaxInstances = defaultMaxInstances
	}
	if d.MaxInstancesPerCapability == 0 {
		d.MaxInstancesPerCapability = d.MaxInstances
	}
	if d.SpecFileRetriesDeferred == nil {
		deferred := true
		d.SpecFileRetriesDeferred = &deferred
	}
	if d.ReporterSyncInterval == 0 {
		d.ReporterSyncInterval = defaultReporterSyncInterval
	}
	if d.ReporterSyncTimeout == 0 {
		d.ReporterSyncTimeout = defaultReporterSyncTimeout
	}
	if d.DrainGraceSeconds == 0 {
		d.DrainGraceSeconds = defaultDrainGraceSeconds
	}
	if d.OutputDir == "" {
		d.OutputDir = "logs"
	}
}

func (d *Definition) validate() error {
	if err := d.Shard.Validate(); err != nil {
		return fmt.Errorf("invalid shard options: %w", err)
	}
	if d.MaxInstances < 1 {
		return fmt.Errorf("maxInstances must be >= 1, got %d", d.MaxInstances)
	}
	if d.MaxInstancesPerCapability < 1 {
		return fmt.Errorf("maxInstancesPerCapability must be >= 1, got %d", d.MaxInstancesPerCapability)
	}
	if d.SpecFileRetries < 0 {
		return fmt.Errorf("specFileRetries must be >= 0, got %d", d.SpecFileRetries)
	}
	if d.SpecFileRetriesDelay < 0 {
		return fmt.Errorf("specFileRetriesDelay must be >= 0, got %d", d.SpecFileRetriesDelay)
	}
	if d.Bail < 0 {
		return fmt.Errorf("bail must be >= 0, got %d", d.Bail)
	}
	if d.Capabilities.Empty() {
		return fmt.Errorf("at least one capability is required")
	}
	if len(d.RunnerCommand) == 0 {
		return fmt.Errorf("runnerCommand is required")
	}
	return nil
}

// RetriesDeferred reports whether requeued units go to the back of the
// pending queue instead of the front.
func (d *Definition) RetriesDeferred() bool {
	return d.SpecFileRetriesDeferred == nil || *d.SpecFileRetriesDeferred
}

// RetryDelay returns the minimum wait between a failed attempt and the
// retry's earliest dispatch.
func (d *Definition) RetryDelay() time.Duration {
	return time.Duration(d.SpecFileRetriesDelay) * time.Second
}

// SyncInterval returns the reporter poll interval.
func (d *Definition) SyncInterval() time.Duration {
	return time.Duration(d.ReporterSyncInterval) * time.Millisecond
}

// SyncTimeout returns the reporter sync deadline.
func (d *Definition) SyncTimeout() time.Duration {
	return time.Duration(d.ReporterSyncTimeout) * time.Millisecond
}

// DrainGrace returns how long in-flight workers may keep running after a
// shutdown or bail before being killed.
func (d *Definition) DrainGrace() time.Duration {
	return time.Duration(d.DrainGraceSeconds) * time.Second
}
