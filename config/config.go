// Package config loads the nodegraph YAML configuration.
//
//	engine:
//	  workers: 16
//	  queue_size: 256
//	  verbosity: boundary
//	monitor:
//	  summary_schedule: "@every 1m"
//	metrics:
//	  mode: scrape
//	  listen_addr: ":9100"
//	policies:
//	  demo.NotifyCustomer:
//	    disposition: abandon
//	logging:
//	  level: info
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nomis52/nodegraph/engine"
	"github.com/nomis52/nodegraph/logging"
	"github.com/nomis52/nodegraph/monitor"
	"github.com/nomis52/nodegraph/node"
)

const (
	// Default engine settings
	defaultQueueSize = 1024

	// Default metrics settings
	defaultMetricsMode   = MetricsNone
	defaultListenAddr    = ":9100"
	defaultMetricsPrefix = "nodegraph"
	defaultJobName       = "nodegraph"
	defaultPushTimeout   = 10 * time.Second
)

// Metrics modes.
const (
	MetricsNone   = "none"
	MetricsScrape = "scrape"
	MetricsPush   = "push"
)

// Config represents the complete application configuration
type Config struct {
	Engine   EngineConfig            `yaml:"engine"`
	Monitor  MonitorConfig           `yaml:"monitor"`
	Metrics  MetricsConfig           `yaml:"metrics"`
	Policies map[string]PolicyConfig `yaml:"policies"`
	Logging  logging.Config          `yaml:"logging"`
}

// EngineConfig holds worker pool and logging verbosity settings
type EngineConfig struct {
	// Workers is the number of pool workers. Defaults to 4 * GOMAXPROCS.
	Workers int `yaml:"workers"`

	// QueueSize is how many tasks may wait for a worker before submissions
	// are rejected.
	QueueSize int `yaml:"queue_size"`

	// DefaultTimeout and DefaultRetries replace the built-in fallbacks for
	// policy fields that neither the config nor the node registration set.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	DefaultRetries int           `yaml:"default_retries"`

	// Verbosity is one of none, basic, timing, boundary, all
	Verbosity string `yaml:"verbosity"`
}

// MonitorConfig holds the timing monitor settings
type MonitorConfig struct {
	// SummarySchedule is a cron spec or descriptor, e.g. "@every 1m"
	SummarySchedule string `yaml:"summary_schedule"`
	Buffer          int    `yaml:"buffer"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	// Mode is one of none, scrape, push
	Mode string `yaml:"mode"`

	// ListenAddr is where /metrics is served in scrape mode
	ListenAddr string `yaml:"listen_addr"`

	// PushURL is the remote write endpoint used in push mode
	PushURL     string        `yaml:"push_url"`
	PushTimeout time.Duration `yaml:"push_timeout"`

	Prefix string `yaml:"prefix"`
	Job    string `yaml:"job"`
}

// PolicyConfig overrides the execution policy of one node
type PolicyConfig struct {
	Disposition string        `yaml:"disposition"` // interrupt, abandon, retry
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
}

// Policy converts the override into a node.Policy. Unset fields stay unset
// so they inherit the registered defaults.
func (p PolicyConfig) Policy() (node.Policy, error) {
	d, err := node.ParseDisposition(p.Disposition)
	if err != nil {
		return node.Policy{}, err
	}
	return node.Policy{Disposition: d, Timeout: p.Timeout, Retries: p.Retries}, nil
}

// NodePolicy returns the configured override for a node, or the zero policy.
func (c *Config) NodePolicy(id node.ID) node.Policy {
	pc, ok := c.Policies[id.String()]
	if !ok {
		return node.Policy{}
	}
	// Validate has already checked the disposition.
	p, _ := pc.Policy()
	return p
}

// DefaultPolicy returns node.DefaultPolicy with the engine overrides applied.
func (c *Config) DefaultPolicy() node.Policy {
	return node.Policy{
		Timeout: c.Engine.DefaultTimeout,
		Retries: c.Engine.DefaultRetries,
	}.Merge(node.DefaultPolicy)
}

// Verbosity returns the parsed engine verbosity.
func (c *Config) Verbosity() engine.Verbosity {
	// Validate has already checked the value.
	v, _ := engine.ParseVerbosity(c.Engine.Verbosity)
	return v
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine workers must be positive")
	}
	if c.Engine.QueueSize < 0 {
		return fmt.Errorf("engine queue size must not be negative")
	}
	if c.Engine.DefaultTimeout < 0 {
		return fmt.Errorf("engine default timeout must not be negative")
	}
	if c.Engine.DefaultRetries < 0 {
		return fmt.Errorf("engine default retries must not be negative")
	}
	if _, err := engine.ParseVerbosity(c.Engine.Verbosity); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if _, err := monitor.ParseSchedule(c.Monitor.SummarySchedule); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	if c.Monitor.Buffer < 0 {
		return fmt.Errorf("monitor buffer must not be negative")
	}

	switch c.Metrics.Mode {
	case MetricsNone:
	case MetricsScrape:
		if c.Metrics.ListenAddr == "" {
			return fmt.Errorf("metrics listen address is required in scrape mode")
		}
	case MetricsPush:
		if c.Metrics.PushURL == "" {
			return fmt.Errorf("metrics push URL is required in push mode")
		}
	default:
		return fmt.Errorf("metrics mode must be one of: %s, %s, %s", MetricsNone, MetricsScrape, MetricsPush)
	}

	var errs []error
	for id, pc := range c.Policies {
		p, err := pc.Policy()
		if err != nil {
			errs = append(errs, fmt.Errorf("policy %s: %w", id, err))
			continue
		}
		if p.Timeout < 0 || p.Retries < 0 {
			errs = append(errs, fmt.Errorf("policy %s: timeout and retries must not be negative", id))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Engine.Workers == 0 {
		c.Engine.Workers = 4 * runtime.GOMAXPROCS(0)
	}
	if c.Engine.QueueSize == 0 {
		c.Engine.QueueSize = defaultQueueSize
	}
	if c.Engine.Verbosity == "" {
		c.Engine.Verbosity = engine.DefaultVerbosity.String()
	}
	if c.Monitor.SummarySchedule == "" {
		c.Monitor.SummarySchedule = monitor.DefaultSchedule
	}
	if c.Monitor.Buffer == 0 {
		c.Monitor.Buffer = monitor.DefaultBuffer
	}
	if c.Metrics.Mode == "" {
		c.Metrics.Mode = defaultMetricsMode
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = defaultListenAddr
	}
	if c.Metrics.PushTimeout == 0 {
		c.Metrics.PushTimeout = defaultPushTimeout
	}
	if c.Metrics.Prefix == "" {
		c.Metrics.Prefix = defaultMetricsPrefix
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = defaultJobName
	}
	c.Logging.SetDefaults()
}

// Default returns a Config with every default applied, used when no config
// file is given.
func Default() Config {
	var cfg Config
	cfg.SetDefaults()
	return cfg
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
