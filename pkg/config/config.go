// Package config loads the scheduler settings.
//
// Sources, lowest to highest precedence:
//  1. built-in defaults
//  2. YAML file
//  3. environment variables
//  4. command-line flags
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	goerrors "github.com/TudorHulban/go-errors"
	"github.com/asaskevich/govalidator"
	"github.com/guido-cesarano/rrscheduler/pkg/tasks"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of one scheduler process.
type Config struct {
	NumResources  int           `yaml:"resources"`
	NumProjects   int           `yaml:"projects"`
	Interval      time.Duration `yaml:"interval"`
	WakeOnEnqueue bool          `yaml:"wake_on_enqueue"`

	Generation Range    `yaml:"generation"`
	Completion Range    `yaml:"completion"`
	Priority   IntRange `yaml:"priority"`
	Sample     IntRange `yaml:"sample"`

	MetricsAddr string `yaml:"metrics_addr"`
	RedisAddr   string `yaml:"redis_addr"`
	ReportSpec  string `yaml:"report_spec"`
	LogLevel    string `yaml:"log_level"`
}

// Range is a closed interval of durations.
type Range struct {
	Low  time.Duration `yaml:"low"`
	High time.Duration `yaml:"high"`
}

// IntRange is a closed interval of integers.
type IntRange struct {
	Low  int `yaml:"low"`
	High int `yaml:"high"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		NumResources: 3,
		NumProjects:  5,
		Interval:     time.Second,

		// a new task arrives every 2 to 6 seconds
		Generation: Range{Low: 2 * time.Second, High: 6 * time.Second},
		// a resource is freed every 5 to 10 seconds
		Completion: Range{Low: 5 * time.Second, High: 10 * time.Second},
		Priority:   IntRange{Low: tasks.PriorityHigh, High: tasks.PriorityLow},
		// tasks per project for the sample run
		Sample: IntRange{Low: 1, High: 7},

		MetricsAddr: ":8080",
		ReportSpec:  "@every 5s",
		LogLevel:    "info",
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped when
// empty) and then with the process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// ApplyEnv overrides fields from environment variables:
//   - SCHED_RESOURCES, SCHED_PROJECTS, SCHED_INTERVAL
//   - REDIS_ADDR, METRICS_ADDR, LOG_LEVEL
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("SCHED_RESOURCES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCHED_RESOURCES: %w", err)
		}
		c.NumResources = n
	}

	if v, ok := lookup("SCHED_PROJECTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCHED_PROJECTS: %w", err)
		}
		c.NumProjects = n
	}

	if v, ok := lookup("SCHED_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SCHED_INTERVAL: %w", err)
		}
		c.Interval = d
	}

	if v, ok := lookup("REDIS_ADDR"); ok {
		c.RedisAddr = v
	}

	if v, ok := lookup("METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}

	if v, ok := lookup("LOG_LEVEL"); ok {
		c.LogLevel = v
	}

	return nil
}

// Validate checks counts, ranges and addresses.
func (c *Config) Validate() error {
	if c.NumResources < 0 {
		return goerrors.ErrValidation{
			Caller: "Validate - Config",
			Issue: goerrors.ErrNegativeInput{
				InputName: "NumResources",
			},
		}
	}

	if c.NumProjects < 0 {
		return goerrors.ErrValidation{
			Caller: "Validate - Config",
			Issue: goerrors.ErrNegativeInput{
				InputName: "NumProjects",
			},
		}
	}

	if c.Interval <= 0 {
		return goerrors.ErrValidation{
			Caller: "Validate - Config",
			Issue: goerrors.ErrInvalidInput{
				InputName:  "Interval",
				InputValue: c.Interval,
			},
		}
	}

	for name, r := range map[string]Range{
		"Generation": c.Generation,
		"Completion": c.Completion,
	} {
		if r.Low < 0 || r.High < r.Low {
			return goerrors.ErrValidation{
				Caller: "Validate - Config",
				Issue: goerrors.ErrInvalidInput{
					InputName:  name,
					InputValue: fmt.Sprintf("%s..%s", r.Low, r.High),
				},
			}
		}
	}

	for name, r := range map[string]IntRange{
		"Priority": c.Priority,
		"Sample":   c.Sample,
	} {
		if r.Low < 0 || r.High < r.Low {
			return goerrors.ErrValidation{
				Caller: "Validate - Config",
				Issue: goerrors.ErrInvalidInput{
					InputName:  name,
					InputValue: fmt.Sprintf("%d..%d", r.Low, r.High),
				},
			}
		}
	}

	for name, addr := range map[string]string{
		"MetricsAddr": c.MetricsAddr,
		"RedisAddr":   c.RedisAddr,
	} {
		if addr == "" {
			continue
		}

		if !isListenAddr(addr) {
			return goerrors.ErrValidation{
				Caller: "Validate - Config",
				Issue: goerrors.ErrInvalidInput{
					InputName:  name,
					InputValue: addr,
				},
			}
		}
	}

	return nil
}

// isListenAddr accepts "host:port" and ":port".
func isListenAddr(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}

	if !govalidator.IsPort(port) {
		return false
	}

	return host == "" || govalidator.IsHost(host)
}
