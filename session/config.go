//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoTez.
//
// GoTez is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoTez is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoTez. If not, see https://www.gnu.org/licenses/.

package session

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/aaronlmathis/gotez/core"
)

// StagingSuffix selects how the per-session staging directory is made unique.
type StagingSuffix string

const (
	// StagingSuffixApplicationID names the directory after the allocated application id.
	StagingSuffixApplicationID StagingSuffix = "application-id"
	// StagingSuffixRandom names the directory after a random UUID.
	StagingSuffixRandom StagingSuffix = "random"
)

// PollMode names a PollStrategy.
type PollMode string

const (
	PollModeFixed       PollMode = "fixed"
	PollModeExponential PollMode = "exponential"
	PollModeLinear      PollMode = "linear"
	PollModeJittered    PollMode = "jittered"
)

// Default configuration values.
const (
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultBackendRetries = 3
	DefaultRetryBackoff   = time.Second
	DefaultStopTimeout    = 30 * time.Second
	DefaultMemoryMB       = 1024
	DefaultVCores         = 1
	DefaultStagingRoot    = "/user"
	DefaultPollJitter     = 0.2
)

// Config is the configuration snapshot a session is created with.
type Config struct {
	Name          string            `yaml:"name" json:"name"`
	User          string            `yaml:"user" json:"user"`
	Queue         string            `yaml:"queue" json:"queue,omitempty"`
	StagingRoot   string            `yaml:"staging_root" json:"staging_root"`
	StagingSuffix StagingSuffix     `yaml:"staging_suffix" json:"staging_suffix"`
	MemoryMB      int               `yaml:"memory_mb" json:"memory_mb"`
	VCores        int               `yaml:"vcores" json:"vcores"`
	LaunchOptions string            `yaml:"launch_options" json:"launch_options,omitempty"`
	Environment   map[string]string `yaml:"environment" json:"environment,omitempty"`
	Properties    map[string]string `yaml:"properties" json:"properties,omitempty"`

	// PollInterval is the delay between status polls.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// MaxPollInterval caps the growing poll modes. With no PollMode set, a
	// value above PollInterval selects exponential growth.
	MaxPollInterval time.Duration `yaml:"max_poll_interval" json:"max_poll_interval,omitempty"`
	// PollMode picks how the delay grows: fixed, exponential, linear or jittered.
	PollMode PollMode `yaml:"poll_strategy" json:"poll_strategy,omitempty"`
	// PollJitter is the jittered mode's spread as a fraction of the delay.
	PollJitter float64 `yaml:"poll_jitter" json:"poll_jitter,omitempty"`
	// MaxWait bounds a whole wait; zero waits until completion or cancellation.
	MaxWait time.Duration `yaml:"max_wait" json:"max_wait,omitempty"`
	// BackendRetries is how many consecutive unavailable errors a poll loop
	// absorbs. Nil means DefaultBackendRetries; zero disables retries.
	BackendRetries *int `yaml:"backend_retries" json:"backend_retries,omitempty"`
	// RetryBackoff is the first delay between retries. Nil means
	// DefaultRetryBackoff; zero retries immediately.
	RetryBackoff *time.Duration `yaml:"retry_backoff" json:"retry_backoff,omitempty"`
	StopTimeout  time.Duration  `yaml:"stop_timeout" json:"stop_timeout"`
}

// DefaultConfig returns a configuration for the named session.
func DefaultConfig(name string) Config {
	return Config{Name: name}.withDefaults()
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.User == "" {
		c.User = currentUser()
	}
	if c.StagingRoot == "" {
		c.StagingRoot = DefaultStagingRoot
	}
	if c.StagingSuffix == "" {
		c.StagingSuffix = StagingSuffixApplicationID
	}
	if c.MemoryMB == 0 {
		c.MemoryMB = DefaultMemoryMB
	}
	if c.VCores == 0 {
		c.VCores = DefaultVCores
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.BackendRetries == nil {
		retries := DefaultBackendRetries
		c.BackendRetries = &retries
	}
	if c.RetryBackoff == nil {
		backoff := DefaultRetryBackoff
		c.RetryBackoff = &backoff
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.Environment == nil {
		c.Environment = make(map[string]string)
	}
	if c.Properties == nil {
		c.Properties = make(map[string]string)
	}
	return c
}

// Validate reports the first invalid setting as a *core.ConfigurationError.
func (c Config) Validate() error {
	switch {
	case c.Name == "":
		return &core.ConfigurationError{Field: "name", Err: fmt.Errorf("session name is required")}
	case c.PollInterval <= 0:
		return &core.ConfigurationError{Field: "poll_interval", Err: fmt.Errorf("must be positive, got %s", c.PollInterval)}
	case c.MaxPollInterval < 0:
		return &core.ConfigurationError{Field: "max_poll_interval", Err: fmt.Errorf("must not be negative")}
	case c.MaxWait < 0:
		return &core.ConfigurationError{Field: "max_wait", Err: fmt.Errorf("must not be negative")}
	case c.BackendRetries != nil && *c.BackendRetries < 0:
		return &core.ConfigurationError{Field: "backend_retries", Err: fmt.Errorf("must not be negative")}
	case c.RetryBackoff != nil && *c.RetryBackoff < 0:
		return &core.ConfigurationError{Field: "retry_backoff", Err: fmt.Errorf("must not be negative")}
	case c.MemoryMB < 0 || c.VCores < 0:
		return &core.ConfigurationError{Field: "resources", Err: fmt.Errorf("memory and vcores must not be negative")}
	case c.PollMode != "" && c.PollMode != PollModeFixed && c.PollMode != PollModeExponential &&
		c.PollMode != PollModeLinear && c.PollMode != PollModeJittered:
		return &core.ConfigurationError{Field: "poll_strategy", Err: fmt.Errorf("unknown poll strategy %q", c.PollMode)}
	case c.PollMode != "" && c.PollMode != PollModeFixed && c.MaxPollInterval < c.PollInterval:
		return &core.ConfigurationError{Field: "max_poll_interval", Err: fmt.Errorf("%s polling needs a cap of at least poll_interval", c.PollMode)}
	case c.PollJitter < 0 || c.PollJitter > 1:
		return &core.ConfigurationError{Field: "poll_jitter", Err: fmt.Errorf("must be between 0 and 1, got %g", c.PollJitter)}
	case c.StagingSuffix != StagingSuffixApplicationID && c.StagingSuffix != StagingSuffixRandom:
		return &core.ConfigurationError{Field: "staging_suffix", Err: fmt.Errorf("unknown suffix strategy %q", c.StagingSuffix)}
	}
	return nil
}

// PollStrategy returns the poll strategy the configuration describes.
func (c Config) PollStrategy() PollStrategy {
	mode := c.PollMode
	if mode == "" {
		mode = PollModeFixed
		if c.MaxPollInterval > c.PollInterval {
			mode = PollModeExponential
		}
	}
	switch mode {
	case PollModeExponential:
		return &ExponentialPoll{BaseDelay: c.PollInterval, MaxDelay: c.MaxPollInterval}
	case PollModeLinear:
		return &LinearPoll{BaseDelay: c.PollInterval, MaxDelay: c.MaxPollInterval}
	case PollModeJittered:
		jitter := c.PollJitter
		if jitter == 0 {
			jitter = DefaultPollJitter
		}
		return &JitteredPoll{BaseDelay: c.PollInterval, MaxDelay: c.MaxPollInterval, Jitter: jitter}
	default:
		return &FixedPoll{Interval: c.PollInterval}
	}
}

// retries returns the effective retry count and first backoff.
func (c Config) retries() (int, time.Duration) {
	retries, backoff := DefaultBackendRetries, DefaultRetryBackoff
	if c.BackendRetries != nil {
		retries = *c.BackendRetries
	}
	if c.RetryBackoff != nil {
		backoff = *c.RetryBackoff
	}
	return retries, backoff
}

// spec returns the coordinator request for the backend.
func (c Config) spec() core.SessionSpec {
	env := make(map[string]string, len(c.Environment))
	for k, v := range c.Environment {
		env[k] = v
	}
	return core.SessionSpec{
		Name:          c.Name,
		Queue:         c.Queue,
		MemoryMB:      c.MemoryMB,
		VCores:        c.VCores,
		LaunchOptions: c.LaunchOptions,
		Environment:   env,
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "gotez"
}
