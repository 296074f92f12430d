// Package config implements the read-only Config collaborator of
// spec.md §6: parsed once at startup, queried during start-up and
// during each lifecycle operation (network().enabled() in particular).
// Grounded on moby-moby/libnetwork/config/config.go's ParseConfig
// (os.ReadFile + toml.Unmarshal into a plain struct).
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

// Config is the parsed contents of /etc/portod/portod.toml. Load fills
// in a default for every unset socket, freezer and lifetime field, so a
// missing file still yields a usable config; a zero Config built without
// Load carries no defaults.
type Config struct {
	Network  NetworkCfg  `toml:"network"`
	Socket   SocketCfg   `toml:"socket"`
	Freezer  FreezerCfg  `toml:"freezer"`
	Lifetime LifetimeCfg `toml:"lifetime"`
	Orphans  map[string]string `toml:"orphans"`
}

// NetworkCfg gates every traffic-control operation daemon-wide: with
// Enabled false, pkg/tc's Create/Remove calls are all successful no-ops
// per spec.md §6's "Environment" paragraph.
type NetworkCfg struct {
	Enabled bool `toml:"enabled"`
}

// SocketCfg names the client-facing unix socket path.
type SocketCfg struct {
	Path string `toml:"path"`
}

// FreezerCfg bounds the Pause/Resume confirmation poll.
type FreezerCfg struct {
	PollIntervalMs int `toml:"poll_interval_ms"`
	TimeoutMs      int `toml:"timeout_ms"`
}

// LifetimeCfg bounds Stop's grace period before escalating.
type LifetimeCfg struct {
	StopGracePeriodMs int `toml:"stop_grace_period_ms"`
}

const (
	defaultSocketPath        = "/run/portod.socket"
	defaultFreezerPollMs     = 100
	defaultFreezerTimeoutMs  = 60000
	defaultStopGracePeriodMs = 10000
)

// Load reads and parses path. A missing file is not an error here —
// callers that require an explicit config should stat first; Load on a
// nonexistent path simply returns the zero Config with defaults filled
// in, matching a fresh install with no /etc/portod/portod.toml yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Socket.Path == "" {
		c.Socket.Path = defaultSocketPath
	}
	if c.Freezer.PollIntervalMs == 0 {
		c.Freezer.PollIntervalMs = defaultFreezerPollMs
	}
	if c.Freezer.TimeoutMs == 0 {
		c.Freezer.TimeoutMs = defaultFreezerTimeoutMs
	}
	if c.Lifetime.StopGracePeriodMs == 0 {
		c.Lifetime.StopGracePeriodMs = defaultStopGracePeriodMs
	}
}

// NetworkEnabled reports whether traffic-control operations should be
// materialised against the kernel.
func (c *Config) NetworkEnabled() bool { return c.Network.Enabled }

// SocketPath returns the unix socket path the RPC server listens on.
func (c *Config) SocketPath() string { return c.Socket.Path }

// FreezerPollInterval and FreezerTimeout bound the freezer confirmation
// poll cgroup.Freeze/Unfreeze perform.
func (c *Config) FreezerPollInterval() time.Duration {
	return time.Duration(c.Freezer.PollIntervalMs) * time.Millisecond
}

func (c *Config) FreezerTimeout() time.Duration {
	return time.Duration(c.Freezer.TimeoutMs) * time.Millisecond
}

// StopGracePeriod bounds Stop's wait for a SIGTERMed payload to exit
// before escalating to the freeze+sigkill+thaw path.
func (c *Config) StopGracePeriod() time.Duration {
	return time.Duration(c.Lifetime.StopGracePeriodMs) * time.Millisecond
}

// OrphanPolicy reports the configured restore_all disposition for a
// residual cgroup under the named subsystem: "adopt", "destroy", or
// "auto" (the default — adopt iff the cgroup still has attached tasks,
// destroy otherwise). An unrecognised or absent entry is "auto".
func (c *Config) OrphanPolicy(subsystem string) string {
	if c.Orphans == nil {
		return "auto"
	}
	switch p := c.Orphans[subsystem]; p {
	case "adopt", "destroy":
		return p
	default:
		return "auto"
	}
}
