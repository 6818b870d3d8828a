// Package config holds the runtime configuration for nordctl. Every
// value the original deployment hardcoded lives here with its default,
// so installations (and tests) can point the controller at a different
// tree without patching the binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nordctl/internal/util"
)

// DefaultPath is where the optional configuration file is looked up.
const DefaultPath = "/etc/nordctl/config.yaml"

// Config captures the paths, service names and network parameters used
// by the controller.
type Config struct {
	// ActiveConfigPath is the OpenVPN client configuration consumed by
	// the VPN service. It is fully overwritten on every server switch.
	ActiveConfigPath string `yaml:"activeConfigPath"`
	// CredentialsPath is referenced from the active configuration via
	// auth-user-pass. nordctl never creates this file.
	CredentialsPath string `yaml:"credentialsPath"`
	// BundleDir holds the extracted ovpn_udp/ and ovpn_tcp/ trees.
	BundleDir string `yaml:"bundleDir"`
	// BundleURL is the server configuration archive download location.
	BundleURL string `yaml:"bundleUrl"`

	// Interface is the network interface the firewall rules are scoped
	// to. Empty means detect the WAN interface at load time.
	Interface string `yaml:"interface"`

	VPNService      string `yaml:"vpnService"`
	FirewallService string `yaml:"firewallService"`

	ProbeURL               string `yaml:"probeUrl"`
	ProbeTimeoutSeconds    int    `yaml:"probeTimeoutSeconds,omitempty"`
	DownloadTimeoutSeconds int    `yaml:"downloadTimeoutSeconds,omitempty"`

	StatePath    string `yaml:"statePath"`
	SettingsPath string `yaml:"settingsPath"`
	ListenAddr   string `yaml:"listenAddr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ActiveConfigPath:       "/etc/openvpn/client.conf",
		CredentialsPath:        "/etc/openvpn/nordvpn-auth.txt",
		BundleDir:              "/etc/openvpn/nordvpn",
		BundleURL:              "https://downloads.nordcdn.com/configs/archives/servers/ovpn.zip",
		VPNService:             "openvpn",
		FirewallService:        "ufw",
		ProbeURL:               "https://api.nordvpn.com/",
		ProbeTimeoutSeconds:    2,
		DownloadTimeoutSeconds: 5,
		StatePath:              "/var/lib/nordctl/state.db",
		SettingsPath:           "/var/lib/nordctl/settings.json",
		ListenAddr:             "127.0.0.1:8094",
	}
}

// Load reads the configuration file at path and merges it over the
// defaults. A missing file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg.finalize()
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.finalize()
}

// ProbeTimeout returns the connectivity probe timeout.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// DownloadTimeout returns the bundle download timeout.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSeconds) * time.Second
}

// detectWANInterface is swappable in tests.
var detectWANInterface = util.DetectWANInterface

func (c Config) finalize() (Config, error) {
	if strings.TrimSpace(c.Interface) == "" {
		iface, err := detectWANInterface()
		if err != nil {
			return Config{}, fmt.Errorf("interface is not configured and WAN detection failed: %w", err)
		}
		c.Interface = iface
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration for semantic correctness.
func (c Config) Validate() error {
	for name, path := range map[string]string{
		"activeConfigPath": c.ActiveConfigPath,
		"credentialsPath":  c.CredentialsPath,
		"bundleDir":        c.BundleDir,
		"statePath":        c.StatePath,
	} {
		if !filepath.IsAbs(path) {
			return fmt.Errorf("%s must be an absolute path, got %q", name, path)
		}
	}
	if strings.TrimSpace(c.BundleURL) == "" {
		return errors.New("bundleUrl is required")
	}
	if strings.TrimSpace(c.Interface) == "" {
		return errors.New("interface is required")
	}
	if strings.TrimSpace(c.VPNService) == "" || strings.TrimSpace(c.FirewallService) == "" {
		return errors.New("vpnService and firewallService are required")
	}
	if c.ProbeTimeoutSeconds <= 0 || c.DownloadTimeoutSeconds <= 0 {
		return errors.New("probeTimeoutSeconds and downloadTimeoutSeconds must be positive")
	}
	return nil
}
