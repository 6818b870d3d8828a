package servers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nordctl/internal/state"
)

const (
	udpDirName     = "ovpn_udp"
	tcpDirName     = "ovpn_tcp"
	configSuffix   = ".nordvpn.com.udp.ovpn"
	resolvHookUp   = "up /etc/openvpn/update-resolv-conf"
	resolvHookDown = "down /etc/openvpn/update-resolv-conf"
)

// Selector installs one extracted server configuration as the active
// OpenVPN client configuration.
type Selector struct {
	bundleDir        string
	activeConfigPath string
	credentialsPath  string
	store            *state.Store
}

// NewSelector creates a selector over the extracted bundle tree.
func NewSelector(bundleDir, activeConfigPath, credentialsPath string, store *state.Store) *Selector {
	return &Selector{
		bundleDir:        bundleDir,
		activeConfigPath: activeConfigPath,
		credentialsPath:  credentialsPath,
		store:            store,
	}
}

// ConfigFileName returns the canonical bundle file name for a server name.
func ConfigFileName(name string) string {
	return name + configSuffix
}

// Select overwrites the active configuration with the named server's
// UDP configuration, pointing auth-user-pass at the credentials file
// and appending the DNS resolution hooks, then records the selection.
// The previous active configuration is not merged, only replaced.
func (s *Selector) Select(name string) error {
	if err := validateServerName(name); err != nil {
		return err
	}
	fileName := ConfigFileName(name)
	sourcePath := filepath.Join(s.bundleDir, udpDirName, fileName)

	raw, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("server %s: %w", name, err)
	}

	rewritten := s.rewrite(string(raw))
	if err := writeFileAtomic(s.activeConfigPath, []byte(rewritten), 0o600); err != nil {
		return fmt.Errorf("install active config: %w", err)
	}

	if err := s.store.SetCurrent(name, fileName); err != nil {
		return err
	}
	return nil
}

// rewrite points auth-user-pass at the credentials file and appends the
// fixed directives the tunnel needs on this host.
func (s *Selector) rewrite(raw string) string {
	lines := strings.Split(strings.TrimRight(raw, "\n"), "\n")
	replaced := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "auth-user-pass") {
			lines[i] = "auth-user-pass " + s.credentialsPath
			replaced = true
		}
	}
	if !replaced {
		lines = append(lines, "auth-user-pass "+s.credentialsPath)
	}
	lines = append(lines,
		"script-security 2",
		resolvHookUp,
		resolvHookDown,
	)
	return strings.Join(lines, "\n") + "\n"
}

// ListLocal returns the server names with an extracted UDP configuration.
func ListLocal(bundleDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(bundleDir, udpDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(entry.Name(), configSuffix)
		if !ok {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func validateServerName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("server name is required")
	}
	if trimmed != filepath.Base(trimmed) || strings.ContainsAny(trimmed, `/\`) || strings.Contains(trimmed, "..") {
		return fmt.Errorf("invalid server name %q", name)
	}
	return nil
}

func writeFileAtomic(path string, content []byte, mode os.FileMode) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
