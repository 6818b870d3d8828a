// Package util contains small network helpers shared by the controller
// and the status API.
package util

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// DetectWANInterface determines the default WAN interface by reading
// /proc/net/route. Used when no interface is configured explicitly.
func DetectWANInterface() (string, error) {
	return detectWANInterface("/proc/net/route")
}

func detectWANInterface(routePath string) (string, error) {
	file, err := os.Open(routePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	// skip header
	if !scanner.Scan() {
		return "", errors.New("unexpected route table format")
	}
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 11 {
			continue
		}
		iface := fields[0]
		destination := fields[1]
		flags := fields[3]
		if destination == "00000000" && strings.Contains(flags, "2") {
			return iface, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.New("default route not found")
}

// InterfaceOperState reports whether an interface is up along with its
// operstate text, or "missing" if the interface does not exist.
func InterfaceOperState(name string) (bool, string, error) {
	return interfaceOperState("/sys/class/net", name)
}

func interfaceOperState(sysClassNet, name string) (bool, string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return false, "", errors.New("interface not specified")
	}
	base := filepath.Join(sysClassNet, trimmed)
	if _, err := os.Stat(base); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, "missing", nil
		}
		return false, "error", err
	}
	data, err := os.ReadFile(filepath.Join(base, "operstate"))
	if err != nil {
		return true, "unknown", err
	}
	state := strings.TrimSpace(string(data))
	return state == "up", state, nil
}
