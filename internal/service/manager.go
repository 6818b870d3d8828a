// Package service drives systemd units through systemctl and maps their
// activation state to a small structured enum.
package service

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"nordctl/internal/system"
)

var unitNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]+\.service$`)

// State is the structured running state of a unit.
type State int

const (
	StateUnknown State = iota
	StateRunning
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ServiceManager defines the systemd operations needed by the controller.
type ServiceManager interface {
	Start(unitName string) error
	Stop(unitName string) error
	Restart(unitName string) error
	State(unitName string) (State, error)
}

// Manager manages service operations via systemctl.
type Manager struct {
	runner system.CommandRunner
}

// NewManager creates a manager backed by the real systemctl binary.
func NewManager() *Manager {
	return NewManagerWithRunner(system.ExecRunner{})
}

// NewManagerWithRunner creates a manager with a custom command runner.
func NewManagerWithRunner(runner system.CommandRunner) *Manager {
	if runner == nil {
		runner = system.ExecRunner{}
	}
	return &Manager{runner: runner}
}

// Start runs `systemctl start <unit>`.
func (m *Manager) Start(unitName string) error {
	return m.runSystemctl("start", unitName)
}

// Stop runs `systemctl stop <unit>`.
func (m *Manager) Stop(unitName string) error {
	return m.runSystemctl("stop", unitName)
}

// Restart runs `systemctl restart <unit>`.
func (m *Manager) Restart(unitName string) error {
	return m.runSystemctl("restart", unitName)
}

// State runs `systemctl is-active <unit>` and maps the answer to a State.
// systemctl exits non-zero for inactive units, so the textual answer is
// consulted before the run error.
func (m *Manager) State(unitName string) (State, error) {
	resolved, err := normalizeUnitName(unitName)
	if err != nil {
		return StateUnknown, err
	}
	out, runErr := m.runner.Output("systemctl", "is-active", resolved)
	switch strings.TrimSpace(string(out)) {
	case "active", "activating":
		return StateRunning, nil
	case "inactive", "deactivating", "failed":
		return StateStopped, nil
	}
	if runErr != nil {
		return StateUnknown, fmt.Errorf("systemctl is-active %s: %w", resolved, runErr)
	}
	return StateUnknown, nil
}

func (m *Manager) runSystemctl(action, unitName string) error {
	resolved, err := normalizeUnitName(unitName)
	if err != nil {
		return err
	}
	out, err := m.runner.Output("systemctl", action, resolved)
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("systemctl %s %s: %w: %s", action, resolved, err, detail)
		}
		return fmt.Errorf("systemctl %s %s: %w", action, resolved, err)
	}
	return nil
}

func normalizeUnitName(unitName string) (string, error) {
	trimmed := strings.TrimSpace(unitName)
	if trimmed == "" {
		return "", fmt.Errorf("unit name is required")
	}
	if !strings.HasSuffix(trimmed, ".service") {
		trimmed += ".service"
	}
	if filepath.Base(trimmed) != trimmed || strings.ContainsAny(trimmed, `/\\`) {
		return "", fmt.Errorf("invalid unit name %q", unitName)
	}
	if !unitNamePattern.MatchString(trimmed) {
		return "", fmt.Errorf("invalid unit name %q", unitName)
	}
	return trimmed, nil
}
