// Package system abstracts process execution and privilege checks so that
// every package that shells out to external tools can be tested without
// touching the host.
package system

import (
	"os"
	"os/exec"
)

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	Run(name string, args ...string) error
	Output(name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	return cmd.Run()
}

func (ExecRunner) Output(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	return cmd.CombinedOutput()
}

// IsRoot reports whether the current process runs with root privileges.
func IsRoot() bool {
	return os.Geteuid() == 0
}
