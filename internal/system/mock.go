package system

import "strings"

// RecordingRunner is a test helper implementing CommandRunner. It records
// every invocation and returns canned errors or outputs keyed by the
// space-joined command line.
type RecordingRunner struct {
	Calls      [][]string
	RunErrs    map[string]error
	OutputErrs map[string]error
	Outputs    map[string][]byte
}

func (r *RecordingRunner) Run(name string, args ...string) error {
	call := append([]string{name}, args...)
	r.Calls = append(r.Calls, call)
	if err, ok := r.RunErrs[JoinCall(call)]; ok {
		return err
	}
	return nil
}

func (r *RecordingRunner) Output(name string, args ...string) ([]byte, error) {
	call := append([]string{name}, args...)
	r.Calls = append(r.Calls, call)
	out := r.Outputs[JoinCall(call)]
	if err, ok := r.OutputErrs[JoinCall(call)]; ok {
		return out, err
	}
	return out, nil
}

// CommandLines returns the recorded calls as space-joined strings.
func (r *RecordingRunner) CommandLines() []string {
	lines := make([]string, 0, len(r.Calls))
	for _, call := range r.Calls {
		lines = append(lines, JoinCall(call))
	}
	return lines
}

// JoinCall renders a recorded call the way it was invoked.
func JoinCall(parts []string) string {
	return strings.Join(parts, " ")
}
