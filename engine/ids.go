package engine

import "github.com/google/uuid"

// newID returns a short opaque identifier with the given type prefix
// (e.g. "s_" for states, "t_" for transitions, "cp_" for checkpoints,
// "v_" for violations). Callers never parse the suffix.
func newID(prefix string) string {
	return prefix + uuid.New().String()[:12]
}

func newStateID() string      { return newID("s_") }
func newTransitionID() string { return newID("t_") }
func newCheckpointID() string { return newID("cp_") }
func newViolationID(invariant string, path []string) string {
	return "v_" + fingerprintStrings(append([]string{invariant}, path...))[:12]
}
