package engine

// TargetState is the caller's declared desired condition for a resource.
type TargetState string

const (
	// StatePresent ensures the resource exists with the declared attributes.
	StatePresent TargetState = "present"

	// StateAbsent ensures the resource does not exist.
	StateAbsent TargetState = "absent"

	// StateActive ensures the resource exists and is powered on. Only
	// meaningful for droplets.
	StateActive TargetState = "active"

	// StateInactive ensures the resource exists and is powered off. Only
	// meaningful for droplets.
	StateInactive TargetState = "inactive"
)

// Valid reports whether s is a recognized target state.
func (s TargetState) Valid() bool {
	switch s {
	case StatePresent, StateAbsent, StateActive, StateInactive:
		return true
	}
	return false
}

// WantsExistence reports whether the state implies the resource should exist.
func (s TargetState) WantsExistence() bool {
	return s != StateAbsent
}

// Result is the outcome of a single module invocation.
type Result struct {
	// Changed indicates whether any mutating call was issued.
	Changed bool `json:"changed"`

	// Msg is an informational message describing what happened.
	Msg string `json:"msg,omitempty"`

	// Data is the resource's current provider-side representation.
	Data any `json:"data,omitempty"`
}

// Unchanged returns a no-op result with an informational message.
func Unchanged(msg string, data any) *Result {
	return &Result{Changed: false, Msg: msg, Data: data}
}

// ChangedResult returns a result recording that a mutation occurred.
func ChangedResult(msg string, data any) *Result {
	return &Result{Changed: true, Msg: msg, Data: data}
}
