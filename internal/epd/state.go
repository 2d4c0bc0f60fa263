package epd

import "fmt"

// PowerState is the controller's lifecycle state as tracked by the driver.
type PowerState int

const (
	// StateUnknown is the state at construction and after PowerOff. Only
	// HardwareReset is legal.
	StateUnknown PowerState = iota
	// StateReset follows a hardware reset; the panel must be configured.
	StateReset
	// StateReady means configured; frames may be written and refreshed.
	StateReady
	// StateSleep is deep sleep. The controller ignores everything until a
	// hardware reset.
	StateSleep
)

func (s PowerState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateReset:
		return "reset"
	case StateReady:
		return "ready"
	case StateSleep:
		return "sleep"
	default:
		return fmt.Sprintf("PowerState(%d)", int(s))
	}
}

// allowed lists the states each guarded operation may start from.
// HardwareReset and PowerOff are legal from any state and are not listed.
var allowed = map[string][]PowerState{
	"SoftwareReset":  {StateReset, StateReady},
	"Configure":      {StateReset},
	"SetWindow":      {StateReset, StateReady},
	"SetCursor":      {StateReset, StateReady},
	"SetBorder":      {StateReset, StateReady},
	"WriteFrame":     {StateReady},
	"Refresh":        {StateReady},
	"Clear":          {StateReady},
	"EnterDeepSleep": {StateReset, StateReady},
}

// checkState returns a configuration error unless op may run in s.
func checkState(op string, s PowerState) error {
	states, ok := allowed[op]
	if !ok {
		return nil
	}
	for _, want := range states {
		if s == want {
			return nil
		}
	}
	if s == StateUnknown || s == StateSleep {
		return configError(op, s, "not allowed in state %s, hardware reset required", s)
	}
	return configError(op, s, "not allowed in state %s", s)
}
