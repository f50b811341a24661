package capture

// CommandStart is the only command the pipeline acts on.
const CommandStart = "start"

// Command is an inbound control message.
type Command struct {
	Cmd  string          `json:"cmd"`
	Args map[string]bool `json:"args,omitempty"`
}

// Options configures one session.
type Options struct {
	// Merge selects the merged run (single file and CUE sheet) over per-part files.
	Merge bool `json:"merge"`
	// Decode measures durations by full decode instead of frame headers.
	Decode bool `json:"decode"`
}

// OptionsFrom reads the merge and decode flags of a start command.
func OptionsFrom(c Command) Options {
	return Options{Merge: c.Args["merge"], Decode: c.Args["decode"]}
}

// State is the pipeline lifecycle position.
type State string

const (
	StateIdle            State = "idle"
	StateSessionStarting State = "session_starting"
	StateListening       State = "listening"
	// StateLoaded is held only inside the critical section that launches a run.
	StateLoaded  State = "loaded"
	StateRunning State = "running"
)

// Status is a point-in-time view of the pipeline.
type Status struct {
	State       State  `json:"state"`
	Running     bool   `json:"running"`
	Variant     string `json:"variant,omitempty"`
	Checks      int    `json:"checks"`
	Generation  string `json:"generation"`
	ResourceID  string `json:"resource_id,omitempty"`
	Title       string `json:"title,omitempty"`
	Ready       bool   `json:"ready"`
	Subscribers int    `json:"subscribers"`
}
