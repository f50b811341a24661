package capture

import "errors"

var (
	// ErrRun wraps any failure returned by a run variant.
	ErrRun = errors.New("run failed")
	// ErrObservation marks an observation body that could not be parsed.
	ErrObservation = errors.New("malformed observation")
	// ErrStart marks a session that could not be started.
	ErrStart = errors.New("start failed")
)

// Outcome is the result of one pipeline phase. Phases never report their own
// failures; the pipeline turns outcomes into tasks and metrics.
type Outcome struct {
	Phase string
	Err   error
}

func succeeded(phase string) Outcome {
	return Outcome{Phase: phase}
}

func failed(phase string, err error) Outcome {
	return Outcome{Phase: phase, Err: err}
}

// Failed reports whether the phase ended in an error.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Label is the metrics label for the outcome.
func (o Outcome) Label() string {
	if o.Err != nil {
		return "failed"
	}
	return "succeeded"
}
