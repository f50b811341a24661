package tasks

import "fmt"

// Status is the state shown for a task. Besides the fixed values, free-form
// progress text such as "Check 3" is allowed.
type Status string

const (
	StatusRunning   Status = "Running"
	StatusWaiting   Status = "Waiting"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// CheckStatus returns the progress text published on the readiness-wait task.
func CheckStatus(n int) Status {
	return Status(fmt.Sprintf("Check %d", n))
}

// IsFinished reports whether the status is terminal.
func (s Status) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one line of the progress list shown to the user.
type Task struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Status      Status `json:"status"`
}
