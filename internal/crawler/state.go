package crawler

import "fmt"

// TaskState is the lifecycle state of one fetch+extract task.
type TaskState string

// Task states. Succeeded and Failed are terminal.
const (
	TaskPending   TaskState = "pending"
	TaskInFlight  TaskState = "in_flight"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// IsTerminal reports whether the state is final.
func (s TaskState) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// CheckTransition validates a move between task states.
func CheckTransition(from, to TaskState) error {
	switch {
	case from == TaskPending && to == TaskInFlight:
		return nil
	case from == TaskInFlight && to.IsTerminal():
		return nil
	default:
		return fmt.Errorf("disallowed task transition %s -> %s", from, to)
	}
}
