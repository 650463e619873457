package engine

import "fmt"

type (
	// Alert is a message to be shown to the user. The engine never blocks
	// on delivering alerts; if nobody reads them, they are dropped.
	Alert struct {
		Name     string
		Priority AlertPriority
		Message  string
	}

	AlertPriority int
)

const (
	Info AlertPriority = iota
	Warning
	Error
)

func (p AlertPriority) String() string {
	switch p {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

func (a Alert) String() string {
	return fmt.Sprintf("%v: %v: %v", a.Priority, a.Name, a.Message)
}

// TrySend is a helper function to send a value to a channel if it is not
// full. It is guaranteed to be non-blocking. Return true if the value was
// sent, false otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

func (e *Engine) sendAlert(name, message string, priority AlertPriority) {
	TrySend(e.alerts, Alert{Name: name, Priority: priority, Message: message})
}
