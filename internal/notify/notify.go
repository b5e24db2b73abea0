// Package notify carries transient user-visible messages from the
// orchestrator and the result reporter to whatever surface is hosting them.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
)

type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notification is one message. Background is set for notifications raised
// by detached work the user did not wait for (e.g. saving a quiz score).
type Notification struct {
	Level      Level
	Message    string
	Background bool
}

// Notifier receives notifications. Implementations must be safe for
// concurrent use; the result reporter notifies from its own goroutine.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a plain function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Log writes notifications to a slog logger. Used when no interactive
// surface is attached (MCP mode).
func Log(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return Func(func(n Notification) {
		attrs := []any{"level", n.Level.String(), "background", n.Background}
		switch n.Level {
		case Error:
			logger.Error(n.Message, attrs...)
		case Warning:
			logger.Warn(n.Message, attrs...)
		default:
			logger.Info(n.Message, attrs...)
		}
	})
}

// Recorder collects notifications in memory.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.all = append(r.all, n)
	r.mu.Unlock()
}

// All returns a copy of everything recorded so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notification{}, false
	}
	return r.all[len(r.all)-1], true
}

func (n Notification) String() string {
	if n.Background {
		return fmt.Sprintf("[%s, background] %s", n.Level, n.Message)
	}
	return fmt.Sprintf("[%s] %s", n.Level, n.Message)
}
