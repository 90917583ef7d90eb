// Package notify is the user-facing notification side channel. The core only
// emits toasts; presentation belongs to whoever implements Notifier.
package notify

import (
	log "github.com/sirupsen/logrus"
)

type Type string

const (
	Success Type = "success"
	Error   Type = "error"
	Info    Type = "info"
	Warning Type = "warning"
)

type Toast struct {
	Type    Type   `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

type Notifier interface {
	ShowToast(Toast)
}

// Func adapts a plain function to Notifier.
type Func func(Toast)

func (f Func) ShowToast(t Toast) { f(t) }

// Multi fans a toast out to every notifier in order.
type Multi []Notifier

func (m Multi) ShowToast(t Toast) {
	for _, n := range m {
		if n != nil {
			n.ShowToast(t)
		}
	}
}

// Log writes toasts to logrus, picking the level from the toast type.
type Log struct{}

func (Log) ShowToast(t Toast) {
	entry := log.WithField("toast", string(t.Type))
	msg := t.Title
	if t.Message != "" {
		msg += ": " + t.Message
	}

	switch t.Type {
	case Error:
		entry.Error(msg)
	case Warning:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
}

// Nop discards every toast.
type Nop struct{}

func (Nop) ShowToast(Toast) {}
