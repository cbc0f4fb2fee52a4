package slogx

import "log/slog"

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
//
// Parameters:
//   - err: The error to be converted into a slog.Attr.
//
// Returns:
//   - slog.Attr: An attribute with the key "error" and the error's message as the value.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// EventType creates a slog.Attr carrying an event type tag under the "event"
// key. Used throughout the bus for emit, subscribe and dispatch logging so
// events can be filtered by type in log output.
//
// Parameters:
//   - eventType: The event type tag, e.g. "midi:note-on".
//
// Returns:
//   - slog.Attr: An attribute with the key "event" and the type tag as the value.
func EventType(eventType string) slog.Attr {
	return slog.String("event", eventType)
}

// Module creates a slog.Attr carrying a module name under the "module" key.
//
// Parameters:
//   - name: The module name.
//
// Returns:
//   - slog.Attr: An attribute with the key "module" and the name as the value.
func Module(name string) slog.Attr {
	return slog.String("module", name)
}
