// Package notify carries user-facing notifications from the API client to
// whatever surface displays them (terminal, SSE stream, logs).
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Type is the severity of a notification.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// DefaultDuration is how long a surface should display a notification when
// the notification doesn't say otherwise.
const DefaultDuration = 3 * time.Second

// LoginPath is where hosts send the user once the session has expired.
const LoginPath = "/login"

// Notification is a message for a toast-like surface.
type Notification struct {
	Message  string        `json:"message"`
	Type     Type          `json:"type"`
	Duration time.Duration `json:"-"`
}

// notificationJSON is the wire form; duration is expressed in milliseconds.
type notificationJSON struct {
	Message  string `json:"message"`
	Type     Type   `json:"type"`
	Duration int64  `json:"duration,omitempty"`
}

// MarshalJSON encodes the notification as {message, type, duration?}.
func (n Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(notificationJSON{
		Message:  n.Message,
		Type:     n.Type,
		Duration: n.Duration.Milliseconds(),
	})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw notificationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.Message = raw.Message
	n.Type = raw.Type
	n.Duration = time.Duration(raw.Duration) * time.Millisecond
	return nil
}

// DisplayDuration returns Duration or DefaultDuration when unset.
func (n Notification) DisplayDuration() time.Duration {
	if n.Duration > 0 {
		return n.Duration
	}
	return DefaultDuration
}

// SessionExpired signals that the session ended and the user must log in again.
type SessionExpired struct {
	Reason   string `json:"reason"`
	Redirect string `json:"redirect"`
}

// Notifier receives global notifications and session lifecycle signals.
// Implementations must not block the caller for long; they run on the
// request path of the API client.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
	SessionExpired(ctx context.Context, ev SessionExpired)
}

// Discard drops everything.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(context.Context, Notification)           {}
func (discard) SessionExpired(context.Context, SessionExpired) {}

// LogNotifier writes notifications to a slog.Logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Compile-time check to ensure LogNotifier implements Notifier
var _ Notifier = (*LogNotifier)(nil)

func (l *LogNotifier) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Notify logs n at the level matching its type.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	l.logger().Log(ctx, levelFor(n.Type), n.Message, "notification", string(n.Type))
}

// SessionExpired logs the end of the session.
func (l *LogNotifier) SessionExpired(ctx context.Context, ev SessionExpired) {
	l.logger().WarnContext(ctx, "session expired, log in again", "reason", ev.Reason, "redirect", ev.Redirect)
}

func levelFor(t Type) slog.Level {
	switch t {
	case TypeError:
		return slog.LevelError
	case TypeWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Multi fans out to several notifiers in order.
type Multi []Notifier

// Compile-time check to ensure Multi implements Notifier
var _ Notifier = Multi(nil)

// Notify forwards n to every notifier.
func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		notifier.Notify(ctx, n)
	}
}

// SessionExpired forwards ev to every notifier.
func (m Multi) SessionExpired(ctx context.Context, ev SessionExpired) {
	for _, notifier := range m {
		notifier.SessionExpired(ctx, ev)
	}
}
