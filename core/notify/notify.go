// Package notify delivers user-facing notifications raised by the
// synchronization core: conflicts, policy blocks and authentication
// failures.
package notify

import "go.uber.org/zap"

// Kind classifies a notification.
type Kind string

const (
	KindConflict Kind = "conflict"
	KindPolicy   Kind = "policy"
	KindAuth     Kind = "auth"
)

// Notification is a single message for the user.
type Notification struct {
	Kind        Kind
	Title       string
	Description string
	LinkID      string
	Path        string
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(Notification)

// Notify calls f(n).
func (f Func) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier logging at warn level.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify logs n.
func (l *LogNotifier) Notify(n Notification) {
	l.logger.Warn(n.Title,
		zap.String("kind", string(n.Kind)),
		zap.String("description", n.Description),
		zap.String("link", n.LinkID),
		zap.String("path", n.Path),
	)
}

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

// Notify forwards n to every notifier.
func (m Multi) Notify(n Notification) {
	for _, target := range m {
		target.Notify(n)
	}
}
