// Package notification delivers trade and signal alerts to external
// channels.
package notification

import (
	"context"
	"log/slog"
)

// Level classifies an alert.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelTrade   Level = "TRADE"
	LevelWarning Level = "WARNING"
)

// Alert is one outbound message.
type Alert struct {
	Level   Level
	Title   string
	Message string
}

// Notifier sends alerts somewhere.
type Notifier interface {
	Send(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to the log. The default sink when no
// external channel is configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, a Alert) error {
	slog.Info("alert", "level", string(a.Level), "title", a.Title, "message", a.Message)
	return nil
}
