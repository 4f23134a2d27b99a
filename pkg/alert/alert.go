package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Notification is an operational text message about a job step.
type Notification struct {
	Job  string    `json:"job"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Notifier delivers notifications to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Notify is the best-effort form of Broadcast used by jobs: failures are
// logged and never returned.
func (m *Manager) Notify(ctx context.Context, job, text string) {
	if !m.HasNotifiers() {
		return
	}
	n := &Notification{Job: job, Text: text, Time: time.Now().UTC()}
	if err := m.Broadcast(ctx, n); err != nil {
		log.WithFields(log.Fields{"job": job, "error": err}).Warn("notification failed")
	}
}
