// Package notify tells downstream systems that a new popularity score set
// has been committed.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/shelfradar/pkg/catalog"
)

// Notification is the payload sent after a successful score run.
type Notification struct {
	Event       string    `json:"event"`
	RunID       string    `json:"run_id"`
	WindowDays  int       `json:"window_days"`
	BooksScored int       `json:"books_scored"`
	FinishedAt  time.Time `json:"finished_at"`
}

// ScoresReplaced builds the notification for a completed run.
func ScoresReplaced(run *catalog.ScoreRun) *Notification {
	return &Notification{
		Event:       "popularity.scores_replaced",
		RunID:       run.ID,
		WindowDays:  run.WindowDays,
		BooksScored: run.BooksScored,
		FinishedAt:  run.FinishedAt,
	}
}

// Notifier delivers notifications to one destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a notification manager.
func NewManager(notifiers ...Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends n to every notifier and joins their errors.
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
