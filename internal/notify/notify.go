// Package notify carries user-facing outcome messages to wherever they are displayed.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

type Notification struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	TxHash  string    `json:"txHash,omitempty"`
	Link    string    `json:"link,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier receives notifications. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// New stamps a notification with an ID and time.
func New(kind Kind, message string) Notification {
	return Notification{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: message,
		At:      time.Now().UTC(),
	}
}

// Multi fans a notification out to every sink in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(ctx, n)
		}
	}
}

// LogSink writes notifications to a logrus entry.
type LogSink struct {
	Log *logrus.Entry
}

func (s LogSink) Notify(_ context.Context, n Notification) {
	entry := s.Log.WithFields(logrus.Fields{"kind": n.Kind, "id": n.ID})
	if n.TxHash != "" {
		entry = entry.WithField("tx", n.TxHash)
	}
	if n.Kind == KindError {
		entry.Warn(n.Message)
		return
	}
	entry.Info(n.Message)
}

// Feed keeps the most recent notifications in memory for polling readers.
type Feed struct {
	mu    sync.RWMutex
	items []Notification
	limit int
}

const defaultFeedLimit = 100

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	return &Feed{limit: limit}
}

func (f *Feed) Notify(_ context.Context, n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	if over := len(f.items) - f.limit; over > 0 {
		f.items = append([]Notification(nil), f.items[over:]...)
	}
}

// Since returns notifications after the one with the given ID, oldest first.
// An empty or unknown ID returns everything retained.
func (f *Feed) Since(id string) []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	start := 0
	if id != "" {
		for i, n := range f.items {
			if n.ID == id {
				start = i + 1
				break
			}
		}
	}
	return append([]Notification(nil), f.items[start:]...)
}
