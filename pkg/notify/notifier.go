// Package notify carries best-effort notification fan-out out of the
// orchestrator. Delivery is fire-and-forget: the caller logs a failed enqueue
// and moves on, it never retries and never fails the surrounding saga.
package notify

import (
	"context"
	"sync"
)

// Notification is one message addressed to a set of recipients.
type Notification struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

// Notifier enqueues a notification for asynchronous delivery.
type Notifier interface {
	Enqueue(ctx context.Context, n Notification) error
}

// MemoryNotifier records notifications in-process; used by tests.
type MemoryNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

// NewMemoryNotifier initializes an empty recorder.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

// Fail makes subsequent Enqueue calls return err (nil restores normal behavior).
func (m *MemoryNotifier) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryNotifier) Enqueue(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns a copy of recorded notifications.
func (m *MemoryNotifier) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]Notification, len(m.sent))
	copy(res, m.sent)
	return res
}
