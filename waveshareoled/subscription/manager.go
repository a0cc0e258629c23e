// Package subscription keeps one delivery goroutine per connected client,
// each forwarding input events from its own broadcast receiver to the client.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/harveysanders/waveshareoled/waveshareoled/broadcast"
	"github.com/harveysanders/waveshareoled/waveshareoled/input"
)

var (
	// ErrClosed is returned by Subscribe after Close.
	ErrClosed = errors.New("subscription: manager closed")
	// ErrInvalidClientID is returned for an empty client id.
	ErrInvalidClientID = errors.New("subscription: empty client id")
)

// DeliverFunc hands one event to a client. ctx is cancelled when the
// subscription is removed; an in-flight call should give up when it is.
type DeliverFunc func(ctx context.Context, ev input.Event) error

type task struct {
	id     string
	cancel context.CancelFunc
}

// Manager maps client ids to delivery goroutines. Its map is the only record
// of which clients are subscribed.
type Manager struct {
	events *broadcast.Bus[input.Event]
	logger *slog.Logger

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
}

// NewManager returns a Manager subscribing clients to events.
func NewManager(events *broadcast.Bus[input.Event], logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		events: events,
		logger: logger,
		tasks:  make(map[string]*task),
	}
}

// Subscribe starts delivering events published from now on to clientID. An
// existing subscription for clientID is cancelled first.
func (m *Manager) Subscribe(clientID string, deliver DeliverFunc) error {
	if clientID == "" {
		return ErrInvalidClientID
	}
	if deliver == nil {
		return fmt.Errorf("subscription: client %s: nil deliver func", clientID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if old, ok := m.tasks[clientID]; ok {
		old.cancel()
		delete(m.tasks, clientID)
		m.logger.Info("subscription:replaced", slog.String("client", clientID))
	}

	rx, err := m.events.Subscribe()
	if err != nil {
		return fmt.Errorf("subscription: client %s: %w", clientID, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{id: clientID, cancel: cancel}
	m.tasks[clientID] = t
	go m.run(ctx, t, rx, deliver)

	m.logger.Info("subscription:added", slog.String("client", clientID))
	return nil
}

// Unsubscribe cancels the delivery goroutine for clientID without waiting
// for it. No delivery starts after Unsubscribe returns. It reports whether
// clientID was subscribed.
func (m *Manager) Unsubscribe(clientID string) bool {
	m.mu.Lock()
	t, ok := m.tasks[clientID]
	if ok {
		delete(m.tasks, clientID)
		t.cancel()
	}
	m.mu.Unlock()

	if ok {
		m.logger.Info("subscription:removed", slog.String("client", clientID))
	}
	return ok
}

// Subscribed reports whether clientID has an active subscription.
func (m *Manager) Subscribed(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[clientID]
	return ok
}

// Len returns the number of active subscriptions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Close cancels every subscription and rejects new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, t := range m.tasks {
		t.cancel()
		delete(m.tasks, id)
	}
}

func (m *Manager) run(ctx context.Context, t *task, rx *broadcast.Receiver[input.Event], deliver DeliverFunc) {
	defer rx.Close()

	var missed uint64
	for {
		ev, err := rx.Recv(ctx)
		if err != nil {
			if errors.Is(err, broadcast.ErrClosed) {
				m.logger.Info("subscription:events-closed", slog.String("client", t.id))
				m.forget(t)
			}
			return
		}
		if n := rx.Missed(); n > missed {
			m.logger.Warn("subscription:lagged",
				slog.String("client", t.id),
				slog.Uint64("missed", n-missed),
			)
			missed = n
		}
		// Cancellation wins over a ready event.
		if ctx.Err() != nil {
			return
		}
		if err := deliver(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("subscription:deliver-failed",
				slog.String("client", t.id),
				slog.String("event", ev.String()),
				slog.Any("reason", err),
			)
		}
	}
}

// forget drops t from the map if it is still the current task for its id.
func (m *Manager) forget(t *task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tasks[t.id] == t {
		delete(m.tasks, t.id)
		t.cancel()
	}
}
