package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	stdSync "sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"

	"github.com/c0deZ3R0/go-sync-core/logging"
)

// changeChannel is the NOTIFY channel the records trigger publishes on.
const changeChannel = "sync_core_changes"

// ChangePayload is the notification emitted when a record changes.
type ChangePayload struct {
	Collection string    `json:"collection"`
	EntityID   string    `json:"entity_id"`
	Op         string    `json:"op"`
	ChangedAt  time.Time `json:"changed_at"`
}

// ChangeHandler receives one record-change notification.
type ChangeHandler func(payload ChangePayload)

// DataChangeNotifier is the scheduler-facing hook a listener can drive.
// *scheduler.Scheduler satisfies it.
type DataChangeNotifier interface {
	NotifyDataChange(collection string)
}

// ChangeListener bridges PostgreSQL LISTEN/NOTIFY to the scheduler so that
// realtime mode reacts to writes made by other processes sharing the
// database.
type ChangeListener struct {
	listener *pq.Listener
	logger   *logging.Logger

	mu       stdSync.RWMutex
	handlers []ChangeHandler

	closed int32
	done   chan struct{}
}

// NewChangeListener creates a listener over the given connection string.
func NewChangeListener(connectionString string, reconnectInterval, notificationTimeout time.Duration) (*ChangeListener, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("connection string cannot be empty")
	}
	if reconnectInterval == 0 {
		reconnectInterval = 5 * time.Second
	}
	if notificationTimeout == 0 {
		notificationTimeout = 30 * time.Second
	}

	cl := &ChangeListener{
		logger: logging.WithComponent(logging.Component("postgres-listener")),
		done:   make(chan struct{}),
	}
	cl.listener = pq.NewListener(connectionString, reconnectInterval, notificationTimeout, cl.eventCallback)
	return cl, nil
}

func (cl *ChangeListener) eventCallback(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventConnected:
		cl.logger.Info("connected for LISTEN/NOTIFY")
	case pq.ListenerEventDisconnected:
		cl.logger.Warn("disconnected", slog.Any("error", err))
	case pq.ListenerEventReconnected:
		cl.logger.Info("reconnected")
		if err := cl.listener.Listen(changeChannel); err != nil && err != pq.ErrChannelAlreadyOpen {
			cl.logger.Error("re-listen failed", slog.Any("error", err))
		}
	case pq.ListenerEventConnectionAttemptFailed:
		cl.logger.Warn("connection attempt failed", slog.Any("error", err))
	}
}

// OnChange registers a handler for record-change notifications.
func (cl *ChangeListener) OnChange(handler ChangeHandler) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.handlers = append(cl.handlers, handler)
}

// ForwardTo wires the listener to a scheduler: every change notification
// becomes a data-change signal for its collection.
func (cl *ChangeListener) ForwardTo(notifier DataChangeNotifier) {
	cl.OnChange(func(payload ChangePayload) {
		notifier.NotifyDataChange(payload.Collection)
	})
}

// Start subscribes to the change channel and begins the listen loop.
func (cl *ChangeListener) Start(ctx context.Context) error {
	if atomic.LoadInt32(&cl.closed) == 1 {
		return fmt.Errorf("listener is closed")
	}
	if err := cl.listener.Listen(changeChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", changeChannel, err)
	}
	go cl.listenLoop(ctx)
	return nil
}

func (cl *ChangeListener) listenLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cl.done:
			return
		case notification := <-cl.listener.Notify:
			if notification != nil {
				cl.handleNotification(notification)
			}
		case <-time.After(90 * time.Second):
			// Keep the connection alive across idle periods.
			go func() {
				if err := cl.listener.Ping(); err != nil {
					cl.logger.Warn("ping failed", slog.Any("error", err))
				}
			}()
		}
	}
}

func (cl *ChangeListener) handleNotification(notification *pq.Notification) {
	var payload ChangePayload
	if err := json.Unmarshal([]byte(notification.Extra), &payload); err != nil {
		cl.logger.Warn("undecodable change notification", slog.Any("error", err))
		return
	}

	cl.mu.RLock()
	handlers := make([]ChangeHandler, len(cl.handlers))
	copy(handlers, cl.handlers)
	cl.mu.RUnlock()

	for _, handler := range handlers {
		handler(payload)
	}
}

// IsConnected reports whether the underlying connection is alive.
func (cl *ChangeListener) IsConnected() bool {
	if atomic.LoadInt32(&cl.closed) == 1 {
		return false
	}
	return cl.listener.Ping() == nil
}

// Close shuts the listener down.
func (cl *ChangeListener) Close() error {
	if !atomic.CompareAndSwapInt32(&cl.closed, 0, 1) {
		return nil
	}
	close(cl.done)
	return cl.listener.Close()
}
