package database

import (
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// AllTables is passed to the change callback when notifications may have
// been missed (the listener reconnected) and every table must be reloaded.
const AllTables = ""

// Refresher reloads collections when PostgreSQL reports a change.
// It uses LISTEN/NOTIFY; the notification payload is the changed table name.
type Refresher struct {
	mu       sync.Mutex
	connStr  string
	channel  string
	onChange func(table string)
	logger   *zap.Logger
	listener *pq.Listener

	reconnected chan struct{}
	stopCh      chan struct{}
	stopped     bool
}

// NewRefresher creates a Refresher. onChange is called from the listener
// goroutine; it must do its own locking.
func NewRefresher(connStr, channel string, onChange func(table string), logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		connStr:  connStr,
		channel:  channel,
		onChange: onChange,
		logger:   logger,

		reconnected: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
}

// Start begins listening on the configured channel.
func (r *Refresher) Start() error {
	r.listener = pq.NewListener(r.connStr, 10*time.Second, time.Minute, r.handleEvent)
	if err := r.listener.Listen(r.channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.channel, err)
	}

	go r.handleNotifications(r.listener.Notify, r.listener.Ping)

	r.logger.Info("refresher listening", zap.String("channel", r.channel))
	return nil
}

// Stop stops the Refresher and closes the listener.
func (r *Refresher) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.stopCh)
	r.mu.Unlock()

	if r.listener != nil {
		return r.listener.Close()
	}
	return nil
}

// handleEvent is the listener's event callback. It runs on the listener's
// connection goroutine, so a reconnect only queues the full reload.
func (r *Refresher) handleEvent(ev pq.ListenerEventType, err error) {
	if err != nil {
		r.logger.Warn("refresher listener error", zap.Error(err))
	}
	if ev != pq.ListenerEventReconnected {
		return
	}
	select {
	case r.reconnected <- struct{}{}:
	default:
	}
}

// handleNotifications processes incoming NOTIFY events until Stop is called
// or the listener closes notify.
func (r *Refresher) handleNotifications(notify <-chan *pq.Notification, ping func() error) {
	for {
		select {
		case <-r.stopCh:
			return
		case n, ok := <-notify:
			if !ok {
				return
			}
			r.dispatch(n)
		case <-r.reconnected:
			// Notifications sent while disconnected are lost
			r.logger.Info("refresher reconnected, reloading all tables")
			r.onChange(AllTables)
		case <-time.After(90 * time.Second):
			// Periodic ping to keep connection alive
			go func() {
				if err := ping(); err != nil {
					r.logger.Warn("refresher ping error", zap.Error(err))
				}
			}()
		}
	}
}

// dispatch turns one notification into a change callback.
// The nil notification pq sends after a reconnect is handled by handleEvent.
func (r *Refresher) dispatch(n *pq.Notification) {
	if n == nil {
		return
	}

	r.logger.Debug("table changed", zap.String("table", n.Extra))
	r.onChange(n.Extra)
}
