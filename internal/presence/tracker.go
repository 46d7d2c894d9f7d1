// internal/presence/tracker.go
//
// Package presence tracks which users currently hold live socket
// connections. The two maps below are the only in-process shared mutable
// state in the pipeline; every mutation is O(1) and runs under one mutex.
package presence

import (
	"context"
	"sync"
	"time"

	"ezlab-notifier/internal/common/logger"
	"ezlab-notifier/internal/common/metrics"
	"ezlab-notifier/internal/models"
)

// Conn is one live connection handle. The gateway's websocket client
// implements it.
type Conn interface {
	ID() string
	Emit(event string, payload interface{}) error
}

// ConnectionStore persists the per-user lastConnectedAt/lastDisconnectedAt
// pair backing the reconnection replay window.
type ConnectionStore interface {
	TouchConnected(ctx context.Context, userID string, at time.Time) error
	TouchDisconnected(ctx context.Context, userID string, at time.Time) error
	LastDisconnectedAt(ctx context.Context, userID string) (*time.Time, error)
}

// RoleDirectory resolves the users holding a role, for role broadcasts.
type RoleDirectory interface {
	FindUsersByRole(ctx context.Context, role models.Role) ([]models.UserRef, error)
}

// Tracker is the in-memory bidirectional user <-> connection mapping.
// Constructed once per process and passed explicitly to the router and
// the connection lifecycle hooks.
type Tracker struct {
	mu        sync.Mutex
	userConns map[string]map[string]Conn // userID -> connID -> conn
	connUser  map[string]string          // connID -> userID

	store ConnectionStore
	roles RoleDirectory
	log   logger.Logger
}

func NewTracker(store ConnectionStore, roles RoleDirectory, log logger.Logger) *Tracker {
	return &Tracker{
		userConns: make(map[string]map[string]Conn),
		connUser:  make(map[string]string),
		store:     store,
		roles:     roles,
		log:       log.WithFields(map[string]interface{}{"component": "presence"}),
	}
}

// AddConnection registers a connection for a user. On the user's first
// connection the durable lastConnectedAt timestamp is persisted.
func (t *Tracker) AddConnection(ctx context.Context, userID string, c Conn) error {
	t.mu.Lock()
	set := t.userConns[userID]
	first := set == nil
	if first {
		set = make(map[string]Conn)
		t.userConns[userID] = set
	}
	set[c.ID()] = c
	t.connUser[c.ID()] = userID
	online := len(t.userConns)
	t.mu.Unlock()

	metrics.OnlineUsers.Set(float64(online))

	if first {
		if err := t.store.TouchConnected(ctx, userID, time.Now().UTC()); err != nil {
			t.log.Error("failed to persist lastConnectedAt", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
			return err
		}
	}

	t.log.Debug("connection added", map[string]interface{}{
		"userId": userID,
		"connId": c.ID(),
	})
	return nil
}

// RemoveConnection drops a connection by handle id. When the owning user's
// handle set becomes empty the user entry is removed and lastDisconnectedAt
// is persisted.
func (t *Tracker) RemoveConnection(ctx context.Context, connID string) error {
	t.mu.Lock()
	userID, ok := t.connUser[connID]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	delete(t.connUser, connID)

	last := false
	if set := t.userConns[userID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(t.userConns, userID)
			last = true
		}
	}
	online := len(t.userConns)
	t.mu.Unlock()

	metrics.OnlineUsers.Set(float64(online))

	if last {
		if err := t.store.TouchDisconnected(ctx, userID, time.Now().UTC()); err != nil {
			t.log.Error("failed to persist lastDisconnectedAt", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
			return err
		}
	}

	t.log.Debug("connection removed", map[string]interface{}{
		"userId": userID,
		"connId": connID,
	})
	return nil
}

// IsOnline reports whether the user has at least one live connection.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.userConns[userID]) > 0
}

// UserConnIDs returns the connection handle ids for a user.
func (t *Tracker) UserConnIDs(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.userConns[userID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// LastDisconnectedAt reads the durable disconnect timestamp for a user.
func (t *Tracker) LastDisconnectedAt(ctx context.Context, userID string) (*time.Time, error) {
	return t.store.LastDisconnectedAt(ctx, userID)
}

// EmitToUser fans an event out to every connection of a user. Returns
// false if the user has no connections; the caller then falls back to
// push/email.
func (t *Tracker) EmitToUser(userID, event string, payload interface{}) bool {
	t.mu.Lock()
	set := t.userConns[userID]
	conns := make([]Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	if len(conns) == 0 {
		return false
	}
	for _, c := range conns {
		if err := c.Emit(event, payload); err != nil {
			t.log.Warn("emit failed", map[string]interface{}{
				"userId": userID,
				"connId": c.ID(),
				"event":  event,
				"error":  err,
			})
		}
	}
	return true
}

// EmitToRole sends an event to every online user holding the role and
// returns the number of users reached.
func (t *Tracker) EmitToRole(ctx context.Context, role models.Role, event string, payload interface{}) (int, error) {
	users, err := t.roles.FindUsersByRole(ctx, role)
	if err != nil {
		return 0, err
	}

	reached := 0
	for _, u := range users {
		if t.EmitToUser(u.ID, event, payload) {
			reached++
		}
	}
	return reached, nil
}

// EmitToAll broadcasts an event to every connected user.
func (t *Tracker) EmitToAll(event string, payload interface{}) {
	t.mu.Lock()
	conns := make([]Conn, 0, len(t.connUser))
	for _, set := range t.userConns {
		for _, c := range set {
			conns = append(conns, c)
		}
	}
	t.mu.Unlock()

	for _, c := range conns {
		_ = c.Emit(event, payload)
	}
}

// Stats returns the current online-user and connection counts.
func (t *Tracker) Stats() (onlineUsers, totalConnections int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.userConns), len(t.connUser)
}
