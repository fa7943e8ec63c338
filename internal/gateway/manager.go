package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/event"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/presence"
)

// Manager tracks this node's connections and the per-user rooms they belong to.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	rooms       map[int64]map[string]*Connection // userID -> connID -> Connection
	presence    presence.Tracker
	logger      *slog.Logger
}

func NewManager(tracker presence.Tracker, logger *slog.Logger) *Manager {
	if tracker == nil {
		tracker = presence.NewLocal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		connections: make(map[string]*Connection),
		rooms:       make(map[int64]map[string]*Connection),
		presence:    tracker,
		logger:      logger,
	}
}

// Join adds conn to its user's room and marks the user online.
func (m *Manager) Join(ctx context.Context, conn *Connection) {
	m.mu.Lock()
	m.connections[conn.ID()] = conn
	room, ok := m.rooms[conn.UserID()]
	if !ok {
		room = make(map[string]*Connection)
		m.rooms[conn.UserID()] = room
	}
	room[conn.ID()] = conn
	m.mu.Unlock()

	first, err := m.presence.Connect(ctx, conn.UserID(), conn.ID())
	if err != nil {
		m.logger.Warn("Failed to mark user online", "user_id", conn.UserID(), "error", err)
		return
	}
	if first {
		m.logger.Info("User online", "user_id", conn.UserID())
	}
}

// Leave removes conn. Returns false when conn was already gone.
func (m *Manager) Leave(ctx context.Context, conn *Connection) bool {
	m.mu.Lock()
	if _, ok := m.connections[conn.ID()]; !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.connections, conn.ID())
	if room, ok := m.rooms[conn.UserID()]; ok {
		delete(room, conn.ID())
		if len(room) == 0 {
			delete(m.rooms, conn.UserID())
		}
	}
	m.mu.Unlock()

	last, err := m.presence.Disconnect(ctx, conn.UserID(), conn.ID())
	if err != nil {
		m.logger.Warn("Failed to mark user offline", "user_id", conn.UserID(), "error", err)
		return true
	}
	if last {
		m.logger.Info("User offline", "user_id", conn.UserID())
	}
	return true
}

// Room returns the connections of userID on this node.
func (m *Manager) Room(userID int64) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room := m.rooms[userID]
	conns := make([]*Connection, 0, len(room))
	for _, conn := range room {
		conns = append(conns, conn)
	}
	return conns
}

// Deliver writes an encoded frame to every local connection of userID.
func (m *Manager) Deliver(userID int64, payload []byte) int {
	delivered := 0
	for _, conn := range m.Room(userID) {
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// PublishToUser implements event.Publisher for a single node.
func (m *Manager) PublishToUser(_ context.Context, userID int64, evt event.Event) error {
	payload, err := evt.Encode()
	if err != nil {
		return err
	}
	m.Deliver(userID, payload)
	return nil
}

func (m *Manager) Connections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	return conns
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// CloseAll disconnects every client, used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	for _, conn := range m.Connections() {
		conn.Close(CloseGoingAway, "server shutdown")
		m.Leave(ctx, conn)
	}
}
