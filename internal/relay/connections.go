package relay

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnManager tracks the open chat WebSocket of each browser tab. A tab that
// reconnects replaces its previous connection.
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewConnManager creates an empty connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a user and tab.
func (m *ConnManager) GetActive(userID, tabID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tabs, ok := m.active[userID]; ok {
		return tabs[tabID]
	}
	return nil
}

// Register adds a connection, closing any previous one for the same tab.
func (m *ConnManager) Register(userID, tabID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := m.active[userID][tabID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "chat replaced")
	}

	m.active[userID][tabID] = conn
	slog.Info("Chat connection registered", "user_id", userID, "tab_id", tabID)
}

// Unregister removes conn if it is still the tab's current connection.
func (m *ConnManager) Unregister(userID, tabID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tabs, ok := m.active[userID]; ok {
		if current, exists := tabs[tabID]; exists && current == conn {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Chat connection unregistered", "user_id", userID, "tab_id", tabID)
		}
	}
}

// CloseAll terminates every open connection.
func (m *ConnManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, tabs := range m.active {
		for _, conn := range tabs {
			_ = conn.Close(websocket.StatusGoingAway, "relay shutting down")
		}
		delete(m.active, userID)
	}
}

// Count returns the number of open connections.
func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, tabs := range m.active {
		n += len(tabs)
	}
	return n
}
