package relay

import (
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

func TestConnManager_Register(t *testing.T) {
	m := NewConnManager()
	conn := &websocket.Conn{}

	m.Register("user123", "tab-1", conn)

	if active := m.GetActive("user123", "tab-1"); active != conn {
		t.Errorf("Expected connection %v, got %v", conn, active)
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}
}

func TestConnManager_Unregister(t *testing.T) {
	m := NewConnManager()
	conn := &websocket.Conn{}

	m.Register("user123", "tab-1", conn)
	m.Unregister("user123", "tab-1", conn)

	if active := m.GetActive("user123", "tab-1"); active != nil {
		t.Errorf("Expected nil connection, got %v", active)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
}

func TestConnManager_UnregisterKeepsOtherTabs(t *testing.T) {
	m := NewConnManager()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	m.Register("user123", "tab-1", conn1)
	m.Register("user123", "tab-2", conn2)
	m.Unregister("user123", "tab-1", conn1)

	if active := m.GetActive("user123", "tab-2"); active != conn2 {
		t.Errorf("Expected connection %v, got %v", conn2, active)
	}
}

func TestConnManager_UnregisterStaleConnIgnored(t *testing.T) {
	m := NewConnManager()
	current := &websocket.Conn{}

	m.Register("user123", "tab-1", current)
	m.Unregister("user123", "tab-1", &websocket.Conn{})

	if active := m.GetActive("user123", "tab-1"); active != current {
		t.Errorf("stale unregister removed the current connection")
	}
}

func TestConnManager_ConcurrentAccess(t *testing.T) {
	m := NewConnManager()
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 1000 {
			m.Register("concurrentUser", "tab-"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := range 1000 {
			m.GetActive("concurrentUser", "tab-"+strconv.Itoa(i))
		}
	}()
	wg.Wait()

	if m.Count() != 1000 {
		t.Errorf("Count() = %d, want 1000", m.Count())
	}
}
