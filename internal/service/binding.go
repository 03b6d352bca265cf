package service

import (
	"fmt"

	"lxmchat/internal/container"
	"lxmchat/internal/models"
)

// BindingManager maps room identifiers to their configured container
// bindings. Built once at startup from configuration; read-only afterwards.
type BindingManager struct {
	byRoom map[string]container.Binding
	order  []string
}

// NewBindingManager validates the configured rooms and builds the lookup.
// Duplicate room identifiers are a configuration error.
func NewBindingManager(rooms []models.RoomBindingConfig) (*BindingManager, error) {
	if len(rooms) == 0 {
		return nil, fmt.Errorf("at least one room must be configured")
	}

	m := &BindingManager{
		byRoom: make(map[string]container.Binding, len(rooms)),
		order:  make([]string, 0, len(rooms)),
	}
	for i, room := range rooms {
		if room.RoomID == "" {
			return nil, fmt.Errorf("room at index %d has an empty roomId", i)
		}
		if _, exists := m.byRoom[room.RoomID]; exists {
			return nil, fmt.Errorf("duplicate room configuration: %s", room.RoomID)
		}
		m.byRoom[room.RoomID] = container.BindingFromConfig(room)
		m.order = append(m.order, room.RoomID)
	}
	return m, nil
}

// BindingFor returns the container binding for roomID.
func (m *BindingManager) BindingFor(roomID string) (container.Binding, bool) {
	b, ok := m.byRoom[roomID]
	return b, ok
}

// RoomIDs returns the configured rooms in configuration order.
func (m *BindingManager) RoomIDs() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *BindingManager) Count() int {
	return len(m.byRoom)
}
