package race

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the process-wide mapping from room id to live room. It is the
// only structure mutated from multiple entry points (connections, timers,
// disconnects), so every insert and remove is atomic with respect to the
// others. Iteration order for matchmaking is room creation order.
type Registry struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*Room
	order []uuid.UUID
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[uuid.UUID]*Room),
	}
}

// Add registers a room.
func (reg *Registry) Add(room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.rooms[room.ID]; exists {
		return
	}
	reg.rooms[room.ID] = room
	reg.order = append(reg.order, room.ID)
}

// Remove deletes a room by id.
func (reg *Registry) Remove(id uuid.UUID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.rooms[id]; !exists {
		return
	}
	delete(reg.rooms, id)
	for i, roomID := range reg.order {
		if roomID == id {
			reg.order = append(reg.order[:i], reg.order[i+1:]...)
			break
		}
	}
}

// Get looks a room up by id.
func (reg *Registry) Get(id uuid.UUID) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[id]
	return room, ok
}

// FindWaiting scans rooms in creation order for the first Waiting room in the
// given bracket with a free seat. First match wins; there is no load
// balancing across candidate rooms.
func (reg *Registry) FindWaiting(bracket Bracket) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, id := range reg.order {
		room := reg.rooms[id]
		room.mu.Lock()
		open := !room.closed && room.State == StateWaiting &&
			len(room.Participants) < maxParticipants && room.Bracket == bracket
		room.mu.Unlock()
		if open {
			return room
		}
	}
	return nil
}

// Len reports the number of live rooms.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}
