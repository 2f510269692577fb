package relay

import (
	"context"
	"sync"

	"github.com/mossy-p/webrtc-broadcast/internal/models"
)

// Directory mirrors who is present in each room so it can be queried
// outside the hub, possibly from another process.
type Directory interface {
	SetBroadcaster(ctx context.Context, room string, p models.Participant) error
	RemoveBroadcaster(ctx context.Context, room, id string) error
	AddViewer(ctx context.Context, room string, p models.Participant) error
	RemoveViewer(ctx context.Context, room, id string) error
	// Room returns ErrRoomNotFound for a room nobody is in.
	Room(ctx context.Context, room string) (models.RoomInfo, error)
	DeleteRoom(ctx context.Context, room string) error
}

type memoryRoom struct {
	broadcaster *models.Participant
	viewers     map[string]models.Participant
}

// MemoryDirectory keeps presence in process memory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	rooms map[string]*memoryRoom
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{rooms: make(map[string]*memoryRoom)}
}

var _ Directory = (*MemoryDirectory)(nil)

func (d *MemoryDirectory) room(name string) *memoryRoom {
	r, ok := d.rooms[name]
	if !ok {
		r = &memoryRoom{viewers: make(map[string]models.Participant)}
		d.rooms[name] = r
	}
	return r
}

func (d *MemoryDirectory) prune(name string) {
	if r, ok := d.rooms[name]; ok && r.broadcaster == nil && len(r.viewers) == 0 {
		delete(d.rooms, name)
	}
}

func (d *MemoryDirectory) SetBroadcaster(_ context.Context, room string, p models.Participant) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.room(room).broadcaster = &p
	return nil
}

func (d *MemoryDirectory) RemoveBroadcaster(_ context.Context, room, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.rooms[room]; ok && r.broadcaster != nil && r.broadcaster.ID == id {
		r.broadcaster = nil
		d.prune(room)
	}
	return nil
}

func (d *MemoryDirectory) AddViewer(_ context.Context, room string, p models.Participant) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.room(room).viewers[p.ID] = p
	return nil
}

func (d *MemoryDirectory) RemoveViewer(_ context.Context, room, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.rooms[room]; ok {
		delete(r.viewers, id)
		d.prune(room)
	}
	return nil
}

func (d *MemoryDirectory) Room(_ context.Context, room string) (models.RoomInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[room]
	if !ok {
		return models.RoomInfo{}, ErrRoomNotFound
	}
	info := models.RoomInfo{Room: room, ViewerCount: len(r.viewers)}
	if r.broadcaster != nil {
		b := *r.broadcaster
		info.Broadcaster = &b
	}
	return info, nil
}

func (d *MemoryDirectory) DeleteRoom(_ context.Context, room string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rooms, room)
	return nil
}
