package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quizroom/internal/domain"
	"quizroom/internal/transport"
)

// RoomRegistry maps room codes to host URLs within one process.
type RoomRegistry struct {
	ttl   time.Duration
	clock func() time.Time

	mu    sync.RWMutex
	rooms map[string]roomEntry
}

type roomEntry struct {
	hostURL   string
	expiresAt time.Time
}

// NewRoomRegistry returns a registry whose entries expire after ttl; zero keeps
// them until released.
func NewRoomRegistry(ttl time.Duration) *RoomRegistry {
	return &RoomRegistry{
		ttl:   ttl,
		clock: time.Now,
		rooms: make(map[string]roomEntry),
	}
}

func (r *RoomRegistry) Register(_ context.Context, roomCode, hostURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.rooms[roomCode]; ok && r.live(e) {
		return fmt.Errorf("register %s: %w", roomCode, transport.ErrAddressInUse)
	}
	e := roomEntry{hostURL: hostURL}
	if r.ttl > 0 {
		e.expiresAt = r.clock().Add(r.ttl)
	}
	r.rooms[roomCode] = e
	return nil
}

func (r *RoomRegistry) Resolve(_ context.Context, roomCode string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[roomCode]
	if !ok || !r.live(e) {
		return "", domain.ErrRoomNotFound
	}
	return e.hostURL, nil
}

func (r *RoomRegistry) Release(_ context.Context, roomCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomCode)
	return nil
}

func (r *RoomRegistry) live(e roomEntry) bool {
	return e.expiresAt.IsZero() || e.expiresAt.After(r.clock())
}
