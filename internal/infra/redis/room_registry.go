package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quizroom/internal/domain"
	"quizroom/internal/transport"
)

// RoomRegistry publishes which host serves a room code so participants on any
// machine can resolve it. Entries are plain strings: SET room:{code} {hostURL} NX EX ttl
type RoomRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomRegistry(client *redis.Client, ttl time.Duration) *RoomRegistry {
	return &RoomRegistry{client: client, ttl: ttl}
}

func (r *RoomRegistry) Register(ctx context.Context, roomCode, hostURL string) error {
	ok, err := r.client.SetNX(ctx, r.key(roomCode), hostURL, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("register room %s: %w", roomCode, err)
	}
	if !ok {
		return fmt.Errorf("register room %s: %w", roomCode, transport.ErrAddressInUse)
	}
	return nil
}

func (r *RoomRegistry) Resolve(ctx context.Context, roomCode string) (string, error) {
	url, err := r.client.Get(ctx, r.key(roomCode)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrRoomNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve room %s: %w", roomCode, err)
	}
	return url, nil
}

func (r *RoomRegistry) Release(ctx context.Context, roomCode string) error {
	return r.client.Del(ctx, r.key(roomCode)).Err()
}

func (r *RoomRegistry) key(roomCode string) string {
	return "room:" + roomCode
}
