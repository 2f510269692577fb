// Package redis keeps the relay's room directory in Redis so room presence
// can be read by other relay instances and tools.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mossy-p/webrtc-broadcast/config"
	"github.com/mossy-p/webrtc-broadcast/internal/models"
	"github.com/mossy-p/webrtc-broadcast/internal/relay"
	"github.com/redis/go-redis/v9"
)

const roomTTL = 24 * time.Hour

// Directory stores each room as two keys: room:<name>:broadcaster holds the
// broadcaster as JSON and room:<name>:viewers hashes viewer id to JSON.
type Directory struct {
	client *redis.Client
}

var _ relay.Directory = (*Directory)(nil)

// Connect opens a client for cfg and checks it with a ping.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Directory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewDirectory(client), nil
}

func NewDirectory(client *redis.Client) *Directory {
	return &Directory{client: client}
}

func (d *Directory) Close() error {
	return d.client.Close()
}

func broadcasterKey(room string) string { return "room:" + room + ":broadcaster" }

func viewersKey(room string) string { return "room:" + room + ":viewers" }

func (d *Directory) SetBroadcaster(ctx context.Context, room string, p models.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return d.client.Set(ctx, broadcasterKey(room), data, roomTTL).Err()
}

// RemoveBroadcaster deletes the broadcaster entry only while it still
// belongs to id.
func (d *Directory) RemoveBroadcaster(ctx context.Context, room, id string) error {
	key := broadcasterKey(room)
	return d.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var current models.Participant
		if err := json.Unmarshal(data, &current); err != nil {
			return err
		}
		if current.ID != id {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
}

func (d *Directory) AddViewer(ctx context.Context, room string, p models.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, viewersKey(room), p.ID, data)
		pipe.Expire(ctx, viewersKey(room), roomTTL)
		return nil
	})
	return err
}

func (d *Directory) RemoveViewer(ctx context.Context, room, id string) error {
	return d.client.HDel(ctx, viewersKey(room), id).Err()
}

func (d *Directory) Room(ctx context.Context, room string) (models.RoomInfo, error) {
	var (
		broadcaster *redis.StringCmd
		viewers     *redis.IntCmd
	)
	_, err := d.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		broadcaster = pipe.Get(ctx, broadcasterKey(room))
		viewers = pipe.HLen(ctx, viewersKey(room))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.RoomInfo{}, err
	}

	info := models.RoomInfo{Room: room, ViewerCount: int(viewers.Val())}

	data, err := broadcaster.Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return models.RoomInfo{}, err
	default:
		var p models.Participant
		if err := json.Unmarshal(data, &p); err != nil {
			return models.RoomInfo{}, fmt.Errorf("failed to parse broadcaster of %s: %w", room, err)
		}
		info.Broadcaster = &p
	}

	if info.Broadcaster == nil && info.ViewerCount == 0 {
		return models.RoomInfo{}, relay.ErrRoomNotFound
	}
	return info, nil
}

func (d *Directory) DeleteRoom(ctx context.Context, room string) error {
	return d.client.Del(ctx, broadcasterKey(room), viewersKey(room)).Err()
}
