package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"coderoom-core/internal/minio"
	"coderoom-core/internal/schema"
)

// MinioDirectory stores each room as a JSON object rooms/<roomId>.json.
//
// Create is a check-then-put and is not atomic across processes; it relies on
// every room being owned by a single process.
type MinioDirectory struct {
	client    minio.ClientInterface
	bucket    string
	validator *schema.Validator

	mu sync.Mutex // serializes read-modify-write updates within this process
}

var _ Directory = (*MinioDirectory)(nil)

func NewMinioDirectory(client minio.ClientInterface, bucket string) *MinioDirectory {
	return &MinioDirectory{
		client:    client,
		bucket:    bucket,
		validator: schema.NewRoomValidator(),
	}
}

func (d *MinioDirectory) key(roomID string) string {
	return path.Join("rooms", roomID+".json")
}

func (d *MinioDirectory) FindByRoomID(ctx context.Context, roomID string) (*Room, error) {
	data, err := d.client.GetObject(ctx, d.bucket, d.key(roomID))
	if errors.Is(err, minio.ErrObjectNotFound) {
		return nil, fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	if err := d.validator.ValidateBytes(data); err != nil {
		return nil, fmt.Errorf("room %s record: %w", roomID, err)
	}
	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return &room, nil
}

func (d *MinioDirectory) Create(ctx context.Context, room *Room) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.FindByRoomID(ctx, room.RoomID)
	if err == nil {
		return fmt.Errorf("%s: %w", room.RoomID, ErrRoomExists)
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return err
	}
	return d.put(ctx, room)
}

func (d *MinioDirectory) UpdateContentAndTimestamp(ctx context.Context, roomID, content string, modified time.Time) error {
	return d.update(ctx, roomID, func(r *Room) {
		r.Content = content
		r.LastModified = modified
	})
}

func (d *MinioDirectory) UpdateLanguage(ctx context.Context, roomID, language string) error {
	return d.update(ctx, roomID, func(r *Room) {
		r.Language = language
	})
}

func (d *MinioDirectory) update(ctx context.Context, roomID string, fn func(*Room)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, err := d.FindByRoomID(ctx, roomID)
	if err != nil {
		return err
	}
	fn(room)
	return d.put(ctx, room)
}

func (d *MinioDirectory) put(ctx context.Context, room *Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room %s: %w", room.RoomID, err)
	}
	if err := d.validator.ValidateBytes(data); err != nil {
		return fmt.Errorf("room %s record: %w", room.RoomID, err)
	}
	return d.client.PutObject(ctx, d.bucket, d.key(room.RoomID), bytes.NewReader(data), int64(len(data)), "application/json")
}
