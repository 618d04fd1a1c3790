package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createRoomsTable = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id       TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	language      TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	participants  TEXT[] NOT NULL DEFAULT '{}',
	last_modified TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresDirectory stores rooms in a single "rooms" table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

var _ Directory = (*PostgresDirectory)(nil)

// NewPostgresDirectory connects to databaseURL and ensures the table exists.
func NewPostgresDirectory(ctx context.Context, databaseURL string) (*PostgresDirectory, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createRoomsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create rooms table: %w", err)
	}
	return &PostgresDirectory{pool: pool}, nil
}

func (d *PostgresDirectory) Close() {
	d.pool.Close()
}

func (d *PostgresDirectory) FindByRoomID(ctx context.Context, roomID string) (*Room, error) {
	var r Room
	err := d.pool.QueryRow(ctx,
		`SELECT room_id, name, language, content, participants, last_modified
		   FROM rooms WHERE room_id = $1`, roomID,
	).Scan(&r.RoomID, &r.Name, &r.Language, &r.Content, &r.Participants, &r.LastModified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	return &r, nil
}

func (d *PostgresDirectory) Create(ctx context.Context, room *Room) error {
	participants := room.Participants
	if participants == nil {
		participants = []string{}
	}
	tag, err := d.pool.Exec(ctx,
		`INSERT INTO rooms (room_id, name, language, content, participants, last_modified)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (room_id) DO NOTHING`,
		room.RoomID, room.Name, room.Language, room.Content, participants, room.LastModified)
	if err != nil {
		return fmt.Errorf("create room %s: %w", room.RoomID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", room.RoomID, ErrRoomExists)
	}
	return nil
}

func (d *PostgresDirectory) UpdateContentAndTimestamp(ctx context.Context, roomID, content string, modified time.Time) error {
	return d.exec(ctx, roomID,
		`UPDATE rooms SET content = $2, last_modified = $3 WHERE room_id = $1`,
		roomID, content, modified)
}

func (d *PostgresDirectory) UpdateLanguage(ctx context.Context, roomID, language string) error {
	return d.exec(ctx, roomID,
		`UPDATE rooms SET language = $2 WHERE room_id = $1`,
		roomID, language)
}

func (d *PostgresDirectory) exec(ctx context.Context, roomID, sql string, args ...any) error {
	tag, err := d.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update room %s: %w", roomID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	return nil
}
