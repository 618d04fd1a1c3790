package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig holds connection settings for the graph backend.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

// Neo4jDirectory stores each room as a (:Room {roomId}) node.
type Neo4jDirectory struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ Directory = (*Neo4jDirectory)(nil)

// NewNeo4jDirectory connects, verifies connectivity and ensures the roomId
// uniqueness constraint.
func NewNeo4jDirectory(ctx context.Context, cfg Neo4jConfig) (*Neo4jDirectory, error) {
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver creation failed: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity test failed: %w", err)
	}

	d := &Neo4jDirectory{driver: driver, database: cfg.Database}
	if _, err := d.run(ctx, `CREATE CONSTRAINT room_id_unique IF NOT EXISTS
FOR (r:Room) REQUIRE r.roomId IS UNIQUE`, nil); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j room constraint: %w", err)
	}
	return d, nil
}

func (d *Neo4jDirectory) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

func (d *Neo4jDirectory) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, d.driver, query, params,
		neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(d.database))
}

func (d *Neo4jDirectory) FindByRoomID(ctx context.Context, roomID string) (*Room, error) {
	res, err := d.run(ctx, `
MATCH (r:Room {roomId: $room_id})
RETURN r.roomId AS roomId, r.name AS name, r.language AS language,
       r.content AS content, r.participants AS participants,
       r.lastModified AS lastModified
`, map[string]any{"room_id": roomID})
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}

	rec := res.Records[0]
	room := &Room{RoomID: roomID}
	room.Name, _ = recordValue[string](rec, "name")
	room.Language, _ = recordValue[string](rec, "language")
	room.Content, _ = recordValue[string](rec, "content")
	room.LastModified, _ = recordValue[time.Time](rec, "lastModified")
	if list, ok := recordValue[[]any](rec, "participants"); ok {
		for _, p := range list {
			if s, ok := p.(string); ok {
				room.Participants = append(room.Participants, s)
			}
		}
	}
	return room, nil
}

func (d *Neo4jDirectory) Create(ctx context.Context, room *Room) error {
	participants := room.Participants
	if participants == nil {
		participants = []string{}
	}
	res, err := d.run(ctx, `
MERGE (r:Room {roomId: $room_id})
ON CREATE SET r.name = $name,
              r.language = $language,
              r.content = $content,
              r.participants = $participants,
              r.lastModified = $last_modified
`, map[string]any{
		"room_id":       room.RoomID,
		"name":          room.Name,
		"language":      room.Language,
		"content":       room.Content,
		"participants":  participants,
		"last_modified": room.LastModified,
	})
	if err != nil {
		return fmt.Errorf("create room %s: %w", room.RoomID, err)
	}
	if res.Summary.Counters().NodesCreated() == 0 {
		return fmt.Errorf("%s: %w", room.RoomID, ErrRoomExists)
	}
	return nil
}

func (d *Neo4jDirectory) UpdateContentAndTimestamp(ctx context.Context, roomID, content string, modified time.Time) error {
	return d.update(ctx, roomID, `
MATCH (r:Room {roomId: $room_id})
SET r.content = $content, r.lastModified = $last_modified
RETURN r.roomId
`, map[string]any{"room_id": roomID, "content": content, "last_modified": modified})
}

func (d *Neo4jDirectory) UpdateLanguage(ctx context.Context, roomID, language string) error {
	return d.update(ctx, roomID, `
MATCH (r:Room {roomId: $room_id})
SET r.language = $language
RETURN r.roomId
`, map[string]any{"room_id": roomID, "language": language})
}

func (d *Neo4jDirectory) update(ctx context.Context, roomID, query string, params map[string]any) error {
	res, err := d.run(ctx, query, params)
	if err != nil {
		return fmt.Errorf("update room %s: %w", roomID, err)
	}
	if len(res.Records) == 0 {
		return fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	return nil
}

func recordValue[T any](rec *neo4j.Record, key string) (T, bool) {
	var zero T
	raw, ok := rec.Get(key)
	if !ok || raw == nil {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}
