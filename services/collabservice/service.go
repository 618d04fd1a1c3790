// Package collabservice exposes the room editing core over websockets.
//
// All traffic for one room must reach the same process: edits are ordered by
// arrival at that room's single session actor, so the load balancer in front
// of this service has to route by room id (sticky routing).
package collabservice

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"coderoom-core/internal/config"
	"coderoom-core/internal/directory"
	"coderoom-core/internal/eventbus"
	"coderoom-core/internal/minio"
	"coderoom-core/internal/persistence"
	"coderoom-core/internal/schema"
	"coderoom-core/internal/session"
)

// Directory backends.
const (
	BackendMinIO    = "minio"
	BackendPostgres = "postgres"
	BackendNeo4j    = "neo4j"
	BackendMemory   = "memory"
)

type Config struct {
	HTTPAddr         string
	KafkaBrokers     []string // empty disables room events
	DirectoryBackend string
	MinIO            minio.Config // Endpoint empty disables MinIO
	Bucket           string
	PostgresURL      string
	Neo4j            directory.Neo4jConfig
	FlushInterval    time.Duration
	PersistTimeout   time.Duration
	LogCapacity      int
	TemplateRefresh  time.Duration
	OutboxSize       int
	QueryIdentity    bool // accept user_id/name/avatar query parameters; development only
}

type Service struct {
	cfg        Config
	instanceID string

	registry    *session.Registry
	hub         *Hub
	activity    *ActivityFeed
	httpServer  *HTTPServer
	templates   *config.Store
	opValidator *schema.Validator

	bus      *eventbus.EventBus // nil without brokers
	closeDir func()
}

// NewService connects the configured directory backend and assembles the
// registry and transport.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = persistence.DefaultFlushInterval
	}
	if cfg.PersistTimeout == 0 {
		cfg.PersistTimeout = persistence.DefaultTimeout
	}
	if cfg.TemplateRefresh == 0 {
		cfg.TemplateRefresh = 2 * time.Minute
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "coderoom"
	}

	var objects minio.ClientInterface
	if cfg.MinIO.Endpoint != "" {
		client, err := minio.NewClient(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		objects = client
	}

	dir, closeDir, err := openDirectory(ctx, cfg, objects)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:         cfg,
		instanceID:  uuid.NewString(),
		hub:         NewHub(cfg.OutboxSize),
		activity:    NewActivityFeed(),
		templates:   config.NewStore(objects, cfg.Bucket),
		opValidator: schema.NewOperationValidator(),
		closeDir:    closeDir,
	}

	var events eventbus.Publisher = eventbus.Discard
	if len(cfg.KafkaBrokers) > 0 {
		s.bus = eventbus.NewEventBus(cfg.KafkaBrokers)
		events = s.bus
	}

	s.registry = session.NewRegistry(session.Config{
		Bridge: persistence.NewBridge(dir,
			persistence.WithInterval(cfg.FlushInterval),
			persistence.WithTimeout(cfg.PersistTimeout)),
		Templates:   s.templates,
		Broadcaster: s.hub,
		Events:      events,
		LogCapacity: cfg.LogCapacity,
		Source:      "collab-server",
	})
	s.httpServer = NewHTTPServer(cfg.HTTPAddr)
	s.httpServer.RegisterRoutes(s)
	return s, nil
}

func openDirectory(ctx context.Context, cfg Config, objects minio.ClientInterface) (directory.Directory, func(), error) {
	switch cfg.DirectoryBackend {
	case BackendMinIO, "":
		if objects == nil {
			return nil, nil, fmt.Errorf("minio directory backend needs MINIO_ENDPOINT")
		}
		return directory.NewMinioDirectory(objects, cfg.Bucket), func() {}, nil
	case BackendPostgres:
		dir, err := directory.NewPostgresDirectory(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return dir, dir.Close, nil
	case BackendNeo4j:
		dir, err := directory.NewNeo4jDirectory(ctx, cfg.Neo4j)
		if err != nil {
			return nil, nil, err
		}
		return dir, func() {
			if err := dir.Close(context.Background()); err != nil {
				log.Printf("neo4j close: %v", err)
			}
		}, nil
	case BackendMemory:
		log.Println("Using in-memory room directory; snapshots do not survive restarts")
		return directory.NewMemoryDirectory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown directory backend %q", cfg.DirectoryBackend)
	}
}

// Start serves HTTP and background feeds until Stop.
func (s *Service) Start(ctx context.Context) {
	log.Printf("Collab server %s starting (directory=%s)", s.instanceID, s.cfg.DirectoryBackend)

	if err := s.templates.Preload(ctx); err != nil {
		log.Printf("Warning: template preload failed: %v", err)
	}
	go s.templates.RefreshLoop(ctx, s.cfg.TemplateRefresh)

	if s.bus != nil {
		// Own consumer group per instance so every instance sees every event.
		go s.bus.Subscribe(ctx, eventbus.TopicRoomEvents, "collab-activity-"+s.instanceID, s.activity.Publish)
	}

	s.httpServer.Start()
}

// Stop closes the listener, every room session and the backends. Edits not
// yet flushed are dropped.
func (s *Service) Stop() {
	s.httpServer.Stop()
	s.hub.CloseAll()
	s.registry.Close()
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			log.Printf("Event bus close error: %v", err)
		}
	}
	s.closeDir()
}
