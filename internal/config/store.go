// internal/config/store.go

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"coderoom-core/internal/minio"

	"gopkg.in/yaml.v3"
)

// ErrUnknownLanguage is returned for a language outside the configured set.
var ErrUnknownLanguage = errors.New("unknown language")

const templatePrefix = "room-templates"

//go:embed templates.yaml
var embeddedTemplates []byte

// Template is the starter content of a new room in one language.
type Template struct {
	Content string `yaml:"content" json:"content"`
}

// Templates is the YAML document describing the language set.
type Templates struct {
	DefaultLanguage string              `yaml:"default_language"`
	Languages       map[string]Template `yaml:"languages"`
}

// ParseTemplates decodes a templates document.
func ParseTemplates(data []byte) (*Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid templates YAML: %w", err)
	}
	if len(t.Languages) == 0 {
		return nil, fmt.Errorf("templates define no languages")
	}
	if _, ok := t.Languages[t.DefaultLanguage]; !ok {
		return nil, fmt.Errorf("default language %q has no template", t.DefaultLanguage)
	}
	return &t, nil
}

// Store serves the enumerated language set and per-language starter content.
// Built-in templates can be overridden or extended by objects
// room-templates/<language>.yaml in MinIO.
type Store struct {
	minioClient minio.ClientInterface // nil disables overrides
	bucket      string
	base        *Templates

	cacheLock sync.RWMutex
	cache     map[string]Template
}

// NewStore creates a template store. minioClient may be nil.
func NewStore(minioClient minio.ClientInterface, bucket string) *Store {
	base, err := ParseTemplates(embeddedTemplates)
	if err != nil {
		panic(err)
	}
	return &Store{
		minioClient: minioClient,
		bucket:      bucket,
		base:        base,
		cache:       make(map[string]Template),
	}
}

// DefaultLanguage is used when a join names no language.
func (s *Store) DefaultLanguage() string {
	return s.base.DefaultLanguage
}

// Languages returns the sorted language set.
func (s *Store) Languages() []string {
	seen := make(map[string]bool)
	for lang := range s.base.Languages {
		seen[lang] = true
	}
	s.cacheLock.RLock()
	for lang := range s.cache {
		seen[lang] = true
	}
	s.cacheLock.RUnlock()

	out := make([]string, 0, len(seen))
	for lang := range seen {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Normalize lower-cases language, substitutes the default for an empty value
// and checks membership in the set.
func (s *Store) Normalize(language string) (string, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return s.base.DefaultLanguage, nil
	}
	if _, ok := s.base.Languages[language]; ok {
		return language, nil
	}
	s.cacheLock.RLock()
	_, ok := s.cache[language]
	s.cacheLock.RUnlock()
	if ok {
		return language, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, language)
}

// DefaultContent returns the starter content for language, preferring a
// MinIO override.
func (s *Store) DefaultContent(ctx context.Context, language string) string {
	s.cacheLock.RLock()
	if t, ok := s.cache[language]; ok {
		s.cacheLock.RUnlock()
		return t.Content
	}
	s.cacheLock.RUnlock()

	if t, err := s.loadOverride(ctx, language); err == nil {
		s.cacheLock.Lock()
		s.cache[language] = *t
		s.cacheLock.Unlock()
		return t.Content
	} else if !errors.Is(err, minio.ErrObjectNotFound) {
		log.Printf("config: template override for %s: %v", language, err)
	}
	return s.base.Languages[language].Content
}

// Preload lists every override object and replaces the cache with them,
// which also adds override-only languages to the set. The previous cache
// stays in place until the new one is complete and is kept on error.
func (s *Store) Preload(ctx context.Context) error {
	if s.minioClient == nil {
		return nil
	}
	objects, err := s.minioClient.ListObjects(ctx, s.bucket, templatePrefix+"/")
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	cache := make(map[string]Template, len(objects))
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}
		language := strings.ToLower(strings.TrimSuffix(name, ".yaml"))
		t, err := s.loadOverride(ctx, language)
		if err != nil {
			log.Printf("config: skipping template %s: %v", obj.Key, err)
			continue
		}
		cache[language] = *t
	}

	s.cacheLock.Lock()
	s.cache = cache
	s.cacheLock.Unlock()
	log.Printf("config: %d template overrides loaded", len(cache))
	return nil
}

func (s *Store) loadOverride(ctx context.Context, language string) (*Template, error) {
	if s.minioClient == nil {
		return nil, minio.ErrObjectNotFound
	}
	key := path.Join(templatePrefix, language+".yaml")
	data, err := s.minioClient.GetObject(ctx, s.bucket, key)
	if err != nil {
		return nil, err
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid YAML for %s: %w", language, err)
	}
	return &t, nil
}

// RefreshLoop reloads overrides every interval (hot reload) until ctx is done.
func (s *Store) RefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Preload(ctx); err != nil {
				log.Printf("config: template refresh: %v", err)
			}
		}
	}
}
