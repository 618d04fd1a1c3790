package config

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderoom-core/internal/minio"
)

type fakeObjects map[string]string

func (f fakeObjects) PutObject(context.Context, string, string, io.Reader, int64, string) error {
	return errors.New("read only")
}

func (f fakeObjects) GetObject(_ context.Context, _, object string) ([]byte, error) {
	v, ok := f[object]
	if !ok {
		return nil, minio.ErrObjectNotFound
	}
	return []byte(v), nil
}

func (f fakeObjects) ListObjects(_ context.Context, _, prefix string) ([]minio.ObjectInfo, error) {
	var out []minio.ObjectInfo
	for k := range f {
		if strings.HasPrefix(k, prefix) {
			out = append(out, minio.ObjectInfo{Key: k})
		}
	}
	return out, nil
}

func TestEmbeddedTemplates(t *testing.T) {
	s := NewStore(nil, "")
	assert.Equal(t, "javascript", s.DefaultLanguage())
	assert.Contains(t, s.Languages(), "python")
	assert.Contains(t, s.DefaultContent(context.Background(), "python"), "def main():")
	assert.Empty(t, s.DefaultContent(context.Background(), "plaintext"))
}

func TestNormalize(t *testing.T) {
	s := NewStore(nil, "")

	lang, err := s.Normalize("")
	require.NoError(t, err)
	assert.Equal(t, "javascript", lang)

	lang, err = s.Normalize(" Python ")
	require.NoError(t, err)
	assert.Equal(t, "python", lang)

	_, err = s.Normalize("cobol")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestOverridesFromObjectStore(t *testing.T) {
	objects := fakeObjects{
		"room-templates/python.yaml": "content: \"# team template\\n\"\n",
		"room-templates/cobol.yaml":  "content: \"IDENTIFICATION DIVISION.\"\n",
	}
	s := NewStore(objects, "config")
	ctx := context.Background()

	assert.Equal(t, "# team template\n", s.DefaultContent(ctx, "python"))

	_, err := s.Normalize("cobol")
	require.ErrorIs(t, err, ErrUnknownLanguage)

	require.NoError(t, s.Preload(ctx))
	lang, err := s.Normalize("cobol")
	require.NoError(t, err)
	assert.Equal(t, "cobol", lang)
	assert.Equal(t, "IDENTIFICATION DIVISION.", s.DefaultContent(ctx, "cobol"))
}

// watchedObjects runs onGet before every read.
type watchedObjects struct {
	fakeObjects
	onGet func()
}

func (w watchedObjects) GetObject(ctx context.Context, bucket, object string) ([]byte, error) {
	w.onGet()
	return w.fakeObjects.GetObject(ctx, bucket, object)
}

func TestReloadKeepsOverridesAvailable(t *testing.T) {
	ctx := context.Background()
	objects := fakeObjects{"room-templates/cobol.yaml": "content: \"v1\"\n"}
	var s *Store
	reloading := false
	var seen []error
	s = NewStore(watchedObjects{fakeObjects: objects, onGet: func() {
		if reloading {
			_, err := s.Normalize("cobol")
			seen = append(seen, err)
		}
	}}, "config")

	require.NoError(t, s.Preload(ctx))
	objects["room-templates/cobol.yaml"] = "content: \"v2\"\n"

	reloading = true
	require.NoError(t, s.Preload(ctx))
	require.NotEmpty(t, seen)
	for _, err := range seen {
		assert.NoError(t, err)
	}
	assert.Equal(t, "v2", s.DefaultContent(ctx, "cobol"))

	delete(objects, "room-templates/cobol.yaml")
	require.NoError(t, s.Preload(ctx))
	_, err := s.Normalize("cobol")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestParseTemplatesRejectsMissingDefault(t *testing.T) {
	_, err := ParseTemplates([]byte("default_language: go\nlanguages:\n  python:\n    content: x\n"))
	assert.Error(t, err)
}
