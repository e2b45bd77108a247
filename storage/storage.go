package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("object not found")

// Store holds uploaded recordings and archived run artifacts and hands back
// a public URL for each object.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	PutJSON(ctx context.Context, key string, v any) (string, error)
	GetJSON(ctx context.Context, key string, v any) error
}

// CleanKey normalizes an object key and rejects keys that escape the store
// root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	cleaned := path.Clean("/" + key)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", errors.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}

// SafeFilename keeps letters, digits, dots, dashes and underscores.
func SafeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "upload"
	}
	return out
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
