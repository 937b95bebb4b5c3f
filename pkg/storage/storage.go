// Package storage holds the provider-neutral types shared by the content stores.
package storage

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Object is an artifact about to be written to a content store.
type Object struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Stored identifies an artifact after a successful write.
type Stored struct {
	Key string
	URL string
}

// ObjectKey builds a collision-free key that keeps a readable fragment of the original name.
func ObjectKey(prefix, name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "artifact"
	}

	key := fmt.Sprintf("%s-%s%s", base, uuid.NewString(), strings.ToLower(filepath.Ext(name)))
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
