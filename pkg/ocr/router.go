package ocr

import (
	"context"
	"fmt"
	"strings"
)

// Router picks an extractor by media type. Exact matches win over "image/*" style wildcards.
type Router struct {
	routes map[string]Extractor
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Extractor)}
}

// Handle registers extractor for a media type or a "type/*" wildcard. Nil extractors are ignored.
func (r *Router) Handle(mimeType string, extractor Extractor) *Router {
	if extractor == nil {
		return r
	}
	r.routes[strings.ToLower(strings.TrimSpace(mimeType))] = extractor
	return r
}

// Extract dispatches to the registered extractor.
func (r *Router) Extract(ctx context.Context, artifact Artifact) (string, error) {
	extractor, ok := r.lookup(artifact.MimeType)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, artifact.MimeType)
	}
	return extractor.Extract(ctx, artifact)
}

// Supports reports whether some extractor is registered for mimeType.
func (r *Router) Supports(mimeType string) bool {
	_, ok := r.lookup(mimeType)
	return ok
}

func (r *Router) lookup(mimeType string) (Extractor, bool) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if extractor, ok := r.routes[mimeType]; ok {
		return extractor, true
	}
	if idx := strings.Index(mimeType, "/"); idx > 0 {
		if extractor, ok := r.routes[mimeType[:idx]+"/*"]; ok {
			return extractor, true
		}
	}
	return nil, false
}
