// Package storage is the seam to the external object-storage collaborator:
// the engine only needs a durable public URL for an uploaded evidence blob.
package storage

import (
	"errors"
	"strings"
)

type Resolver interface {
	// PublicURL turns an uploaded blob path into a durable reference URL.
	PublicURL(blobPath string) (string, error)
}

// BaseURLResolver joins blob paths onto a configured public base URL.
type BaseURLResolver struct {
	BaseURL string
}

func (r BaseURLResolver) PublicURL(blobPath string) (string, error) {
	p := strings.TrimSpace(blobPath)
	if p == "" {
		return "", errors.New("blob path required")
	}
	base := strings.TrimSuffix(r.BaseURL, "/")
	if base == "" {
		return "", errors.New("storage public base URL not configured")
	}
	return base + "/" + strings.TrimPrefix(p, "/"), nil
}
